package reminder

import (
	"github.com/BTreeMap/ProfileNudge/internal/models"
)

const (
	// FormTitle is shown at the top of the missing fields dialog.
	FormTitle = "Complete your profile!"
	// FormSubmitLabel labels the dialog's submit button.
	FormSubmitLabel = "Submit"
	// MaxFormInputs is the most inputs a dialog can carry.
	MaxFormInputs = 10
	// MaxInputLabelLength is the longest label a dialog input can show.
	MaxInputLabelLength = 48
	// MaxSelectOptions is the most options a dialog select can carry.
	MaxSelectOptions = 100
)

// InputFor derives the dialog input for a field: a select over its possible
// values when it has any, free text otherwise. The input name is always the
// full field label so submissions can be joined back by label.
func InputFor(f models.ProfileField) models.FieldInput {
	label := truncateRunes(f.Label, MaxInputLabelLength)
	if len(f.PossibleValues) == 0 {
		return models.TextInput{Name: f.Label, Label: label}
	}
	options := f.PossibleValues
	if len(options) > MaxSelectOptions {
		options = options[:MaxSelectOptions]
	}
	return models.SelectInput{
		Name:    f.Label,
		Label:   label,
		Options: append([]string(nil), options...),
	}
}

// BuildForm builds the dialog for the given missing fields. Only the first
// MaxFormInputs fields get an input.
func BuildForm(missing []models.ProfileField) models.Form {
	n := len(missing)
	if n > MaxFormInputs {
		n = MaxFormInputs
	}
	inputs := make([]models.FieldInput, 0, n)
	for _, f := range missing[:n] {
		inputs = append(inputs, InputFor(f))
	}
	return models.Form{
		Title:          FormTitle,
		SubmitLabel:    FormSubmitLabel,
		NotifyOnCancel: true,
		Inputs:         inputs,
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
