// Package reminder implements the required profile field reminder workflow.
//
// A Dispatcher scans a team's members, works out which required fields each of
// them is missing and sends a reminder carrying a correlation token. The
// InteractionHandler then stitches the button click and the dialog submission
// back to that reminder through the context store and writes the answers to
// the member's profile.
package reminder

import (
	"strings"

	"github.com/BTreeMap/ProfileNudge/internal/models"
)

// RequiredRemoteFields returns the catalog fields whose label matches a required
// field name, in catalog order and deduplicated by field id.
func RequiredRemoteFields(required []models.RequiredField, remote []models.ProfileField) []models.ProfileField {
	names := make(map[string]struct{}, len(required))
	for _, r := range required {
		names[r.FieldName] = struct{}{}
	}

	seen := make(map[string]struct{}, len(remote))
	result := make([]models.ProfileField, 0, len(required))
	for _, f := range remote {
		if _, ok := names[f.Label]; !ok {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		result = append(result, f)
	}
	return result
}

// MissingFields returns the required catalog fields that are unset in snapshot.
//
// A nil snapshot.Fields means the user never set any field, so every required
// field is missing. Otherwise a field is missing when its id is absent from
// the snapshot or its value is blank after trimming.
func MissingFields(required []models.RequiredField, remote []models.ProfileField, snapshot models.ProfileSnapshot) []models.ProfileField {
	requiredRemote := RequiredRemoteFields(required, remote)
	if snapshot.Fields == nil {
		return requiredRemote
	}

	missing := make([]models.ProfileField, 0, len(requiredRemote))
	for _, f := range requiredRemote {
		v, ok := snapshot.Fields[f.ID]
		if !ok || strings.TrimSpace(v.Value) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}
