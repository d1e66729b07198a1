package mapping

import (
	"fmt"

	"github.com/hyperjump/sashikomi/internal/models"
)

// Validate checks that every mapping's field key references a field actually
// present in the data source. Invalid mappings are reported, not dropped: the
// returned errors name each offending tag and field so the caller can fix
// them.
func Validate(mappings []models.Mapping, fields []models.Field) []error {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Key] = true
	}

	var errs []error
	for _, m := range mappings {
		if m.FieldKey == "" {
			continue
		}
		if !known[m.FieldKey] {
			errs = append(errs, fmt.Errorf("mapping for tag %q references unknown field %q", m.TagName, m.FieldKey))
		}
	}
	return errs
}
