// Package mapping proposes and validates tag-to-field mappings.
package mapping

import (
	"regexp"
	"strings"

	"github.com/hyperjump/sashikomi/internal/models"
)

// NameMatchConfidence is the fixed confidence assigned to any hit of the
// default name matcher. Scoring is intentionally coarse; graduated matchers
// plug in as alternative strategies.
const NameMatchConfidence = 0.8

// Strategy proposes a field for one tag. An empty fieldKey with confidence 0
// means no candidate was found.
type Strategy interface {
	Match(tag models.Tag, fields []models.Field) (fieldKey string, confidence float64)
}

// AutoMap proposes one mapping per tag using the given strategy. Proposals
// carry IsManual=false; tags without a candidate get confidence 0 and an
// empty field key (filtered out on save).
func AutoMap(templateID string, version int, tagList []models.Tag, fields []models.Field, strategy Strategy) []models.Mapping {
	out := make([]models.Mapping, 0, len(tagList))
	for _, tag := range tagList {
		fieldKey, confidence := strategy.Match(tag, fields)
		out = append(out, models.Mapping{
			TemplateID:      templateID,
			TemplateVersion: version,
			TagName:         tag.Name,
			FieldKey:        fieldKey,
			Confidence:      confidence,
			IsManual:        false,
		})
	}
	return out
}

// NameMatcher is the default matching strategy. Policy, in priority order:
// exact case-insensitive equality, equality after stripping non-alphanumerics,
// then substring containment either direction. The first satisfying field in
// source order wins.
type NameMatcher struct{}

var alnumOnly = regexp.MustCompile(`[^a-z0-9]+`)

func stripNonAlnum(s string) string {
	return alnumOnly.ReplaceAllString(strings.ToLower(s), "")
}

// Match implements Strategy.
func (NameMatcher) Match(tag models.Tag, fields []models.Field) (string, float64) {
	name := strings.ToLower(tag.Name)

	for _, f := range fields {
		if strings.ToLower(f.Key) == name {
			return f.Key, NameMatchConfidence
		}
	}

	stripped := stripNonAlnum(name)
	if stripped != "" {
		for _, f := range fields {
			if stripNonAlnum(f.Key) == stripped {
				return f.Key, NameMatchConfidence
			}
		}
		for _, f := range fields {
			fk := stripNonAlnum(f.Key)
			if fk == "" {
				continue
			}
			if strings.Contains(fk, stripped) || strings.Contains(stripped, fk) {
				return f.Key, NameMatchConfidence
			}
		}
	}
	return "", 0
}
