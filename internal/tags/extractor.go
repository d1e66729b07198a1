// Package tags extracts reusable tag definitions from template text.
package tags

import (
	"regexp"

	"github.com/hyperjump/sashikomi/internal/docpkg"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/pkg/utils"
)

// Extractor scans plain text for delimiter-wrapped markers and produces an
// ordered, de-duplicated list of tag definitions. Extraction is pure and
// idempotent.
type Extractor struct {
	delim string
	re    *regexp.Regexp
}

// NewExtractor returns an Extractor for the given delimiter pair. An empty
// delimiter selects docpkg.DefaultDelimiter.
func NewExtractor(delim string) *Extractor {
	if delim == "" {
		delim = docpkg.DefaultDelimiter
	}
	return &Extractor{
		delim: delim,
		re:    docpkg.MarkerPattern(delim),
	}
}

// Extract returns the tags found in text, ordered by first occurrence. Two
// markers that normalize to the same canonical name collapse to one tag; the
// first occurrence supplies the display name. Empty and delimiter-only
// markers are ignored.
func (e *Extractor) Extract(text string) []models.Tag {
	var out []models.Tag
	seen := make(map[string]bool)
	for _, m := range e.re.FindAllStringSubmatch(text, -1) {
		name := utils.Canonicalize(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, models.Tag{
			Name:        name,
			DisplayName: utils.TitleCase(m[1]),
		})
	}
	return out
}
