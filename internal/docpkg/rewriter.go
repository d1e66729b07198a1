package docpkg

import (
	"regexp"
	"strings"

	"github.com/hyperjump/sashikomi/pkg/utils"
)

// DefaultDelimiter wraps markers in template text (£client name£).
const DefaultDelimiter = "£"

// MarkerPattern returns the expression matching one delimiter-wrapped marker.
// The span body may not contain markup or another delimiter, so two stray
// delimiter occurrences in different XML nodes (£ as currency, say) never
// fuse across the markup between them; such occurrences stay literal.
func MarkerPattern(delim string) *regexp.Regexp {
	var class strings.Builder
	for _, r := range delim {
		if strings.ContainsRune(`\]^-`, r) {
			class.WriteByte('\\')
		}
		class.WriteRune(r)
	}
	return regexp.MustCompile(regexp.QuoteMeta(delim) + `([^<` + class.String() + `]*)` + regexp.QuoteMeta(delim))
}

// Rewriter replaces delimiter-wrapped markers in every text part with the
// rendering engine's native {{name}} placeholder syntax.
type Rewriter struct {
	delim string
	re    *regexp.Regexp
}

// NewRewriter returns a Rewriter for the given delimiter pair. An empty
// delimiter selects DefaultDelimiter.
func NewRewriter(delim string) *Rewriter {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &Rewriter{
		delim: delim,
		re:    MarkerPattern(delim),
	}
}

// Rewrite replaces every marker across all text parts with the placeholder
// form of its canonical tag name. The literal span content is canonicalized
// (the canonical name always wins over display-name variants), so all
// human-readable variants of one tag resolve to the same placeholder. A
// document containing no markers is returned byte-identical.
func (r *Rewriter) Rewrite(data []byte) ([]byte, error) {
	doc, err := Open(data)
	if err != nil {
		return nil, err
	}
	changed := doc.Transform(func(_, content string) string {
		return r.rewritePart(content)
	})
	if !changed {
		return data, nil
	}
	return doc.Bytes()
}

// rewritePart is the pure per-part rewrite. Empty or delimiter-only spans are
// left untouched.
func (r *Rewriter) rewritePart(content string) string {
	return r.re.ReplaceAllStringFunc(content, func(span string) string {
		inner := span[len(r.delim) : len(span)-len(r.delim)]
		name := utils.Canonicalize(inner)
		if name == "" {
			return span
		}
		return "{{" + name + "}}"
	})
}
