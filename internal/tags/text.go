package tags

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lu4p/cat"

	"github.com/hyperjump/sashikomi/internal/docpkg"
)

// ExtractText returns the plain text of an uploaded template so its markers
// can be scanned. DOCX is handled by walking the package's text parts
// ourselves (cat's DOCX regex fails on real-world run attributes); ODT and
// RTF go through lu4p/cat; everything else is treated as plain text.
// ext should include the leading dot (e.g. ".docx").
func ExtractText(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".docx":
		doc, err := docpkg.Open(content)
		if err != nil {
			return "", err
		}
		return doc.Text(), nil
	case ".odt", ".rtf":
		text, err := cat.FromBytes(content)
		if err != nil {
			return "", fmt.Errorf("extract %s text: %w", ext, err)
		}
		return text, nil
	default:
		if !utf8.Valid(content) {
			content = []byte(strings.ToValidUTF8(string(content), "�"))
		}
		return string(content), nil
	}
}
