// Package docpkg models a packaged word-processing document: a zip archive of
// XML parts. The body plus any headers and footers are treated as an ordered
// list of named text blobs; rewriting and rendering operate uniformly across
// all of them while every other entry is copied through untouched.
package docpkg

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// documentXMLPath is the default path to the main document body inside a .docx zip.
const documentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// mainContentType is the content type for the main document in DOCX files.
const mainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t> (and any other attributes).
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// partNameRe extracts PartName from Override elements in [Content_Types].xml.
var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(mainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(mainContentType) + `"[^>]+PartName="([^"]+)"`)

// headerFooterRe matches header and footer part names (word/header1.xml, word/footer2.xml, ...).
var headerFooterRe = regexp.MustCompile(`^word/(?:header|footer)\d*\.xml$`)

// part is one zip entry, held in original archive order.
type part struct {
	name string
	data []byte
	text bool
}

// Document is an opened packaged document.
type Document struct {
	parts []part
}

// Open parses a packaged document from its binary form. All entries are read
// into memory; text parts (body, headers, footers) are flagged for rewriting.
func Open(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open document: not a zip: %w", err)
	}

	bodyPath := findMainDocumentPath(zr)
	if bodyPath == "" {
		bodyPath = documentXMLPath
	}

	doc := &Document{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("open document: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		doc.parts = append(doc.parts, part{
			name: f.Name,
			data: buf.Bytes(),
			text: f.Name == bodyPath || headerFooterRe.MatchString(f.Name),
		})
	}

	if len(doc.parts) == 0 {
		return nil, fmt.Errorf("open document: empty archive")
	}
	return doc, nil
}

// findMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return ""
		}
		_ = rc.Close()

		content := buf.String()
		// Try both attribute orders
		if matches := partNameRe.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		if matches := partNameRe2.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		return ""
	}
	return ""
}

// TextPartNames returns the names of the text parts in archive order.
func (d *Document) TextPartNames() []string {
	var names []string
	for _, p := range d.parts {
		if p.text {
			names = append(names, p.name)
		}
	}
	return names
}

// Part returns the content of the named part.
func (d *Document) Part(name string) ([]byte, bool) {
	for _, p := range d.parts {
		if p.name == name {
			return p.data, true
		}
	}
	return nil, false
}

// Transform applies fn to every text part. It reports whether any part changed.
func (d *Document) Transform(fn func(name, content string) string) bool {
	changed := false
	for i := range d.parts {
		if !d.parts[i].text {
			continue
		}
		out := fn(d.parts[i].name, string(d.parts[i].data))
		if out != string(d.parts[i].data) {
			d.parts[i].data = []byte(out)
			changed = true
		}
	}
	return changed
}

// Bytes serializes the document back into zip form, preserving entry order.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range d.parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("repack document: create %s: %w", p.name, err)
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, fmt.Errorf("repack document: write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("repack document: %w", err)
	}
	return buf.Bytes(), nil
}

// Text extracts the plain text of all text parts by joining every
// <w:t>...</w:t> node with spaces. Markup and attributes are dropped.
func (d *Document) Text() string {
	var b strings.Builder
	for _, p := range d.parts {
		if !p.text {
			continue
		}
		for _, m := range wtTag.FindAllStringSubmatch(string(p.data), -1) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(m[1]))
		}
	}
	return strings.TrimSpace(b.String())
}
