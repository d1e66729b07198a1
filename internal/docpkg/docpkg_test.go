package docpkg

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

// buildDocx builds a minimal docx zip with the given body XML plus optional
// header/footer parts and a styles part that must survive untouched.
func buildDocx(t *testing.T, body string, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("[Content_Types].xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`))
	fw, err = w.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + body + `</w:t></w:r></w:p></w:body></w:document>`))
	fw, err = w.Create("word/styles.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`<w:styles/>`))
	for name, content := range extra {
		fw, err = w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// bodyText extracts word/document.xml content from a docx binary.
func partContent(t *testing.T, data []byte, name string) string {
	t.Helper()
	doc, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	content, ok := doc.Part(name)
	if !ok {
		t.Fatalf("part %s not found", name)
	}
	return string(content)
}

func TestOpen_textParts(t *testing.T) {
	data := buildDocx(t, "Hello £client name£", map[string]string{
		"word/header1.xml": `<w:hdr><w:p><w:r><w:t>Header £date£</w:t></w:r></w:p></w:hdr>`,
		"word/footer1.xml": `<w:ftr><w:p><w:r><w:t>Footer</w:t></w:r></w:p></w:ftr>`,
	})
	doc, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	names := doc.TextPartNames()
	if len(names) != 3 {
		t.Fatalf("expected 3 text parts, got %v", names)
	}
	for _, want := range []string{"word/document.xml", "word/header1.xml", "word/footer1.xml"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing text part %s in %v", want, names)
		}
	}
}

func TestOpen_notAZip(t *testing.T) {
	if _, err := Open([]byte("not a zip")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestDocument_Text(t *testing.T) {
	data := buildDocx(t, "Hello £client name£", map[string]string{
		"word/footer1.xml": `<w:ftr><w:p><w:r><w:t>Page footer</w:t></w:r></w:p></w:ftr>`,
	})
	doc, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	text := doc.Text()
	if !strings.Contains(text, "£client name£") || !strings.Contains(text, "Page footer") {
		t.Errorf("got %q", text)
	}
}

func TestRewriter_replacesMarkersInAllParts(t *testing.T) {
	data := buildDocx(t, "Dear £Client Name£, you owe £ Amount £.", map[string]string{
		"word/header1.xml": `<w:hdr><w:p><w:r><w:t>£date£</w:t></w:r></w:p></w:hdr>`,
	})

	out, err := NewRewriter("").Rewrite(data)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	body := partContent(t, out, "word/document.xml")
	if !strings.Contains(body, "{{client_name}}") {
		t.Errorf("body missing canonical placeholder: %s", body)
	}
	if !strings.Contains(body, "{{amount}}") {
		t.Errorf("surrounding whitespace not stripped: %s", body)
	}
	if strings.Contains(body, "£") {
		t.Errorf("delimiters left behind: %s", body)
	}
	header := partContent(t, out, "word/header1.xml")
	if !strings.Contains(header, "{{date}}") {
		t.Errorf("header not rewritten: %s", header)
	}
	if got := partContent(t, out, "word/styles.xml"); got != `<w:styles/>` {
		t.Errorf("untouched part changed: %s", got)
	}
}

func TestRewriter_noMarkersRoundTrip(t *testing.T) {
	data := buildDocx(t, "No markers here.", nil)
	out, err := NewRewriter("").Rewrite(data)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("document without markers should round-trip byte-identical")
	}
}

func TestRewriter_currencyAcrossRunsStaysLiteral(t *testing.T) {
	body := `Fee is £100</w:t></w:r><w:r><w:t> plus £50 surcharge</w:t></w:r><w:r><w:t> for £Client Name£`
	data := buildDocx(t, body, nil)
	out, err := NewRewriter("").Rewrite(data)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	got := partContent(t, out, "word/document.xml")
	if !strings.Contains(got, `Fee is £100</w:t></w:r><w:r><w:t> plus £50 surcharge</w:t>`) {
		t.Errorf("currency amounts in separate runs were fused: %s", got)
	}
	if !strings.Contains(got, "{{client_name}}") {
		t.Errorf("single-node marker not rewritten: %s", got)
	}
}

func TestRewriter_emptyMarkerIgnored(t *testing.T) {
	data := buildDocx(t, "Stray ££ pair and £ £ blank.", nil)
	out, err := NewRewriter("").Rewrite(data)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("empty and whitespace-only markers should leave the document unchanged")
	}
}

func TestRender_substitutesAndEscapes(t *testing.T) {
	data := buildDocx(t, "Dear £client name£ & £amount£", nil)
	rewritten, err := NewRewriter("").Rewrite(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Render(rewritten, map[string]string{
		"client_name": "Smith & Sons",
		"amount":      "100",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := partContent(t, out, "word/document.xml")
	if !strings.Contains(body, "Smith &amp; Sons") {
		t.Errorf("value not escaped: %s", body)
	}
	if !strings.Contains(body, "100") {
		t.Errorf("amount not substituted: %s", body)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("placeholders left behind: %s", body)
	}
}

func TestRender_missingBindingStaysVisible(t *testing.T) {
	data := buildDocx(t, "£client name£ owes £amount£", nil)
	rewritten, err := NewRewriter("").Rewrite(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Render(rewritten, map[string]string{"client_name": "Acme"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := partContent(t, out, "word/document.xml")
	if !strings.Contains(body, "{{amount}}") {
		t.Errorf("missing binding should stay visible, got %s", body)
	}
	if !strings.Contains(body, "Acme") {
		t.Errorf("bound value missing: %s", body)
	}
}

func TestFanOut_cardinality(t *testing.T) {
	values := map[string]interface{}{
		"a": []interface{}{"a1", "a2", "a3"},
		"b": []interface{}{"b1"},
		"c": []interface{}{"c1", "c2", "c3", "c4", "c5"},
		"s": "scalar",
	}
	maps := FanOut(values)
	if len(maps) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(maps))
	}
	for i, m := range maps {
		if m["s"] != "scalar" {
			t.Errorf("doc %d: scalar not broadcast: %q", i+1, m["s"])
		}
	}
	if maps[0]["a"] != "a1" || maps[2]["a"] != "a3" {
		t.Errorf("array values misaligned: %v", maps)
	}
	if maps[1]["b"] != "" || maps[4]["b"] != "" {
		t.Errorf("short array should yield empty past its end: %v", maps)
	}
	if maps[4]["c"] != "c5" {
		t.Errorf("longest array misaligned: %v", maps)
	}
}

func TestFanOut_allScalars(t *testing.T) {
	maps := FanOut(map[string]interface{}{"a": "x", "n": float64(2)})
	if len(maps) != 1 {
		t.Fatalf("expected 1 document, got %d", len(maps))
	}
	if maps[0]["a"] != "x" || maps[0]["n"] != "2" {
		t.Errorf("got %v", maps[0])
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{"s", "s"},
		{float64(100), "100"},
		{float64(99.5), "99.5"},
		{42, "42"},
		{true, "true"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := Stringify(c.in); got != c.want {
			t.Errorf("Stringify(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestOutputNames(t *testing.T) {
	if got := OutputNames("contract", 1); len(got) != 1 || got[0] != "contract" {
		t.Errorf("got %v", got)
	}
	got := OutputNames("contract", 3)
	if len(got) != 3 || got[0] != "contract_1" || got[2] != "contract_3" {
		t.Errorf("got %v", got)
	}
}
