package tags

import (
	"reflect"
	"testing"
)

func TestExtract_basic(t *testing.T) {
	e := NewExtractor("")
	got := e.Extract("Dear £Client Name£, your invoice £Amount£ is due on £Due Date£.")
	if len(got) != 3 {
		t.Fatalf("expected 3 tags, got %d: %v", len(got), got)
	}
	if got[0].Name != "client_name" || got[0].DisplayName != "Client Name" {
		t.Errorf("got %+v", got[0])
	}
	if got[1].Name != "amount" || got[1].DisplayName != "Amount" {
		t.Errorf("got %+v", got[1])
	}
	if got[2].Name != "due_date" {
		t.Errorf("got %+v", got[2])
	}
}

func TestExtract_dedupFirstWins(t *testing.T) {
	e := NewExtractor("")
	got := e.Extract("£Client Name£ ... £client   name£ ... £CLIENT NAME£")
	if len(got) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(got))
	}
	if got[0].DisplayName != "Client Name" {
		t.Errorf("first occurrence should win: %+v", got[0])
	}
}

func TestExtract_ignoresEmptyMarkers(t *testing.T) {
	e := NewExtractor("")
	if got := e.Extract("noise ££ more £   £ done"); len(got) != 0 {
		t.Errorf("expected no tags, got %v", got)
	}
}

func TestExtract_currencyPairsDoNotSpanMarkup(t *testing.T) {
	e := NewExtractor("")
	text := `Fee is £100</w:t><w:t> plus £50 surcharge</w:t><w:t> for £Client Name£`
	got := e.Extract(text)
	if len(got) != 1 {
		t.Fatalf("expected only the real tag, got %v", got)
	}
	if got[0].Name != "client_name" {
		t.Errorf("got %+v", got[0])
	}
}

func TestExtract_idempotent(t *testing.T) {
	e := NewExtractor("")
	text := "£Alpha£ £beta value£ £Alpha£"
	first := e.Extract(text)
	second := e.Extract(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not idempotent: %v vs %v", first, second)
	}
	if len(first) != 2 {
		t.Errorf("expected 2 tags, got %v", first)
	}
}

func TestExtract_customDelimiter(t *testing.T) {
	e := NewExtractor("%%")
	got := e.Extract("Hello %%First Name%%")
	if len(got) != 1 || got[0].Name != "first_name" {
		t.Errorf("got %v", got)
	}
}

func TestExtractText_plain(t *testing.T) {
	text, err := ExtractText([]byte("£tag£ body"), ".txt")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "£tag£ body" {
		t.Errorf("got %q", text)
	}
}

func TestExtractText_invalidUTF8(t *testing.T) {
	text, err := ExtractText([]byte("a\x80b"), ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if text != "a�b" {
		t.Errorf("got %q", text)
	}
}
