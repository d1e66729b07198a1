package mapping

import (
	"testing"

	"github.com/hyperjump/sashikomi/internal/models"
)

var testFields = []models.Field{
	{Key: "id", Type: "number"},
	{Key: "Client Name", Type: "text"},
	{Key: "total_amount", Type: "number"},
	{Key: "email", Type: "text"},
}

func TestNameMatcher_exactCaseInsensitive(t *testing.T) {
	key, conf := NameMatcher{}.Match(models.Tag{Name: "email"}, testFields)
	if key != "email" || conf != NameMatchConfidence {
		t.Errorf("got %q/%v", key, conf)
	}
}

func TestNameMatcher_strippedEquality(t *testing.T) {
	key, conf := NameMatcher{}.Match(models.Tag{Name: "client_name"}, testFields)
	if key != "Client Name" || conf != NameMatchConfidence {
		t.Errorf("got %q/%v", key, conf)
	}
}

func TestNameMatcher_substringContainment(t *testing.T) {
	key, _ := NameMatcher{}.Match(models.Tag{Name: "amount"}, testFields)
	if key != "total_amount" {
		t.Errorf("got %q", key)
	}
	// Containment works the other direction too.
	key, _ = NameMatcher{}.Match(models.Tag{Name: "total_amount_eur"}, testFields)
	if key != "total_amount" {
		t.Errorf("got %q", key)
	}
}

func TestNameMatcher_noCandidate(t *testing.T) {
	key, conf := NameMatcher{}.Match(models.Tag{Name: "signature"}, testFields)
	if key != "" || conf != 0 {
		t.Errorf("expected no match, got %q/%v", key, conf)
	}
}

func TestNameMatcher_firstFieldWins(t *testing.T) {
	fields := []models.Field{
		{Key: "name_one", Type: "text"},
		{Key: "name_two", Type: "text"},
	}
	key, _ := NameMatcher{}.Match(models.Tag{Name: "name"}, fields)
	if key != "name_one" {
		t.Errorf("ties resolve by source order, got %q", key)
	}
}

func TestAutoMap_oneProposalPerTag(t *testing.T) {
	tagList := []models.Tag{
		{Name: "email"},
		{Name: "signature"},
	}
	got := AutoMap("t1", 3, tagList, testFields, NameMatcher{})
	if len(got) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(got))
	}
	if got[0].FieldKey != "email" || got[0].Confidence != NameMatchConfidence || got[0].IsManual {
		t.Errorf("got %+v", got[0])
	}
	if got[1].FieldKey != "" || got[1].Confidence != 0 {
		t.Errorf("unmatched tag should get confidence 0: %+v", got[1])
	}
	if got[0].TemplateID != "t1" || got[0].TemplateVersion != 3 {
		t.Errorf("proposal not scoped: %+v", got[0])
	}
}

func TestFuzzyMatcher(t *testing.T) {
	key, conf := FuzzyMatcher{}.Match(models.Tag{Name: "emial"}, testFields)
	if key != "email" || conf != FuzzyMatchConfidence {
		t.Errorf("got %q/%v", key, conf)
	}
	key, conf = FuzzyMatcher{}.Match(models.Tag{Name: "completely_different"}, testFields)
	if key != "" || conf != 0 {
		t.Errorf("expected no fuzzy match, got %q/%v", key, conf)
	}
}

func TestDamerauLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "acb", 1}, // transposition
		{"kitten", "sitting", 3},
		{"", "ab", 2},
	}
	for _, c := range cases {
		if got := damerauLevenshtein(c.a, c.b); got != c.want {
			t.Errorf("damerauLevenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestValidate(t *testing.T) {
	mappings := []models.Mapping{
		{TagName: "a", FieldKey: "email"},
		{TagName: "b", FieldKey: "ghost_field"},
		{TagName: "c", FieldKey: ""},
	}
	errs := Validate(mappings, testFields)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	msg := errs[0].Error()
	if msg != `mapping for tag "b" references unknown field "ghost_field"` {
		t.Errorf("got %q", msg)
	}
}
