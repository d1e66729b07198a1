package utils

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Client Name", "client_name"},
		{"  client   name  ", "client_name"},
		{"Amount (EUR)", "amount_eur"},
		{"CLIENT-NAME", "clientname"},
		{"already_canonical", "already_canonical"},
		{"£", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Canonicalize(c.in); got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"client name", "Client Name"},
		{"  client   name ", "Client Name"},
		{"amount", "Amount"},
		{"", ""},
	}
	for _, c := range cases {
		if got := TitleCase(c.in); got != c.want {
			t.Errorf("TitleCase(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hi", 5); got != "hi" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hi", 0); got != "hi" {
		t.Errorf("got %q", got)
	}
}
