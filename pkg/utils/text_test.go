package utils

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("café crème", 4); got != "café..." {
		t.Errorf("multibyte: got %q", got)
	}
	if got := Truncate("日本語テキスト", 3); got != "日本語..." || !utf8.ValidString(got) {
		t.Errorf("multibyte: got %q", got)
	}
}

func TestTrimWords(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"one two three", 5, "one two three"},
		{"one  two\nthree four", 2, "one two..."},
		{"  spaced   out  ", 0, "spaced out"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := TrimWords(tt.in, tt.n); got != tt.want {
			t.Errorf("TrimWords(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a   b  ", "a b"},
		{"a\t\n b", "a b"},
		{"a  b", "a b"},
		{"", ""},
		{"no-change", "no-change"},
	}
	for _, tt := range tests {
		if got := CollapseWhitespace(tt.in); got != tt.want {
			t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
