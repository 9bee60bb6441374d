package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain npi", input: "1033933064", want: "1033933064"},
		{name: "path traversal", input: "../etc/passwd", want: ".._etc_passwd"},
		{name: "spaces and quotes", input: ` 10 "33" `, want: `10__33_`},
		{name: "blank", input: "  ", want: "export"},
		{name: "dot", input: ".", want: "export"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeFileName(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}

	if got := SanitizeFileName(strings.Repeat("9", 200)); len(got) != 120 {
		t.Fatalf("len=%d", len(got))
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Fatalf("got %q", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestDerefString(t *testing.T) {
	if DerefString(nil) != "" {
		t.Fatal("nil should deref to empty")
	}
	if DerefString(StringPtr("x")) != "x" {
		t.Fatal("bad deref")
	}
}
