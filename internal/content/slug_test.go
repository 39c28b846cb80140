package content

import (
	"testing"

	"github.com/vellum-dev/vellum/internal/config"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		relPath string
		mode    config.URLMode
		want    string
	}{
		{"2024-01-01-welcome.md", config.URLModePlain, "welcome"},
		{"2024-01-01-welcome.md", config.URLModeDate, "2024-01-01-welcome"},
		{"Hello World.md", config.URLModePlain, "hello-world"},
		{"guides/Getting_Started.md", config.URLModePlain, "guides/getting-started"},
		{"notes/2023-12-31_year-end.md", config.URLModePlain, "notes/year-end"},
		{"Weird!!Chars##.md", config.URLModePlain, "weirdchars"},
		{"UPPER.txt", config.URLModePlain, "upper"},
		{"a/b/c.html", config.URLModePlain, "a/b/c"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.relPath, tc.mode); got != tc.want {
			t.Errorf("Slugify(%q, %q) = %q, want %q", tc.relPath, tc.mode, got, tc.want)
		}
	}
}

func TestDatePrefix(t *testing.T) {
	if d, ok := DatePrefix("2024-01-01-welcome.md"); !ok || d != "2024-01-01" {
		t.Errorf("DatePrefix = %q, %v", d, ok)
	}
	if _, ok := DatePrefix("welcome.md"); ok {
		t.Error("DatePrefix matched a file without a date prefix")
	}
}
