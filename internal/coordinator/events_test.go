package coordinator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"

	"github.com/vellum-dev/vellum/internal/config"
)

func classifyFixture(t *testing.T) (*config.Site, string) {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.ContentDir = filepath.Join(tmp, "content")
	cfg.ThemeDir = filepath.Join(tmp, "theme")
	for _, d := range []string{cfg.ContentDir, cfg.ThemeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(cfg.ContentDir, "post.md"), []byte("# Post\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg, filepath.Join(tmp, "vellum.yaml")
}

func TestClassify(t *testing.T) {
	cfg, cfgPath := classifyFixture(t)

	cases := []struct {
		name    string
		ev      fsnotify.Event
		want    EventClass
		wantRel string
	}{
		{
			name: "chmod ignored",
			ev:   fsnotify.Event{Name: filepath.Join(cfg.ContentDir, "post.md"), Op: fsnotify.Chmod},
			want: EvIgnore,
		},
		{
			name: "config file",
			ev:   fsnotify.Event{Name: cfgPath, Op: fsnotify.Write},
			want: EvConfigChange,
		},
		{
			name: "theme file",
			ev:   fsnotify.Event{Name: filepath.Join(cfg.ThemeDir, "templates", "index.html"), Op: fsnotify.Write},
			want: EvThemeChange,
		},
		{
			name:    "image under content root",
			ev:      fsnotify.Event{Name: filepath.Join(cfg.ContentDir, "pics", "cat.PNG"), Op: fsnotify.Create},
			want:    EvImageChange,
			wantRel: "pics/cat.PNG",
		},
		{
			name:    "existing content file written",
			ev:      fsnotify.Event{Name: filepath.Join(cfg.ContentDir, "post.md"), Op: fsnotify.Write},
			want:    EvContentChange,
			wantRel: "post.md",
		},
		{
			name:    "existing content file created counts as rename-in",
			ev:      fsnotify.Event{Name: filepath.Join(cfg.ContentDir, "post.md"), Op: fsnotify.Create},
			want:    EvContentRenameIn,
			wantRel: "post.md",
		},
		{
			name:    "missing content file is rename-out regardless of op",
			ev:      fsnotify.Event{Name: filepath.Join(cfg.ContentDir, "gone.md"), Op: fsnotify.Create},
			want:    EvContentRenameOut,
			wantRel: "gone.md",
		},
		{
			name: "non-content extension ignored",
			ev:   fsnotify.Event{Name: filepath.Join(cfg.ContentDir, "data.json"), Op: fsnotify.Write},
			want: EvIgnore,
		},
		{
			name: "path outside any root ignored",
			ev:   fsnotify.Event{Name: filepath.Join(t.TempDir(), "elsewhere.md"), Op: fsnotify.Write},
			want: EvIgnore,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rel := Classify(cfg, cfgPath, tc.ev)
			if got != tc.want {
				t.Errorf("class = %s, want %s", got, tc.want)
			}
			if rel != tc.wantRel {
				t.Errorf("rel = %q, want %q", rel, tc.wantRel)
			}
		})
	}
}
