package nav

import (
	"testing"
	"time"

	"github.com/vellum-dev/vellum/internal/content"
)

func rec(slug, title string) *content.Record {
	return &content.Record{
		Slug:      slug,
		Title:     title,
		URL:       "/" + slug + "/",
		CreatedAt: time.Now(),
	}
}

func TestBuild_Hierarchy(t *testing.T) {
	idx := Build([]*content.Record{
		rec("welcome", "Welcome"),
		rec("guides/setup", "Setup"),
		rec("guides/advanced/tuning", "Tuning"),
		rec("about", "About"),
	}, "hash-1")

	if idx.Hash != "hash-1" {
		t.Errorf("Hash = %q", idx.Hash)
	}
	if len(idx.Roots) != 3 {
		t.Fatalf("roots = %d, want 3 (guides folder, about, welcome)", len(idx.Roots))
	}

	// Folders sort before files.
	guides := idx.Roots[0]
	if !guides.IsFolder() || guides.Title != "Guides" {
		t.Fatalf("first root = %+v, want the Guides folder", guides)
	}
	if len(guides.Children) != 2 {
		t.Fatalf("guides children = %d, want 2", len(guides.Children))
	}
	advanced := guides.Children[0]
	if !advanced.IsFolder() || advanced.Title != "Advanced" {
		t.Errorf("nested folder = %+v", advanced)
	}
	if len(advanced.Children) != 1 || advanced.Children[0].Slug != "guides/advanced/tuning" {
		t.Errorf("advanced children = %+v", advanced.Children)
	}
	if guides.Children[1].Slug != "guides/setup" {
		t.Errorf("guides file child = %+v", guides.Children[1])
	}

	// Files sort by title.
	if idx.Roots[1].Title != "About" || idx.Roots[2].Title != "Welcome" {
		t.Errorf("file ordering = %q, %q", idx.Roots[1].Title, idx.Roots[2].Title)
	}
}

func TestFolderTitle(t *testing.T) {
	if got := folderTitle("release-notes"); got != "Release Notes" {
		t.Errorf("folderTitle = %q", got)
	}
}

func TestBuild_Empty(t *testing.T) {
	idx := Build(nil, "empty")
	if len(idx.Roots) != 0 {
		t.Errorf("Roots = %v, want empty", idx.Roots)
	}
}
