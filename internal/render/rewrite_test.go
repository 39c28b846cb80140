package render

import (
	"strings"
	"testing"

	"github.com/vellum-dev/vellum/internal/content"
)

func TestDerivativeName(t *testing.T) {
	ref := content.ImageReference{OutputBasename: "photo-deadbeef"}
	if got := DerivativeName(ref, 0); got != "photo-deadbeef.webp" {
		t.Errorf("natural derivative = %q", got)
	}
	if got := DerivativeName(ref, 640); got != "photo-deadbeef-640.webp" {
		t.Errorf("sized derivative = %q", got)
	}

	// The natural width maps to the unsuffixed file: the pipeline never
	// writes a width-suffixed derivative at the source's own width.
	ref.NaturalWidth = 640
	if got := DerivativeName(ref, 640); got != "photo-deadbeef.webp" {
		t.Errorf("natural-width derivative = %q, want unsuffixed", got)
	}
	if got := DerivativeName(ref, 320); got != "photo-deadbeef-320.webp" {
		t.Errorf("sized derivative = %q", got)
	}
}

func TestRewriteImages(t *testing.T) {
	rec := &content.Record{
		Body: `<p><img src="pics/photo.png" alt="x"></p>`,
		Images: []content.ImageReference{{
			SourcePath:     "pics/photo.png",
			ResolvedPath:   "pics/photo.png",
			OutputBasename: "photo-deadbeef",
			Sizes:          []int{320, 640},
		}},
	}

	out := string(rewriteImages(rec))
	if !strings.Contains(out, `src="/images/photo-deadbeef.webp"`) {
		t.Errorf("src not rewritten: %q", out)
	}
	if !strings.Contains(out, `srcset="/images/photo-deadbeef-320.webp 320w, /images/photo-deadbeef-640.webp 640w"`) {
		t.Errorf("srcset missing: %q", out)
	}
}

// A source narrower than some breakpoints ends its srcset with the
// unsuffixed natural derivative, never a suffixed file at the natural
// width.
func TestRewriteImages_NaturalWidthEntry(t *testing.T) {
	rec := &content.Record{
		Body: `<p><img src="photo.png" alt="x"></p>`,
		Images: []content.ImageReference{{
			SourcePath:     "photo.png",
			ResolvedPath:   "photo.png",
			OutputBasename: "photo-deadbeef",
			Sizes:          []int{320, 640, 700},
			NaturalWidth:   700,
		}},
	}

	out := string(rewriteImages(rec))
	if !strings.Contains(out, `srcset="/images/photo-deadbeef-320.webp 320w, /images/photo-deadbeef-640.webp 640w, /images/photo-deadbeef.webp 700w"`) {
		t.Errorf("srcset = %q, want natural entry without width suffix", out)
	}
	if strings.Contains(out, "photo-deadbeef-700.webp") {
		t.Errorf("srcset references a suffixed natural derivative: %q", out)
	}
}

func TestRewriteImages_NoSizesNoSrcset(t *testing.T) {
	rec := &content.Record{
		Body: `<img src="a.png">`,
		Images: []content.ImageReference{{
			SourcePath:     "a.png",
			OutputBasename: "a-cafebabe",
		}},
	}
	out := string(rewriteImages(rec))
	if strings.Contains(out, "srcset") {
		t.Errorf("srcset emitted without known sizes: %q", out)
	}
	if !strings.Contains(out, `src="/images/a-cafebabe.webp"`) {
		t.Errorf("src not rewritten: %q", out)
	}
}
