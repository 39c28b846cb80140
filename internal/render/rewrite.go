package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/vellum-dev/vellum/internal/content"
)

// ImagePrefix is the URL path under which image derivatives are served.
const ImagePrefix = "/images/"

// DerivativeName returns the output filename for a derivative of ref
// at the given width. The natural-size derivative is written without a
// width suffix, so both width zero and the natural width itself map to
// the unsuffixed name.
func DerivativeName(ref content.ImageReference, width int) string {
	if width == 0 || (ref.NaturalWidth > 0 && width == ref.NaturalWidth) {
		return ref.OutputBasename + ".webp"
	}
	return fmt.Sprintf("%s-%d.webp", ref.OutputBasename, width)
}

// rewriteImages replaces source image paths in a record's body with
// hashed derivative URLs, adding a srcset when derivative sizes are
// known. The hash in the filename gives every derivative an immutable
// URL, so these responses can be cached forever.
func rewriteImages(rec *content.Record) template.HTML {
	body := string(rec.Body)
	for _, ref := range rec.Images {
		src := ImagePrefix + DerivativeName(ref, 0)
		repl := `src="` + src + `"`
		if len(ref.Sizes) > 0 {
			var set []string
			for _, w := range ref.Sizes {
				set = append(set, fmt.Sprintf("%s%s %dw", ImagePrefix, DerivativeName(ref, w), w))
			}
			repl += ` srcset="` + strings.Join(set, ", ") + `"`
		}
		body = strings.ReplaceAll(body, `src="`+ref.SourcePath+`"`, repl)
	}
	return template.HTML(body)
}
