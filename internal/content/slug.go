package content

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vellum-dev/vellum/internal/config"
)

var datePrefixRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[-_]`)

// Slugify derives the slug for a content file from its relative path
// and the active URL mode. It must stay deterministic: rename
// detection maps old paths to new slugs by recomputing this.
func Slugify(relPath string, mode config.URLMode) string {
	p := filepath.ToSlash(relPath)
	p = strings.TrimSuffix(p, path.Ext(p))

	segs := strings.Split(p, "/")
	for i, seg := range segs {
		if i == len(segs)-1 && mode == config.URLModePlain {
			seg = datePrefixRe.ReplaceAllString(seg, "")
		}
		segs[i] = slugifySegment(seg)
	}
	return strings.Join(segs, "/")
}

func slugifySegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// DatePrefix extracts a YYYY-MM-DD filename prefix, if present.
func DatePrefix(base string) (string, bool) {
	m := datePrefixRe.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	return m[1], true
}
