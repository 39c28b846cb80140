package images

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/vellum-dev/vellum/internal/content"
)

// hashedNameRe matches derivative filenames: <base>-<hash8>.webp or
// <base>-<hash8>-<width>.webp.
var hashedNameRe = regexp.MustCompile(`-([0-9a-f]{8})(?:-\d+)?\.webp$`)

// Sweep deletes derivatives whose content hash matches no currently
// referenced source. It scans the whole derivative tree, so it runs
// after optimization passes, not per request.
func (p *Pipeline) Sweep(refs []content.ImageReference) (removed int, err error) {
	live := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if len(ref.ContentHash) >= 8 {
			live[ref.ContentHash[:8]] = struct{}{}
		}
	}

	err = filepath.WalkDir(p.derivDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := hashedNameRe.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		if _, ok := live[m[1]]; ok {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			p.logger.Warn("orphan sweep failed to delete", "path", path, "error", rmErr)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	return removed, nil
}
