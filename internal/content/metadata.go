package content

import (
	"path"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// metaString reads a string field from front matter.
func metaString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// metaBool reads a boolean field from front matter.
func metaBool(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

// metaTags reads the tags list, preserving insertion order.
func metaTags(m map[string]interface{}) []string {
	if m == nil {
		return nil
	}
	raw, ok := m["tags"].([]interface{})
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		tags = append(tags, s)
	}
	return tags
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveTitle applies the ordered fallback chain: front matter, first
// H1 heading, a phrase derived from the filename, the raw filename.
func resolveTitle(meta map[string]interface{}, firstH1, relPath string) string {
	if t := metaString(meta, "title"); t != "" {
		return t
	}
	if firstH1 != "" {
		return firstH1
	}
	base := path.Base(filepathToSlash(relPath))
	base = strings.TrimSuffix(base, path.Ext(base))
	stripped := datePrefixRe.ReplaceAllString(base, "")
	if phrase := filenamePhrase(stripped); phrase != "" {
		return phrase
	}
	return base
}

// filenamePhrase turns "getting-started_fast" into "Getting Started Fast".
func filenamePhrase(base string) string {
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	if len(words) == 0 {
		return ""
	}
	return titleCaser.String(strings.Join(words, " "))
}

// resolveDates applies the fallback chain for created time: front
// matter date, filename date prefix, file modification time. Birth
// time is not portably trustworthy, so mtime is the floor. Updated
// time is front matter "updated" or mtime.
func resolveDates(meta map[string]interface{}, relPath string, modTime time.Time) (created, updated time.Time) {
	created = modTime
	if s := metaString(meta, "date"); s != "" {
		if t, ok := parseDate(s); ok {
			created = t
		}
	} else {
		base := path.Base(filepathToSlash(relPath))
		if prefix, ok := DatePrefix(base); ok {
			if t, ok := parseDate(prefix); ok {
				created = t
			}
		}
	}

	updated = modTime
	if s := metaString(meta, "updated"); s != "" {
		if t, ok := parseDate(s); ok {
			updated = t
		}
	}
	return created, updated
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
