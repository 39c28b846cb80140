// Package nav builds the navigation tree mirroring the content root.
// The tree is rebuilt only when the hash of the sorted slug set
// changes, so navigation staleness is bounded by one store pass.
package nav

import (
	"sort"
	"strings"

	"github.com/vellum-dev/vellum/internal/content"
)

// Node is one entry of the navigation tree: either a folder with
// children or a file pointing at a slug.
type Node struct {
	Title    string
	Slug     string // empty for folders
	URL      string
	Children []*Node
}

// IsFolder reports whether the node is a section rather than a page.
func (n *Node) IsFolder() bool { return n.Slug == "" }

// Index holds the current tree and the slug-set hash it was built from.
type Index struct {
	Roots []*Node
	Hash  string
}

// Build constructs the tree from the record set. Hierarchy follows
// slug path segments, so "guides/setup" nests under a "guides" folder.
func Build(records []*content.Record, hash string) *Index {
	folders := make(map[string]*Node)
	var roots []*Node

	attach := func(parentPath string, node *Node) {
		if parentPath == "" {
			roots = append(roots, node)
			return
		}
		folders[parentPath].Children = append(folders[parentPath].Children, node)
	}

	// Ensure a folder node chain exists for a path like "a/b".
	ensureFolders := func(segs []string) string {
		cur := ""
		for _, seg := range segs {
			next := cur
			if next == "" {
				next = seg
			} else {
				next = next + "/" + seg
			}
			if _, ok := folders[next]; !ok {
				node := &Node{Title: folderTitle(seg)}
				folders[next] = node
				attach(cur, node)
			}
			cur = next
		}
		return cur
	}

	for _, rec := range records {
		segs := strings.Split(rec.Slug, "/")
		parent := ensureFolders(segs[:len(segs)-1])
		attach(parent, &Node{
			Title: rec.Title,
			Slug:  rec.Slug,
			URL:   rec.URL,
		})
	}

	sortTree(roots)
	return &Index{Roots: roots, Hash: hash}
}

func sortTree(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		// Folders before files, then by title.
		if nodes[i].IsFolder() != nodes[j].IsFolder() {
			return nodes[i].IsFolder()
		}
		return nodes[i].Title < nodes[j].Title
	})
	for _, n := range nodes {
		sortTree(n.Children)
	}
}

func folderTitle(seg string) string {
	words := strings.FieldsFunc(seg, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
