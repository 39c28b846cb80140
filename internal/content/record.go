// Package content implements the in-memory content store: scanning a
// content root, resolving metadata, and converting source files into
// renderable records.
package content

import (
	"html/template"
	"time"
)

// Type discriminates how a source file is turned into a page.
type Type int

const (
	TypeMarkdown Type = iota
	TypeText
	TypeRawHTML
)

func (t Type) String() string {
	switch t {
	case TypeMarkdown:
		return "markdown"
	case TypeText:
		return "text"
	case TypeRawHTML:
		return "rawhtml"
	}
	return "unknown"
}

// ImageReference describes one image referenced by a document.
type ImageReference struct {
	// SourcePath is the reference exactly as written in the document.
	SourcePath string
	// ResolvedPath is the on-disk path relative to the content root,
	// always forward-slashed.
	ResolvedPath string
	// OutputBasename is the hashed basename derivatives are written under.
	OutputBasename string
	// ContentHash is the blake3 hex of the source file bytes.
	ContentHash string
	// Sizes are the derivative widths available, ascending. The
	// natural width always closes the list once the pipeline has run.
	Sizes []int
	// NaturalWidth is the source's pixel width as reported by the
	// pipeline; its derivative is written without a width suffix.
	NaturalWidth int
}

// Record is one parsed content file.
type Record struct {
	Slug      string
	URL       string
	RelPath   string
	Title     string
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []string
	Type      Type

	// Body is the converted HTML fragment passed to templates.
	Body template.HTML

	// RenderedHTML, when non-nil, is a complete page served verbatim
	// with no templating applied.
	RenderedHTML []byte

	WordCount   int
	ReadingTime int

	Images []ImageReference

	// Meta holds any remaining front-matter fields for templates.
	Meta map[string]interface{}
}

func htmlFragment(b []byte) template.HTML {
	return template.HTML(b)
}
