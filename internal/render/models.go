package render

import (
	"encoding/xml"
	"html/template"
	"time"

	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/nav"
)

// Paginator holds state for paginated listings.
type Paginator struct {
	CurrentPage int
	TotalPages  int
	PrevURL     string
	NextURL     string
	HasPrev     bool
	HasNext     bool
}

// PageData is the context passed to HTML templates.
type PageData struct {
	Title       string
	TabTitle    string
	Description string
	BaseURL     string
	Permalink   string
	Content     template.HTML
	Meta        map[string]interface{}
	IsIndex     bool
	Record      *content.Record
	Posts       []*content.Record
	Tag         string
	AllTags     []content.Tag
	Nav         []*nav.Node
	Paginator   Paginator
	Config      interface{}
}

// --- Sitemap structures ---

type urlSet struct {
	XMLName xml.Name   `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 urlset"`
	Urls    []pageURL  `xml:"url"`
}

type pageURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// --- RSS structures ---

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Guid        string `xml:"guid"`
}

// --- Search structures ---

// SearchRecord is one entry of the generated search index.
type SearchRecord struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags,omitempty"`
	Summary string   `json:"summary,omitempty"`
	Date    string   `json:"date"`
}

func searchDate(t time.Time) string { return t.Format("2006-01-02") }
