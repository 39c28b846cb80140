package render

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Aggregate artifact names, used as dynamic-cache keys and output
// filenames. Any content change invalidates all of them.
const (
	ArtifactSearch  = "search.json"
	ArtifactRSS     = "rss.xml"
	ArtifactSitemap = "sitemap.xml"
	ArtifactRobots  = "robots.txt"
	ArtifactLLMs    = "llms.txt"
)

// Artifacts lists every aggregate artifact the service can produce.
func Artifacts() []string {
	return []string{ArtifactSearch, ArtifactRSS, ArtifactSitemap, ArtifactRobots, ArtifactLLMs}
}

// Artifact renders one aggregate artifact by name.
func (s *Service) Artifact(name string) ([]byte, error) {
	switch name {
	case ArtifactSearch:
		return s.SearchJSON()
	case ArtifactRSS:
		return s.RSS()
	case ArtifactSitemap:
		return s.Sitemap()
	case ArtifactRobots:
		return s.Robots(), nil
	case ArtifactLLMs:
		return s.LLMsTxt(), nil
	}
	return nil, fmt.Errorf("render: unknown artifact %q", name)
}

// SearchJSON renders the client-side search index.
func (s *Service) SearchJSON() ([]byte, error) {
	all := s.store.All()
	records := make([]SearchRecord, 0, len(all))
	for _, rec := range all {
		records = append(records, SearchRecord{
			Title:   rec.Title,
			URL:     rec.URL,
			Tags:    rec.Tags,
			Summary: rec.Summary,
			Date:    searchDate(rec.CreatedAt),
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal search index: %w", err)
	}
	return data, nil
}

// RSS renders the site feed.
func (s *Service) RSS() ([]byte, error) {
	var items []rssItem
	for _, rec := range s.store.All() {
		items = append(items, rssItem{
			Title:       rec.Title,
			Link:        rec.URL,
			Description: rec.Summary,
			PubDate:     rec.CreatedAt.Format(time.RFC1123Z),
			Guid:        rec.URL,
		})
	}
	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:       s.cfg.Title,
			Link:        s.cfg.BaseURL,
			Description: s.cfg.Description,
			Items:       items,
		},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rss: %w", err)
	}
	return []byte(xml.Header + string(out)), nil
}

// Sitemap renders sitemap.xml over all pages, listings and tags.
func (s *Service) Sitemap() ([]byte, error) {
	var urls []pageURL
	urls = append(urls, pageURL{Loc: s.cfg.BaseURL + "/"})
	for _, rec := range s.store.All() {
		urls = append(urls, pageURL{
			Loc:     rec.URL,
			LastMod: rec.UpdatedAt.Format("2006-01-02"),
		})
	}
	for p := 2; p <= s.TotalPages(); p++ {
		urls = append(urls, pageURL{Loc: s.cfg.BaseURL + indexPath(p)})
	}
	for _, tag := range s.store.AllTags() {
		urls = append(urls, pageURL{Loc: s.tagURL(tag.Name)})
	}
	out, err := xml.MarshalIndent(urlSet{Urls: urls}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sitemap: %w", err)
	}
	return []byte(xml.Header + string(out)), nil
}

// Robots renders robots.txt, appending any configured extra rules.
func (s *Service) Robots() []byte {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	if s.cfg.BaseURL != "" {
		fmt.Fprintf(&b, "Sitemap: %s/sitemap.xml\n", s.cfg.BaseURL)
	}
	if s.cfg.RobotsExtra != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(s.cfg.RobotsExtra))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// LLMsTxt renders a plain-text site outline for LLM crawlers.
func (s *Service) LLMsTxt() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", s.cfg.Title)
	if s.cfg.Description != "" {
		fmt.Fprintf(&b, "\n> %s\n", s.cfg.Description)
	}
	b.WriteString("\n## Pages\n\n")
	for _, rec := range s.store.All() {
		fmt.Fprintf(&b, "- [%s](%s)", rec.Title, rec.URL)
		if rec.Summary != "" {
			fmt.Fprintf(&b, ": %s", rec.Summary)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}
