package scrape

import (
	"context"
	"encoding/xml"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
)

// CrawlOptions bound a crawl.
type CrawlOptions struct {
	MaxPages   int
	MaxDepth   int
	SameDomain bool
}

// Fetcher fetches one page. *Scraper is the plain-HTTP implementation; a
// browser-backed fetcher can satisfy it for script-heavy sites.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	FetchRaw(ctx context.Context, url string) ([]byte, error)
}

// Crawler walks a site breadth-first from a seed URL, feeding each page
// through the fetcher.
type Crawler struct {
	fetcher Fetcher
	logger  *zap.Logger
}

func NewCrawler(fetcher Fetcher, logger *zap.Logger) *Crawler {
	return &Crawler{fetcher: fetcher, logger: logger}
}

type queueItem struct {
	url   string
	depth int
}

// Crawl fetches pages breadth-first starting at seedURL. Sitemap URLs, if
// the site publishes one, seed the frontier at depth 1. Fetch failures on
// non-seed pages are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, opts CrawlOptions) ([]*Page, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, err
	}

	queue := []queueItem{{url: seedURL, depth: 0}}
	for _, u := range c.sitemapURLs(ctx, seed) {
		queue = append(queue, queueItem{url: u, depth: 1})
	}

	visited := map[string]bool{}
	enqueued := map[string]bool{}
	for _, item := range queue {
		enqueued[item.url] = true
	}

	var pages []*Page
	for len(queue) > 0 && len(pages) < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		item := queue[0]
		queue = queue[1:]
		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		page, err := c.fetcher.Fetch(ctx, item.url)
		if err != nil {
			if item.url == seedURL {
				return nil, err
			}
			c.logger.Warn("skipping page", zap.String("url", item.url), zap.Error(err))
			continue
		}
		pages = append(pages, page)

		if item.depth >= opts.MaxDepth {
			continue
		}
		for _, link := range page.Links {
			next, ok := resolveLink(seed, item.url, link, opts.SameDomain)
			if !ok || enqueued[next] {
				continue
			}
			enqueued[next] = true
			queue = append(queue, queueItem{url: next, depth: item.depth + 1})
		}
	}
	return pages, nil
}

// binaryExtensions are never worth fetching as text.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".css": true, ".js": true, ".pdf": true, ".zip": true,
	".tar": true, ".gz": true, ".mp4": true, ".mp3": true, ".webp": true,
	".woff": true, ".woff2": true, ".ttf": true, ".exe": true,
}

// resolveLink normalizes a raw href against its page and reports whether
// the crawler should follow it.
func resolveLink(seed *url.URL, pageURL, href string, sameDomain bool) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"mailto:", "tel:", "javascript:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if sameDomain && !strings.EqualFold(resolved.Host, seed.Host) {
		return "", false
	}
	if binaryExtensions[strings.ToLower(path.Ext(resolved.Path))] {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 urlset"`
	URLs    []sitemapRef `xml:"url"`
}

// sitemapURLs tries the conventional sitemap locations and returns any
// page URLs found. A missing sitemap is not an error.
func (c *Crawler) sitemapURLs(ctx context.Context, seed *url.URL) []string {
	for _, name := range []string{"/sitemap.xml", "/sitemap_index.xml"} {
		loc := seed.Scheme + "://" + seed.Host + name
		body, err := c.fetcher.FetchRaw(ctx, loc)
		if err != nil {
			continue
		}
		urls := ParseSitemap(body)
		if len(urls) > 0 {
			c.logger.Info("loaded sitemap", zap.String("url", loc), zap.Int("urls", len(urls)))
			return urls
		}
	}
	return nil
}

// ParseSitemap accepts either a urlset or a sitemapindex document. Index
// entries are returned as-is; the crawler fetches them like normal pages.
func ParseSitemap(body []byte) []string {
	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		return locValues(set.URLs)
	}
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		return locValues(index.Sitemaps)
	}
	return nil
}

func locValues(refs []sitemapRef) []string {
	var out []string
	for _, r := range refs {
		if loc := strings.TrimSpace(r.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}
