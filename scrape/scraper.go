package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "rag-server/errors"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Page is the extracted form of a single fetched URL.
type Page struct {
	URL      string
	Title    string
	Content  string
	Links    []string
	Metadata map[string]string
}

// Scraper fetches pages over HTTP and extracts readable text. Requests
// against the same scraper share a rolling rate limit.
type Scraper struct {
	client    *http.Client
	logger    *zap.Logger
	userAgent string

	mu       sync.Mutex
	lastReq  time.Time
	minDelay time.Duration
}

// NewScraper builds a scraper with the given request timeout and minimum
// delay between consecutive requests.
func NewScraper(timeout, minDelay time.Duration, logger *zap.Logger) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		userAgent: "rag-server/1.0",
		minDelay:  minDelay,
	}
}

// Fetch downloads and parses one page, honoring the rate limit.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := s.waitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad url %s: %v", rawURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable, "fetch %s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable,
			"fetch %s: status %d", rawURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"fetch %s: unsupported content type %s", rawURL, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	page, err := ParseHTML(string(body))
	if err != nil {
		return nil, err
	}
	page.URL = rawURL
	s.logger.Debug("scraped page",
		zap.String("url", rawURL),
		zap.String("title", page.Title),
		zap.Int("content_length", len(page.Content)),
		zap.Int("links", len(page.Links)))
	return page, nil
}

// FetchRaw downloads a URL without HTML extraction or rate limiting. The
// crawler uses it for sitemaps.
func (s *Scraper) FetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad url %s: %v", rawURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable, "fetch %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable,
			"fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// waitTurn sleeps until minDelay has passed since the previous request.
func (s *Scraper) waitTurn(ctx context.Context) error {
	s.mu.Lock()
	wait := s.minDelay - time.Since(s.lastReq)
	s.lastReq = time.Now().Add(wait)
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// ParseHTML extracts title, readable content, links and metadata from an
// HTML document.
func ParseHTML(raw string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "parse html: %v", err)
	}

	page := &Page{Metadata: map[string]string{}}
	page.Title = extractTitle(root)
	page.Links = extractLinks(root)
	collectMeta(root, page.Metadata)

	container := findContentContainer(root)
	if container == nil {
		container = findElement(root, "body")
	}
	if container == nil {
		container = root
	}
	page.Content = collapseWhitespace(extractText(container))
	return page, nil
}

// extractTitle prefers <title>, then the first <h1>, then og:title.
func extractTitle(root *html.Node) string {
	if n := findElement(root, "title"); n != nil {
		if t := strings.TrimSpace(textOf(n)); t != "" {
			return t
		}
	}
	if n := findElement(root, "h1"); n != nil {
		if t := strings.TrimSpace(textOf(n)); t != "" {
			return t
		}
	}
	var og string
	walk(root, func(n *html.Node) {
		if og != "" || n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		if attr(n, "property") == "og:title" {
			og = strings.TrimSpace(attr(n, "content"))
		}
	})
	return og
}

// contentSelectors in preference order. The first match wins.
func findContentContainer(root *html.Node) *html.Node {
	if n := findElement(root, "main"); n != nil {
		return n
	}
	if n := findElement(root, "article"); n != nil {
		return n
	}
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found != nil || n.Type != html.ElementNode {
			return
		}
		switch {
		case attr(n, "role") == "main":
			found = n
		case hasClass(n, "content"):
			found = n
		case attr(n, "id") == "content":
			found = n
		}
	})
	return found
}

var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
}

// extractText walks the subtree collecting text nodes, skipping chrome
// elements and inserting breaks at block boundaries.
func extractText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteString("\n")
			}
		}
	}
	visit(n)
	return b.String()
}

func extractLinks(root *html.Node) []string {
	var links []string
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		if href := strings.TrimSpace(attr(n, "href")); href != "" {
			links = append(links, href)
		}
	})
	return links
}

func collectMeta(root *html.Node, out map[string]string) {
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		name := attr(n, "name")
		if name == "" {
			name = attr(n, "property")
		}
		if content := attr(n, "content"); name != "" && content != "" {
			out[name] = content
		}
	})
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findElement(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.Data == tag {
			found = n
		}
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
