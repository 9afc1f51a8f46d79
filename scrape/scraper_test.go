package scrape

import (
	"strings"
	"testing"
)

func TestParseHTMLTitleCascade(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "title tag wins",
			html: `<html><head><title>Guide</title></head><body><h1>Other</h1></body></html>`,
			want: "Guide",
		},
		{
			name: "h1 fallback",
			html: `<html><head><title></title></head><body><h1>Heading Title</h1></body></html>`,
			want: "Heading Title",
		},
		{
			name: "og:title fallback",
			html: `<html><head><meta property="og:title" content="Social Title"></head><body><p>x</p></body></html>`,
			want: "Social Title",
		},
		{
			name: "no title at all",
			html: `<html><body><p>just text</p></body></html>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := ParseHTML(tt.html)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page.Title != tt.want {
				t.Errorf("got %q, want %q", page.Title, tt.want)
			}
		})
	}
}

func TestParseHTMLContentContainer(t *testing.T) {
	doc := `<html><body>
		<nav>Navigation junk</nav>
		<main><p>Main content here.</p></main>
		<footer>Footer junk</footer>
	</body></html>`

	page, err := ParseHTML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(page.Content, "Main content here.") {
		t.Errorf("content missing main text: %q", page.Content)
	}
	if strings.Contains(page.Content, "Navigation junk") {
		t.Errorf("content includes nav text: %q", page.Content)
	}
}

func TestParseHTMLStripsChrome(t *testing.T) {
	doc := `<html><body>
		<script>var x = 1;</script>
		<style>.a { color: red }</style>
		<header>Site header</header>
		<p>Body text survives.</p>
	</body></html>`

	page, err := ParseHTML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, junk := range []string{"var x", "color: red", "Site header"} {
		if strings.Contains(page.Content, junk) {
			t.Errorf("content includes %q: %q", junk, page.Content)
		}
	}
	if !strings.Contains(page.Content, "Body text survives.") {
		t.Errorf("content missing body text: %q", page.Content)
	}
}

func TestParseHTMLLinksAndMeta(t *testing.T) {
	doc := `<html><head>
		<meta name="description" content="A test page">
	</head><body>
		<a href="/one">One</a>
		<a href="https://example.com/two">Two</a>
		<a>no href</a>
	</body></html>`

	page, err := ParseHTML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Links) != 2 {
		t.Fatalf("got %d links, want 2", len(page.Links))
	}
	if page.Metadata["description"] != "A test page" {
		t.Errorf("description = %q", page.Metadata["description"])
	}
}

func TestBlobToRawURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "blob url converted",
			in:   "https://github.com/acme/widgets/blob/main/docs/intro.md",
			want: "https://raw.githubusercontent.com/acme/widgets/main/docs/intro.md",
		},
		{
			name: "non-blob url unchanged",
			in:   "https://github.com/acme/widgets",
			want: "https://github.com/acme/widgets",
		},
		{
			name: "non-github url unchanged",
			in:   "https://example.com/blob/main/x.md",
			want: "https://example.com/blob/main/x.md",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BlobToRawURL(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRepoURL(t *testing.T) {
	owner, repo, err := ParseRepoURL("https://github.com/acme/widgets.git")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "acme" || repo != "widgets" {
		t.Errorf("got %s/%s, want acme/widgets", owner, repo)
	}

	if _, _, err := ParseRepoURL("https://example.com/acme/widgets"); err == nil {
		t.Error("expected error for non-github url")
	}
}
