package scrape

import (
	"net/url"
	"testing"
)

func TestResolveLink(t *testing.T) {
	seed, _ := url.Parse("https://docs.example.com/guide/")

	tests := []struct {
		name       string
		pageURL    string
		href       string
		sameDomain bool
		want       string
		wantOK     bool
	}{
		{
			name:    "relative link resolves against page",
			pageURL: "https://docs.example.com/guide/intro",
			href:    "setup",
			want:    "https://docs.example.com/guide/setup",
			wantOK:  true,
		},
		{
			name:    "absolute same-domain link",
			pageURL: "https://docs.example.com/guide/",
			href:    "https://docs.example.com/api/reference",
			want:    "https://docs.example.com/api/reference",
			wantOK:  true,
		},
		{
			name:    "fragment stripped",
			pageURL: "https://docs.example.com/guide/",
			href:    "/faq#pricing",
			want:    "https://docs.example.com/faq",
			wantOK:  true,
		},
		{
			name:    "anchor only skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "#section",
			wantOK:  false,
		},
		{
			name:    "mailto skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "mailto:team@example.com",
			wantOK:  false,
		},
		{
			name:    "tel skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "tel:+15551234",
			wantOK:  false,
		},
		{
			name:    "javascript skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "javascript:void(0)",
			wantOK:  false,
		},
		{
			name:       "cross-domain skipped when same-domain only",
			pageURL:    "https://docs.example.com/guide/",
			href:       "https://other.example.org/page",
			sameDomain: true,
			wantOK:     false,
		},
		{
			name:    "cross-domain allowed otherwise",
			pageURL: "https://docs.example.com/guide/",
			href:    "https://other.example.org/page",
			want:    "https://other.example.org/page",
			wantOK:  true,
		},
		{
			name:    "image extension skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "/assets/diagram.png",
			wantOK:  false,
		},
		{
			name:    "pdf extension skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "/downloads/manual.PDF",
			wantOK:  false,
		},
		{
			name:    "empty href skipped",
			pageURL: "https://docs.example.com/guide/",
			href:    "  ",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveLink(seed, tt.pageURL, tt.href, tt.sameDomain)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSitemap(t *testing.T) {
	urlset := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://docs.example.com/</loc></url>
  <url><loc> https://docs.example.com/guide </loc></url>
  <url><loc></loc></url>
</urlset>`

	got := ParseSitemap([]byte(urlset))
	want := []string{"https://docs.example.com/", "https://docs.example.com/guide"}
	if len(got) != len(want) {
		t.Fatalf("got %d urls, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseSitemapIndex(t *testing.T) {
	index := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://docs.example.com/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>https://docs.example.com/sitemap-blog.xml</loc></sitemap>
</sitemapindex>`

	got := ParseSitemap([]byte(index))
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0] != "https://docs.example.com/sitemap-pages.xml" {
		t.Errorf("got %q", got[0])
	}
}

func TestParseSitemapInvalid(t *testing.T) {
	if got := ParseSitemap([]byte("not xml at all")); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
