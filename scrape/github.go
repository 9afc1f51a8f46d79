package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "rag-server/errors"

	"go.uber.org/zap"
)

// GitHubFile is one markdown file pulled from a repository.
type GitHubFile struct {
	Path    string
	RawURL  string
	Content string
}

// GitHubClient pulls documentation files from public GitHub repositories.
// A token raises the API rate limit but is optional.
type GitHubClient struct {
	client *http.Client
	token  string
	logger *zap.Logger
	apiURL string
	rawURL string
}

func NewGitHubClient(token string, timeout time.Duration, logger *zap.Logger) *GitHubClient {
	return &GitHubClient{
		client: &http.Client{Timeout: timeout},
		token:  token,
		logger: logger,
		apiURL: "https://api.github.com",
		rawURL: "https://raw.githubusercontent.com",
	}
}

// BlobToRawURL converts a github.com blob URL to its raw equivalent.
// Non-blob URLs come back unchanged.
func BlobToRawURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Host, "github.com") {
		return rawURL
	}
	// /owner/repo/blob/ref/path... -> raw.githubusercontent.com/owner/repo/ref/path...
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 5 || parts[2] != "blob" {
		return rawURL
	}
	return "https://raw.githubusercontent.com/" +
		strings.Join(append(parts[:2], parts[3:]...), "/")
}

// ParseRepoURL splits a github.com repository URL into owner and repo.
func ParseRepoURL(rawURL string) (owner, repo string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Host, "github.com") {
		return "", "", apperrors.WrapErrorf(apperrors.ErrInvalidInput, "not a github repository url: %s", rawURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", apperrors.WrapErrorf(apperrors.ErrInvalidInput, "not a github repository url: %s", rawURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// FetchReadme returns the repository README via the API's raw media type.
func (g *GitHubClient) FetchReadme(ctx context.Context, owner, repo string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/readme", g.apiURL, owner, repo)
	body, err := g.get(ctx, endpoint, "application/vnd.github.raw+json")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// ListMarkdownFiles walks the repository tree and returns the paths of all
// .md and .markdown files.
func (g *GitHubClient) ListMarkdownFiles(ctx context.Context, owner, repo, ref string) ([]string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.apiURL, owner, repo, ref)
	body, err := g.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var tree treeResponse
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("decode tree response: %w", err)
	}
	if tree.Truncated {
		g.logger.Warn("repository tree truncated",
			zap.String("owner", owner), zap.String("repo", repo))
	}

	var paths []string
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		lower := strings.ToLower(entry.Path)
		if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown") {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

// FetchFile downloads one file's raw content from the default branch.
func (g *GitHubClient) FetchFile(ctx context.Context, owner, repo, ref, filePath string) (*GitHubFile, error) {
	if ref == "" {
		ref = "HEAD"
	}
	raw := fmt.Sprintf("%s/%s/%s/%s/%s", g.rawURL, owner, repo, ref, filePath)
	body, err := g.get(ctx, raw, "")
	if err != nil {
		return nil, err
	}
	return &GitHubFile{Path: filePath, RawURL: raw, Content: string(body)}, nil
}

func (g *GitHubClient) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable, "github request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "github: %s", endpoint)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable,
			"github: %s returned %d", endpoint, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}
