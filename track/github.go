package track

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// GitHubOptions configures a GitHub source beyond its SourceConfig.
type GitHubOptions struct {
	// APIBaseURL overrides the GitHub API base (for testing and GitHub
	// Enterprise). Empty uses the public API.
	APIBaseURL string

	// Token authenticates API calls. Empty falls back to the GITHUB_TOKEN
	// environment variable; the token is supplied out-of-band either way.
	Token string

	// HTTPClient overrides the HTTP client. Nil uses a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	// PerPage is the release page size. Default 100.
	PerPage int
}

// GitHub tracks the releases of one GitHub repository.
type GitHub struct {
	cfg     SourceConfig
	owner   string
	repo    string
	baseURL string
	token   string
	perPage int
	client  *http.Client
}

var _ Source = (*GitHub)(nil)

// NewGitHub creates a Source for a "github.com/owner/repo" coordinate.
func NewGitHub(cfg SourceConfig, optFns ...func(o *GitHubOptions)) (*GitHub, error) {
	opts := GitHubOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = "https://api.github.com"
	}
	if opts.Token == "" {
		opts.Token = os.Getenv("GITHUB_TOKEN")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}

	owner, repo, err := splitRepoCoordinate(cfg.SourceID)
	if err != nil {
		return nil, err
	}

	return &GitHub{
		cfg:     cfg,
		owner:   owner,
		repo:    repo,
		baseURL: strings.TrimRight(opts.APIBaseURL, "/"),
		token:   opts.Token,
		perPage: opts.PerPage,
		client:  opts.HTTPClient,
	}, nil
}

// ID returns the source identifier.
func (g *GitHub) ID() string { return g.cfg.SourceID }

// Config returns the source's declarative configuration.
func (g *GitHub) Config() SourceConfig { return g.cfg }

// githubRelease mirrors the fields of the REST releases payload we need.
type githubRelease struct {
	TagName     string        `json:"tag_name"`
	Draft       bool          `json:"draft"`
	PublishedAt time.Time     `json:"published_at"`
	Assets      []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// ListVersions enumerates the repository's releases oldest-first.
func (g *GitHub) ListVersions(ctx context.Context) ([]Version, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", g.baseURL, g.owner, g.repo, g.perPage)

	body, err := g.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("track: read releases from %s: %w", g.cfg.SourceID, err)
	}

	var releases []githubRelease
	if err := json.Unmarshal(raw, &releases); err != nil {
		return nil, &MalformedSourceError{Source: g.cfg.SourceID, cause: err}
	}

	versions := make([]Version, 0, len(releases))
	for _, r := range releases {
		if r.Draft || r.TagName == "" {
			continue
		}
		v := Version{
			Tag:         r.TagName,
			PublishedAt: r.PublishedAt,
		}
		for _, a := range r.Assets {
			if !g.cfg.Allows(a.Name) {
				continue
			}
			v.Candidates = append(v.Candidates, Candidate{
				Source:       g.cfg.SourceID,
				Path:         a.Name,
				Version:      r.TagName,
				DeclaredSize: a.Size,
				URL:          a.BrowserDownloadURL,
			})
		}
		versions = append(versions, v)
	}

	// Oldest-first so the cursor advances in publish order.
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].PublishedAt.Before(versions[j].PublishedAt)
	})
	return versions, nil
}

// Open starts downloading one release asset.
func (g *GitHub) Open(ctx context.Context, candidate Candidate) (io.ReadCloser, error) {
	return g.get(ctx, candidate.URL, "application/octet-stream")
}

func (g *GitHub) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("track: new request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("track: %s: HTTP %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

func splitRepoCoordinate(sourceID string) (owner, repo string, err error) {
	coord := strings.TrimPrefix(sourceID, "github.com/")
	parts := strings.Split(strings.Trim(coord, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("track: cannot parse source id %q (expected github.com/owner/repo)", sourceID)
	}
	return parts[0], parts[1], nil
}
