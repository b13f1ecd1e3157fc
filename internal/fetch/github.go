// Package fetch talks to GitHub and computes source archive hashes.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthr76/pkgbump/internal/logger"
	"github.com/anthr76/pkgbump/internal/version"
	"github.com/git-lfs/go-netrc/netrc"
)

// GitHub lists tags through the GitHub REST API.
type GitHub struct {
	// BaseURL is the API root, e.g. https://api.github.com.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// NewGitHub creates a client for baseURL. The token is taken from
// GITHUB_TOKEN or GH_TOKEN, then from the API host's ~/.netrc entry.
func NewGitHub(baseURL string) (*GitHub, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}

	if token == "" {
		var err error
		token, err = netrcToken(baseURL)
		if err != nil {
			return nil, err
		}
	}

	return &GitHub{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
	}, nil
}

// netrcToken returns the password of the netrc machine matching the
// host of baseURL. A missing ~/.netrc is not an error.
func netrcToken(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing API base URL: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}

	n, err := netrc.ParseFile(filepath.Join(home, ".netrc"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("parsing netrc: %w", err)
	}

	if m := n.FindMachine(u.Hostname(), ""); m != nil {
		return m.Password, nil
	}
	return "", nil
}

type tag struct {
	Name string `json:"name"`
}

// LatestTag returns the most recent tag of owner/repo with its leading
// "v" removed. Repositories without releases only publish tags, so the
// tag list is used rather than the releases endpoint.
func (g *GitHub) LatestTag(ctx context.Context, owner, repo string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/tags?per_page=1", g.BaseURL, url.PathEscape(owner), url.PathEscape(repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	logger.DebugKV(ctx, "listing tags", "url", endpoint, "authenticated", g.Token != "")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching tags for %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading tags for %s/%s: %w", owner, repo, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching tags for %s/%s: unexpected status %s: %s",
			owner, repo, resp.Status, strings.TrimSpace(string(body)))
	}

	var tags []tag
	if err := json.Unmarshal(body, &tags); err != nil {
		return "", fmt.Errorf("decoding tags for %s/%s: %w", owner, repo, err)
	}
	if len(tags) == 0 {
		return "", fmt.Errorf("no tags found for %s/%s", owner, repo)
	}
	if tags[0].Name == "" {
		return "", fmt.Errorf("latest tag for %s/%s has no name", owner, repo)
	}

	return version.Normalize(tags[0].Name), nil
}
