package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	URL    *url.URL
	Header http.Header
}

func tagServer(t *testing.T, status int, body string) (*httptest.Server, *seenRequest) {
	t.Helper()

	seen := new(seenRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.URL = r.URL
		seen.Header = r.Header.Clone()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestLatestTag(t *testing.T) {
	srv, seen := tagServer(t, http.StatusOK, `[{"name":"v1.3.0","commit":{"sha":"abc"}},{"name":"v1.2.0"}]`)

	g := &GitHub{BaseURL: srv.URL, Token: "secret"}
	got, err := g.LatestTag(context.Background(), "localgpt-app", "localgpt")
	require.NoError(t, err)

	assert.Equal(t, "1.3.0", got)
	assert.Equal(t, "/repos/localgpt-app/localgpt/tags", seen.URL.Path)
	assert.Equal(t, "1", seen.URL.Query().Get("per_page"))
	assert.Equal(t, "Bearer secret", seen.Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", seen.Header.Get("Accept"))
}

func TestLatestTagBareVersion(t *testing.T) {
	srv, seen := tagServer(t, http.StatusOK, `[{"name":"0.7.1"}]`)

	g := &GitHub{BaseURL: srv.URL}
	got, err := g.LatestTag(context.Background(), "o", "r")
	require.NoError(t, err)

	assert.Equal(t, "0.7.1", got)
	assert.Empty(t, seen.Header.Get("Authorization"))
}

func TestLatestTagErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"empty list", http.StatusOK, `[]`, "no tags found for o/r"},
		{"object instead of list", http.StatusOK, `{"message":"Not Found"}`, "decoding tags"},
		{"malformed json", http.StatusOK, `[{"name":`, "decoding tags"},
		{"missing name", http.StatusOK, `[{"commit":{}}]`, "has no name"},
		{"rate limited", http.StatusForbidden, `{"message":"API rate limit exceeded"}`, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := tagServer(t, tt.status, tt.body)

			_, err := (&GitHub{BaseURL: srv.URL}).LatestTag(context.Background(), "o", "r")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewGitHubTokenFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")

	g, err := NewGitHub("https://api.github.com/")
	require.NoError(t, err)
	assert.Equal(t, "env-token", g.Token)
	assert.Equal(t, "https://api.github.com", g.BaseURL)
}

func TestNewGitHubTokenFromNetrc(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	netrc := "machine api.github.com\n  login bot\n  password netrc-token\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".netrc"), []byte(netrc), 0o600))

	g, err := NewGitHub("https://api.github.com")
	require.NoError(t, err)
	assert.Equal(t, "netrc-token", g.Token)
}

func TestNewGitHubWithoutCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	g, err := NewGitHub("https://api.github.com")
	require.NoError(t, err)
	assert.Empty(t, g.Token)
}
