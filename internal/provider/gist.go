package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emrgen/pagenote/internal/kv"
	"github.com/sirupsen/logrus"
)

const gistFileName = "pagenote.enc"

type GistOptions struct {
	BaseURL    string
	Settings   *kv.SettingsStore
	HTTPClient *http.Client
}

var _ Provider = (*Gist)(nil)

// Gist keeps the encrypted blob as a single file in a private gist. The
// discovered gist id is cached in the settings record and revalidated on
// use; a stale cache falls back to a linear scan of the user's gists.
type Gist struct {
	baseURL    string
	settings   *kv.SettingsStore
	httpClient *http.Client
}

func NewGist(opts GistOptions) *Gist {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Gist{
		baseURL:    baseURL,
		settings:   opts.Settings,
		httpClient: httpClient,
	}
}

func (g *Gist) Name() string { return NameGist }

func (g *Gist) Push(ctx context.Context, payload []byte) error {
	token, err := g.token(ctx)
	if err != nil {
		return err
	}

	gistID, err := g.findGist(ctx, token)
	if err != nil {
		if isAuthStatus(err) {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return err
	}

	body, err := json.Marshal(map[string]any{
		"description": "pagenote encrypted sync payload",
		"public":      false,
		"files": map[string]any{
			gistFileName: map[string]string{"content": string(payload)},
		},
	})
	if err != nil {
		return err
	}

	if gistID != "" {
		_, err = doRetry(ctx, g.httpClient, request{
			method:  http.MethodPatch,
			url:     g.baseURL + "/gists/" + gistID,
			headers: g.headers(token),
			body:    body,
		})
		return err
	}

	created, err := doRetry(ctx, g.httpClient, request{
		method:  http.MethodPost,
		url:     g.baseURL + "/gists",
		headers: g.headers(token),
		body:    body,
	})
	if err != nil {
		return err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(created, &out); err == nil && out.ID != "" {
		g.cacheGistID(ctx, out.ID)
	}
	return nil
}

func (g *Gist) Pull(ctx context.Context) ([]byte, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, nil
	}
	gistID, err := g.findGist(ctx, token)
	if err != nil || gistID == "" {
		if err != nil {
			logrus.Debugf("gist pull: lookup failed: %v", err)
		}
		return nil, nil
	}
	payload, err := doRetry(ctx, g.httpClient, request{
		method:  http.MethodGet,
		url:     g.baseURL + "/gists/" + gistID,
		headers: g.headers(token),
	})
	if err != nil {
		logrus.Debugf("gist pull: read failed: %v", err)
		return nil, nil
	}
	var gist struct {
		Files map[string]struct {
			Content string `json:"content"`
		} `json:"files"`
	}
	if err := json.Unmarshal(payload, &gist); err != nil {
		return nil, nil
	}
	file, ok := gist.Files[gistFileName]
	if !ok || file.Content == "" {
		return nil, nil
	}
	return []byte(file.Content), nil
}

func (g *Gist) token(ctx context.Context) (string, error) {
	settings, err := g.settings.Get(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(settings.GithubToken) == "" {
		return "", fmt.Errorf("%w: github token missing", ErrNotConfigured)
	}
	return settings.GithubToken, nil
}

// findGist resolves the gist holding the sync file: cached id first, then a
// scan of the user's gists for the well-known filename.
func (g *Gist) findGist(ctx context.Context, token string) (string, error) {
	settings, err := g.settings.Get(ctx)
	if err == nil && settings.GistID != "" {
		_, probeErr := doRetry(ctx, g.httpClient, request{
			method:  http.MethodGet,
			url:     g.baseURL + "/gists/" + settings.GistID,
			headers: g.headers(token),
		})
		if probeErr == nil {
			return settings.GistID, nil
		}
		if isAuthStatus(probeErr) {
			return "", probeErr
		}
		// Stale cache; fall through to the scan.
	}

	payload, err := doRetry(ctx, g.httpClient, request{
		method:  http.MethodGet,
		url:     g.baseURL + "/gists?per_page=100",
		headers: g.headers(token),
	})
	if err != nil {
		return "", err
	}
	var gists []struct {
		ID    string `json:"id"`
		Files map[string]struct {
			Filename string `json:"filename"`
		} `json:"files"`
	}
	if err := json.Unmarshal(payload, &gists); err != nil {
		return "", err
	}
	for _, gist := range gists {
		if _, ok := gist.Files[gistFileName]; ok {
			g.cacheGistID(ctx, gist.ID)
			return gist.ID, nil
		}
	}
	return "", nil
}

func (g *Gist) cacheGistID(ctx context.Context, id string) {
	settings, err := g.settings.Get(ctx)
	if err != nil {
		return
	}
	if settings.GistID == id {
		return
	}
	settings.GistID = id
	if err := g.settings.Save(ctx, settings); err != nil {
		logrus.Warnf("gist: caching gist id failed: %v", err)
	}
}

func (g *Gist) headers(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/vnd.github+json",
		"Content-Type":  "application/json",
	}
}
