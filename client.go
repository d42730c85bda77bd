package pagenote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/kv"
)

// Client talks to a running pagenote daemon over its REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(port string) *Client {
	return &Client{
		baseURL: "http://localhost:" + port,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// PageNotes is the daemon's answer for a single page: the active notes plus
// the page-level presentation state.
type PageNotes struct {
	Notes      []*document.Note       `json:"notes"`
	Pinned     bool                   `json:"pinned"`
	Theme      string                 `json:"theme"`
	Position   *document.Position     `json:"pos,omitempty"`
	OtherPages []document.PageSummary `json:"otherPages"`
}

func (c *Client) AddNote(ctx context.Context, domain, path, text string) (*document.Note, error) {
	var note document.Note
	err := c.do(ctx, http.MethodPost, "/v1/notes", map[string]string{
		"domain": domain, "path": path, "text": text,
	}, &note)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) UpdateNote(ctx context.Context, domain, path, id, text string) (*document.Note, error) {
	var note document.Note
	err := c.do(ctx, http.MethodPatch, "/v1/notes/"+url.PathEscape(id), map[string]string{
		"domain": domain, "path": path, "text": text,
	}, &note)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) DeleteNote(ctx context.Context, domain, path, id string) error {
	q := url.Values{"domain": {domain}, "path": {path}}
	return c.do(ctx, http.MethodDelete, "/v1/notes/"+url.PathEscape(id)+"?"+q.Encode(), nil, nil)
}

func (c *Client) PageNotes(ctx context.Context, domain, path string) (*PageNotes, error) {
	q := url.Values{"domain": {domain}, "path": {path}}
	var page PageNotes
	if err := c.do(ctx, http.MethodGet, "/v1/notes?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Domains(ctx context.Context) ([]document.DomainSummary, error) {
	var domains []document.DomainSummary
	if err := c.do(ctx, http.MethodGet, "/v1/domains", nil, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

func (c *Client) Pin(ctx context.Context, domain string, pinned bool) error {
	return c.do(ctx, http.MethodPut, "/v1/domains/"+url.PathEscape(domain)+"/pin", map[string]bool{"pinned": pinned}, nil)
}

func (c *Client) TogglePin(ctx context.Context, domain string) (bool, error) {
	var resp struct {
		Pinned bool `json:"pinned"`
	}
	err := c.do(ctx, http.MethodPut, "/v1/domains/"+url.PathEscape(domain)+"/pin", map[string]any{}, &resp)
	return resp.Pinned, err
}

func (c *Client) Push(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/sync/push", nil, nil)
}

func (c *Client) Pull(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/sync/pull", nil, nil)
}

func (c *Client) Export(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/export", nil)
	if err != nil {
		return "", err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("export failed: %s", res.Status)
	}
	return string(raw), nil
}

func (c *Client) Settings(ctx context.Context) (kv.Settings, error) {
	var settings kv.Settings
	err := c.do(ctx, http.MethodGet, "/v1/settings", nil, &settings)
	return settings, err
}

func (c *Client) SaveSettings(ctx context.Context, settings kv.Settings) error {
	return c.do(ctx, http.MethodPut, "/v1/settings", settings, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(res.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}

	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}
