package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/kv"
	"github.com/sirupsen/logrus"
)

// batchLimit is the backend's per-request row cap.
const bitableBatchLimit = 500

// Column names of the sync table. One row per active note, human-readable
// on purpose.
const (
	colDomain    = "domain"
	colPath      = "path"
	colText      = "text"
	colCreatedAt = "createdAt"
	colUpdatedAt = "updatedAt"
	colNoteID    = "noteId"
	colPinned    = "pinned"
)

type BitableOptions struct {
	BaseURL    string
	Settings   *kv.SettingsStore
	HTTPClient *http.Client
}

var _ Provider = (*Bitable)(nil)

// Bitable mirrors the document into a tabular store, one row per active
// note. This is the one provider that receives the document in plaintext: a
// deliberate trade-off so the rows stay readable and searchable in the
// table UI. Configuration surfaces must document it as such.
type Bitable struct {
	baseURL    string
	settings   *kv.SettingsStore
	httpClient *http.Client
	now        func() time.Time
}

func NewBitable(opts BitableOptions) *Bitable {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://open.feishu.cn/open-apis"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Bitable{
		baseURL:    baseURL,
		settings:   opts.Settings,
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (b *Bitable) Name() string { return NameBitable }

// Push replaces the whole table: delete every existing row, then batch
// insert one row per active note. The payload is the plaintext JSON
// document.
func (b *Bitable) Push(ctx context.Context, payload []byte) error {
	cfg, err := b.config(ctx)
	if err != nil {
		return err
	}
	doc := &document.Document{}
	if err := json.Unmarshal(payload, doc); err != nil {
		return fmt.Errorf("bitable push: decode document: %w", err)
	}

	token, err := b.tenantToken(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if err := b.clearTable(ctx, token, cfg); err != nil {
		// Best effort: a failed cleanup must not block the write.
		logrus.Warnf("bitable push: clearing table failed: %v", err)
	}

	records := documentRows(doc)
	for start := 0; start < len(records); start += bitableBatchLimit {
		end := start + bitableBatchLimit
		if end > len(records) {
			end = len(records)
		}
		body, err := json.Marshal(map[string]any{"records": records[start:end]})
		if err != nil {
			return err
		}
		_, err = doRetry(ctx, b.httpClient, request{
			method:  http.MethodPost,
			url:     fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records/batch_create", b.baseURL, cfg.AppToken, cfg.TableID),
			headers: b.headers(token),
			body:    body,
		})
		if err != nil {
			return fmt.Errorf("bitable push: batch create: %w", err)
		}
	}
	return nil
}

// Pull paginates through all rows and reconstructs the document by grouping
// rows by domain then path. Any failure resolves to absent.
func (b *Bitable) Pull(ctx context.Context) ([]byte, error) {
	cfg, err := b.config(ctx)
	if err != nil {
		return nil, nil
	}
	token, err := b.tenantToken(ctx, cfg)
	if err != nil {
		logrus.Debugf("bitable pull: token failed: %v", err)
		return nil, nil
	}

	rows, err := b.listRows(ctx, token, cfg)
	if err != nil {
		logrus.Debugf("bitable pull: listing rows failed: %v", err)
		return nil, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}

	doc := rowsToDocument(rows, b.now().UnixMilli())
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, nil
	}
	return payload, nil
}

type bitableRecord struct {
	RecordID string         `json:"record_id,omitempty"`
	Fields   map[string]any `json:"fields"`
}

func (b *Bitable) config(ctx context.Context) (*kv.FeishuConfig, error) {
	settings, err := b.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg := settings.Feishu
	if cfg == nil || cfg.AppID == "" || cfg.AppSecret == "" || cfg.AppToken == "" || cfg.TableID == "" {
		return nil, fmt.Errorf("%w: feishu config missing", ErrNotConfigured)
	}
	return cfg, nil
}

func (b *Bitable) tenantToken(ctx context.Context, cfg *kv.FeishuConfig) (string, error) {
	body, err := json.Marshal(map[string]string{
		"app_id":     cfg.AppID,
		"app_secret": cfg.AppSecret,
	})
	if err != nil {
		return "", err
	}
	payload, err := doRetry(ctx, b.httpClient, request{
		method:  http.MethodPost,
		url:     b.baseURL + "/auth/v3/tenant_access_token/internal",
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", err
	}
	if out.TenantAccessToken == "" {
		return "", fmt.Errorf("empty tenant access token")
	}
	return out.TenantAccessToken, nil
}

func (b *Bitable) clearTable(ctx context.Context, token string, cfg *kv.FeishuConfig) error {
	for {
		rows, _, err := b.listPage(ctx, token, cfg, "")
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.RecordID)
		}
		body, err := json.Marshal(map[string]any{"records": ids})
		if err != nil {
			return err
		}
		_, err = doRetry(ctx, b.httpClient, request{
			method:  http.MethodPost,
			url:     fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records/batch_delete", b.baseURL, cfg.AppToken, cfg.TableID),
			headers: b.headers(token),
			body:    body,
		})
		if err != nil {
			return err
		}
	}
}

func (b *Bitable) listRows(ctx context.Context, token string, cfg *kv.FeishuConfig) ([]bitableRecord, error) {
	all := make([]bitableRecord, 0)
	pageToken := ""
	for {
		rows, next, err := b.listPage(ctx, token, cfg, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if next == "" {
			return all, nil
		}
		pageToken = next
	}
}

func (b *Bitable) listPage(ctx context.Context, token string, cfg *kv.FeishuConfig, pageToken string) ([]bitableRecord, string, error) {
	url := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records?page_size=%d", b.baseURL, cfg.AppToken, cfg.TableID, bitableBatchLimit)
	if pageToken != "" {
		url += "&page_token=" + pageToken
	}
	payload, err := doRetry(ctx, b.httpClient, request{
		method:  http.MethodGet,
		url:     url,
		headers: b.headers(token),
	})
	if err != nil {
		return nil, "", err
	}
	var out struct {
		Data struct {
			Items     []bitableRecord `json:"items"`
			HasMore   bool            `json:"has_more"`
			PageToken string          `json:"page_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, "", err
	}
	next := ""
	if out.Data.HasMore {
		next = out.Data.PageToken
	}
	return out.Data.Items, next, nil
}

func (b *Bitable) headers(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}
}

func documentRows(doc *document.Document) []bitableRecord {
	records := make([]bitableRecord, 0)
	for domain, rec := range doc.Domains {
		pinned := "no"
		if rec.Pinned {
			pinned = "yes"
		}
		for path, page := range rec.Pages {
			for _, note := range page.ActiveNotes() {
				records = append(records, bitableRecord{Fields: map[string]any{
					colDomain:    domain,
					colPath:      path,
					colText:      note.Text,
					colCreatedAt: note.CreatedAt,
					colUpdatedAt: note.UpdatedAt,
					colNoteID:    note.ID,
					colPinned:    pinned,
				}})
			}
		}
	}
	return records
}

func rowsToDocument(rows []bitableRecord, nowMillis int64) *document.Document {
	doc := document.New()
	for _, row := range rows {
		domain := fieldString(row.Fields, colDomain)
		path := fieldString(row.Fields, colPath)
		if domain == "" || path == "" {
			continue
		}
		rec := doc.EnsureDomain(domain)
		if fieldString(row.Fields, colPinned) == "yes" {
			rec.Pinned = true
		}
		page := doc.EnsurePage(domain, path)

		id := fieldString(row.Fields, colNoteID)
		if id == "" {
			id = document.NewNoteID()
		}
		createdAt := fieldInt64(row.Fields, colCreatedAt, nowMillis)
		page.Notes = append(page.Notes, &document.Note{
			ID:        id,
			Text:      fieldString(row.Fields, colText),
			CreatedAt: createdAt,
			UpdatedAt: fieldInt64(row.Fields, colUpdatedAt, createdAt),
		})
	}
	return doc
}

func fieldString(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

func fieldInt64(fields map[string]any, key string, fallback int64) int64 {
	switch value := fields[key].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case json.Number:
		if n, err := value.Int64(); err == nil {
			return n
		}
	}
	return fallback
}
