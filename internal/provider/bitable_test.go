package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/kv"
	"github.com/stretchr/testify/assert"
)

func bitableSettings(t *testing.T) *kv.SettingsStore {
	t.Helper()
	store := kv.NewSettingsStore(kv.NewMemory())
	settings := kv.DefaultSettings()
	settings.Feishu = &kv.FeishuConfig{
		AppID:     "app-id",
		AppSecret: "app-secret",
		AppToken:  "app-token",
		TableID:   "tbl-1",
	}
	assert.NoError(t, store.Save(context.TODO(), settings))
	return store
}

func TestBitable_PushReplacesTable(t *testing.T) {
	doc := document.New()
	doc.EnsureDomain("example.com").Pinned = true
	doc.EnsurePage("example.com", "/a").Notes = []*document.Note{
		{ID: "n1", Text: "keep", CreatedAt: 100, UpdatedAt: 200},
		{ID: "n2", Text: "tombstone", Deleted: true},
	}
	payload, err := json.Marshal(doc)
	assert.NoError(t, err)

	var deletedIDs []string
	var createdRows []map[string]any
	listCalls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v3/tenant_access_token/internal":
			_, _ = w.Write([]byte(`{"tenant_access_token":"tenant-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/bitable/v1/apps/app-token/tables/tbl-1/records":
			listCalls++
			if listCalls == 1 {
				_, _ = w.Write([]byte(`{"data":{"items":[{"record_id":"rec-old"}],"has_more":false}}`))
			} else {
				_, _ = w.Write([]byte(`{"data":{"items":[],"has_more":false}}`))
			}
		case r.Method == http.MethodPost && r.URL.Path == "/bitable/v1/apps/app-token/tables/tbl-1/records/batch_delete":
			var req struct {
				Records []string `json:"records"`
			}
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, &req))
			deletedIDs = append(deletedIDs, req.Records...)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && r.URL.Path == "/bitable/v1/apps/app-token/tables/tbl-1/records/batch_create":
			assert.Equal(t, "Bearer tenant-1", r.Header.Get("Authorization"))
			var req struct {
				Records []struct {
					Fields map[string]any `json:"fields"`
				} `json:"records"`
			}
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, &req))
			for _, rec := range req.Records {
				createdRows = append(createdRows, rec.Fields)
			}
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	bitable := NewBitable(BitableOptions{BaseURL: server.URL, Settings: bitableSettings(t), HTTPClient: server.Client()})

	assert.NoError(t, bitable.Push(context.TODO(), payload))

	assert.Equal(t, []string{"rec-old"}, deletedIDs)
	// tombstoned notes are not mirrored
	assert.Len(t, createdRows, 1)
	assert.Equal(t, "example.com", createdRows[0]["domain"])
	assert.Equal(t, "/a", createdRows[0]["path"])
	assert.Equal(t, "keep", createdRows[0]["text"])
	assert.Equal(t, "n1", createdRows[0]["noteId"])
	assert.Equal(t, "yes", createdRows[0]["pinned"])
}

func TestBitable_PullPaginatesAndRebuilds(t *testing.T) {
	pages := map[string]string{
		"": `{"data":{"items":[
			{"record_id":"r1","fields":{"domain":"example.com","path":"/a","text":"first","noteId":"n1","createdAt":100,"updatedAt":200,"pinned":"yes"}}
		],"has_more":true,"page_token":"next-1"}}`,
		"next-1": `{"data":{"items":[
			{"record_id":"r2","fields":{"domain":"example.com","path":"/b","text":"second","noteId":"n2","createdAt":300,"updatedAt":300,"pinned":"yes"}},
			{"record_id":"r3","fields":{"text":"no location"}}
		],"has_more":false}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v3/tenant_access_token/internal":
			_, _ = w.Write([]byte(`{"tenant_access_token":"tenant-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/bitable/v1/apps/app-token/tables/tbl-1/records":
			_, _ = w.Write([]byte(pages[r.URL.Query().Get("page_token")]))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	bitable := NewBitable(BitableOptions{BaseURL: server.URL, Settings: bitableSettings(t), HTTPClient: server.Client()})

	payload, err := bitable.Pull(context.TODO())
	assert.NoError(t, err)
	assert.NotNil(t, payload)

	doc := &document.Document{}
	assert.NoError(t, json.Unmarshal(payload, doc))

	assert.True(t, doc.Domains["example.com"].Pinned)
	first := doc.FindNote("example.com", "/a", "n1")
	assert.NotNil(t, first)
	assert.Equal(t, "first", first.Text)
	assert.Equal(t, int64(100), first.CreatedAt)
	assert.Equal(t, int64(200), first.UpdatedAt)
	assert.NotNil(t, doc.FindNote("example.com", "/b", "n2"))
	// rows missing domain/path are skipped
	assert.Len(t, doc.Domains, 1)
	assert.Len(t, doc.Domains["example.com"].Pages, 2)
}

func TestBitable_UnconfiguredDegrades(t *testing.T) {
	store := kv.NewSettingsStore(kv.NewMemory())
	bitable := NewBitable(BitableOptions{Settings: store})

	err := bitable.Push(context.TODO(), []byte(`{"v":2,"domains":{}}`))
	assert.ErrorIs(t, err, ErrNotConfigured)

	payload, err := bitable.Pull(context.TODO())
	assert.NoError(t, err)
	assert.Nil(t, payload)
}

func TestBitable_EmptyTablePullsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v3/tenant_access_token/internal":
			_, _ = w.Write([]byte(`{"tenant_access_token":"tenant-1"}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"items":[],"has_more":false}}`))
		}
	}))
	defer server.Close()

	bitable := NewBitable(BitableOptions{BaseURL: server.URL, Settings: bitableSettings(t), HTTPClient: server.Client()})

	payload, err := bitable.Pull(context.TODO())
	assert.NoError(t, err)
	assert.Nil(t, payload)
}
