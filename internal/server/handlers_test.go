package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emrgen/pagenote/internal/compress"
	"github.com/emrgen/pagenote/internal/crypto"
	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/kv"
	"github.com/emrgen/pagenote/internal/provider"
	"github.com/emrgen/pagenote/internal/service"
	"github.com/emrgen/pagenote/internal/store"
	"github.com/emrgen/pagenote/internal/tester"
	"github.com/emrgen/pagenote/internal/websocket"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

type testEnv struct {
	server   *httptest.Server
	docs     *service.DocumentService
	settings *kv.SettingsStore
	hub      *websocket.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tester.RemoveDBFile()
	tester.Setup()

	synced := tester.KV()
	codec := compress.NewGZip()
	keys := crypto.NewKeyManager(synced)
	docs := service.NewDocumentService(codec, "gzip", store.NewGormStore(tester.TestDB()), keys)
	settings := kv.NewSettingsStore(synced)
	chunked := provider.NewChunked(synced)
	hub := websocket.NewHub()
	syn := service.NewSyncService(docs, settings, keys, codec,
		[]provider.Provider{chunked}, hub, time.Minute)
	t.Cleanup(syn.Stop)

	srv := NewServer("", "0", docs, syn, settings, chunked, hub)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, docs: docs, settings: settings, hub: hub}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := e.server.Client().Do(req)
	assert.NoError(t, err)
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var out T
	assert.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestHandleNotes_CreateListDelete(t *testing.T) {
	env := newTestEnv(t)

	res := env.request(t, http.MethodPost, "/v1/notes", map[string]string{
		"domain": "example.com", "path": "/a", "text": "first",
	})
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	note := decodeBody[document.Note](t, res)
	assert.Len(t, note.ID, 8)
	assert.Equal(t, "first", note.Text)

	res = env.request(t, http.MethodGet, "/v1/notes?domain=example.com&path=/a", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	page := decodeBody[pageNotesResponse](t, res)
	assert.Len(t, page.Notes, 1)
	assert.False(t, page.Pinned)

	res = env.request(t, http.MethodDelete, "/v1/notes/"+note.ID+"?domain=example.com&path=/a", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodGet, "/v1/notes?domain=example.com&path=/a", nil)
	page = decodeBody[pageNotesResponse](t, res)
	assert.Empty(t, page.Notes)
}

func TestHandleNotes_Validation(t *testing.T) {
	env := newTestEnv(t)

	res := env.request(t, http.MethodPost, "/v1/notes", map[string]string{"text": "no location"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodGet, "/v1/notes", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodPatch, "/v1/notes/unknown1", map[string]string{
		"domain": "example.com", "path": "/a", "text": "x",
	})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodDelete, "/v1/notes/unknown1?domain=example.com&path=/a", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestHandleUpdateNote(t *testing.T) {
	env := newTestEnv(t)

	res := env.request(t, http.MethodPost, "/v1/notes", map[string]string{
		"domain": "example.com", "path": "/a", "text": "before",
	})
	note := decodeBody[document.Note](t, res)

	res = env.request(t, http.MethodPatch, "/v1/notes/"+note.ID, map[string]string{
		"domain": "example.com", "path": "/a", "text": "after",
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	updated := decodeBody[document.Note](t, res)
	assert.Equal(t, "after", updated.Text)
	assert.Greater(t, updated.UpdatedAt, note.UpdatedAt)
}

func TestHandlePinAndDomains(t *testing.T) {
	env := newTestEnv(t)

	env.request(t, http.MethodPost, "/v1/notes", map[string]string{
		"domain": "example.com", "path": "/a", "text": "note",
	}).Body.Close()

	res := env.request(t, http.MethodPut, "/v1/domains/example.com/pin", map[string]bool{"pinned": true})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	pin := decodeBody[map[string]bool](t, res)
	assert.True(t, pin["pinned"])

	// an empty body toggles
	res = env.request(t, http.MethodPut, "/v1/domains/example.com/pin", map[string]any{})
	pin = decodeBody[map[string]bool](t, res)
	assert.False(t, pin["pinned"])

	res = env.request(t, http.MethodGet, "/v1/domains", nil)
	domains := decodeBody[[]document.DomainSummary](t, res)
	assert.Len(t, domains, 1)
	assert.Equal(t, "example.com", domains[0].Domain)
	assert.Equal(t, 1, domains[0].TotalNotes)
}

func TestHandleThemeFallsBackToSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()

	record := kv.DefaultSettings()
	record.Theme = "sepia"
	assert.NoError(t, env.settings.Save(ctx, record))

	env.request(t, http.MethodPost, "/v1/notes", map[string]string{
		"domain": "example.com", "path": "/a", "text": "note",
	}).Body.Close()

	res := env.request(t, http.MethodGet, "/v1/notes?domain=example.com&path=/a", nil)
	page := decodeBody[pageNotesResponse](t, res)
	assert.Equal(t, "sepia", page.Theme)

	// a page-scoped theme wins over the settings default
	res = env.request(t, http.MethodPut, "/v1/pages/theme", map[string]string{
		"domain": "example.com", "path": "/a", "theme": "dark",
	})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodGet, "/v1/notes?domain=example.com&path=/a", nil)
	page = decodeBody[pageNotesResponse](t, res)
	assert.Equal(t, "dark", page.Theme)
}

func TestHandlePosition(t *testing.T) {
	env := newTestEnv(t)

	res := env.request(t, http.MethodPut, "/v1/pages/position", map[string]any{
		"domain": "example.com", "path": "/a", "left": 80, "top": 24,
	})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodGet, "/v1/notes?domain=example.com&path=/a", nil)
	page := decodeBody[pageNotesResponse](t, res)
	assert.NotNil(t, page.Position)
	assert.Equal(t, 80, page.Position.Left)
	assert.Equal(t, 24, page.Position.Top)
}

func TestHandleSync(t *testing.T) {
	env := newTestEnv(t)

	res := env.request(t, http.MethodGet, "/v1/sync/meta", nil)
	meta := decodeBody[map[string]any](t, res)
	assert.Equal(t, false, meta["synced"])

	env.request(t, http.MethodPost, "/v1/notes", map[string]string{
		"domain": "example.com", "path": "/a", "text": "note",
	}).Body.Close()

	res = env.request(t, http.MethodPost, "/v1/sync/push", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodGet, "/v1/sync/meta", nil)
	meta = decodeBody[map[string]any](t, res)
	assert.Equal(t, true, meta["synced"])
	assert.Greater(t, meta["ts"].(float64), float64(0))

	res = env.request(t, http.MethodPost, "/v1/sync/pull", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res.Body.Close()
}

func TestHandleExport(t *testing.T) {
	env := newTestEnv(t)

	env.request(t, http.MethodPost, "/v1/notes", map[string]string{
		"domain": "example.com", "path": "/a", "text": "exported",
	}).Body.Close()

	res := env.request(t, http.MethodGet, "/v1/export", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/markdown")

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(res.Body)
	res.Body.Close()
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "# pagenote export")
	assert.Contains(t, buf.String(), "- exported")
}

func TestHandleSettings(t *testing.T) {
	env := newTestEnv(t)

	res := env.request(t, http.MethodGet, "/v1/settings", nil)
	settings := decodeBody[kv.Settings](t, res)
	assert.Equal(t, "chunked", settings.SyncProvider)

	settings.SyncProvider = "gist"
	settings.GithubToken = "ghp_test"
	res = env.request(t, http.MethodPut, "/v1/settings", settings)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = env.request(t, http.MethodGet, "/v1/settings", nil)
	settings = decodeBody[kv.Settings](t, res)
	assert.Equal(t, "gist", settings.SyncProvider)
	assert.Equal(t, "ghp_test", settings.GithubToken)
}

func TestHandleEvents_BroadcastReachesClient(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/events"
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	defer conn.Close()

	// wait for the hub to adopt the connection
	deadline := time.Now().Add(time.Second)
	for env.hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, env.hub.Count())

	env.hub.Broadcast(service.EventSyncComplete, map[string]string{"direction": "push"})

	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	assert.NoError(t, err)

	event := &websocket.Event{}
	assert.NoError(t, json.Unmarshal(raw, event))
	assert.Equal(t, service.EventSyncComplete, event.Type)
}
