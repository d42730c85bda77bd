package server

import (
	"encoding/json"
	"net/http"

	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/kv"
	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/notes", s.handleAddNote)
	mux.HandleFunc("PATCH /v1/notes/{id}", s.handleUpdateNote)
	mux.HandleFunc("DELETE /v1/notes/{id}", s.handleDeleteNote)
	mux.HandleFunc("GET /v1/notes", s.handlePageNotes)
	mux.HandleFunc("GET /v1/domains", s.handleDomains)
	mux.HandleFunc("PUT /v1/domains/{domain}/pin", s.handlePin)
	mux.HandleFunc("PUT /v1/pages/theme", s.handleTheme)
	mux.HandleFunc("PUT /v1/pages/position", s.handlePosition)
	mux.HandleFunc("POST /v1/sync/push", s.handlePush)
	mux.HandleFunc("POST /v1/sync/pull", s.handlePull)
	mux.HandleFunc("GET /v1/sync/meta", s.handleSyncMeta)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handlePutSettings)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	return mux
}

type noteRequest struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Text   string `json:"text"`
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Domain == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "domain and path are required")
		return
	}
	note, err := s.docs.AddNote(r.Context(), req.Domain, req.Path, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !readJSON(w, r, &req) {
		return
	}
	note, err := s.docs.UpdateNote(r.Context(), req.Domain, req.Path, r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	path := r.URL.Query().Get("path")
	deleted, err := s.docs.SoftDeleteNote(r.Context(), domain, path, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pageNotesResponse struct {
	Notes      []*document.Note       `json:"notes"`
	Pinned     bool                   `json:"pinned"`
	Theme      string                 `json:"theme"`
	Position   *document.Position     `json:"pos,omitempty"`
	OtherPages []document.PageSummary `json:"otherPages"`
}

func (s *Server) handlePageNotes(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	path := r.URL.Query().Get("path")
	if domain == "" || path == "" {
		writeError(w, http.StatusBadRequest, "domain and path are required")
		return
	}

	ctx := r.Context()
	theme := s.docs.PageTheme(ctx, domain, path)
	if theme == "" {
		settings, err := s.settings.Get(ctx)
		if err == nil {
			theme = settings.Theme
		}
	}

	writeJSON(w, http.StatusOK, pageNotesResponse{
		Notes:      s.docs.ListNotes(ctx, domain, path),
		Pinned:     s.docs.IsPinned(ctx, domain),
		Theme:      theme,
		Position:   s.docs.PagePosition(ctx, domain, path),
		OtherPages: s.docs.OtherPages(ctx, domain, path),
	})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.docs.ListDomains(r.Context()))
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pinned *bool `json:"pinned"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	domain := r.PathValue("domain")

	var pinned bool
	var err error
	if req.Pinned == nil {
		pinned, err = s.docs.TogglePin(r.Context(), domain)
	} else {
		pinned = *req.Pinned
		err = s.docs.SetPinned(r.Context(), domain, pinned)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": pinned})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		Path   string `json:"path"`
		Theme  string `json:"theme"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.docs.SetTheme(r.Context(), req.Domain, req.Path, req.Theme); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		Path   string `json:"path"`
		Left   int    `json:"left"`
		Top    int    `json:"top"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.docs.SetPosition(r.Context(), req.Domain, req.Path, req.Left, req.Top); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.PushToRemote(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.PullFromRemote(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := s.chunked.Meta(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if meta == nil {
		writeJSON(w, http.StatusOK, map[string]any{"synced": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": true, "chunks": meta.Chunks, "ts": meta.TS})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="pagenote.md"`)
	_, _ = w.Write([]byte(s.docs.ExportMarkdown(r.Context())))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Get(r.Context())
	if err != nil {
		logrus.Warnf("settings reset to defaults: %v", err)
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings kv.Settings
	if !readJSON(w, r, &settings) {
		return
	}
	if err := s.settings.Save(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}
	s.hub.Register(conn)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
