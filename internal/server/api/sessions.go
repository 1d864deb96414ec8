package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayusman/biomech/internal/store"
)

// SessionHandler handles HTTP requests for recording sessions:
//
//	GET    /api/sessions
//	POST   /api/sessions
//	GET    /api/sessions/{id}
//	DELETE /api/sessions/{id}
//	POST   /api/sessions/{id}/stop
//	GET    /api/sessions/{id}/export
type SessionHandler struct {
	store         *store.Store
	recorder      Recorder
	analyzer      Analyzer
	subjectHeight float64
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(s *store.Store, rec Recorder, a Analyzer, subjectHeight float64) *SessionHandler {
	return &SessionHandler{store: s, recorder: rec, analyzer: a, subjectHeight: subjectHeight}
}

// ServeHTTP routes collection, item and action requests.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, action, _ := strings.Cut(path, "/")
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case action == "stop" && r.Method == http.MethodPost:
		h.stop(w, r, id)
	case action == "export" && r.Method == http.MethodGet:
		h.export(w, r, id)
	case action != "" && action != "stop" && action != "export":
		writeError(w, http.StatusNotFound, "Not found")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createSessionRequest struct {
	Name          string  `json:"name"`
	SubjectHeight float64 `json:"subject_height"`
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// create handles POST /api/sessions and starts recording. An empty body
// starts an unnamed session.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SubjectHeight < 0 {
		writeError(w, http.StatusBadRequest, "subject_height must be positive")
		return
	}
	height := req.SubjectHeight
	if height == 0 {
		height = h.subjectHeight
	}

	sess, err := h.recorder.Start(req.Name, h.analyzer.Cameras(), height)
	if err != nil {
		if active := h.recorder.Active(); active != nil {
			writeError(w, http.StatusConflict, "Session "+active.ID+" is already recording")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		h.storeError(w, err, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// delete handles DELETE /api/sessions/{id}. The active session must be
// stopped first.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if active := h.recorder.Active(); active != nil && active.ID == id {
		writeError(w, http.StatusConflict, "Session is still recording")
		return
	}
	if err := h.store.Sessions().Delete(id); err != nil {
		h.storeError(w, err, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stop handles POST /api/sessions/{id}/stop.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request, id string) {
	active := h.recorder.Active()
	if active == nil || active.ID != id {
		if _, err := h.store.Sessions().GetByID(id); err != nil {
			h.storeError(w, err, "Failed to get session")
			return
		}
		writeError(w, http.StatusConflict, "Session is not recording")
		return
	}

	sess, err := h.recorder.Stop()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to stop session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type exportResponse struct {
	Session *store.Session               `json:"session"`
	Joints  map[string][]json.RawMessage `json:"joints"`
}

// export handles GET /api/sessions/{id}/export and returns every recorded
// sample grouped by joint. An optional ?joint= narrows the result.
func (h *SessionHandler) export(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		h.storeError(w, err, "Failed to get session")
		return
	}

	joints, err := h.store.Samples().Export(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export session")
		return
	}
	if joint := r.URL.Query().Get("joint"); joint != "" {
		joints = map[string][]json.RawMessage{joint: joints[joint]}
	}

	w.Header().Set("Content-Disposition", `attachment; filename="session-`+id+`.json"`)
	writeJSON(w, http.StatusOK, exportResponse{Session: sess, Joints: joints})
}

func (h *SessionHandler) storeError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, message)
}
