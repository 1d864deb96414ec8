package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/skeleton"
)

// maxLandmarkBody bounds POST /api/landmarks payloads.
const maxLandmarkBody = 1 << 20

// AnalysisHandler serves the live analysis endpoints:
//
//	GET    /api/joints
//	GET    /api/angles
//	POST   /api/landmarks
//	GET    /api/history[/{joint}]
//	GET    /api/cameras
//	POST   /api/cameras
//	DELETE /api/cameras/{id}
type AnalysisHandler struct {
	analyzer Analyzer
	history  HistorySource
	model    *skeleton.Model
	now      func() time.Time
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(a Analyzer, h HistorySource, model *skeleton.Model) *AnalysisHandler {
	return &AnalysisHandler{analyzer: a, history: h, model: model, now: time.Now}
}

// ServeHTTP routes requests by path prefix.
func (h *AnalysisHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	resource, rest, _ := strings.Cut(path, "/")

	switch resource {
	case "joints":
		h.only(w, r, http.MethodGet, h.joints)
	case "angles":
		h.only(w, r, http.MethodGet, h.angles)
	case "landmarks":
		h.only(w, r, http.MethodPost, h.landmarks)
	case "history":
		h.only(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			h.historyOf(w, r, rest)
		})
	case "cameras":
		h.cameras(w, r, rest)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *AnalysisHandler) only(w http.ResponseWriter, r *http.Request, method string, fn http.HandlerFunc) {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn(w, r)
}

type jointResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Proximal string   `json:"proximal"`
	Distal   string   `json:"distal"`
	Sequence string   `json:"sequence"`
	Axes     []string `json:"axes"`
}

// joints handles GET /api/joints and lists the segment model.
func (h *AnalysisHandler) joints(w http.ResponseWriter, r *http.Request) {
	pairs := h.model.Pairs()
	out := make([]jointResponse, 0, len(pairs))
	for _, p := range pairs {
		axes := p.Sequence.AxisLabels()
		out = append(out, jointResponse{
			ID:       p.ID,
			Name:     p.JointName,
			Proximal: p.Proximal.String(),
			Distal:   p.Distal.String(),
			Sequence: string(p.Sequence),
			Axes:     axes[:],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"joints": out})
}

type anglesResponse struct {
	Timestamp float64                      `json:"timestamp"`
	Cameras   []string                     `json:"cameras"`
	Joints    map[string]engine.JointState `json:"joints"`
}

// angles handles GET /api/angles and returns the latest joint states.
func (h *AnalysisHandler) angles(w http.ResponseWriter, r *http.Request) {
	snap := h.analyzer.Latest()
	cameras := snap.Cameras
	if cameras == nil {
		cameras = []string{}
	}
	writeJSON(w, http.StatusOK, anglesResponse{
		Timestamp: snap.Timestamp,
		Cameras:   cameras,
		Joints:    snap.Joints,
	})
}

type landmarksRequest struct {
	CameraID  string                    `json:"camera_id"`
	Timestamp *float64                  `json:"timestamp"`
	Landmarks map[string]landmark.Point `json:"landmarks"`
}

// landmarks handles POST /api/landmarks, the entry point for an external
// pose detector. The timestamp defaults to the time of receipt.
func (h *AnalysisHandler) landmarks(w http.ResponseWriter, r *http.Request) {
	var req landmarksRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLandmarkBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.CameraID == "" {
		writeError(w, http.StatusBadRequest, "camera_id is required")
		return
	}

	set, err := landmark.ParseSet(req.Landmarks)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ts := float64(h.now().UnixNano()) / 1e9
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	h.analyzer.Submit(req.CameraID, set, ts)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted":  len(set),
		"timestamp": h.analyzer.Latest().Timestamp,
	})
}

// historyOf handles GET /api/history and GET /api/history/{joint}.
func (h *AnalysisHandler) historyOf(w http.ResponseWriter, r *http.Request, joint string) {
	if joint == "" {
		writeJSON(w, http.StatusOK, h.history.Export())
		return
	}
	samples, ok := h.history.History(joint)
	if !ok {
		writeError(w, http.StatusNotFound, "Joint not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"joint": joint, "samples": samples})
}

type cameraRequest struct {
	ID string `json:"id"`
}

// cameras handles the expected-camera collection.
func (h *AnalysisHandler) cameras(w http.ResponseWriter, r *http.Request, id string) {
	switch {
	case id == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"cameras": h.analyzer.Cameras()})

	case id == "" && r.Method == http.MethodPost:
		var req cameraRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.ID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		h.analyzer.AddCamera(req.ID)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"cameras": h.analyzer.Cameras()})

	case id != "" && r.Method == http.MethodDelete:
		if !h.analyzer.RemoveCamera(id) {
			writeError(w, http.StatusNotFound, "Camera not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
