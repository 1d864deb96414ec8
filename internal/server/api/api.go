// Package api provides HTTP API handlers for the biomech kinematics engine.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/kinematics"
	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/store"
)

// Analyzer is the runtime the handlers drive.
type Analyzer interface {
	Latest() engine.Snapshot
	Submit(cameraID string, set landmark.Set, ts float64)
	Cameras() []string
	AddCamera(id string)
	RemoveCamera(id string) bool
}

// HistorySource exposes retained joint samples.
type HistorySource interface {
	History(joint string) ([]kinematics.Sample, bool)
	Export() map[string][]kinematics.Sample
}

// Recorder starts and stops session recordings.
type Recorder interface {
	Start(name string, cameras []string, subjectHeight float64) (*store.Session, error)
	Stop() (*store.Session, error)
	Active() *store.Session
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
