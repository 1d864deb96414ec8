// Package server provides the HTTP server for the biomech kinematics engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/biomech/internal/app"
	"github.com/ayusman/biomech/internal/server/api"
	"github.com/ayusman/biomech/internal/store"
)

// Config selects what the server exposes.
type Config struct {
	StaticDir string
	// App enables the analysis, camera, history and stream endpoints.
	App *app.App
	// Store enables the sessions API. It requires App.
	Store         *store.Store
	SubjectHeight float64
	// Previews maps camera IDs to sources of JPEG preview frames.
	Previews map[string]FrameSource
}

// Server serves the REST API, the snapshot stream, camera previews and the
// dashboard.
type Server struct {
	config Config
	mux    *http.ServeMux
	hub    *Hub
	start  time.Time
}

// New builds the route table for config. Endpoints whose dependencies are
// missing from config are not registered and answer 404.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.routes()
	return s
}

var analysisPaths = []string{
	"/api/joints",
	"/api/angles",
	"/api/landmarks",
	"/api/history",
	"/api/history/",
	"/api/cameras",
	"/api/cameras/",
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.health)

	if a := s.config.App; a != nil {
		analysis := api.NewAnalysisHandler(a, a.Engine(), a.Engine().Model())
		for _, p := range analysisPaths {
			s.mux.Handle(p, analysis)
		}

		s.hub = NewHub()
		s.mux.Handle("/api/stream", s.hub)

		if rec := a.Recorder(); rec != nil && s.config.Store != nil {
			sessions := api.NewSessionHandler(s.config.Store, rec, a, s.config.SubjectHeight)
			s.mux.Handle("/api/sessions", sessions)
			s.mux.Handle("/api/sessions/", sessions)
		}
	}

	if len(s.config.Previews) > 0 {
		s.mux.Handle("/api/video/", NewVideoHandler(s.config.Previews))
	}

	if dir := s.config.StaticDir; dir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(dir)))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string   `json:"status"`
	Uptime     string   `json:"uptime"`
	Analysis   *bool    `json:"analysis,omitempty"`
	Cameras    []string `json:"cameras,omitempty"`
	LastUpdate string   `json:"last_update,omitempty"`
	Clients    *int     `json:"clients,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Millisecond).String(),
	}
	if a := s.config.App; a != nil {
		enabled := a.IsEnabled()
		resp.Analysis = &enabled
		resp.Cameras = a.Cameras()
		if last := a.LastUpdate(); !last.IsZero() {
			resp.LastUpdate = last.Format(time.RFC3339Nano)
		}
	}
	if s.hub != nil {
		n := s.hub.ClientCount()
		resp.Clients = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("health: encode response: %v", err)
	}
}

// Run serves HTTP on addr and streams snapshots to websocket clients until
// ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	if s.hub != nil {
		snaps, cancel := s.config.App.Subscribe()
		defer cancel()
		go s.hub.Run(ctx, snaps)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", displayAddr(addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		return srv.Shutdown(shutdownCtx)
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
