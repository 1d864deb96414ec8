package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FrameSource provides the latest JPEG frame of a camera.
type FrameSource interface {
	Frame() ([]byte, bool)
}

// VideoHandler serves MJPEG previews at /api/video/{camera}.
type VideoHandler struct {
	sources  map[string]FrameSource
	interval time.Duration
}

// NewVideoHandler creates a new VideoHandler over the given sources.
func NewVideoHandler(sources map[string]FrameSource) *VideoHandler {
	return &VideoHandler{sources: sources, interval: 66 * time.Millisecond} // ~15 FPS
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *VideoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/video/")
	src, ok := h.sources[id]
	if !ok {
		http.Error(w, "Camera not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame, ok := src.Frame()
		if !ok || (len(frame) == len(last) && &frame[0] == &last[0]) {
			continue
		}
		last = frame

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
