package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/biomech/internal/app"
	"github.com/ayusman/biomech/internal/capture"
	"github.com/ayusman/biomech/internal/detector"
	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/server"
	"github.com/ayusman/biomech/internal/store"
)

func TestE2E_MultiCameraRecording(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	defer s.Close()

	application := app.New(app.Config{Engine: engine.DefaultConfig(), Store: s, SubjectHeight: 1.7})

	norm := detector.NewNormalizer(1.7, nil)
	for _, id := range []string{"front", "side"} {
		det := detector.NewMockDetector()
		det.SetResult(detector.StandingPose())
		frames := capture.BlankFrames(1)
		defer frames[0].Close()
		application.AddSource(capture.NewSource(
			capture.SourceConfig{ID: id, FPS: 30},
			capture.NewMockCamera(frames, true),
			det,
			norm,
			application,
		))
	}

	srv := server.New(server.Config{App: application, Store: s, SubjectHeight: 1.7})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// Start recording before the cameras run.
	resp, err := client.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader(`{"name":"standing"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session store.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	resp.Body.Close()
	assert.ElementsMatch(t, []string{"front", "side"}, session.Cameras)

	// The websocket stream is served by the hub, which the server feeds
	// from its own subscription while running.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps, unsubscribe := application.Subscribe()
	defer unsubscribe()
	hub := server.NewHub()
	go hub.Run(ctx, snaps)
	wsServer := httptest.NewServer(hub)
	defer wsServer.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(wsServer.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	runDone := make(chan error, 1)
	go func() { runDone <- application.Run(ctx) }()

	t.Run("StreamDelivers", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg server.DataUpdate
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "data_update", msg.Type)
		assert.Len(t, msg.Data.Angles, application.Engine().Model().Len())
	})

	// Let a few fused ticks through.
	assert.Eventually(t, func() bool {
		snap := application.Latest()
		if len(snap.Cameras) != 2 || snap.Joints["Right Elbow"].Status != "ok" {
			return false
		}
		return len(application.Engine().Export()["Right Elbow"]) >= 3
	}, 5*time.Second, 20*time.Millisecond, "fused ticks never arrived")

	t.Run("AnglesFused", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/angles")
		require.NoError(t, err)
		defer resp.Body.Close()

		var angles struct {
			Cameras []string                     `json:"cameras"`
			Joints  map[string]engine.JointState `json:"joints"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&angles))
		assert.ElementsMatch(t, []string{"front", "side"}, angles.Cameras)
		// a still body has no angular velocity
		for name, j := range angles.Joints {
			for axis, v := range j.Velocities {
				assert.InDelta(t, 0, v, 1e-6, "%s %s velocity", name, axis)
			}
		}
	})

	t.Run("StopAndExport", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/sessions/"+session.ID+"/stop", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = client.Get(ts.URL + "/api/sessions/" + session.ID + "/export")
		require.NoError(t, err)
		defer resp.Body.Close()

		var export struct {
			Session store.Session                `json:"session"`
			Joints  map[string][]json.RawMessage `json:"joints"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&export))
		assert.NotZero(t, export.Session.Samples, "session recorded no samples")
		assert.NotEmpty(t, export.Joints["Right Elbow"], "no elbow samples exported")
	})

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		assert.Fail(t, "Run() did not stop")
	}
}
