package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/biomech/internal/detector"
	"github.com/ayusman/biomech/internal/landmark"
)

type recordingSink struct {
	mu   sync.Mutex
	sets []landmark.Set
	ids  []string
	ts   []float64
}

func (r *recordingSink) Submit(cameraID string, set landmark.Set, ts float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, cameraID)
	r.sets = append(r.sets, set)
	r.ts = append(r.ts, ts)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

func closeAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

func TestNewCamera(t *testing.T) {
	cam := NewCamera(0)

	assert.Equal(t, DefaultFPS, cam.FPS())
	assert.False(t, cam.IsOpen(), "camera should not be open initially")

	_, err := cam.ReadFrame()
	assert.ErrorIs(t, err, ErrCameraNotOpen)
	assert.NoError(t, cam.Close(), "Close() on closed camera")
}

func TestNewFileCamera_Missing(t *testing.T) {
	cam := NewFileCamera("/nonexistent/clip.mp4")
	err := cam.Open()
	if err == nil {
		cam.Close()
	}
	require.Error(t, err, "Open() on a missing file should fail")
	assert.False(t, cam.IsOpen(), "camera should not be open after a failed Open")
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(0)

	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{"set to 30", 30, 30},
		{"set to 1", 1, 1},
		{"zero keeps previous", 0, 1},
		{"negative keeps previous", -5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam.SetFPS(tt.fps)
			assert.Equal(t, tt.wantFPS, cam.FPS())
		})
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(0)
	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	defer cam.Close()

	mat, err := cam.ReadFrame()
	require.NoError(t, err)
	defer mat.Close()
	assert.False(t, mat.Empty(), "ReadFrame() returned empty mat")
}

func TestMockCamera(t *testing.T) {
	frames := BlankFrames(2)
	defer closeAll(frames)

	t.Run("playback", func(t *testing.T) {
		cam := NewMockCamera(frames, false)
		_, err := cam.ReadFrame()
		assert.ErrorIs(t, err, ErrCameraNotOpen, "ReadFrame() before Open")
		require.NoError(t, cam.Open())
		defer cam.Close()

		for i := 0; i < 2; i++ {
			f, err := cam.ReadFrame()
			require.NoError(t, err, "ReadFrame() #%d", i)
			f.Close()
		}
		_, err = cam.ReadFrame()
		assert.ErrorIs(t, err, io.EOF, "ReadFrame() past end")
	})

	t.Run("loop", func(t *testing.T) {
		cam := NewMockCamera(frames, true)
		require.NoError(t, cam.Open())
		defer cam.Close()

		for i := 0; i < 5; i++ {
			f, err := cam.ReadFrame()
			require.NoError(t, err, "ReadFrame() #%d", i)
			f.Close()
		}
	})

	t.Run("empty", func(t *testing.T) {
		cam := NewMockCamera(nil, true)
		require.NoError(t, cam.Open())
		_, err := cam.ReadFrame()
		assert.ErrorIs(t, err, ErrNoFrames)
	})
}

func TestMotionGate(t *testing.T) {
	gate := NewMotionGate(1.0)
	defer gate.Close()

	black := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer black.Close()
	black2 := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer black2.Close()
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer white.Close()

	moved, _ := gate.Moved(&black)
	assert.True(t, moved, "first frame should count as movement")

	moved, pct := gate.Moved(&black2)
	assert.False(t, moved, "identical frames reported movement, change = %f", pct)

	moved, pct = gate.Moved(&white)
	assert.True(t, moved, "black to white")
	assert.GreaterOrEqual(t, pct, 99.0)

	gate.Reset()
	moved, _ = gate.Moved(&white)
	assert.True(t, moved, "first frame after Reset should count as movement")
	moved, _ = gate.Moved(nil)
	assert.False(t, moved, "nil frame should not count as movement")
}

func TestSource_Run(t *testing.T) {
	frames := BlankFrames(3)
	defer closeAll(frames)

	det := detector.NewMockDetector()
	det.SetResult(detector.StandingPose())
	sink := &recordingSink{}

	src := NewSource(
		SourceConfig{ID: "front", FPS: 200, Mirror: true},
		NewMockCamera(frames, false),
		det,
		detector.NewNormalizer(1.7, nil),
		sink,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, src.Run(ctx))

	require.Equal(t, 3, sink.count())
	for i, id := range sink.ids {
		assert.Equal(t, "front", id, "submit #%d camera", i)
		assert.True(t, sink.sets[i].Has(landmark.Pose), "submit #%d missing pose", i)
		assert.True(t, sink.sets[i].Has(landmark.RightHand), "submit #%d missing right hand", i)
	}
	assert.LessOrEqual(t, sink.ts[0], sink.ts[2], "timestamps not increasing: %v", sink.ts)

	frameCount, detected := src.Stats()
	assert.Equal(t, 3, frameCount)
	assert.Equal(t, 3, detected)
}

func TestSource_NoPoseSkipsFrame(t *testing.T) {
	frames := BlankFrames(2)
	defer closeAll(frames)

	det := detector.NewMockDetector()
	sink := &recordingSink{}
	src := NewSource(SourceConfig{ID: "side", FPS: 200}, NewMockCamera(frames, false), det, detector.NewNormalizer(1.7, nil), sink)

	require.NoError(t, src.Run(context.Background()))
	assert.Zero(t, sink.count(), "submitted sets without a pose")
	assert.Equal(t, 2, det.Calls())
}

func TestSource_StillFramesReuseLandmarks(t *testing.T) {
	frames := BlankFrames(4)
	defer closeAll(frames)

	det := detector.NewMockDetector()
	det.SetResult(detector.StandingPose())
	sink := &recordingSink{}
	src := NewSource(
		SourceConfig{ID: "front", FPS: 200, MotionThreshold: 1},
		NewMockCamera(frames, false),
		det,
		detector.NewNormalizer(1.7, nil),
		sink,
	)

	require.NoError(t, src.Run(context.Background()))
	require.Equal(t, 4, sink.count())
	assert.Equal(t, 1, det.Calls(), "detector calls for a still scene")
}

func TestSource_Cancel(t *testing.T) {
	frames := BlankFrames(1)
	defer closeAll(frames)

	det := detector.NewMockDetector()
	det.SetError(errors.New("boom"))
	cam := NewMockCamera(frames, true)
	src := NewSource(SourceConfig{ID: "loop", FPS: 100}, cam, det, detector.NewNormalizer(1.7, nil), &recordingSink{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, src.Run(ctx))
	assert.False(t, cam.IsOpen(), "camera left open after Run returned")
}

func TestSource_Preview(t *testing.T) {
	frames := BlankFrames(1)
	defer closeAll(frames)

	det := detector.NewMockDetector()
	src := NewSource(SourceConfig{ID: "front", FPS: 200, Preview: true}, NewMockCamera(frames, false), det, detector.NewNormalizer(1.7, nil), &recordingSink{})

	_, ok := src.Frame()
	assert.False(t, ok, "Frame() before capture should report no frame")

	require.NoError(t, src.Run(context.Background()))
	jpeg, ok := src.Frame()
	require.True(t, ok)
	require.GreaterOrEqual(t, len(jpeg), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, jpeg[:2], "Frame() should be a JPEG")
}
