package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/biomech/internal/detector"
	"github.com/ayusman/biomech/internal/landmark"
)

// Sink receives the landmark sets produced by a Source. Timestamps are Unix
// seconds so that sets from different cameras share one clock.
type Sink interface {
	Submit(cameraID string, set landmark.Set, ts float64)
}

// SourceConfig configures a Source.
type SourceConfig struct {
	// ID names the camera in snapshots and fusion.
	ID string
	// FPS limits how often frames are processed. Zero uses the camera rate.
	FPS int
	// Mirror flips frames horizontally before detection, so that the
	// subject's left side appears on the left of a selfie view.
	Mirror bool
	// MotionThreshold skips detection on frames that changed by less than
	// this percentage and resubmits the previous landmarks. Zero disables.
	MotionThreshold float64
	// Preview keeps the latest frame JPEG-encoded for the video endpoint.
	Preview bool
}

// Source runs one camera: read, mirror, detect, normalize, submit.
type Source struct {
	cfg        SourceConfig
	camera     Camera
	detector   detector.Detector
	normalizer *detector.Normalizer
	sink       Sink
	now        func() time.Time

	mu       sync.Mutex
	frames   int
	detected int
	lastSet  landmark.Set
	preview  []byte
}

// NewSource creates a Source. The detector may be shared between sources.
func NewSource(cfg SourceConfig, cam Camera, det detector.Detector, norm *detector.Normalizer, sink Sink) *Source {
	if cfg.FPS > 0 {
		cam.SetFPS(cfg.FPS)
	}
	return &Source{
		cfg:        cfg,
		camera:     cam,
		detector:   det,
		normalizer: norm,
		sink:       sink,
		now:        time.Now,
	}
}

// ID returns the camera ID.
func (s *Source) ID() string {
	return s.cfg.ID
}

// Stats returns the number of frames read and the number that produced a
// landmark set.
func (s *Source) Stats() (frames, detected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.detected
}

// Frame returns the latest JPEG preview frame, if previews are enabled and
// a frame has been read.
func (s *Source) Frame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview, s.preview != nil
}

// Run captures until ctx is cancelled or the camera reaches the end of its
// stream. The camera is opened on entry and closed on return.
func (s *Source) Run(ctx context.Context) error {
	if err := s.camera.Open(); err != nil {
		return fmt.Errorf("camera %s: %w", s.cfg.ID, err)
	}
	defer s.camera.Close()

	var gate *MotionGate
	if s.cfg.MotionThreshold > 0 {
		gate = NewMotionGate(s.cfg.MotionThreshold)
		defer gate.Close()
	}

	fps := s.camera.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	log.Printf("[camera %s] Capturing at %d fps", s.cfg.ID, fps)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := s.step(gate)
			if errors.Is(err, io.EOF) {
				log.Printf("[camera %s] End of stream", s.cfg.ID)
				return nil
			}
			if err != nil {
				log.Printf("[camera %s] %v", s.cfg.ID, err)
			}
		}
	}
}

// step processes one frame.
func (s *Source) step(gate *MotionGate) error {
	frame, err := s.camera.ReadFrame()
	if err != nil {
		return err
	}
	defer frame.Close()

	ts := float64(s.now().UnixNano()) / 1e9

	if s.cfg.Mirror {
		gocv.Flip(*frame, frame, 1)
	}

	var jpeg []byte
	if s.cfg.Preview {
		if buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame); err == nil {
			jpeg = append([]byte(nil), buf.GetBytes()...)
			buf.Close()
		}
	}

	s.mu.Lock()
	s.frames++
	prev := s.lastSet
	if jpeg != nil {
		s.preview = jpeg
	}
	s.mu.Unlock()

	if gate != nil && prev != nil {
		if moved, _ := gate.Moved(frame); !moved {
			s.sink.Submit(s.cfg.ID, prev.Clone(), ts)
			return nil
		}
	} else if gate != nil {
		gate.Moved(frame)
	}

	h, err := s.detector.Detect(frame)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	set, err := s.normalizer.Normalize(h)
	if errors.Is(err, detector.ErrNoPose) {
		s.mu.Lock()
		s.lastSet = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	s.mu.Lock()
	s.detected++
	s.lastSet = set
	s.mu.Unlock()

	s.sink.Submit(s.cfg.ID, set.Clone(), ts)
	return nil
}
