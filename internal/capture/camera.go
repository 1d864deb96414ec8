// Package capture reads video from cameras and turns each frame into a
// body landmark set for the analysis engine.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings.
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Errors returned by cameras.
var (
	ErrCameraNotOpen = errors.New("camera is not open")
	ErrEmptyFrame    = errors.New("captured frame is empty")
)

// Camera is a stream of frames.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller must close it.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// videoCamera reads from an OpenCV capture, either a device or a file.
type videoCamera struct {
	name string
	open func() (*gocv.VideoCapture, error)
	live bool

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	fps int
}

// NewCamera returns a Camera for a local video device. The device is opened
// at 640x480.
func NewCamera(device int) Camera {
	return &videoCamera{
		name: fmt.Sprintf("device %d", device),
		open: func() (*gocv.VideoCapture, error) { return gocv.OpenVideoCapture(device) },
		live: true,
		fps:  DefaultFPS,
	}
}

// NewFileCamera returns a Camera that plays a recorded video. ReadFrame
// returns io.EOF after the last frame.
func NewFileCamera(path string) Camera {
	return &videoCamera{
		name: path,
		open: func() (*gocv.VideoCapture, error) { return gocv.VideoCaptureFile(path) },
		fps:  DefaultFPS,
	}
}

func (c *videoCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc != nil {
		return nil
	}

	vc, err := c.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", c.name, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open %s: unavailable", c.name)
	}
	if c.live {
		vc.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		vc.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		vc.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}
	c.vc = vc
	return nil
}

// Close is a no-op on a closed camera.
func (c *videoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	vc := c.vc
	c.vc = nil
	return vc.Close()
}

func (c *videoCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	ok := c.vc.Read(&mat)
	switch {
	case !ok && !c.live:
		mat.Close()
		return nil, io.EOF
	case !ok:
		mat.Close()
		return nil, fmt.Errorf("read %s failed", c.name)
	case mat.Empty():
		mat.Close()
		if !c.live {
			return nil, io.EOF
		}
		return nil, ErrEmptyFrame
	}
	return &mat, nil
}

// SetFPS ignores non-positive rates. Files are paced by the Source, so the
// rate is only pushed to live devices.
func (c *videoCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
	if c.vc != nil && c.live {
		c.vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *videoCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *videoCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc != nil
}
