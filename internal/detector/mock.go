package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	result *Holistic
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the detection returned by Detect.
func (m *MockDetector) SetResult(h *Holistic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = h
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured result or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Holistic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &Holistic{}, nil
	}
	out := *m.result
	return &out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingPose returns a preset detection of a person standing upright in
// the middle of the image, arms hanging, with both hands visible.
func StandingPose() *Holistic {
	h := &Holistic{Pose: make([]Point3D, 33)}

	// Head landmarks 0-10 around the nose.
	for i := 0; i <= 10; i++ {
		h.Pose[i] = Point3D{X: 0.5 + 0.005*float64(i%5-2), Y: 0.18 + 0.004*float64(i%3), Z: -0.3}
	}
	h.Pose[0] = Point3D{X: 0.50, Y: 0.18, Z: -0.30}

	h.Pose[11] = Point3D{X: 0.60, Y: 0.32, Z: -0.10} // left shoulder
	h.Pose[12] = Point3D{X: 0.40, Y: 0.32, Z: -0.10} // right shoulder
	h.Pose[13] = Point3D{X: 0.63, Y: 0.47, Z: -0.08}
	h.Pose[14] = Point3D{X: 0.37, Y: 0.47, Z: -0.08}
	h.Pose[15] = Point3D{X: 0.64, Y: 0.60, Z: -0.12}
	h.Pose[16] = Point3D{X: 0.36, Y: 0.60, Z: -0.12}

	// Finger landmarks 17-22 near the wrists.
	for i := 17; i <= 22; i++ {
		x := 0.65
		if i%2 == 0 {
			x = 0.35
		}
		h.Pose[i] = Point3D{X: x, Y: 0.63, Z: -0.13}
	}

	h.Pose[23] = Point3D{X: 0.56, Y: 0.58, Z: 0.0} // left hip
	h.Pose[24] = Point3D{X: 0.44, Y: 0.58, Z: 0.0} // right hip
	h.Pose[25] = Point3D{X: 0.57, Y: 0.76, Z: 0.02}
	h.Pose[26] = Point3D{X: 0.43, Y: 0.76, Z: 0.02}
	h.Pose[27] = Point3D{X: 0.57, Y: 0.93, Z: 0.05}
	h.Pose[28] = Point3D{X: 0.43, Y: 0.93, Z: 0.05}
	h.Pose[29] = Point3D{X: 0.57, Y: 0.95, Z: 0.07}
	h.Pose[30] = Point3D{X: 0.43, Y: 0.95, Z: 0.07}
	h.Pose[31] = Point3D{X: 0.58, Y: 0.97, Z: -0.02}
	h.Pose[32] = Point3D{X: 0.42, Y: 0.97, Z: -0.02}

	h.LeftHand = handAt(h.Pose[15], 1)
	h.RightHand = handAt(h.Pose[16], -1)
	return h
}

// handAt returns 21 hand points hanging down from wrist, spread along X in
// the direction of sign.
func handAt(wrist Point3D, sign float64) []Point3D {
	pts := make([]Point3D, 21)
	pts[0] = wrist
	for i := 1; i < 21; i++ {
		finger := float64((i - 1) / 4)
		joint := float64((i-1)%4 + 1)
		pts[i] = Point3D{
			X: wrist.X + sign*0.008*(finger-2),
			Y: wrist.Y + 0.012*joint + 0.01,
			Z: wrist.Z - 0.003*joint,
		}
	}
	return pts
}
