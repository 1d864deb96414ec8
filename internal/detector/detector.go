// Package detector finds holistic body landmarks (pose, hands and face) in
// video frames and converts them into the body-centered landmark sets used
// by the kinematics engine.
package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for holistic landmark detection.
type Detector interface {
	// Detect analyzes a video frame and returns the detected landmarks in
	// normalized image coordinates. Structures that were not found are
	// returned empty.
	Detect(frame *gocv.Mat) (*Holistic, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for holistic detection.
type Config struct {
	// MinDetectionConf is the minimum detection confidence (0.0-1.0).
	MinDetectionConf float64

	// MinTrackingConf is the minimum tracking confidence (0.0-1.0).
	MinTrackingConf float64

	// Python is the interpreter used for the MediaPipe helper. Empty means
	// a virtual environment next to the binary, then python3.
	Python string

	// Script is the path of the MediaPipe helper script. Empty means search.
	Script string

	// IdleTimeout stops the helper process after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinDetectionConf: 0.5,
		MinTrackingConf:  0.5,
		IdleTimeout:      30 * time.Second,
	}
}
