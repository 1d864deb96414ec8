// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/biomech/internal/kinematics"
	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/skeleton"
	"github.com/ayusman/biomech/internal/window"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Detector DetectorConfig `yaml:"detector"`
	Cameras  []CameraConfig `yaml:"cameras"`
	MQTT     MQTTConfig     `yaml:"mqtt"`

	// Tray shows the desktop tray icon. Disable on headless hosts.
	Tray bool `yaml:"tray"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Path of the SQLite database. Empty disables recording.
	Path string `yaml:"path"`
}

// AnalysisConfig configures the kinematics engine.
type AnalysisConfig struct {
	// WindowSize is the number of frames kept for derivative estimation.
	WindowSize int `yaml:"window_size"`
	// HistoryCapacity bounds the samples retained per joint.
	HistoryCapacity int `yaml:"history_capacity"`
	// GracePeriod is how long a multi-camera tick waits for late cameras.
	GracePeriod time.Duration `yaml:"grace_period"`
	// Joints overrides the default segment model when non-empty.
	Joints []JointConfig `yaml:"joints"`
}

// JointConfig describes one segment pair. Edges are written as
// "start:end" landmark keys, e.g. "pose_12:pose_14".
type JointConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Proximal string `yaml:"proximal"`
	Distal   string `yaml:"distal"`
	Sequence string `yaml:"sequence"`
}

// DetectorConfig configures landmark detection and normalization.
type DetectorConfig struct {
	// SubjectHeight is the subject's height in meters.
	SubjectHeight float64 `yaml:"subject_height"`
	// ExcludedPose lists pose indices dropped before analysis.
	ExcludedPose []int `yaml:"excluded_pose"`
	// Python and Script locate the MediaPipe helper. Empty values are
	// searched for next to the executable.
	Python      string        `yaml:"python"`
	Script      string        `yaml:"script"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// CameraConfig describes one capture device.
type CameraConfig struct {
	ID     string `yaml:"id"`
	Device int    `yaml:"device"`
	// File plays a recorded video instead of opening Device.
	File string `yaml:"file"`
	// FPS limits how often frames are processed. Zero means unlimited.
	FPS int `yaml:"fps"`
	// Mirror flips frames horizontally before detection.
	Mirror bool `yaml:"mirror"`
	// MotionThreshold skips detection on still frames. Zero disables.
	MotionThreshold float64 `yaml:"motion_threshold"`
	// Preview serves the camera as MJPEG at /api/video/{id}.
	Preview bool `yaml:"preview"`
}

// MQTTConfig configures snapshot publication.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DefaultExcludedPose returns the face and finger pose indices that carry no
// anatomical joint and are dropped by default.
func DefaultExcludedPose() []int {
	out := make([]int, 0, 16)
	for i := 1; i <= 10; i++ {
		out = append(out, i)
	}
	for i := 17; i <= 22; i++ {
		out = append(out, i)
	}
	return out
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			StaticDir: "web/static",
		},
		Store: StoreConfig{
			Path: "biomech.db",
		},
		Analysis: AnalysisConfig{
			WindowSize:      window.DefaultSize,
			HistoryCapacity: kinematics.DefaultHistoryCapacity,
			GracePeriod:     100 * time.Millisecond,
		},
		Detector: DetectorConfig{
			SubjectHeight: 1.62,
			ExcludedPose:  DefaultExcludedPose(),
			IdleTimeout:   30 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "biomech",
			Topic:    "biomech",
		},
		Tray: true,
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Analysis.WindowSize < 2 {
		return fmt.Errorf("window_size must be at least 2, got %d", c.Analysis.WindowSize)
	}
	if c.Analysis.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be positive, got %d", c.Analysis.HistoryCapacity)
	}
	if c.Analysis.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive, got %v", c.Analysis.GracePeriod)
	}
	if c.Detector.SubjectHeight <= 0 {
		return fmt.Errorf("subject_height must be positive, got %v", c.Detector.SubjectHeight)
	}
	for _, i := range c.Detector.ExcludedPose {
		if i < 0 || i >= landmark.NumPose {
			return fmt.Errorf("excluded_pose index %d out of range", i)
		}
	}

	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera with device %d has no id", cam.Device)
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
		if cam.MotionThreshold < 0 || cam.MotionThreshold > 100 {
			return fmt.Errorf("camera %q motion_threshold must be between 0 and 100", cam.ID)
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}

	if _, err := c.Model(); err != nil {
		return err
	}
	return nil
}

// Model builds the segment model, falling back to the default model when no
// joints are configured.
func (c *Config) Model() (*skeleton.Model, error) {
	if len(c.Analysis.Joints) == 0 {
		return skeleton.DefaultModel(), nil
	}

	pairs := make([]skeleton.SegmentPair, 0, len(c.Analysis.Joints))
	for _, j := range c.Analysis.Joints {
		proximal, err := skeleton.ParseEdge(j.Proximal)
		if err != nil {
			return nil, fmt.Errorf("joint %q proximal: %w", j.ID, err)
		}
		distal, err := skeleton.ParseEdge(j.Distal)
		if err != nil {
			return nil, fmt.Errorf("joint %q distal: %w", j.ID, err)
		}
		seq := skeleton.XYZ
		if j.Sequence != "" {
			if seq, err = skeleton.ParseRotationSequence(j.Sequence); err != nil {
				return nil, fmt.Errorf("joint %q: %w", j.ID, err)
			}
		}
		pairs = append(pairs, skeleton.SegmentPair{
			ID:        j.ID,
			JointName: j.Name,
			Proximal:  proximal,
			Distal:    distal,
			Sequence:  seq,
		})
	}
	return skeleton.NewModel(pairs)
}

// CameraIDs returns the configured camera IDs in file order.
func (c *Config) CameraIDs() []string {
	ids := make([]string, len(c.Cameras))
	for i, cam := range c.Cameras {
		ids[i] = cam.ID
	}
	return ids
}
