// Package engine is the analysis orchestrator: it gathers per-camera
// landmark sets into ticks, fuses them, appends the result to the rolling
// window and estimates every joint of the segment model.
package engine

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/biomech/internal/fusion"
	"github.com/ayusman/biomech/internal/kinematics"
	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/skeleton"
	"github.com/ayusman/biomech/internal/window"
)

// DefaultGracePeriod is how long a multi-camera tick waits for missing
// cameras before it is fused with the cameras that did report.
const DefaultGracePeriod = 100 * time.Millisecond

// Config holds engine settings.
type Config struct {
	Model           *skeleton.Model
	WindowSize      int
	HistoryCapacity int
	GracePeriod     time.Duration

	// Now is the clock used to time ticks. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns an engine configuration for the default segment model.
func DefaultConfig() Config {
	return Config{
		Model:           skeleton.DefaultModel(),
		WindowSize:      window.DefaultSize,
		HistoryCapacity: kinematics.DefaultHistoryCapacity,
		GracePeriod:     DefaultGracePeriod,
	}
}

// Engine owns one landmark window, one segment model and the per-joint
// histories. All methods are safe for concurrent use; ingestion is
// serialized by a single mutex.
type Engine struct {
	mu sync.Mutex

	model     *skeleton.Model
	store     *window.Store
	histories map[string]*kinematics.History
	grace     time.Duration
	now       func() time.Time

	cameras   []string
	pending   map[string]landmark.Set
	pendingTS float64
	tickStart time.Time

	last Snapshot
}

// New creates an Engine. Zero-valued config fields take their defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Model == nil {
		cfg.Model = def.Model
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		model:     cfg.Model,
		store:     window.New(cfg.WindowSize),
		histories: make(map[string]*kinematics.History, cfg.Model.Len()),
		grace:     cfg.GracePeriod,
		now:       cfg.Now,
		pending:   make(map[string]landmark.Set),
	}
	for _, p := range cfg.Model.Pairs() {
		e.histories[p.JointName] = kinematics.NewHistory(cfg.HistoryCapacity)
	}
	e.last = e.placeholder(0, nil)
	return e
}

// Model returns the segment model the engine evaluates.
func (e *Engine) Model() *skeleton.Model {
	return e.model
}

// SetCameras replaces the set of cameras expected to report every tick.
// Contributions already buffered from cameras no longer expected are dropped.
func (e *Engine) SetCameras(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cameras = uniqueSorted(ids)
	for id := range e.pending {
		if !e.expects(id) {
			delete(e.pending, id)
		}
	}
	if len(e.pending) > 0 && e.complete() {
		e.closeTick()
	}
}

// Cameras returns the expected camera IDs in sorted order.
func (e *Engine) Cameras() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cameras...)
}

// Ingest records one camera's landmarks for the timestamp ts, in seconds.
//
// Sets from cameras outside the expected set are ignored. When no camera is
// expected, the first one to report becomes the expected camera. With one
// expected camera the set is processed immediately. With several, it is
// buffered until every expected camera has reported for the tick; a camera
// reporting twice closes the tick early with the cameras present. Ingest
// returns the latest snapshot, which is the previous one while a tick is
// still open.
func (e *Engine) Ingest(cameraID string, set landmark.Set, ts float64) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.cameras) == 0 && cameraID != "" {
		log.Printf("[engine] Expecting camera %q", cameraID)
		e.cameras = []string{cameraID}
	}
	if !e.expects(cameraID) {
		log.Printf("[engine] Ignoring landmarks from unexpected camera %q", cameraID)
		return e.last.Clone()
	}

	if len(e.cameras) == 1 {
		e.process(landmark.Frame{Timestamp: ts, Points: set.Clone()}, []string{cameraID})
		return e.last.Clone()
	}

	if _, dup := e.pending[cameraID]; dup {
		e.closeTick()
	}
	if len(e.pending) == 0 {
		e.tickStart = e.now()
		e.pendingTS = ts
	}
	e.pending[cameraID] = set.Clone()
	if ts > e.pendingTS {
		e.pendingTS = ts
	}

	if e.complete() {
		e.closeTick()
	}
	return e.last.Clone()
}

// FlushExpired closes the open tick if it has waited at least the grace
// period at now, fusing only the cameras that reported. It returns the
// latest snapshot and whether a tick was closed. With nothing buffered the
// previous snapshot is returned unchanged.
func (e *Engine) FlushExpired(now time.Time) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 || now.Sub(e.tickStart) < e.grace {
		return e.last.Clone(), false
	}

	var missing []string
	for _, id := range e.cameras {
		if _, ok := e.pending[id]; !ok {
			missing = append(missing, id)
		}
	}
	log.Printf("[engine] Tick expired without cameras %v", missing)

	e.closeTick()
	return e.last.Clone(), true
}

// Process appends an already fused frame and estimates every joint.
func (e *Engine) Process(frame landmark.Frame) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.process(landmark.Frame{Timestamp: frame.Timestamp, Points: frame.Points.Clone()}, nil)
	return e.last.Clone()
}

// Latest returns the most recent snapshot.
func (e *Engine) Latest() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.Clone()
}

// History returns the retained samples of a joint, oldest first. The joint
// may be named by its display name or its ID.
func (e *Engine) History(joint string) ([]kinematics.Sample, bool) {
	pair, ok := e.model.Lookup(joint)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.histories[pair.JointName].All(), true
}

// Export returns every joint's retained samples keyed by joint name.
func (e *Engine) Export() map[string][]kinematics.Sample {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]kinematics.Sample, len(e.histories))
	for name, h := range e.histories {
		out[name] = h.All()
	}
	return out
}

// Reset clears the window, histories, the open tick and the last snapshot.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Reset()
	for _, h := range e.histories {
		h.Clear()
	}
	e.pending = make(map[string]landmark.Set)
	e.last = e.placeholder(0, nil)
}

func (e *Engine) expects(id string) bool {
	i := sort.SearchStrings(e.cameras, id)
	return i < len(e.cameras) && e.cameras[i] == id
}

func (e *Engine) complete() bool {
	for _, id := range e.cameras {
		if _, ok := e.pending[id]; !ok {
			return false
		}
	}
	return true
}

// closeTick fuses the buffered contributions. Must be called with mu held.
func (e *Engine) closeTick() {
	if len(e.pending) == 0 {
		return
	}
	res := fusion.Fuse(e.pending)
	e.pending = make(map[string]landmark.Set)
	e.process(landmark.Frame{Timestamp: e.pendingTS, Points: res.Points}, res.Cameras)
}

// process appends frame and rebuilds the snapshot. Must be called with mu held.
func (e *Engine) process(frame landmark.Frame, cameras []string) {
	ts := e.store.Append(frame)

	snap := e.placeholder(ts, cameras)
	if frame.Points != nil {
		snap.Landmarks = frame.Points
	}
	for _, pair := range e.model.Pairs() {
		sample, ok := kinematics.Estimate(pair, e.store)
		if !ok {
			continue
		}
		e.histories[pair.JointName].Add(sample)
		snap.Joints[pair.JointName] = stateOf(sample)
	}
	e.last = snap
}

// placeholder returns a snapshot with every joint zero-filled.
func (e *Engine) placeholder(ts float64, cameras []string) Snapshot {
	snap := Snapshot{
		Timestamp: ts,
		Cameras:   append([]string(nil), cameras...),
		Joints:    make(map[string]JointState, e.model.Len()),
		Landmarks: landmark.Set{},
	}
	for _, pair := range e.model.Pairs() {
		snap.Joints[pair.JointName] = stateOf(kinematics.ZeroSample(pair.Sequence, ts))
	}
	return snap
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
