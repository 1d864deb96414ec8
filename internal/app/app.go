// Package app wires camera sources, the kinematics engine, session
// recording and snapshot publication into one runtime.
package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/biomech/internal/capture"
	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/publish"
	"github.com/ayusman/biomech/internal/store"
)

const (
	// DefaultFlushInterval is how often open ticks are checked against the
	// grace period.
	DefaultFlushInterval = 10 * time.Millisecond
	// subscriberBuffer is the channel depth of each subscription. Slow
	// subscribers miss snapshots rather than stall ingestion.
	subscriberBuffer = 16
)

// Config holds configuration options for the application.
type Config struct {
	Engine engine.Config
	// Store enables session recording when set.
	Store         *store.Store
	SubjectHeight float64
	FlushInterval time.Duration
}

// App is the runtime that feeds landmark sets into the engine and fans the
// resulting snapshots out to subscribers.
type App struct {
	config   Config
	engine   *engine.Engine
	recorder *Recorder
	now      func() time.Time

	mu         sync.RWMutex
	enabled    bool
	cameras    map[string]bool
	sources    []*capture.Source
	publishers []publish.Publisher
	subs       map[int]chan engine.Snapshot
	nextSub    int
	lastTS     float64
	lastUpdate time.Time
}

// New creates an App. Analysis starts enabled.
func New(config Config) *App {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	now := config.Engine.Now
	if now == nil {
		now = time.Now
	}

	a := &App{
		config:  config,
		engine:  engine.New(config.Engine),
		now:     now,
		enabled: true,
		cameras: make(map[string]bool),
		subs:    make(map[int]chan engine.Snapshot),
	}
	if config.Store != nil {
		a.recorder = NewRecorder(config.Store)
		a.recorder.now = now
	}
	return a
}

// Engine returns the kinematics engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Recorder returns the session recorder, or nil without a store.
func (a *App) Recorder() *Recorder {
	return a.recorder
}

// SetEnabled enables or disables analysis. While disabled, submitted
// landmark sets are discarded.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	log.Printf("Analysis enabled: %v", enabled)
}

// IsEnabled returns whether analysis is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// AddSource registers a camera source to be run by Run.
func (a *App) AddSource(src *capture.Source) {
	a.mu.Lock()
	a.sources = append(a.sources, src)
	a.mu.Unlock()
	a.AddCamera(src.ID())
}

// AddPublisher registers a publisher that receives every new snapshot
// while Run is active.
func (a *App) AddPublisher(p publish.Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publishers = append(a.publishers, p)
}

// AddCamera adds a camera to the set expected to report every tick.
func (a *App) AddCamera(id string) {
	a.mu.Lock()
	if id == "" || a.cameras[id] {
		a.mu.Unlock()
		return
	}
	a.cameras[id] = true
	a.engine.SetCameras(a.cameraIDs()...)
	a.mu.Unlock()

	log.Printf("Camera %s added", id)
}

// RemoveCamera stops waiting for a camera. It reports whether the camera
// was registered. A tick that only lacked this camera is closed.
func (a *App) RemoveCamera(id string) bool {
	a.mu.Lock()
	if !a.cameras[id] {
		a.mu.Unlock()
		return false
	}
	delete(a.cameras, id)
	a.engine.SetCameras(a.cameraIDs()...)
	a.mu.Unlock()

	log.Printf("Camera %s removed", id)
	a.dispatch(a.engine.Latest())
	return true
}

// Cameras returns the registered camera IDs in sorted order.
func (a *App) Cameras() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cameraIDs()
}

func (a *App) cameraIDs() []string {
	ids := make([]string, 0, len(a.cameras))
	for id := range a.cameras {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Submit hands one camera's landmark set to the engine. It satisfies
// capture.Sink and is also the entry point for externally pushed landmarks.
// With no camera registered, the first camera to submit is registered;
// otherwise sets from unregistered cameras are dropped by the engine.
func (a *App) Submit(cameraID string, set landmark.Set, ts float64) {
	if !a.IsEnabled() {
		return
	}
	a.mu.Lock()
	if len(a.cameras) == 0 && cameraID != "" {
		a.cameras[cameraID] = true
		a.engine.SetCameras(cameraID)
		log.Printf("Camera %s added on first submit", cameraID)
	}
	a.mu.Unlock()
	a.dispatch(a.engine.Ingest(cameraID, set, ts))
}

// Flush closes a tick that outlived the grace period at now.
func (a *App) Flush(now time.Time) {
	if snap, closed := a.engine.FlushExpired(now); closed {
		a.dispatch(snap)
	}
}

// Latest returns the most recent snapshot.
func (a *App) Latest() engine.Snapshot {
	return a.engine.Latest()
}

// LastUpdate returns when the last new snapshot was produced.
func (a *App) LastUpdate() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastUpdate
}

// Reset clears the engine state.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine.Reset()
	a.lastTS = 0
}

// Subscribe returns a channel of new snapshots and a function that ends
// the subscription. Snapshots are shared between subscribers and must be
// treated as read-only.
func (a *App) Subscribe() (<-chan engine.Snapshot, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	ch := make(chan engine.Snapshot, subscriberBuffer)
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.subs, id)
			close(ch)
		})
	}
}

// dispatch delivers snap to subscribers if it is newer than the last one.
// Window timestamps strictly increase, so an unchanged timestamp means the
// tick is still open.
func (a *App) dispatch(snap engine.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if snap.Timestamp <= a.lastTS {
		return
	}
	a.lastTS = snap.Timestamp
	a.lastUpdate = a.now()

	for _, ch := range a.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Run starts every source, the grace-period flusher, the recorder and the
// publishers, and blocks until ctx is cancelled and they have stopped.
func (a *App) Run(ctx context.Context) error {
	a.mu.RLock()
	sources := append([]*capture.Source(nil), a.sources...)
	publishers := append([]publish.Publisher(nil), a.publishers...)
	a.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			if err := src.Run(ctx); err != nil {
				log.Printf("Source %s stopped: %v", src.ID(), err)
				a.RemoveCamera(src.ID())
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(a.config.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.Flush(a.now())
			}
		}
	})

	if a.recorder != nil {
		a.consume(ctx, g, func(snap engine.Snapshot) {
			if err := a.recorder.Record(snap); err != nil {
				log.Printf("Error recording snapshot: %v", err)
			}
		})
	}

	for _, p := range publishers {
		p := p
		a.consume(ctx, g, func(snap engine.Snapshot) {
			if err := p.Publish(snap); err != nil {
				log.Printf("Error publishing snapshot: %v", err)
			}
		})
	}

	log.Printf("Pipeline started with %d sources, %d publishers", len(sources), len(publishers))
	err := g.Wait()

	for _, p := range publishers {
		p.Close()
	}
	log.Println("Pipeline stopped")
	return err
}

// consume runs fn for every snapshot until ctx is done.
func (a *App) consume(ctx context.Context, g *errgroup.Group, fn func(engine.Snapshot)) {
	ch, cancel := a.Subscribe()
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-ch:
				if !ok {
					return nil
				}
				fn(snap)
			}
		}
	})
}
