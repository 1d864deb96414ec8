package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/kinematics"
	"github.com/ayusman/biomech/internal/store"
)

var (
	// ErrRecording is returned when a session is started while another one
	// is active.
	ErrRecording = errors.New("a session is already being recorded")
	// ErrNotRecording is returned when stopping without an active session.
	ErrNotRecording = errors.New("no session is being recorded")
)

// recordedSample is the JSON stored per joint and snapshot.
type recordedSample struct {
	Time float64 `json:"time"`
	engine.JointState
}

// Recorder writes snapshots into the active recording session.
type Recorder struct {
	store *store.Store
	now   func() time.Time

	mu      sync.Mutex
	session *store.Session
}

// NewRecorder creates a recorder over s. Sessions left open by a previous
// run are closed.
func NewRecorder(s *store.Store) *Recorder {
	r := &Recorder{store: s, now: time.Now}
	for {
		stale, err := s.Sessions().Current()
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Printf("Error checking for open sessions: %v", err)
			}
			break
		}
		end := stale.StartedAt
		if err := s.Sessions().Finish(stale.ID, end); err != nil {
			log.Printf("Error closing session %s: %v", stale.ID, err)
			break
		}
		log.Printf("Closed session %s left open by a previous run", stale.ID)
	}
	return r
}

// Start begins a new session.
func (r *Recorder) Start(name string, cameras []string, subjectHeight float64) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return nil, ErrRecording
	}
	if name == "" {
		name = r.now().Format("2006-01-02 15:04:05")
	}

	sess := &store.Session{
		ID:            uuid.New().String(),
		Name:          name,
		Cameras:       append([]string(nil), cameras...),
		SubjectHeight: subjectHeight,
		StartedAt:     r.now(),
	}
	if err := r.store.Sessions().Create(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.session = sess
	log.Printf("Recording session %s (%s)", sess.ID, sess.Name)
	return copySession(sess), nil
}

// Stop ends the active session and returns it.
func (r *Recorder) Stop() (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, ErrNotRecording
	}
	id := r.session.ID
	r.session = nil

	if err := r.store.Sessions().Finish(id, r.now()); err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	log.Printf("Stopped recording session %s", id)
	return r.store.Sessions().GetByID(id)
}

// Active returns the session being recorded, or nil.
func (r *Recorder) Active() *store.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	return copySession(r.session)
}

// Record stores every resolved joint of snap in the active session. It is
// a no-op while nothing is being recorded.
func (r *Recorder) Record(snap engine.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil
	}

	samples := make([]store.JointSample, 0, len(snap.Joints))
	for name, j := range snap.Joints {
		if j.Status != kinematics.StatusOK {
			continue
		}
		data, err := json.Marshal(recordedSample{Time: snap.Timestamp, JointState: j})
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		samples = append(samples, store.JointSample{
			Joint:     name,
			Timestamp: snap.Timestamp,
			Data:      data,
		})
	}

	err := r.store.Samples().Append(r.session.ID, samples)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Session %s was deleted, recording stopped", r.session.ID)
		r.session = nil
		return nil
	}
	return err
}

func copySession(s *store.Session) *store.Session {
	c := *s
	c.Cameras = append([]string(nil), s.Cameras...)
	return &c
}
