// Package window holds the short rolling window of landmark frames used for
// angle and derivative estimation.
package window

import (
	"github.com/ayusman/biomech/internal/landmark"
)

// DefaultSize is the default number of frames retained.
const DefaultSize = 5

// CollisionStep is added to a timestamp that does not strictly follow the
// previous one, in seconds.
const CollisionStep = 0.001

type entry struct {
	point   landmark.Point
	present bool
}

// Store keeps the most recent frames as a timestamp sequence plus one
// position sequence per landmark key, aligned index for index.
//
// Every position sequence always has the same length as the timestamp
// sequence. Keys missing from a frame get an absent entry at that index.
// Store is not safe for concurrent use; its owner serializes access.
type Store struct {
	size       int
	timestamps []float64
	positions  map[landmark.Key][]entry
}

// New creates a Store that retains at most size frames.
// Sizes below 1 fall back to DefaultSize.
func New(size int) *Store {
	if size < 1 {
		size = DefaultSize
	}
	return &Store{
		size:       size,
		timestamps: make([]float64, 0, size+1),
		positions:  make(map[landmark.Key][]entry),
	}
}

// Append adds a frame and trims every sequence to the newest Size entries.
// It returns the timestamp actually recorded, which differs from the frame's
// when it collided with or preceded the previous one.
func (s *Store) Append(frame landmark.Frame) float64 {
	ts := frame.Timestamp
	if n := len(s.timestamps); n > 0 && ts <= s.timestamps[n-1] {
		ts = s.timestamps[n-1] + CollisionStep
	}

	prevLen := len(s.timestamps)
	s.timestamps = append(s.timestamps, ts)

	for key, seq := range s.positions {
		p, ok := frame.Points[key]
		s.positions[key] = append(seq, entry{point: p, present: ok})
	}

	for key, p := range frame.Points {
		if _, seen := s.positions[key]; seen {
			continue
		}
		// Back-fill so the new sequence lines up with the timestamps.
		seq := make([]entry, prevLen, s.size+1)
		s.positions[key] = append(seq, entry{point: p, present: true})
	}

	s.trim()
	return ts
}

// trim drops the oldest entries from all sequences in lockstep and forgets
// keys that have no recorded value left in the window.
func (s *Store) trim() {
	excess := len(s.timestamps) - s.size
	if excess > 0 {
		s.timestamps = append(s.timestamps[:0], s.timestamps[excess:]...)
	}

	for key, seq := range s.positions {
		if excess > 0 {
			seq = append(seq[:0], seq[excess:]...)
		}
		if !anyPresent(seq) {
			delete(s.positions, key)
			continue
		}
		s.positions[key] = seq
	}
}

func anyPresent(seq []entry) bool {
	for _, e := range seq {
		if e.present {
			return true
		}
	}
	return false
}

// PositionAt returns the position of key at frame index i (0 is the oldest
// frame in the window). The boolean is false when the key has no value at
// that index; callers treat that as a missing landmark.
func (s *Store) PositionAt(key landmark.Key, i int) (landmark.Point, bool) {
	seq, ok := s.positions[key]
	if !ok || i < 0 || i >= len(seq) {
		return landmark.Point{}, false
	}
	e := seq[i]
	return e.point, e.present
}

// Timestamps returns a copy of the timestamp sequence, oldest first.
func (s *Store) Timestamps() []float64 {
	out := make([]float64, len(s.timestamps))
	copy(out, s.timestamps)
	return out
}

// TimestampAt returns the timestamp of frame index i.
func (s *Store) TimestampAt(i int) float64 {
	return s.timestamps[i]
}

// Len returns the number of frames currently held.
func (s *Store) Len() int {
	return len(s.timestamps)
}

// Size returns the maximum number of frames held.
func (s *Store) Size() int {
	return s.size
}

// Keys returns every key with at least one recorded value in the window.
func (s *Store) Keys() []landmark.Key {
	keys := make([]landmark.Key, 0, len(s.positions))
	for k := range s.positions {
		keys = append(keys, k)
	}
	landmark.SortKeys(keys)
	return keys
}

// SeriesLen returns the length of the position sequence for key, or 0 if the
// key is not tracked.
func (s *Store) SeriesLen(key landmark.Key) int {
	return len(s.positions[key])
}

// Latest returns the most recent frame's recorded landmarks.
func (s *Store) Latest() (landmark.Frame, bool) {
	n := len(s.timestamps)
	if n == 0 {
		return landmark.Frame{}, false
	}
	set := make(landmark.Set)
	for key, seq := range s.positions {
		if e := seq[n-1]; e.present {
			set[key] = e.point
		}
	}
	return landmark.Frame{Timestamp: s.timestamps[n-1], Points: set}, true
}

// Reset drops every frame.
func (s *Store) Reset() {
	s.timestamps = s.timestamps[:0]
	s.positions = make(map[landmark.Key][]entry)
}
