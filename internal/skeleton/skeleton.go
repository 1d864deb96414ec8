// Package skeleton defines the anatomical segment model: which pair of
// skeletal edges defines each joint and how its rotation is decomposed.
package skeleton

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/biomech/internal/landmark"
)

// ErrInvalidModel is returned when a segment model fails validation.
var ErrInvalidModel = errors.New("invalid segment model")

// RotationSequence is the Euler convention used to decompose a joint rotation.
type RotationSequence string

const (
	XYZ RotationSequence = "xyz"
	YXY RotationSequence = "yxy"
)

// ParseRotationSequence parses a case-insensitive rotation sequence name.
func ParseRotationSequence(s string) (RotationSequence, error) {
	switch seq := RotationSequence(strings.ToLower(s)); seq {
	case XYZ, YXY:
		return seq, nil
	}
	return "", fmt.Errorf("%w: unsupported rotation sequence %q", ErrInvalidModel, s)
}

// AxisLabels returns the names of the three decomposed angles, in order.
func (r RotationSequence) AxisLabels() [3]string {
	if r == YXY {
		return [3]string{"Plane", "Elevation", "Rotation"}
	}
	return [3]string{"Flexion", "Abduction", "Rotation"}
}

// Edge is a directed skeletal segment from Start to End.
type Edge struct {
	Start landmark.Key
	End   landmark.Key
}

// String returns the "start:end" form of the edge.
func (e Edge) String() string {
	return e.Start.String() + ":" + e.End.String()
}

// ParseEdge parses an edge written as "pose_12:pose_14".
func ParseEdge(s string) (Edge, error) {
	start, end, ok := strings.Cut(s, ":")
	if !ok {
		return Edge{}, fmt.Errorf("%w: edge %q must be start:end", ErrInvalidModel, s)
	}
	a, err := landmark.ParseKey(start)
	if err != nil {
		return Edge{}, err
	}
	b, err := landmark.ParseKey(end)
	if err != nil {
		return Edge{}, err
	}
	return Edge{Start: a, End: b}, nil
}

// SegmentPair models one joint as the relative orientation of a proximal
// and a distal segment.
type SegmentPair struct {
	ID        string // stable identifier, e.g. "right_elbow"
	JointName string // display name, e.g. "Right Elbow"
	Proximal  Edge
	Distal    Edge
	Sequence  RotationSequence
}

// Keys returns the four landmarks the pair depends on.
func (p SegmentPair) Keys() [4]landmark.Key {
	return [4]landmark.Key{p.Proximal.Start, p.Proximal.End, p.Distal.Start, p.Distal.End}
}

// Model is an ordered, immutable set of segment pairs.
type Model struct {
	pairs []SegmentPair
}

// NewModel validates pairs and builds a Model.
func NewModel(pairs []SegmentPair) (*Model, error) {
	m := &Model{pairs: append([]SegmentPair(nil), pairs...)}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that IDs and names are unique, keys are valid and no edge
// starts and ends on the same landmark.
func (m *Model) Validate() error {
	if len(m.pairs) == 0 {
		return fmt.Errorf("%w: no segment pairs", ErrInvalidModel)
	}

	ids := make(map[string]bool, len(m.pairs))
	names := make(map[string]bool, len(m.pairs))
	for _, p := range m.pairs {
		if p.ID == "" || p.JointName == "" {
			return fmt.Errorf("%w: pair needs an id and a joint name", ErrInvalidModel)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidModel, p.ID)
		}
		if names[p.JointName] {
			return fmt.Errorf("%w: duplicate joint name %q", ErrInvalidModel, p.JointName)
		}
		ids[p.ID] = true
		names[p.JointName] = true

		for _, k := range p.Keys() {
			if !k.Valid() {
				return fmt.Errorf("%w: %s references invalid key %v", ErrInvalidModel, p.ID, k)
			}
		}
		if p.Proximal.Start == p.Proximal.End || p.Distal.Start == p.Distal.End {
			return fmt.Errorf("%w: %s has a zero-length edge", ErrInvalidModel, p.ID)
		}
		if _, err := ParseRotationSequence(string(p.Sequence)); err != nil {
			return err
		}
	}
	return nil
}

// Pairs returns a copy of the segment pairs in model order.
func (m *Model) Pairs() []SegmentPair {
	return append([]SegmentPair(nil), m.pairs...)
}

// Len returns the number of pairs.
func (m *Model) Len() int {
	return len(m.pairs)
}

// JointNames returns every joint name in model order.
func (m *Model) JointNames() []string {
	names := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		names[i] = p.JointName
	}
	return names
}

// Lookup returns the pair with the given ID or joint name.
func (m *Model) Lookup(name string) (SegmentPair, bool) {
	for _, p := range m.pairs {
		if p.ID == name || p.JointName == name {
			return p, true
		}
	}
	return SegmentPair{}, false
}
