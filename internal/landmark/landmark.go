// Package landmark defines the key space, point type and frame type shared by
// every stage of the kinematics pipeline.
package landmark

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Errors returned when validating landmark input at the ingestion boundary.
var (
	ErrInvalidKey = errors.New("invalid landmark key")
	ErrNonFinite  = errors.New("non-finite landmark coordinate")
)

// Category identifies which detected structure a landmark belongs to.
type Category string

const (
	Pose      Category = "pose"
	LeftHand  Category = "left_hand"
	RightHand Category = "right_hand"
	Face      Category = "face"
)

// Number of landmarks per category, following the MediaPipe Holistic model.
const (
	NumPose = 33
	NumHand = 21
	NumFace = 468
)

// Categories lists every category in a stable order.
var Categories = []Category{Pose, LeftHand, RightHand, Face}

// Size returns the number of landmarks in the category, or 0 if unknown.
func (c Category) Size() int {
	switch c {
	case Pose:
		return NumPose
	case LeftHand, RightHand:
		return NumHand
	case Face:
		return NumFace
	}
	return 0
}

// IsHand reports whether c is one of the two hand categories.
func (c Category) IsHand() bool {
	return c == LeftHand || c == RightHand
}

// Pose landmark indices following the MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
)

// Hand landmark indices used by the kinematics model.
const (
	HandWrist     = 0
	HandMiddleMCP = 9
)

// FaceBase is the face landmark used as the local origin of the face mesh.
const FaceBase = 1

// Key identifies one landmark: a category plus an index within it.
type Key struct {
	Category Category
	Index    int
}

// K is shorthand for constructing a Key.
func K(c Category, index int) Key {
	return Key{Category: c, Index: index}
}

// String returns the wire form of the key, e.g. "pose_12" or "left_hand_3".
func (k Key) String() string {
	return string(k.Category) + "_" + strconv.Itoa(k.Index)
}

// Valid reports whether the key is inside its category's index range.
func (k Key) Valid() bool {
	return k.Index >= 0 && k.Index < k.Category.Size()
}

// ParseKey parses the wire form of a landmark key.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	index, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	k := Key{Category: Category(s[:i]), Index: index}
	if !k.Valid() {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler so keys can be JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Point is a 3D landmark position in the body-centered, scale-normalized frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec converts the point to a gonum vector.
func (p Point) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// FromVec converts a gonum vector to a Point.
func FromVec(v r3.Vec) Point {
	return Point{X: v.X, Y: v.Y, Z: v.Z}
}

// Finite reports whether every coordinate is a finite number.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// Set is one instant's detection: landmark key to position.
// Absent structures simply omit their keys.
type Set map[Key]Point

// ParseSet validates wire-form input and converts it to a Set.
func ParseSet(raw map[string]Point) (Set, error) {
	set := make(Set, len(raw))
	for name, p := range raw {
		k, err := ParseKey(name)
		if err != nil {
			return nil, err
		}
		if !p.Finite() {
			return nil, fmt.Errorf("%w: %s", ErrNonFinite, name)
		}
		set[k] = p
	}
	return set, nil
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, p := range s {
		out[k] = p
	}
	return out
}

// Has reports whether the set contains any landmark of the given category.
func (s Set) Has(c Category) bool {
	for k := range s {
		if k.Category == c {
			return true
		}
	}
	return false
}

// Keys returns the keys of the set in category then index order.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys orders keys by category (pose, hands, face) and then by index.
func SortKeys(keys []Key) {
	rank := func(c Category) int {
		for i, cc := range Categories {
			if cc == c {
				return i
			}
		}
		return len(Categories)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i].Category), rank(keys[j].Category)
		if ri != rj {
			return ri < rj
		}
		return keys[i].Index < keys[j].Index
	})
}

// Frame is a timestamped landmark set for one logical source.
// Timestamp is in seconds.
type Frame struct {
	Timestamp float64
	Points    Set
}
