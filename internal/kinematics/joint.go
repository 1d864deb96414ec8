package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/skeleton"
)

// Errors describing why a joint produced zero angles for a frame.
var (
	ErrMissingLandmark    = errors.New("missing landmark")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// PositionSource is read access to a window of landmark frames.
// *window.Store implements it.
type PositionSource interface {
	PositionAt(key landmark.Key, i int) (landmark.Point, bool)
	TimestampAt(i int) float64
	Len() int
}

// JointAngles computes the angles of pair at frame index i.
// On error the returned angles are the zero triple for the pair's sequence.
func JointAngles(pair skeleton.SegmentPair, src PositionSource, i int) (Angles, error) {
	angles := ZeroAngles(pair.Sequence)

	var pts [4]landmark.Point
	for n, key := range pair.Keys() {
		p, ok := src.PositionAt(key, i)
		if !ok {
			return angles, fmt.Errorf("%s: %w %s", pair.ID, ErrMissingLandmark, key)
		}
		pts[n] = p
	}

	proximal, ok := BuildFrame(pts[0].Vec(), pts[1].Vec())
	if !ok {
		return angles, fmt.Errorf("%s: %w: proximal segment %s", pair.ID, ErrDegenerateGeometry, pair.Proximal)
	}
	distal, ok := BuildFrame(pts[2].Vec(), pts[3].Vec())
	if !ok {
		return angles, fmt.Errorf("%s: %w: distal segment %s", pair.ID, ErrDegenerateGeometry, pair.Distal)
	}

	rel := Relative(proximal, distal)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			if v := rel.At(row, col); math.IsNaN(v) || math.IsInf(v, 0) {
				return angles, fmt.Errorf("%s: %w: singular relative transform", pair.ID, ErrDegenerateGeometry)
			}
		}
	}

	angles.Values = Decompose(rel, pair.Sequence)
	return angles, nil
}
