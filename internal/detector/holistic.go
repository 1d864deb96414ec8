package detector

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/biomech/internal/landmark"
)

// ErrNoPose is returned when a detection holds no usable body pose.
var ErrNoPose = errors.New("no pose detected")

// ReferenceHeight is the subject height, in meters, at which normalized
// image distances are used unscaled.
const ReferenceHeight = 1.7

// Point3D is a landmark in normalized image coordinates: X and Y in [0, 1]
// with Y pointing down, Z relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Point3D) vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// Holistic is one frame's detection. Pose has 33 points when present, each
// hand 21 and the face mesh 468; missing structures are empty.
type Holistic struct {
	Pose      []Point3D `json:"pose"`
	LeftHand  []Point3D `json:"left_hand"`
	RightHand []Point3D `json:"right_hand"`
	Face      []Point3D `json:"face"`
}

// Normalizer converts detections into body-centered landmark sets. The body
// is centered on the mean of both shoulders and hips, scaled by the subject
// height and flipped so that Y points up. Hands and the face keep their own
// shape and are placed on the body wrist and nose respectively.
type Normalizer struct {
	scale    float64
	excluded map[int]bool
}

// NewNormalizer creates a Normalizer for a subject of the given height in
// meters that drops the listed pose indices.
func NewNormalizer(height float64, excluded []int) *Normalizer {
	if height <= 0 {
		height = ReferenceHeight
	}
	n := &Normalizer{
		scale:    height / ReferenceHeight,
		excluded: make(map[int]bool, len(excluded)),
	}
	for _, i := range excluded {
		n.excluded[i] = true
	}
	return n
}

var anchorIndices = []int{
	landmark.LeftShoulder,
	landmark.RightShoulder,
	landmark.LeftHip,
	landmark.RightHip,
}

// Normalize converts h into a validated landmark set.
func (n *Normalizer) Normalize(h *Holistic) (landmark.Set, error) {
	if h == nil || len(h.Pose) == 0 {
		return nil, ErrNoPose
	}
	if len(h.Pose) != landmark.NumPose {
		return nil, fmt.Errorf("%w: got %d pose points, want %d", ErrNoPose, len(h.Pose), landmark.NumPose)
	}

	var anchor r3.Vec
	for _, i := range anchorIndices {
		anchor = r3.Add(anchor, h.Pose[i].vec())
	}
	anchor = r3.Scale(1/float64(len(anchorIndices)), anchor)

	set := landmark.Set{}
	for i, p := range h.Pose {
		if n.excluded[i] {
			continue
		}
		d := r3.Scale(n.scale, r3.Sub(p.vec(), anchor))
		set[landmark.K(landmark.Pose, i)] = landmark.Point{X: d.X, Y: -d.Y, Z: d.Z}
	}

	n.attach(set, landmark.LeftHand, h.LeftHand, landmark.HandWrist, landmark.LeftWrist)
	n.attach(set, landmark.RightHand, h.RightHand, landmark.HandWrist, landmark.RightWrist)
	n.attach(set, landmark.Face, h.Face, landmark.FaceBase, landmark.Nose)

	for k, p := range set {
		if !p.Finite() {
			return nil, fmt.Errorf("%w: %s", landmark.ErrNonFinite, k)
		}
	}
	return set, nil
}

// attach places a structure's points relative to its base point onto the
// normalized pose landmark at ref. Structures whose reference was excluded
// or whose base is missing are dropped. Points beyond the category size,
// such as the iris points of a refined face mesh, are ignored.
func (n *Normalizer) attach(set landmark.Set, c landmark.Category, pts []Point3D, base, ref int) {
	if len(pts) <= base {
		return
	}
	if len(pts) > c.Size() {
		pts = pts[:c.Size()]
	}
	anchor, ok := set[landmark.K(landmark.Pose, ref)]
	if !ok {
		return
	}
	origin := pts[base].vec()
	for i, p := range pts {
		d := r3.Sub(p.vec(), origin)
		set[landmark.K(c, i)] = landmark.Point{
			X: anchor.X + d.X,
			Y: anchor.Y - d.Y,
			Z: anchor.Z + d.Z,
		}
	}
}
