// Package landmarktest provides synthetic landmark sets for tests.
package landmarktest

import (
	"math"

	"github.com/ayusman/biomech/internal/landmark"
)

func pose(i int) landmark.Key { return landmark.K(landmark.Pose, i) }

// standing holds a body-centered standing pose, Y up, in meters.
var standing = map[int]landmark.Point{
	landmark.Nose:           {X: 0, Y: 0.62, Z: 0.05},
	landmark.LeftShoulder:   {X: 0.19, Y: 0.36, Z: 0},
	landmark.RightShoulder:  {X: -0.19, Y: 0.36, Z: 0},
	landmark.LeftElbow:      {X: 0.24, Y: 0.08, Z: 0.03},
	landmark.RightElbow:     {X: -0.24, Y: 0.08, Z: 0.03},
	landmark.LeftWrist:      {X: 0.26, Y: -0.16, Z: 0.12},
	landmark.RightWrist:     {X: -0.26, Y: -0.16, Z: 0.12},
	landmark.LeftHip:        {X: 0.11, Y: -0.36, Z: 0},
	landmark.RightHip:       {X: -0.11, Y: -0.36, Z: 0},
	landmark.LeftKnee:       {X: 0.12, Y: -0.78, Z: 0.04},
	landmark.RightKnee:      {X: -0.12, Y: -0.78, Z: 0.04},
	landmark.LeftAnkle:      {X: 0.12, Y: -1.18, Z: 0},
	landmark.RightAnkle:     {X: -0.12, Y: -1.18, Z: 0},
	landmark.LeftHeel:       {X: 0.12, Y: -1.23, Z: -0.05},
	landmark.RightHeel:      {X: -0.12, Y: -1.23, Z: -0.05},
	landmark.LeftFootIndex:  {X: 0.14, Y: -1.26, Z: 0.13},
	landmark.RightFootIndex: {X: -0.14, Y: -1.26, Z: 0.13},
}

// Body returns a complete standing body: anatomical pose landmarks, both
// hands anchored on the wrists and a small face patch anchored on the nose.
func Body() landmark.Set {
	set := landmark.Set{}
	for i, p := range standing {
		set[pose(i)] = p
	}
	for k, p := range Hand(landmark.LeftHand, standing[landmark.LeftWrist]) {
		set[k] = p
	}
	for k, p := range Hand(landmark.RightHand, standing[landmark.RightWrist]) {
		set[k] = p
	}
	for k, p := range Face(standing[landmark.Nose]) {
		set[k] = p
	}
	return set
}

// Hand returns 21 hand landmarks with the wrist landmark at wrist. Fingers
// hang downwards and spread along X.
func Hand(side landmark.Category, wrist landmark.Point) landmark.Set {
	sign := 1.0
	if side == landmark.RightHand {
		sign = -1
	}
	set := landmark.Set{landmark.K(side, landmark.HandWrist): wrist}
	for i := 1; i < landmark.NumHand; i++ {
		finger := float64((i - 1) / 4)
		joint := float64((i-1)%4 + 1)
		set[landmark.K(side, i)] = landmark.Point{
			X: wrist.X + sign*0.012*(finger-2),
			Y: wrist.Y - 0.02 - 0.02*joint,
			Z: wrist.Z + 0.005*joint,
		}
	}
	return set
}

// Face returns a handful of face mesh landmarks around base, the position of
// face landmark 1.
func Face(base landmark.Point) landmark.Set {
	offsets := map[int]landmark.Point{
		1:   {},
		4:   {Y: -0.01, Z: 0.01},
		33:  {X: 0.035, Y: 0.03, Z: -0.02},
		263: {X: -0.035, Y: 0.03, Z: -0.02},
		61:  {X: 0.025, Y: -0.04, Z: -0.01},
		291: {X: -0.025, Y: -0.04, Z: -0.01},
		152: {Y: -0.09, Z: -0.02},
	}
	set := landmark.Set{}
	for i, o := range offsets {
		set[landmark.K(landmark.Face, i)] = landmark.Point{X: base.X + o.X, Y: base.Y + o.Y, Z: base.Z + o.Z}
	}
	return set
}

// BentArm returns right shoulder, elbow and wrist landmarks with the forearm
// rotated theta degrees from the upper arm about the X axis. Evaluated with
// the right elbow pair, the flexion angle equals theta and the other two
// angles are zero.
func BentArm(theta float64) landmark.Set {
	rad := theta * math.Pi / 180
	return landmark.Set{
		pose(landmark.RightShoulder): {X: 0, Y: 0, Z: 0},
		pose(landmark.RightElbow):    {X: 0, Y: 0, Z: 1},
		pose(landmark.RightWrist):    {X: math.Sin(rad), Y: 0, Z: 1 + math.Cos(rad)},
	}
}

// Translate returns a copy of set moved by (dx, dy, dz).
func Translate(set landmark.Set, dx, dy, dz float64) landmark.Set {
	out := make(landmark.Set, len(set))
	for k, p := range set {
		out[k] = landmark.Point{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
	}
	return out
}

// Without returns a copy of set lacking the given keys.
func Without(set landmark.Set, keys ...landmark.Key) landmark.Set {
	out := set.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
