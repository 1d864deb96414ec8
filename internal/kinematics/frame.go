// Package kinematics turns landmark positions into joint angles, angular
// velocities and angular accelerations.
package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the shortest segment length accepted by BuildFrame.
const Epsilon = 1e-10

// BuildFrame returns the rigid transform of a segment's local frame: origin
// at start, Z axis pointing from start to end. The boolean is false when the
// two points coincide; the returned matrix is then the identity.
func BuildFrame(start, end r3.Vec) (mgl64.Mat4, bool) {
	d := r3.Sub(end, start)
	length := r3.Norm(d)
	if length < Epsilon || math.IsNaN(length) {
		return mgl64.Ident4(), false
	}
	z := r3.Scale(1/length, d)

	// Helper axis must not be close to parallel with z.
	temp := r3.Vec{Y: 1}
	if math.Abs(z.Y) > 0.9 {
		temp = r3.Vec{X: 1}
	}

	y := r3.Unit(r3.Cross(z, temp))
	x := r3.Cross(y, z)

	return mgl64.Mat4FromCols(
		mgl64.Vec4{x.X, x.Y, x.Z, 0},
		mgl64.Vec4{y.X, y.Y, y.Z, 0},
		mgl64.Vec4{z.X, z.Y, z.Z, 0},
		mgl64.Vec4{start.X, start.Y, start.Z, 1},
	), true
}

// Relative returns inverse(proximal) * distal, the pose of the distal frame
// expressed in the proximal frame.
func Relative(proximal, distal mgl64.Mat4) mgl64.Mat4 {
	return proximal.Inv().Mul4(distal)
}
