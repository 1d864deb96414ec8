package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ayusman/biomech/internal/skeleton"
)

// Angles is a labelled triple of joint angles, velocities or accelerations.
type Angles struct {
	Labels [3]string
	Values [3]float64
}

// ZeroAngles returns an all-zero triple labelled for seq.
func ZeroAngles(seq skeleton.RotationSequence) Angles {
	return Angles{Labels: seq.AxisLabels()}
}

// Map returns the triple as label to value.
func (a Angles) Map() map[string]float64 {
	m := make(map[string]float64, 3)
	for i, label := range a.Labels {
		m[label] = a.Values[i]
	}
	return m
}

// gimbalEpsilon is how close |R[1,1]| may come to 1 before a yxy
// decomposition is treated as singular.
const gimbalEpsilon = 1e-9

// Decompose extracts three Euler angles, in degrees, from the rotation block
// of m using the given sequence. Values that cannot be computed are zero.
func Decompose(m mgl64.Mat4, seq skeleton.RotationSequence) [3]float64 {
	var a [3]float64

	switch seq {
	case skeleton.XYZ:
		a[1] = math.Asin(clamp(-m.At(2, 0)))
		a[0] = math.Atan2(m.At(2, 1), m.At(2, 2))
		a[2] = math.Atan2(m.At(1, 0), m.At(0, 0))
	case skeleton.YXY:
		if 1-math.Abs(m.At(1, 1)) < gimbalEpsilon {
			// Both Y axes are parallel, so plane and rotation are about the
			// same axis. The whole twist is reported as rotation.
			if m.At(1, 1) < 0 {
				a[1] = math.Pi
			}
			a[2] = math.Atan2(m.At(0, 2), m.At(0, 0))
			break
		}
		a[1] = math.Acos(clamp(m.At(1, 1)))
		a[0] = math.Atan2(m.At(0, 1), -m.At(2, 1))
		a[2] = math.Atan2(m.At(1, 0), m.At(1, 2))
	}

	for i := range a {
		if math.IsNaN(a[i]) || math.IsInf(a[i], 0) {
			a[i] = 0
			continue
		}
		a[i] = mgl64.RadToDeg(a[i])
	}
	return a
}

// clamp keeps asin/acos arguments inside [-1, 1] despite rounding.
func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
