package kinematics

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/biomech/internal/landmark"
	"github.com/ayusman/biomech/internal/skeleton"
	"github.com/ayusman/biomech/internal/window"
)

func pose(i int) landmark.Key { return landmark.K(landmark.Pose, i) }

var elbowPair = skeleton.SegmentPair{
	ID:        "right_elbow",
	JointName: "Right Elbow",
	Proximal:  skeleton.Edge{Start: pose(12), End: pose(14)},
	Distal:    skeleton.Edge{Start: pose(14), End: pose(16)},
	Sequence:  skeleton.XYZ,
}

// bentArm places the forearm at theta degrees from the upper arm about X.
func bentArm(theta float64) landmark.Set {
	rad := mgl64.DegToRad(theta)
	return landmark.Set{
		pose(12): {X: 0, Y: 0, Z: 0},
		pose(14): {X: 0, Y: 0, Z: 1},
		pose(16): {X: math.Sin(rad), Y: 0, Z: 1 + math.Cos(rad)},
	}
}

func TestBuildFrame_Orthonormal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		start := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		end := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}

		m, ok := BuildFrame(start, end)
		require.True(t, ok)

		cols := [3]r3.Vec{}
		for c := 0; c < 3; c++ {
			cols[c] = r3.Vec{X: m.At(0, c), Y: m.At(1, c), Z: m.At(2, c)}
		}
		for a := 0; a < 3; a++ {
			assert.InDelta(t, 1, r3.Norm(cols[a]), 1e-6)
			for b := a + 1; b < 3; b++ {
				assert.InDelta(t, 0, r3.Dot(cols[a], cols[b]), 1e-6)
			}
		}
		assert.InDelta(t, 1, mgl64.Mat3{
			cols[0].X, cols[0].Y, cols[0].Z,
			cols[1].X, cols[1].Y, cols[1].Z,
			cols[2].X, cols[2].Y, cols[2].Z,
		}.Det(), 1e-6, "frame must be right-handed")

		dir := r3.Unit(r3.Sub(end, start))
		assert.InDelta(t, dir.X, cols[2].X, 1e-9)
		assert.InDelta(t, dir.Y, cols[2].Y, 1e-9)
		assert.InDelta(t, dir.Z, cols[2].Z, 1e-9)
		assert.Equal(t, start.X, m.At(0, 3))
		assert.Equal(t, start.Y, m.At(1, 3))
		assert.Equal(t, start.Z, m.At(2, 3))
	}
}

func TestBuildFrame_VerticalSegment(t *testing.T) {
	m, ok := BuildFrame(r3.Vec{}, r3.Vec{Y: 2})
	require.True(t, ok)
	// z is parallel to world Y, so the X helper axis is used.
	assert.InDelta(t, 1, m.At(1, 2), 1e-12)
	y := r3.Vec{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
	assert.InDelta(t, 1, r3.Norm(y), 1e-9)
}

func TestBuildFrame_Degenerate(t *testing.T) {
	p := r3.Vec{X: 0.3, Y: -1, Z: 2}
	m, ok := BuildFrame(p, p)
	assert.False(t, ok)
	assert.Equal(t, mgl64.Ident4(), m)

	m, ok = BuildFrame(p, r3.Add(p, r3.Vec{X: 1e-12}))
	assert.False(t, ok)
	assert.Equal(t, mgl64.Ident4(), m)
}

func TestRelative_IdentityRoundTrip(t *testing.T) {
	f, ok := BuildFrame(r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: -1, Y: 0.5, Z: 4})
	require.True(t, ok)

	rel := Relative(f, f)
	for _, seq := range []skeleton.RotationSequence{skeleton.XYZ, skeleton.YXY} {
		a := Decompose(rel, seq)
		for i := range a {
			assert.InDelta(t, 0, a[i], 1e-6)
		}
	}
	assert.True(t, rel.ApproxEqualThreshold(mgl64.Ident4(), 1e-9))
}

func TestDecompose_XYZ(t *testing.T) {
	tests := []struct {
		name string
		m    mgl64.Mat4
		want [3]float64
	}{
		{"identity", mgl64.Ident4(), [3]float64{0, 0, 0}},
		{"about x", mgl64.HomogRotate3DX(mgl64.DegToRad(30)), [3]float64{30, 0, 0}},
		{"about y", mgl64.HomogRotate3DY(mgl64.DegToRad(20)), [3]float64{0, 20, 0}},
		{"about z", mgl64.HomogRotate3DZ(mgl64.DegToRad(-45)), [3]float64{0, 0, -45}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decompose(tt.m, skeleton.XYZ)
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestDecompose_YXY(t *testing.T) {
	tests := []struct {
		name string
		m    mgl64.Mat4
		want [3]float64
	}{
		{"identity", mgl64.Ident4(), [3]float64{0, 0, 0}},
		// Elevation is the angle between the two Y axes.
		{"elevation only", mgl64.HomogRotate3DX(mgl64.DegToRad(40)), [3]float64{180, 40, 180}},
		{"twist about y", mgl64.HomogRotate3DY(mgl64.DegToRad(30)), [3]float64{0, 0, 30}},
		{"near identity", mgl64.HomogRotate3DX(1e-8), [3]float64{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decompose(tt.m, skeleton.YXY)
			for i := range got {
				assert.False(t, math.IsNaN(got[i]))
				assert.InDelta(t, tt.want[i], got[i], 1e-6, "axis %d", i)
			}
		})
	}
}

func TestJointAngles_YXYCoincidentSegments(t *testing.T) {
	pair := skeleton.SegmentPair{
		ID:        "right_shoulder",
		JointName: "Right Shoulder",
		Proximal:  skeleton.Edge{Start: pose(12), End: pose(14)},
		Distal:    skeleton.Edge{Start: pose(12), End: pose(14)},
		Sequence:  skeleton.YXY,
	}

	for _, set := range []landmark.Set{
		{pose(12): {X: 0.1, Y: 0.4, Z: -0.2}, pose(14): {X: 0.3, Y: 0.1, Z: 0.05}},
		{pose(12): {}, pose(14): {Y: -1}},
	} {
		s := window.New(window.DefaultSize)
		s.Append(landmark.Frame{Timestamp: 0, Points: set})

		got, err := JointAngles(pair, s, 0)
		require.NoError(t, err)
		for i, v := range got.Values {
			assert.InDelta(t, 0, v, 1e-6, "axis %d", i)
		}
	}
}

func TestDecompose_ClampsRounding(t *testing.T) {
	m := mgl64.Ident4()
	m.Set(2, 0, -1.0000000001)
	got := Decompose(m, skeleton.XYZ)
	assert.InDelta(t, 90, got[1], 1e-6)
	for _, v := range got {
		assert.False(t, math.IsNaN(v))
	}
}

func TestAngles_Map(t *testing.T) {
	a := ZeroAngles(skeleton.YXY)
	a.Values = [3]float64{1, 2, 3}
	assert.Equal(t, map[string]float64{"Plane": 1, "Elevation": 2, "Rotation": 3}, a.Map())
}

func TestJointAngles(t *testing.T) {
	w := window.New(5)
	w.Append(landmark.Frame{Timestamp: 0, Points: bentArm(35)})

	a, err := JointAngles(elbowPair, w, 0)
	require.NoError(t, err)
	assert.Equal(t, [3]string{"Flexion", "Abduction", "Rotation"}, a.Labels)
	assert.InDelta(t, 35, a.Values[0], 1e-9)
	assert.InDelta(t, 0, a.Values[1], 1e-9)
	assert.InDelta(t, 0, a.Values[2], 1e-9)
}

func TestJointAngles_Errors(t *testing.T) {
	t.Run("missing landmark", func(t *testing.T) {
		w := window.New(5)
		pts := bentArm(10)
		delete(pts, pose(16))
		w.Append(landmark.Frame{Timestamp: 0, Points: pts})

		a, err := JointAngles(elbowPair, w, 0)
		assert.True(t, errors.Is(err, ErrMissingLandmark))
		assert.Contains(t, err.Error(), "pose_16")
		assert.Equal(t, [3]float64{}, a.Values)
	})

	t.Run("coincident points", func(t *testing.T) {
		w := window.New(5)
		pts := bentArm(10)
		pts[pose(16)] = pts[pose(14)]
		w.Append(landmark.Frame{Timestamp: 0, Points: pts})

		a, err := JointAngles(elbowPair, w, 0)
		assert.True(t, errors.Is(err, ErrDegenerateGeometry))
		assert.Equal(t, [3]float64{}, a.Values)
		for _, v := range a.Values {
			assert.False(t, math.IsNaN(v))
		}
	})
}

func TestEstimate_NeedsTwoFrames(t *testing.T) {
	w := window.New(5)
	_, ok := Estimate(elbowPair, w)
	assert.False(t, ok)

	w.Append(landmark.Frame{Timestamp: 0, Points: bentArm(0)})
	_, ok = Estimate(elbowPair, w)
	assert.False(t, ok)
}

func TestEstimate_Derivatives(t *testing.T) {
	w := window.New(5)
	w.Append(landmark.Frame{Timestamp: 0, Points: bentArm(0)})
	w.Append(landmark.Frame{Timestamp: 1, Points: bentArm(10)})

	s, ok := Estimate(elbowPair, w)
	require.True(t, ok)
	assert.InDelta(t, 10, s.Angles.Values[0], 1e-6)
	assert.InDelta(t, 10, s.Velocity.Values[0], 1e-6)
	assert.Equal(t, [3]float64{}, s.Acceleration.Values, "acceleration needs three frames")

	w.Append(landmark.Frame{Timestamp: 2, Points: bentArm(25)})
	s, ok = Estimate(elbowPair, w)
	require.True(t, ok)
	assert.Equal(t, StatusOK, s.Status)
	assert.Equal(t, 2.0, s.Timestamp)
	assert.InDelta(t, 25, s.Angles.Values[0], 1e-6)
	assert.InDelta(t, 15, s.Velocity.Values[0], 1e-6)
	assert.InDelta(t, 5, s.Acceleration.Values[0], 1e-6)
	assert.InDelta(t, 0, s.Velocity.Values[1], 1e-6)
	assert.InDelta(t, 0, s.Acceleration.Values[2], 1e-6)
	assert.Equal(t, s.Angles.Labels, s.Velocity.Labels)
}

func TestEstimate_UnevenSteps(t *testing.T) {
	w := window.New(5)
	w.Append(landmark.Frame{Timestamp: 0, Points: bentArm(0)})
	w.Append(landmark.Frame{Timestamp: 0.5, Points: bentArm(10)})
	w.Append(landmark.Frame{Timestamp: 1.5, Points: bentArm(30)})

	s, ok := Estimate(elbowPair, w)
	require.True(t, ok)
	assert.InDelta(t, 20, s.Velocity.Values[0], 1e-6)
	// (20 - 20) / 1.0
	assert.InDelta(t, 0, s.Acceleration.Values[0], 1e-6)
}

func TestEstimate_MissingLatest(t *testing.T) {
	w := window.New(5)
	w.Append(landmark.Frame{Timestamp: 0, Points: bentArm(0)})
	w.Append(landmark.Frame{Timestamp: 1, Points: bentArm(10)})
	pts := bentArm(20)
	delete(pts, pose(14))
	w.Append(landmark.Frame{Timestamp: 2, Points: pts})

	s, ok := Estimate(elbowPair, w)
	require.True(t, ok)
	assert.Equal(t, StatusMissingLandmark, s.Status)
	assert.Equal(t, [3]float64{}, s.Angles.Values)
	assert.Equal(t, [3]float64{}, s.Velocity.Values)
	assert.Equal(t, [3]float64{}, s.Acceleration.Values)
}

func TestEstimate_GapBeforeLatest(t *testing.T) {
	w := window.New(5)
	pts := bentArm(0)
	delete(pts, pose(16))
	w.Append(landmark.Frame{Timestamp: 0, Points: pts})
	w.Append(landmark.Frame{Timestamp: 1, Points: bentArm(10)})
	w.Append(landmark.Frame{Timestamp: 2, Points: bentArm(30)})

	s, ok := Estimate(elbowPair, w)
	require.True(t, ok)
	assert.InDelta(t, 20, s.Velocity.Values[0], 1e-6)
	assert.Equal(t, [3]float64{}, s.Acceleration.Values)
}

func TestSample_MarshalJSON(t *testing.T) {
	s := ZeroSample(skeleton.XYZ, 1.5)
	s.Angles.Values = [3]float64{10, 0, 0}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1.5, got["time"])
	assert.Equal(t, map[string]any{"Flexion": 10.0, "Abduction": 0.0, "Rotation": 0.0}, got["angles"])
	assert.Contains(t, got, "angular_velocity")
	assert.Contains(t, got, "angular_acceleration")
	assert.Equal(t, "ok", got["status"])
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	_, ok := h.Latest()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		h.Add(ZeroSample(skeleton.XYZ, float64(i)))
	}
	assert.Equal(t, 3, h.Len())

	all := h.All()
	require.Len(t, all, 3)
	assert.Equal(t, 2.0, all[0].Timestamp)
	assert.Equal(t, 4.0, all[2].Timestamp)

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 4.0, latest.Timestamp)

	prev, ok := h.Previous(3)
	require.True(t, ok)
	assert.Equal(t, 2.0, prev.Timestamp)
	_, ok = h.Previous(4)
	assert.False(t, ok)

	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.All())
}

func TestNewHistory_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultHistoryCapacity, NewHistory(0).Capacity())
}
