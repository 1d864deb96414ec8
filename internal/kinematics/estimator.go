package kinematics

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/ayusman/biomech/internal/skeleton"
)

// minDt is the smallest time step, in seconds, treated as non-zero.
const minDt = 1e-9

// Status explains how a sample was produced.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusMissingLandmark    Status = "missing_landmark"
	StatusDegenerateGeometry Status = "degenerate_geometry"
)

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrMissingLandmark):
		return StatusMissingLandmark
	default:
		return StatusDegenerateGeometry
	}
}

// Sample is one joint's kinematic state at one instant. Angles are in
// degrees, velocities in degrees/s and accelerations in degrees/s².
type Sample struct {
	Timestamp    float64
	Angles       Angles
	Velocity     Angles
	Acceleration Angles
	Status       Status
}

// ZeroSample returns the placeholder reported for a joint without data.
func ZeroSample(seq skeleton.RotationSequence, ts float64) Sample {
	return Sample{
		Timestamp:    ts,
		Angles:       ZeroAngles(seq),
		Velocity:     ZeroAngles(seq),
		Acceleration: ZeroAngles(seq),
		Status:       StatusOK,
	}
}

type sampleJSON struct {
	Time                float64            `json:"time"`
	Angles              map[string]float64 `json:"angles"`
	AngularVelocity     map[string]float64 `json:"angular_velocity"`
	AngularAcceleration map[string]float64 `json:"angular_acceleration"`
	Status              Status             `json:"status,omitempty"`
}

// MarshalJSON encodes the sample with label-keyed angle maps.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Time:                s.Timestamp,
		Angles:              s.Angles.Map(),
		AngularVelocity:     s.Velocity.Map(),
		AngularAcceleration: s.Acceleration.Map(),
		Status:              s.Status,
	})
}

// Estimate computes the latest angles of pair and their finite-difference
// derivatives over the frames in src. It returns false when fewer than two
// frames are available, and the caller keeps the zero placeholder even
// though one frame would be enough for the angles alone.
//
// Velocity is the backward difference of the two newest angle sets divided by
// their time step. Acceleration needs three angle sets: the change between the
// newest velocity and the previous one, divided by the newest time step.
// Derivatives are only taken across frames whose angles resolved; no
// smoothing is applied.
func Estimate(pair skeleton.SegmentPair, src PositionSource) (Sample, bool) {
	n := src.Len()
	if n < 2 {
		return Sample{}, false
	}

	angles := make([]Angles, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		angles[i], errs[i] = JointAngles(pair, src, i)
	}

	sample := ZeroSample(pair.Sequence, src.TimestampAt(n-1))
	sample.Angles = angles[n-1]
	sample.Status = statusOf(errs[n-1])
	if errs[n-1] != nil || errs[n-2] != nil {
		return sample, true
	}

	dt := src.TimestampAt(n-1) - src.TimestampAt(n-2)
	velocity := difference(angles[n-1].Values, angles[n-2].Values, dt)
	sample.Velocity.Values = velocity

	if n < 3 || errs[n-3] != nil {
		return sample, true
	}

	prevDt := src.TimestampAt(n-2) - src.TimestampAt(n-3)
	prevVelocity := difference(angles[n-2].Values, angles[n-3].Values, prevDt)
	sample.Acceleration.Values = difference(velocity, prevVelocity, dt)

	return sample, true
}

// difference returns (a - b) / dt per axis, or zeros when dt is too small.
func difference(a, b [3]float64, dt float64) [3]float64 {
	var out [3]float64
	if math.Abs(dt) < minDt {
		return out
	}
	for i := range out {
		out[i] = (a[i] - b[i]) / dt
	}
	return out
}
