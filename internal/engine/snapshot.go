package engine

import (
	"github.com/ayusman/biomech/internal/kinematics"
	"github.com/ayusman/biomech/internal/landmark"
)

// JointState is the published kinematic state of one joint. Each map holds
// the three axis labels of the joint's rotation sequence.
type JointState struct {
	Angles        map[string]float64 `json:"angles"`
	Velocities    map[string]float64 `json:"velocities"`
	Accelerations map[string]float64 `json:"accelerations"`
	Status        kinematics.Status  `json:"status,omitempty"`
}

func stateOf(s kinematics.Sample) JointState {
	return JointState{
		Angles:        s.Angles.Map(),
		Velocities:    s.Velocity.Map(),
		Accelerations: s.Acceleration.Map(),
		Status:        s.Status,
	}
}

func (j JointState) clone() JointState {
	return JointState{
		Angles:        cloneMap(j.Angles),
		Velocities:    cloneMap(j.Velocities),
		Accelerations: cloneMap(j.Accelerations),
		Status:        j.Status,
	}
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is the engine output for one tick. Joints always holds every
// joint name of the segment model.
type Snapshot struct {
	Timestamp float64               `json:"timestamp"`
	Cameras   []string              `json:"cameras"`
	Joints    map[string]JointState `json:"joints"`
	Landmarks landmark.Set          `json:"landmarks"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Timestamp: s.Timestamp,
		Cameras:   append([]string(nil), s.Cameras...),
		Joints:    make(map[string]JointState, len(s.Joints)),
		Landmarks: s.Landmarks.Clone(),
	}
	for name, j := range s.Joints {
		out.Joints[name] = j.clone()
	}
	return out
}
