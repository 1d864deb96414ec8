package skeleton

import "github.com/ayusman/biomech/internal/landmark"

func pose(i int) landmark.Key { return landmark.K(landmark.Pose, i) }

func edge(a, b landmark.Key) Edge { return Edge{Start: a, End: b} }

// DefaultPairs returns the bilateral limb and trunk joints.
func DefaultPairs() []SegmentPair {
	var (
		lShoulder = pose(landmark.LeftShoulder)
		rShoulder = pose(landmark.RightShoulder)
		lElbow    = pose(landmark.LeftElbow)
		rElbow    = pose(landmark.RightElbow)
		lWrist    = pose(landmark.LeftWrist)
		rWrist    = pose(landmark.RightWrist)
		lHip      = pose(landmark.LeftHip)
		rHip      = pose(landmark.RightHip)
		lKnee     = pose(landmark.LeftKnee)
		rKnee     = pose(landmark.RightKnee)
		lAnkle    = pose(landmark.LeftAnkle)
		rAnkle    = pose(landmark.RightAnkle)
		lFoot     = pose(landmark.LeftFootIndex)
		rFoot     = pose(landmark.RightFootIndex)

		lHandBase = landmark.K(landmark.LeftHand, landmark.HandWrist)
		lHandMCP  = landmark.K(landmark.LeftHand, landmark.HandMiddleMCP)
		rHandBase = landmark.K(landmark.RightHand, landmark.HandWrist)
		rHandMCP  = landmark.K(landmark.RightHand, landmark.HandMiddleMCP)
	)

	return []SegmentPair{
		// Right arm
		{ID: "right_elbow", JointName: "Right Elbow", Proximal: edge(rShoulder, rElbow), Distal: edge(rElbow, rWrist), Sequence: XYZ},
		{ID: "right_shoulder", JointName: "Right Shoulder", Proximal: edge(rHip, rShoulder), Distal: edge(rShoulder, rElbow), Sequence: XYZ},
		{ID: "right_wrist", JointName: "Right Wrist", Proximal: edge(rElbow, rWrist), Distal: edge(rHandBase, rHandMCP), Sequence: XYZ},
		// Right leg
		{ID: "right_knee", JointName: "Right Knee", Proximal: edge(rHip, rKnee), Distal: edge(rKnee, rAnkle), Sequence: XYZ},
		{ID: "right_hip", JointName: "Right Hip", Proximal: edge(rShoulder, rHip), Distal: edge(rHip, rKnee), Sequence: XYZ},
		{ID: "right_ankle", JointName: "Right Ankle", Proximal: edge(rKnee, rAnkle), Distal: edge(rAnkle, rFoot), Sequence: XYZ},
		// Left arm
		{ID: "left_elbow", JointName: "Left Elbow", Proximal: edge(lShoulder, lElbow), Distal: edge(lElbow, lWrist), Sequence: XYZ},
		{ID: "left_shoulder", JointName: "Left Shoulder", Proximal: edge(lHip, lShoulder), Distal: edge(lShoulder, lElbow), Sequence: XYZ},
		{ID: "left_wrist", JointName: "Left Wrist", Proximal: edge(lElbow, lWrist), Distal: edge(lHandBase, lHandMCP), Sequence: XYZ},
		// Left leg
		{ID: "left_knee", JointName: "Left Knee", Proximal: edge(lHip, lKnee), Distal: edge(lKnee, lAnkle), Sequence: XYZ},
		{ID: "left_hip", JointName: "Left Hip", Proximal: edge(lShoulder, lHip), Distal: edge(lHip, lKnee), Sequence: XYZ},
		{ID: "left_ankle", JointName: "Left Ankle", Proximal: edge(lKnee, lAnkle), Distal: edge(lAnkle, lFoot), Sequence: XYZ},
		// Trunk: pelvis line against shoulder line
		{ID: "trunk", JointName: "Trunk", Proximal: edge(lHip, rHip), Distal: edge(lShoulder, rShoulder), Sequence: XYZ},
	}
}

// DefaultModel returns the model built from DefaultPairs.
func DefaultModel() *Model {
	m, err := NewModel(DefaultPairs())
	if err != nil {
		panic("skeleton: default model is invalid: " + err.Error())
	}
	return m
}
