package skeleton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/biomech/internal/landmark"
)

func TestDefaultModel(t *testing.T) {
	m := DefaultModel()
	assert.Equal(t, 13, m.Len())

	p, ok := m.Lookup("right_elbow")
	require.True(t, ok, "right_elbow not found")
	assert.Equal(t, "pose_12:pose_14", p.Proximal.String())
	assert.Equal(t, "pose_14:pose_16", p.Distal.String())

	_, ok = m.Lookup("Left Wrist")
	assert.True(t, ok, "lookup by joint name should succeed")
	_, ok = m.Lookup("neck")
	assert.False(t, ok, "lookup of unknown joint should fail")

	names := m.JointNames()
	assert.Equal(t, "Right Elbow", names[0])
	assert.Equal(t, "Trunk", names[len(names)-1])
}

func TestRotationSequence_AxisLabels(t *testing.T) {
	assert.Equal(t, [3]string{"Flexion", "Abduction", "Rotation"}, XYZ.AxisLabels())
	assert.Equal(t, [3]string{"Plane", "Elevation", "Rotation"}, YXY.AxisLabels())
}

func TestParseRotationSequence(t *testing.T) {
	seq, err := ParseRotationSequence("YXY")
	require.NoError(t, err)
	assert.Equal(t, YXY, seq)

	_, err = ParseRotationSequence("zyx")
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestParseEdge(t *testing.T) {
	e, err := ParseEdge("right_hand_0:right_hand_9")
	require.NoError(t, err)
	assert.Equal(t, landmark.K(landmark.RightHand, 0), e.Start)
	assert.Equal(t, landmark.K(landmark.RightHand, 9), e.End)

	_, err = ParseEdge("pose_12")
	assert.ErrorIs(t, err, ErrInvalidModel, "missing colon")
	_, err = ParseEdge("pose_12:pose_99")
	assert.ErrorIs(t, err, landmark.ErrInvalidKey)
}

func TestNewModel_Validation(t *testing.T) {
	base := DefaultPairs()[0]

	tests := []struct {
		name  string
		pairs []SegmentPair
	}{
		{"empty", nil},
		{"duplicate id", []SegmentPair{base, base}},
		{"zero length edge", []SegmentPair{func() SegmentPair {
			p := base
			p.Distal.End = p.Distal.Start
			return p
		}()}},
		{"bad sequence", []SegmentPair{func() SegmentPair {
			p := base
			p.Sequence = "zxz"
			return p
		}()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.pairs)
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}
