package detector

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/biomech/internal/landmark"
)

const epsilon = 1e-9

func key(c landmark.Category, i int) landmark.Key {
	return landmark.K(c, i)
}

func defaultExcluded() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 17, 18, 19, 20, 21, 22}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(ReferenceHeight, defaultExcluded())

	t.Run("torso centered at origin", func(t *testing.T) {
		set, err := n.Normalize(StandingPose())
		require.NoError(t, err)

		var sx, sy, sz float64
		for _, i := range anchorIndices {
			p := set[key(landmark.Pose, i)]
			sx += p.X
			sy += p.Y
			sz += p.Z
		}
		assert.InDelta(t, 0, sx, epsilon)
		assert.InDelta(t, 0, sy, epsilon)
		assert.InDelta(t, 0, sz, epsilon)
	})

	t.Run("y axis points up", func(t *testing.T) {
		set, err := n.Normalize(StandingPose())
		require.NoError(t, err)

		nose := set[key(landmark.Pose, landmark.Nose)]
		ankle := set[key(landmark.Pose, landmark.LeftAnkle)]
		assert.Greater(t, nose.Y, ankle.Y, "nose should be above ankle")
		assert.InDelta(t, 0.27, nose.Y, epsilon)
	})

	t.Run("excluded indices dropped", func(t *testing.T) {
		set, err := n.Normalize(StandingPose())
		require.NoError(t, err)

		for _, i := range defaultExcluded() {
			assert.NotContains(t, set, key(landmark.Pose, i), "pose_%d should be excluded", i)
		}
		for _, i := range []int{0, 11, 16, 24, 32} {
			assert.Contains(t, set, key(landmark.Pose, i), "pose_%d missing", i)
		}
	})

	t.Run("hands anchored on wrists", func(t *testing.T) {
		h := StandingPose()
		set, err := n.Normalize(h)
		require.NoError(t, err)

		wrist := set[key(landmark.Pose, landmark.RightWrist)]
		assert.Equal(t, wrist, set[key(landmark.RightHand, 0)], "right_hand_0 should sit on the wrist")

		tip := set[key(landmark.RightHand, 12)]
		dx := h.RightHand[12].X - h.RightHand[0].X
		dy := h.RightHand[12].Y - h.RightHand[0].Y
		assert.InDelta(t, dx, tip.X-wrist.X, epsilon)
		assert.InDelta(t, -dy, tip.Y-wrist.Y, epsilon)

		assert.Equal(t, landmark.NumHand, countCategory(set, landmark.LeftHand))
	})

	t.Run("face anchored on nose", func(t *testing.T) {
		h := StandingPose()
		h.Face = []Point3D{{X: 0.49, Y: 0.17}, {X: 0.5, Y: 0.19, Z: -0.01}, {X: 0.52, Y: 0.2}}
		set, err := n.Normalize(h)
		require.NoError(t, err)

		assert.Equal(t, set[key(landmark.Pose, landmark.Nose)], set[key(landmark.Face, 1)])
		assert.Equal(t, 3, countCategory(set, landmark.Face))
	})

	t.Run("refined face mesh keeps base mesh", func(t *testing.T) {
		h := StandingPose()
		h.Face = make([]Point3D, 478)
		for i := range h.Face {
			h.Face[i] = Point3D{X: 0.5 + float64(i)*1e-4, Y: 0.2}
		}
		set, err := n.Normalize(h)
		require.NoError(t, err)

		assert.Equal(t, landmark.NumFace, countCategory(set, landmark.Face))
		assert.NotContains(t, set, key(landmark.Face, landmark.NumFace), "iris point kept past the face mesh")
	})

	t.Run("missing reference drops structure", func(t *testing.T) {
		excl := append(defaultExcluded(), landmark.RightWrist)
		set, err := NewNormalizer(ReferenceHeight, excl).Normalize(StandingPose())
		require.NoError(t, err)

		assert.False(t, set.Has(landmark.RightHand), "right hand present without right wrist")
		assert.True(t, set.Has(landmark.LeftHand), "left hand missing")
	})

	t.Run("keys are valid", func(t *testing.T) {
		set, err := n.Normalize(StandingPose())
		require.NoError(t, err)
		for k := range set {
			assert.True(t, k.Valid(), "invalid key %v", k)
		}
	})
}

func TestNormalizer_Scale(t *testing.T) {
	base, err := NewNormalizer(ReferenceHeight, nil).Normalize(StandingPose())
	require.NoError(t, err)
	tall, err := NewNormalizer(2*ReferenceHeight, nil).Normalize(StandingPose())
	require.NoError(t, err)

	k := key(landmark.Pose, landmark.LeftAnkle)
	assert.InDelta(t, 2*base[k].Y, tall[k].Y, epsilon)
	assert.Contains(t, base, key(landmark.Pose, 5), "nothing excluded, pose_5 should be present")
}

func TestNormalizer_Errors(t *testing.T) {
	n := NewNormalizer(1.62, defaultExcluded())

	tests := []struct {
		name string
		h    *Holistic
		want error
	}{
		{"nil", nil, ErrNoPose},
		{"no pose", &Holistic{LeftHand: make([]Point3D, 21)}, ErrNoPose},
		{"truncated pose", &Holistic{Pose: make([]Point3D, 20)}, ErrNoPose},
		{"non-finite", func() *Holistic {
			h := StandingPose()
			h.Pose[14].X = math.NaN()
			return h
		}(), landmark.ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.h)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Run("holistic", func(t *testing.T) {
		h, err := decodeResponse([]byte(`{"pose":[{"x":0.1,"y":0.2,"z":0.3}],"left_hand":[],"right_hand":null,"face":[]}` + "\n"))
		require.NoError(t, err)
		require.Len(t, h.Pose, 1)
		assert.Equal(t, 0.2, h.Pose[0].Y)
		assert.Empty(t, h.RightHand)
	})

	t.Run("service error", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"error":"bad image"}`))
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestNewMediaPipeDetector(t *testing.T) {
	t.Run("missing script", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Script = filepath.Join(t.TempDir(), "missing.py")
		_, err := NewMediaPipeDetector(cfg)
		assert.ErrorIs(t, err, ErrScriptNotFound)
	})

	t.Run("explicit script", func(t *testing.T) {
		script := filepath.Join(t.TempDir(), scriptName)
		require.NoError(t, os.WriteFile(script, []byte("print()\n"), 0o644))
		cfg := DefaultConfig()
		cfg.Script = script
		cfg.IdleTimeout = 0

		d, err := NewMediaPipeDetector(cfg)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().IdleTimeout, d.config.IdleTimeout)
		assert.NoError(t, d.Close(), "Close() before start")
	})
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()

	h, err := m.Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, h.Pose)

	m.SetResult(StandingPose())
	h, err = m.Detect(nil)
	require.NoError(t, err)
	assert.Len(t, h.Pose, landmark.NumPose)

	want := errors.New("camera unplugged")
	m.SetError(want)
	_, err = m.Detect(nil)
	assert.ErrorIs(t, err, want)

	assert.Equal(t, 3, m.Calls())
}

func countCategory(set landmark.Set, c landmark.Category) int {
	n := 0
	for k := range set {
		if k.Category == c {
			n++
		}
	}
	return n
}
