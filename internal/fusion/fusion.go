// Package fusion merges the landmark sets reported by several cameras for
// the same instant into one consensus set.
package fusion

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/biomech/internal/landmark"
)

// Result is a fused landmark set together with its rendering metadata.
type Result struct {
	Points      landmark.Set          `json:"landmarks"`
	Connections []landmark.Connection `json:"connections"`
	Cameras     []string              `json:"cameras"`
}

// structure is a group of landmarks expressed relative to a local base point
// and re-anchored on a fused pose landmark.
type structure struct {
	category  landmark.Category
	base      landmark.Key
	reference landmark.Key
}

var structures = []structure{
	{landmark.LeftHand, landmark.K(landmark.LeftHand, landmark.HandWrist), landmark.K(landmark.Pose, landmark.LeftWrist)},
	{landmark.RightHand, landmark.K(landmark.RightHand, landmark.HandWrist), landmark.K(landmark.Pose, landmark.RightWrist)},
	{landmark.Face, landmark.K(landmark.Face, landmark.FaceBase), landmark.K(landmark.Pose, landmark.Nose)},
}

// Fuse merges per-camera landmark sets keyed by camera ID.
//
// Pose landmarks are averaged per key over the cameras that reported them.
// Hands and the face are fused by averaging each point's offset from the
// structure's base point and adding the mean offset to the fused reference
// landmark. A structure reported by a single camera is copied unchanged.
// The input sets are not modified.
func Fuse(contributions map[string]landmark.Set) Result {
	res := Result{
		Points:      landmark.Set{},
		Connections: landmark.Connections(),
		Cameras:     make([]string, 0, len(contributions)),
	}
	for id := range contributions {
		res.Cameras = append(res.Cameras, id)
	}
	sort.Strings(res.Cameras)

	switch len(contributions) {
	case 0:
		return res
	case 1:
		if pts := contributions[res.Cameras[0]].Clone(); pts != nil {
			res.Points = pts
		}
		return res
	}

	fusePose(res.Points, contributions, res.Cameras)
	for _, s := range structures {
		fuseStructure(res.Points, contributions, res.Cameras, s)
	}
	return res
}

func fusePose(out landmark.Set, contributions map[string]landmark.Set, cameras []string) {
	sums := make(map[landmark.Key]r3.Vec)
	counts := make(map[landmark.Key]int)
	for _, id := range cameras {
		for key, p := range contributions[id] {
			if key.Category != landmark.Pose {
				continue
			}
			sums[key] = r3.Add(sums[key], p.Vec())
			counts[key]++
		}
	}
	for key, sum := range sums {
		out[key] = landmark.FromVec(r3.Scale(1/float64(counts[key]), sum))
	}
}

func fuseStructure(out landmark.Set, contributions map[string]landmark.Set, cameras []string, s structure) {
	// Only cameras that saw the base point can express offsets.
	var withBase []string
	for _, id := range cameras {
		if _, ok := contributions[id][s.base]; ok {
			withBase = append(withBase, id)
		}
	}

	switch len(withBase) {
	case 0:
		return
	case 1:
		for key, p := range contributions[withBase[0]] {
			if key.Category == s.category {
				out[key] = p
			}
		}
		return
	}

	sums := make(map[landmark.Key]r3.Vec)
	counts := make(map[landmark.Key]int)
	var baseSum r3.Vec
	for _, id := range withBase {
		set := contributions[id]
		base := set[s.base].Vec()
		baseSum = r3.Add(baseSum, base)
		for key, p := range set {
			if key.Category != s.category {
				continue
			}
			sums[key] = r3.Add(sums[key], r3.Sub(p.Vec(), base))
			counts[key]++
		}
	}

	anchor := r3.Scale(1/float64(len(withBase)), baseSum)
	if ref, ok := out[s.reference]; ok {
		anchor = ref.Vec()
	}

	for key, sum := range sums {
		offset := r3.Scale(1/float64(counts[key]), sum)
		out[key] = landmark.FromVec(r3.Add(anchor, offset))
	}
}
