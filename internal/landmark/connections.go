package landmark

import (
	"encoding/json"
	"fmt"
)

// Connection is a pair of landmarks drawn as an edge by renderers.
// It carries no kinematic meaning.
type Connection struct {
	From Key
	To   Key
	Kind string // "body" or "hand"
}

// MarshalJSON encodes the connection as ["pose_11", "pose_12", "body"].
func (c Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{c.From.String(), c.To.String(), c.Kind})
}

// UnmarshalJSON decodes the three-element form written by MarshalJSON.
func (c *Connection) UnmarshalJSON(data []byte) error {
	var parts [3]string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	from, err := ParseKey(parts[0])
	if err != nil {
		return err
	}
	to, err := ParseKey(parts[1])
	if err != nil {
		return err
	}
	*c = Connection{From: from, To: to, Kind: parts[2]}
	return nil
}

var bodyEdges = [][2]int{
	{11, 12}, {11, 23}, {12, 24}, {23, 24}, // torso
	{11, 13}, {13, 15}, {12, 14}, {14, 16}, // arms
	{23, 25}, {24, 26}, {25, 27}, {26, 28}, // legs
	{27, 31}, {28, 32}, {31, 29}, {32, 30}, // feet
}

var handEdges = [][2]int{
	{0, 1}, {0, 5}, {9, 13}, {13, 17}, {5, 9}, {0, 17}, // palm
	{1, 2}, {2, 3}, {3, 4}, // thumb
	{5, 6}, {6, 7}, {7, 8}, // index
	{9, 10}, {10, 11}, {11, 12}, // middle
	{13, 14}, {14, 15}, {15, 16}, // ring
	{17, 18}, {18, 19}, {19, 20}, // pinky
}

// Connections returns the body edges followed by the edges of both hands.
func Connections() []Connection {
	out := make([]Connection, 0, len(bodyEdges)+2*len(handEdges))
	for _, e := range bodyEdges {
		out = append(out, Connection{From: K(Pose, e[0]), To: K(Pose, e[1]), Kind: "body"})
	}
	for _, side := range []Category{LeftHand, RightHand} {
		for _, e := range handEdges {
			out = append(out, Connection{From: K(side, e[0]), To: K(side, e[1]), Kind: "hand"})
		}
	}
	return out
}
