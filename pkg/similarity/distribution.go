package similarity

import "github.com/knowledgesnode/backend/pkg/common"

// Bucket counts connections with Min <= strength < Max.
type Bucket struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Distribution buckets connection strengths into the bands used by the
// relink report: [0.9,1], [0.8,0.9), [0.7,0.8) and everything below.
func Distribution(conns []common.Connection) []Bucket {
	buckets := []Bucket{
		{Min: 0.9, Max: 1.0},
		{Min: 0.8, Max: 0.9},
		{Min: 0.7, Max: 0.8},
		{Min: 0, Max: 0.7},
	}
	for _, c := range conns {
		for i := range buckets {
			if c.Strength >= buckets[i].Min {
				buckets[i].Count++
				break
			}
		}
	}
	return buckets
}
