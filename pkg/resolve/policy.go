package resolve

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a concept's description and confidence
// when it is extracted again.
type Policy int

const (
	// KeepFirst leaves the stored record untouched.
	KeepFirst Policy = iota
	// KeepLatest overwrites confidence, and description when the new one
	// is not empty.
	KeepLatest
	// KeepMaxConfidence raises confidence when the new value is higher.
	// The description is kept.
	KeepMaxConfidence
)

func (p Policy) String() string {
	switch p {
	case KeepLatest:
		return "keep_latest"
	case KeepMaxConfidence:
		return "keep_max_confidence"
	default:
		return "keep_first"
	}
}

// ParsePolicy reads the RESIGHT_POLICY setting. An empty value is KeepFirst.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep_first", "first":
		return KeepFirst, nil
	case "keep_latest", "latest":
		return KeepLatest, nil
	case "keep_max_confidence", "max", "max_confidence":
		return KeepMaxConfidence, nil
	default:
		return KeepFirst, fmt.Errorf("unknown re-sight policy %q", s)
	}
}

// apply returns the attributes to store for a re-sighted concept and
// whether anything changed.
func (p Policy) apply(oldDesc string, oldConf float64, newDesc string, newConf float64) (string, float64, bool) {
	switch p {
	case KeepLatest:
		desc := oldDesc
		if newDesc != "" {
			desc = newDesc
		}
		return desc, newConf, desc != oldDesc || newConf != oldConf
	case KeepMaxConfidence:
		if newConf > oldConf {
			return oldDesc, newConf, true
		}
		return oldDesc, oldConf, false
	default:
		return oldDesc, oldConf, false
	}
}
