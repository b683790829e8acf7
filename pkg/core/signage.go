// pkg/core/signage.go
package core

// SignKind distinguishes the signage hardware variants.
type SignKind string

const (
	SignSmart    SignKind = "SMART_SIGN"
	SignMotorway SignKind = "SMART_MOTORWAY_SIGN"
)

// SignConfig is the mutable configuration of a roadside sign.
// LaneSpeeds carries one indicated speed per lane ("60", "X", ...);
// Lines carries the free-text rows of a smart sign.
type SignConfig struct {
	LaneSpeeds []string `json:"laneSpeeds,omitempty"`
	Lines      []string `json:"lines,omitempty"`
}

// Equal reports whether two configurations are identical.
func (c SignConfig) Equal(other SignConfig) bool {
	if len(c.LaneSpeeds) != len(other.LaneSpeeds) || len(c.Lines) != len(other.Lines) {
		return false
	}
	for i, v := range c.LaneSpeeds {
		if other.LaneSpeeds[i] != v {
			return false
		}
	}
	for i, v := range c.Lines {
		if other.Lines[i] != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the configuration.
func (c SignConfig) Clone() SignConfig {
	out := SignConfig{}
	if c.LaneSpeeds != nil {
		out.LaneSpeeds = append([]string(nil), c.LaneSpeeds...)
	}
	if c.Lines != nil {
		out.Lines = append([]string(nil), c.Lines...)
	}
	return out
}

// Sign is one roadside display: static position plus mutable configuration.
type Sign struct {
	ID       string     `json:"id"`
	Kind     SignKind   `json:"kind"`
	Position Position3D `json:"position"`
	Config   SignConfig `json:"config"`
}

// StaticMarker is immutable map furniture loaded once per session.
type StaticMarker struct {
	ID       string     `json:"id"`
	Category string     `json:"category"`
	Label    string     `json:"label,omitempty"`
	Position Position3D `json:"position"`
}

// CallMarker is an externally supplied call-with-position marker.
type CallMarker struct {
	ID       string     `json:"id"`
	CaseNum  string     `json:"caseNumber,omitempty"`
	Title    string     `json:"title,omitempty"`
	Position Position3D `json:"position"`
}
