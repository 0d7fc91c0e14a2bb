package model

// PayloadKind tags what a scene node represents so hit-testing does not have
// to inspect geometry types.
type PayloadKind int

const (
	PayloadUnknown PayloadKind = iota
	PayloadMarker
	PayloadArc
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadMarker:
		return "MARKER"
	case PayloadArc:
		return "ARC"
	default:
		return "UNKNOWN"
	}
}

// Payload is the opaque data attached to a scene node for display after a
// raycast hit.
type Payload struct {
	Kind   PayloadKind
	Label  string
	Metric float64
}
