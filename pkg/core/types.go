// pkg/core/types.go
package core

// Position3D represents a game-world coordinate without GIS dependencies
type Position3D struct {
	X float64 `json:"x"` // easting
	Y float64 `json:"y"` // northing
	Z float64 `json:"z"` // elevation, ignored by projection
}

// MapPoint is a projected rendering-surface coordinate
type MapPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerKind tags a registry entry as telemetry-only or resolved.
type PlayerKind string

const (
	KindTelemetryOnly PlayerKind = "telemetry-only"
	KindResolved      PlayerKind = "resolved"
)

// ConnectionState is the lifecycle state of the telemetry connection
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateErrored      ConnectionState = "ERRORED"
)
