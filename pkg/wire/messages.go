package wire

import (
	json "github.com/goccy/go-json"

	"github.com/cadlive/livemap/pkg/core"
)

// Topic constants matching the game-server plugin protocol.
const (
	TopicPlayerData   = "player-data"
	TopicPlayerLeft   = "player-left"
	TopicSignageState = "signage-initial-state"
	TopicSignageEdit  = "signage-update"
)

// Lifecycle pseudo-topics reported by the transport, never carried on
// the wire as envelopes.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect-error"
)

// Envelope wraps all messages exchanged over the duplex channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PlayerFrame is one inbound telemetry tick for one in-game entity.
// Identifier is the session-scoped key; Identifiers carries every
// scheme-prefixed identity string the plugin saw for the entity.
type PlayerFrame struct {
	Identifier  string   `json:"identifier"`
	Identifiers []string `json:"identifiers,omitempty"`
	PlayerName  string   `json:"name,omitempty"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Z           float64  `json:"z"`
	Heading     float64  `json:"heading"`
	Vehicle     string   `json:"vehicle,omitempty"`
	Weapon      string   `json:"weapon,omitempty"`
	Plate       string   `json:"licensePlate,omitempty"`
}

// PlayerLeft announces that an entity is no longer present.
type PlayerLeft struct {
	Identifier string `json:"identifier"`
}

// SignState is the authoritative state of one sign, sent in a batch
// after connect and again whenever the plugin re-syncs.
type SignState struct {
	ID       string          `json:"id"`
	Kind     core.SignKind   `json:"kind"`
	Position core.Position3D `json:"position"`
	Config   core.SignConfig `json:"config"`
}

// SignUpdate is an outbound operator-initiated configuration edit.
type SignUpdate struct {
	ID     string          `json:"id"`
	Config core.SignConfig `json:"config"`
}
