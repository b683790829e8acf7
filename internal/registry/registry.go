// Package registry holds the authoritative in-memory table of currently
// visible map entities. It is mutated only by telemetry events and
// identity-resolution completions; consumers read copies via Snapshot.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cadlive/livemap/pkg/core"
	"github.com/cadlive/livemap/pkg/wire"
)

type entry struct {
	player core.MapPlayer
	seq    uint64 // insertion order, survives upserts
}

// PlayerRegistry caches the latest telemetry frame per ephemeral
// identifier. Latency here is critical to keep up with the tick stream,
// so entries live in a plain mutex-guarded map.
type PlayerRegistry struct {
	mu      sync.Mutex
	players map[string]*entry
	nextSeq uint64

	upserts   uint64
	removals  uint64
	patches   uint64
	patchMiss uint64
}

// New creates an empty PlayerRegistry.
func New() *PlayerRegistry {
	return &PlayerRegistry{
		players: make(map[string]*entry),
	}
}

// Upsert creates a telemetry-only entry for a new identifier, or
// overwrites the telemetry fields of an existing entry. An identity that
// already resolved is preserved.
func (r *PlayerRegistry) Upsert(frame wire.PlayerFrame) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++

	if e, ok := r.players[frame.Identifier]; ok {
		e.player.Position = core.Position3D{X: frame.X, Y: frame.Y, Z: frame.Z}
		e.player.Heading = frame.Heading
		e.player.Vehicle = frame.Vehicle
		e.player.Weapon = frame.Weapon
		e.player.Plate = frame.Plate
		if frame.PlayerName != "" {
			e.player.PlayerName = frame.PlayerName
		}
		e.player.LastUpdated = now
		return
	}

	r.nextSeq++
	r.players[frame.Identifier] = &entry{
		seq: r.nextSeq,
		player: core.MapPlayer{
			Identifier:  frame.Identifier,
			Kind:        core.KindTelemetryOnly,
			Position:    core.Position3D{X: frame.X, Y: frame.Y, Z: frame.Z},
			Heading:     frame.Heading,
			PlayerName:  frame.PlayerName,
			Vehicle:     frame.Vehicle,
			Weapon:      frame.Weapon,
			Plate:       frame.Plate,
			FirstSeen:   now,
			LastUpdated: now,
		},
	}
}

// PatchResolved attaches a resolved identity to an existing entry.
// It is a no-op when the identifier has already left: a resolution that
// completes after removal must not resurrect the entry.
func (r *PlayerRegistry) PatchResolved(identifier string, identity *core.ResolvedIdentity) {
	if identity == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.players[identifier]
	if !ok {
		r.patchMiss++
		return
	}
	e.player.Identity = identity
	e.player.Kind = core.KindResolved
	r.patches++
}

// Remove deletes an entry unconditionally.
func (r *PlayerRegistry) Remove(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[identifier]; ok {
		delete(r.players, identifier)
		r.removals++
	}
}

// Get returns a copy of one entry.
func (r *PlayerRegistry) Get(identifier string) (core.MapPlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[identifier]; ok {
		return e.player, true
	}
	return core.MapPlayer{}, false
}

// Contains reports whether an identifier is present.
func (r *PlayerRegistry) Contains(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[identifier]
	return ok
}

// Len returns the number of entries.
func (r *PlayerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Snapshot returns copies of all entries in insertion order.
func (r *PlayerRegistry) Snapshot() []core.MapPlayer {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*entry, 0, len(r.players))
	for _, e := range r.players {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]core.MapPlayer, len(entries))
	for i, e := range entries {
		out[i] = e.player
	}
	return out
}

// Clear removes every entry. Used only on channel replacement.
func (r *PlayerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = make(map[string]*entry)
}

// Stats reports lifetime operation counts.
type Stats struct {
	Upserts        uint64
	Removals       uint64
	Patches        uint64
	PatchMisses    uint64
	CurrentPlayers int
}

// Stats returns lifetime counters and the current entry count.
func (r *PlayerRegistry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Upserts:        r.upserts,
		Removals:       r.removals,
		Patches:        r.patches,
		PatchMisses:    r.patchMiss,
		CurrentPlayers: len(r.players),
	}
}
