// Package aggregator merges registry entries, signage, static furniture
// and externally supplied call markers into one renderable set. It
// performs no I/O; placement runs through the coordinate projector.
package aggregator

import (
	"sync"

	"github.com/cadlive/livemap/internal/projection"
	"github.com/cadlive/livemap/internal/signage"
	"github.com/cadlive/livemap/pkg/core"
)

// PlayerSource supplies registry snapshots.
type PlayerSource interface {
	Snapshot() []core.MapPlayer
}

// SignSource supplies signage snapshots.
type SignSource interface {
	Snapshot() []signage.SignView
}

// PlayerMarker is a placed registry entry.
type PlayerMarker struct {
	Player core.MapPlayer `json:"player"`
	Point  core.MapPoint  `json:"point"`
}

// CallPin is a placed call-with-position marker.
type CallPin struct {
	Call  core.CallMarker `json:"call"`
	Point core.MapPoint   `json:"point"`
}

// FurnitureMarker is a placed static catalogue entry.
type FurnitureMarker struct {
	Marker core.StaticMarker `json:"marker"`
	Point  core.MapPoint     `json:"point"`
}

// SignMarker is a placed sign with its rendered state.
type SignMarker struct {
	Sign  signage.SignView `json:"sign"`
	Point core.MapPoint    `json:"point"`
}

// MarkerSet is the full renderable collection, partitioned. Ordering
// within each partition is insertion-stable and keys are unique.
type MarkerSet struct {
	Units     []PlayerMarker    `json:"units"`
	Players   []PlayerMarker    `json:"players"`
	Calls     []CallPin         `json:"calls"`
	Furniture []FurnitureMarker `json:"furniture"`
	Signage   []SignMarker      `json:"signage"`
}

// Aggregator recomputes the renderable set on demand. Mutating sources
// call Invalidate; Snapshot rebuilds lazily so a burst of telemetry
// ticks costs one recompute.
type Aggregator struct {
	proj      *projection.Projector
	players   PlayerSource
	signs     SignSource
	furniture []core.StaticMarker

	mu     sync.Mutex
	calls  []core.CallMarker
	dirty  bool
	cached MarkerSet
}

// New creates an Aggregator. furniture is the session-immutable
// catalogue; it is placed once here.
func New(proj *projection.Projector, players PlayerSource, signs SignSource, furniture []core.StaticMarker) *Aggregator {
	return &Aggregator{
		proj:      proj,
		players:   players,
		signs:     signs,
		furniture: furniture,
		dirty:     true,
	}
}

// SetCalls replaces the externally supplied call markers.
func (a *Aggregator) SetCalls(calls []core.CallMarker) {
	a.mu.Lock()
	a.calls = append([]core.CallMarker(nil), calls...)
	a.dirty = true
	a.mu.Unlock()
}

// Invalidate marks the cached set stale after a registry or signage
// change.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.dirty = true
	a.mu.Unlock()
}

// Snapshot returns the current renderable set, recomputing if stale.
func (a *Aggregator) Snapshot() MarkerSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty {
		a.cached = a.recompute()
		a.dirty = false
	}
	return a.cached
}

func (a *Aggregator) recompute() MarkerSet {
	var set MarkerSet

	seen := make(map[string]bool)
	for _, p := range a.players.Snapshot() {
		if seen[p.Identifier] {
			continue
		}
		seen[p.Identifier] = true
		m := PlayerMarker{Player: p, Point: a.proj.Project(p.Position)}
		if p.Kind == core.KindResolved && p.Identity != nil && p.Identity.ActiveUnit != nil {
			set.Units = append(set.Units, m)
		} else {
			set.Players = append(set.Players, m)
		}
	}

	seen = make(map[string]bool)
	for _, c := range a.calls {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		set.Calls = append(set.Calls, CallPin{Call: c, Point: a.proj.Project(c.Position)})
	}

	seen = make(map[string]bool)
	for _, f := range a.furniture {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		set.Furniture = append(set.Furniture, FurnitureMarker{Marker: f, Point: a.proj.Project(f.Position)})
	}

	seen = make(map[string]bool)
	for _, s := range a.signs.Snapshot() {
		if seen[s.Sign.ID] {
			continue
		}
		seen[s.Sign.ID] = true
		set.Signage = append(set.Signage, SignMarker{Sign: s, Point: a.proj.Project(s.Sign.Position)})
	}

	return set
}
