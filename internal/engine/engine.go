// Package engine connects inbound telemetry topics to the registry,
// identity resolution, signage state machine and marker aggregation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadlive/livemap/internal/aggregator"
	"github.com/cadlive/livemap/internal/dispatcher"
	"github.com/cadlive/livemap/internal/identity"
	"github.com/cadlive/livemap/internal/registry"
	"github.com/cadlive/livemap/internal/signage"
	"github.com/cadlive/livemap/pkg/core"
	"github.com/cadlive/livemap/pkg/wire"
)

const expiryInterval = time.Second

// Sender pushes outbound messages toward the game-server plugin.
type Sender interface {
	Send(topic string, payload any) error
}

// Engine owns the per-session map state and the topic handlers that
// mutate it.
type Engine struct {
	registry *registry.PlayerRegistry
	resolver *identity.Resolver
	signs    *signage.ControlPlane
	agg      *aggregator.Aggregator

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	badPayloads atomic.Uint64

	logger *slog.Logger
}

// New assembles an engine over already-constructed state components.
func New(reg *registry.PlayerRegistry, res *identity.Resolver, signs *signage.ControlPlane, agg *aggregator.Aggregator, logger *slog.Logger) *Engine {
	return &Engine{
		registry: reg,
		resolver: res,
		signs:    signs,
		agg:      agg,
		ctx:      context.Background(),
		logger:   logger,
	}
}

// SetSender wires the outbound path for signage edits.
func (e *Engine) SetSender(s Sender) {
	e.signs.SetSender(func(u wire.SignUpdate) error {
		return s.Send(wire.TopicSignageEdit, u)
	})
}

// RegisterHandlers registers all topic handlers with the dispatcher.
func (e *Engine) RegisterHandlers(d *dispatcher.Dispatcher) {
	// High-volume telemetry batches - buffered
	d.Register(wire.TopicPlayerData, e.handlePlayerData, dispatcher.Buffered(10000), dispatcher.Logged())

	// Low-volume control topics - sync
	d.Register(wire.TopicPlayerLeft, e.handlePlayerLeft, dispatcher.Logged())
	d.Register(wire.TopicSignageState, e.handleSignageState, dispatcher.Logged())
}

// Start launches the signage pending-edit expiry loop. The context
// also bounds every in-flight identity resolution.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.ctx = ctx
	e.cancel = cancel
	e.mu.Unlock()

	go e.expiryLoop(ctx)
}

// Stop cancels the expiry loop and pending resolutions.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Flush drops all per-session state. Used on channel replacement so
// nothing carries over between endpoints.
func (e *Engine) Flush() {
	e.registry.Clear()
	e.resolver.Reset()
	e.signs.Reset()
	e.agg.Invalidate()
}

// Snapshot returns the current renderable marker set.
func (e *Engine) Snapshot() aggregator.MarkerSet {
	return e.agg.Snapshot()
}

// SetCalls replaces the externally supplied call pins.
func (e *Engine) SetCalls(calls []core.CallMarker) {
	e.agg.SetCalls(calls)
}

// EditSign applies an operator edit optimistically and sends it out.
func (e *Engine) EditSign(id string, cfg core.SignConfig) error {
	if err := e.signs.Edit(id, cfg); err != nil {
		return err
	}
	e.agg.Invalidate()
	return nil
}

func (e *Engine) handlePlayerData(ev dispatcher.Event) (any, error) {
	frames, err := wire.DecodePayload[[]wire.PlayerFrame](ev.Payload)
	if err != nil {
		e.badPayloads.Add(1)
		return nil, fmt.Errorf("decode player-data payload: %w", err)
	}

	for _, frame := range frames {
		if frame.Identifier == "" {
			e.badPayloads.Add(1)
			continue
		}

		e.registry.Upsert(frame)

		// Resolution only ever adds identity data; frames keep applying
		// in order regardless of when it completes.
		if p, ok := e.registry.Get(frame.Identifier); ok && p.Kind == core.KindTelemetryOnly {
			go e.resolve(frame.Identifier, frame.Identifiers)
		}
	}

	e.agg.Invalidate()
	return nil, nil
}

// resolve looks up the identity for one identifier and patches the
// registry entry if it still exists. Cache hits return immediately;
// in-flight lookups for the same identifier are coalesced upstream.
func (e *Engine) resolve(identifier string, identifiers []string) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	ident := e.resolver.Resolve(ctx, identifier, identifiers)
	if ident == nil {
		return
	}

	e.registry.PatchResolved(identifier, ident)
	e.agg.Invalidate()
}

func (e *Engine) handlePlayerLeft(ev dispatcher.Event) (any, error) {
	left, err := wire.DecodePayload[wire.PlayerLeft](ev.Payload)
	if err != nil {
		e.badPayloads.Add(1)
		return nil, fmt.Errorf("decode player-left payload: %w", err)
	}

	e.registry.Remove(left.Identifier)
	e.resolver.Forget(left.Identifier)
	e.agg.Invalidate()
	return nil, nil
}

// handleSignageState applies an authoritative signage batch. The same
// topic carries both the post-connect initial state and later re-syncs,
// so it also settles any pending local edits.
func (e *Engine) handleSignageState(ev dispatcher.Event) (any, error) {
	states, err := wire.DecodePayload[[]wire.SignState](ev.Payload)
	if err != nil {
		e.badPayloads.Add(1)
		return nil, fmt.Errorf("decode signage-initial-state payload: %w", err)
	}

	e.signs.ApplyInitial(states)
	e.agg.Invalidate()
	return nil, nil
}

func (e *Engine) expiryLoop(ctx context.Context) {
	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired := e.signs.ExpirePending(now)
			if len(expired) > 0 {
				e.logger.Warn("Signage edits expired without confirmation", "signs", expired)
				e.agg.Invalidate()
			}
		}
	}
}

// Stats bundles the per-component counters for monitoring.
type Stats struct {
	Registry    registry.Stats
	Resolver    identity.Stats
	Signs       int
	BadPayloads uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Registry:    e.registry.Stats(),
		Resolver:    e.resolver.Stats(),
		Signs:       e.signs.Len(),
		BadPayloads: e.badPayloads.Load(),
	}
}
