// Package identity correlates ephemeral telemetry identifiers with
// persistent operator accounts and on-duty unit records.
package identity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/cadlive/livemap/internal/lookup"
	"github.com/cadlive/livemap/pkg/core"
)

// Config tunes the resolver.
type Config struct {
	// LookupTimeout bounds one collaborator call. A lookup that exceeds
	// it degrades to "not found" without being negative-cached.
	LookupTimeout time.Duration
	// RatePerSecond / RateBurst throttle collaborator calls so a busy
	// server full of unresolved players cannot hammer the CAD.
	RatePerSecond float64
	RateBurst     int
}

type cacheEntry struct {
	identity *core.ResolvedIdentity // nil = known not-found
}

// Resolver resolves ephemeral identifiers to persistent identities.
// Outcomes, including explicit not-found, are cached per identifier for
// the lifetime of that identifier's registry entry; concurrent resolves
// for one identifier coalesce into a single collaborator call.
type Resolver struct {
	lk      lookup.Lookup
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter
	group   singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry
	// inflight tracks identifiers with a lookup in progress; dropped
	// marks those forgotten mid-flight so the outcome is discarded
	// instead of re-entering the cache for a departed player. Both are
	// bounded by the number of concurrent flights.
	inflight map[string]struct{}
	dropped  map[string]struct{}

	lookups   atomic.Uint64
	hits      atomic.Uint64
	failures  atomic.Uint64
	unmatched atomic.Uint64
}

// NewResolver creates a resolver backed by the given lookup collaborator.
func NewResolver(lk lookup.Lookup, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	return &Resolver{
		lk:       lk,
		cfg:      cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		cache:    make(map[string]cacheEntry),
		inflight: make(map[string]struct{}),
		dropped:  make(map[string]struct{}),
	}
}

// Resolve maps an ephemeral identifier to a persistent identity, or nil
// when no account matches. identifiers is the full scheme-prefixed set
// carried on the frame (the ephemeral identifier itself included).
//
// Lookup errors and timeouts return nil without caching, so a later
// frame for the same identifier may retry; unknown schemes and explicit
// not-found outcomes are cached as negatives.
func (r *Resolver) Resolve(ctx context.Context, identifier string, identifiers []string) *core.ResolvedIdentity {
	r.mu.Lock()
	if e, ok := r.cache[identifier]; ok {
		r.mu.Unlock()
		r.hits.Add(1)
		return e.identity
	}
	r.mu.Unlock()

	// Coalesce concurrent resolves by ephemeral identifier, not by raw
	// request: two frames for one player are one pending lookup.
	v, _, _ := r.group.Do(identifier, func() (any, error) {
		return r.resolveOnce(ctx, identifier, identifiers), nil
	})
	return v.(*core.ResolvedIdentity)
}

// resolveOnce runs at most once per identifier per flight.
func (r *Resolver) resolveOnce(ctx context.Context, identifier string, identifiers []string) *core.ResolvedIdentity {
	// Re-check under the group: a previous flight may have cached while
	// this caller was queued.
	r.mu.Lock()
	if e, ok := r.cache[identifier]; ok {
		r.mu.Unlock()
		return e.identity
	}
	r.inflight[identifier] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, identifier)
		delete(r.dropped, identifier)
		r.mu.Unlock()
	}()

	set := identifiers
	if len(set) == 0 {
		set = []string{identifier}
	}

	cls, err := Classify(set)
	if err != nil {
		// no recognized scheme: permanently telemetry-only
		r.unmatched.Add(1)
		r.storeOutcome(identifier, nil)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		r.failures.Add(1)
		return nil
	}

	r.lookups.Add(1)
	ident, err := r.lk.AccountByCanonicalID(ctx, cls.Scheme, cls.Canonical)
	if err != nil {
		// soft failure: stay telemetry-only, allow a later retry
		r.failures.Add(1)
		r.logger.Debug("Identity lookup failed",
			"identifier", identifier, "scheme", cls.Scheme, "error", err)
		return nil
	}

	r.storeOutcome(identifier, ident)
	return ident
}

// storeOutcome caches a lookup outcome unless the identifier was
// forgotten or the cache was reset while the lookup was in flight.
func (r *Resolver) storeOutcome(identifier string, ident *core.ResolvedIdentity) {
	r.mu.Lock()
	if _, ok := r.dropped[identifier]; !ok {
		r.cache[identifier] = cacheEntry{identity: ident}
	}
	r.mu.Unlock()
}

// Forget drops the cached outcome for an identifier that left the
// registry. A resolution still in flight is not cancelled; its outcome
// is discarded instead of cached.
func (r *Resolver) Forget(identifier string) {
	r.mu.Lock()
	delete(r.cache, identifier)
	if _, ok := r.inflight[identifier]; ok {
		r.dropped[identifier] = struct{}{}
	}
	r.mu.Unlock()
}

// Cached reports whether an outcome (positive or negative) is cached.
func (r *Resolver) Cached(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache[identifier]
	return ok
}

// Reset clears the cache. Used on channel replacement.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	for id := range r.inflight {
		r.dropped[id] = struct{}{}
	}
	r.mu.Unlock()
}

// Stats reports lifetime resolver counters.
type Stats struct {
	Lookups   uint64
	CacheHits uint64
	Failures  uint64
	Unmatched uint64
	CacheSize int
}

// Stats returns lifetime counters and the current cache size.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	size := len(r.cache)
	r.mu.Unlock()
	return Stats{
		Lookups:   r.lookups.Load(),
		CacheHits: r.hits.Load(),
		Failures:  r.failures.Load(),
		Unmatched: r.unmatched.Load(),
		CacheSize: size,
	}
}
