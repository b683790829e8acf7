package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadlive/livemap/pkg/core"
)

// fakeLookup is a scriptable lookup collaborator.
type fakeLookup struct {
	mu       sync.Mutex
	calls    atomic.Int64
	delay    time.Duration
	release  chan struct{} // when non-nil, calls block until closed
	err      error
	accounts map[string]*core.ResolvedIdentity // canonical id -> identity
}

func (f *fakeLookup) AccountByCanonicalID(ctx context.Context, scheme core.IdentifierScheme, canonicalID string) (*core.ResolvedIdentity, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[canonicalID], nil
}

func (f *fakeLookup) Healthcheck(ctx context.Context) error { return nil }
func (f *fakeLookup) Close() error                          { return nil }

func newTestResolver(lk *fakeLookup, cfg Config) *Resolver {
	return NewResolver(lk, cfg, slog.New(slog.DiscardHandler))
}

func TestResolve_PlatformAccount(t *testing.T) {
	lk := &fakeLookup{accounts: map[string]*core.ResolvedIdentity{
		"76561198265685624": {AccountID: "acc_1", DisplayName: "Deputy Doe"},
	}}
	r := newTestResolver(lk, Config{})

	ident := r.Resolve(context.Background(), "steam:110000112345678", []string{"steam:110000112345678"})

	require.NotNil(t, ident)
	assert.Equal(t, "acc_1", ident.AccountID)
	assert.Equal(t, int64(1), lk.calls.Load())
}

func TestResolve_CachesPositiveOutcome(t *testing.T) {
	lk := &fakeLookup{accounts: map[string]*core.ResolvedIdentity{
		"76561198265685624": {AccountID: "acc_1"},
	}}
	r := newTestResolver(lk, Config{})
	ids := []string{"steam:110000112345678"}

	for i := 0; i < 5; i++ {
		ident := r.Resolve(context.Background(), ids[0], ids)
		require.NotNil(t, ident)
	}

	assert.Equal(t, int64(1), lk.calls.Load(), "repeated frames must not re-issue the lookup")
	assert.Equal(t, uint64(4), r.Stats().CacheHits)
}

func TestResolve_CachesExplicitNotFound(t *testing.T) {
	lk := &fakeLookup{accounts: map[string]*core.ResolvedIdentity{}}
	r := newTestResolver(lk, Config{})
	ids := []string{"license:deadbeef"}

	assert.Nil(t, r.Resolve(context.Background(), ids[0], ids))
	assert.Nil(t, r.Resolve(context.Background(), ids[0], ids))

	assert.Equal(t, int64(1), lk.calls.Load(), "explicit not-found must be cached")
	assert.True(t, r.Cached(ids[0]))
}

func TestResolve_ErrorNotCached(t *testing.T) {
	lk := &fakeLookup{err: errors.New("connection refused")}
	r := newTestResolver(lk, Config{})
	ids := []string{"license:deadbeef"}

	assert.Nil(t, r.Resolve(context.Background(), ids[0], ids))
	assert.False(t, r.Cached(ids[0]), "lookup errors must not be negative-cached")

	// collaborator recovers; the next frame retries
	lk.err = nil
	lk.accounts = map[string]*core.ResolvedIdentity{"deadbeef": {AccountID: "acc_2"}}
	ident := r.Resolve(context.Background(), ids[0], ids)
	require.NotNil(t, ident)
	assert.Equal(t, "acc_2", ident.AccountID)
}

func TestResolve_TimeoutDegradesToNil(t *testing.T) {
	lk := &fakeLookup{delay: 200 * time.Millisecond}
	r := newTestResolver(lk, Config{LookupTimeout: 20 * time.Millisecond})
	ids := []string{"license:slow"}

	start := time.Now()
	ident := r.Resolve(context.Background(), ids[0], ids)

	assert.Nil(t, ident)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.False(t, r.Cached(ids[0]))
}

func TestResolve_UnknownSchemeIsHardNegative(t *testing.T) {
	lk := &fakeLookup{}
	r := newTestResolver(lk, Config{})

	assert.Nil(t, r.Resolve(context.Background(), "ip:10.0.0.1", []string{"ip:10.0.0.1"}))
	assert.Nil(t, r.Resolve(context.Background(), "ip:10.0.0.1", []string{"ip:10.0.0.1"}))

	assert.Equal(t, int64(0), lk.calls.Load())
	assert.True(t, r.Cached("ip:10.0.0.1"))
	assert.Equal(t, uint64(1), r.Stats().Unmatched)
}

func TestResolve_CoalescesConcurrentLookups(t *testing.T) {
	lk := &fakeLookup{
		delay: 50 * time.Millisecond,
		accounts: map[string]*core.ResolvedIdentity{
			"76561198265685624": {AccountID: "acc_1"},
		},
	}
	r := newTestResolver(lk, Config{})
	ids := []string{"steam:110000112345678"}

	var wg sync.WaitGroup
	results := make([]*core.ResolvedIdentity, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), ids[0], ids)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), lk.calls.Load(), "concurrent resolves must coalesce")
	for _, ident := range results {
		require.NotNil(t, ident)
		assert.Equal(t, "acc_1", ident.AccountID)
	}
}

func TestForget_AllowsReResolve(t *testing.T) {
	lk := &fakeLookup{accounts: map[string]*core.ResolvedIdentity{
		"deadbeef": {AccountID: "acc_1"},
	}}
	r := newTestResolver(lk, Config{})
	ids := []string{"license:deadbeef"}

	require.NotNil(t, r.Resolve(context.Background(), ids[0], ids))
	r.Forget(ids[0])
	assert.False(t, r.Cached(ids[0]))

	require.NotNil(t, r.Resolve(context.Background(), ids[0], ids))
	assert.Equal(t, int64(2), lk.calls.Load())
}

func TestForget_DuringFlightDiscardsOutcome(t *testing.T) {
	lk := &fakeLookup{
		release: make(chan struct{}),
		accounts: map[string]*core.ResolvedIdentity{
			"deadbeef": {AccountID: "acc_1"},
		},
	}
	r := newTestResolver(lk, Config{})
	ids := []string{"license:deadbeef"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Resolve(context.Background(), ids[0], ids)
	}()
	require.Eventually(t, func() bool { return lk.calls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// player leaves while the lookup is still out
	r.Forget(ids[0])
	close(lk.release)
	<-done

	assert.False(t, r.Cached(ids[0]), "outcome of a forgotten identifier must not be cached")
	assert.Equal(t, 0, r.Stats().CacheSize)

	// rejoin resolves fresh
	require.NotNil(t, r.Resolve(context.Background(), ids[0], ids))
	assert.Equal(t, int64(2), lk.calls.Load())
}

func TestReset_DuringFlightDiscardsOutcome(t *testing.T) {
	lk := &fakeLookup{
		release: make(chan struct{}),
		accounts: map[string]*core.ResolvedIdentity{
			"deadbeef": {AccountID: "acc_1"},
		},
	}
	r := newTestResolver(lk, Config{})
	ids := []string{"license:deadbeef"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Resolve(context.Background(), ids[0], ids)
	}()
	require.Eventually(t, func() bool { return lk.calls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	r.Reset()
	close(lk.release)
	<-done

	assert.Equal(t, 0, r.Stats().CacheSize, "flight outcome must not survive a reset")
}

func TestReset_ClearsCache(t *testing.T) {
	lk := &fakeLookup{accounts: map[string]*core.ResolvedIdentity{}}
	r := newTestResolver(lk, Config{})

	r.Resolve(context.Background(), "license:a", []string{"license:a"})
	r.Resolve(context.Background(), "license:b", []string{"license:b"})
	require.Equal(t, 2, r.Stats().CacheSize)

	r.Reset()
	assert.Equal(t, 0, r.Stats().CacheSize)
}

func TestResolve_FallsBackToIdentifierWhenSetEmpty(t *testing.T) {
	lk := &fakeLookup{accounts: map[string]*core.ResolvedIdentity{
		"deadbeef": {AccountID: "acc_9"},
	}}
	r := newTestResolver(lk, Config{})

	ident := r.Resolve(context.Background(), "license:deadbeef", nil)
	require.NotNil(t, ident)
	assert.Equal(t, "acc_9", ident.AccountID)
}
