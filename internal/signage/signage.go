// Package signage tracks live roadside sign configuration and mediates
// optimistic operator edits against the authoritative plugin state.
package signage

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cadlive/livemap/pkg/core"
	"github.com/cadlive/livemap/pkg/wire"
)

// State is the per-sign edit state machine position.
type State string

const (
	// StateSynced: rendered configuration matches the authoritative one.
	StateSynced State = "SYNCED"
	// StatePending: a local edit was applied optimistically and sent
	// outbound; awaiting an authoritative echo.
	StatePending State = "PENDING_LOCAL_EDIT"
	// StateConfirmed / StateReverted are transitional outcomes recorded
	// as the last transition; the sign settles back to SYNCED.
	StateConfirmed State = "CONFIRMED"
	StateReverted  State = "REVERTED"
)

// ErrUnknownSign is returned for edits addressing a sign the plugin
// never announced.
var ErrUnknownSign = errors.New("signage: unknown sign id")

// ErrNotEditable is returned for edits on sign kinds that have no
// remotely writable configuration.
var ErrNotEditable = errors.New("signage: sign is not remotely editable")

// SendFunc delivers an outbound configuration edit to the plugin.
type SendFunc func(update wire.SignUpdate) error

type signEntry struct {
	sign core.Sign // authoritative position + configuration
	seq  uint64

	state       State
	lastOutcome State // CONFIRMED or REVERTED after a pending edit settled
	pending     core.SignConfig
	pendingAt   time.Time
}

// ControlPlane owns all signage state. The UI only ever sees snapshots;
// every mutation passes through the state machine.
type ControlPlane struct {
	mu      sync.Mutex
	signs   map[string]*signEntry
	nextSeq uint64

	send           SendFunc
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// New creates a ControlPlane. send may be nil until a transport exists.
func New(confirmTimeout time.Duration, logger *slog.Logger) *ControlPlane {
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}
	return &ControlPlane{
		signs:          make(map[string]*signEntry),
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// SetSender installs the outbound transport hook.
func (cp *ControlPlane) SetSender(send SendFunc) {
	cp.mu.Lock()
	cp.send = send
	cp.mu.Unlock()
}

// ApplyInitial ingests an authoritative signage batch. The plugin sends
// one after connect and may re-send mid-session to re-sync; both cases
// run through ApplyAuthoritative so pending edits settle correctly.
func (cp *ControlPlane) ApplyInitial(states []wire.SignState) {
	for _, st := range states {
		cp.ApplyAuthoritative(st)
	}
}

// ApplyAuthoritative ingests one authoritative sign state. For a sign
// with a pending local edit the authoritative value always wins: a
// matching configuration confirms the edit, a differing one reverts it.
func (cp *ControlPlane) ApplyAuthoritative(st wire.SignState) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	e, ok := cp.signs[st.ID]
	if !ok {
		cp.nextSeq++
		cp.signs[st.ID] = &signEntry{
			sign: core.Sign{
				ID:       st.ID,
				Kind:     st.Kind,
				Position: st.Position,
				Config:   st.Config.Clone(),
			},
			seq:   cp.nextSeq,
			state: StateSynced,
		}
		return
	}

	e.sign.Kind = st.Kind
	e.sign.Position = st.Position
	e.sign.Config = st.Config.Clone()

	if e.state == StatePending {
		if st.Config.Equal(e.pending) {
			e.lastOutcome = StateConfirmed
		} else {
			e.lastOutcome = StateReverted
			cp.logger.Debug("Pending sign edit reverted by authoritative state", "sign", st.ID)
		}
		e.pending = core.SignConfig{}
		e.state = StateSynced
	}
}

// Edit applies an operator edit optimistically and sends it outbound.
// Only motorway signs accept remote edits.
func (cp *ControlPlane) Edit(id string, cfg core.SignConfig) error {
	cp.mu.Lock()

	e, ok := cp.signs[id]
	if !ok {
		cp.mu.Unlock()
		return ErrUnknownSign
	}
	if e.sign.Kind != core.SignMotorway {
		cp.mu.Unlock()
		return ErrNotEditable
	}

	e.pending = cfg.Clone()
	e.pendingAt = time.Now()
	e.state = StatePending
	send := cp.send
	cp.mu.Unlock()

	if send == nil {
		return nil
	}
	return send(wire.SignUpdate{ID: id, Config: cfg.Clone()})
}

// ExpirePending reverts pending edits whose authoritative echo never
// arrived within the confirm timeout. Returns the ids reverted.
func (cp *ControlPlane) ExpirePending(now time.Time) []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	var reverted []string
	for id, e := range cp.signs {
		if e.state == StatePending && now.Sub(e.pendingAt) >= cp.confirmTimeout {
			e.pending = core.SignConfig{}
			e.state = StateSynced
			e.lastOutcome = StateReverted
			reverted = append(reverted, id)
		}
	}
	sort.Strings(reverted)
	return reverted
}

// SignView is the rendered state of one sign.
type SignView struct {
	Sign        core.Sign `json:"sign"`
	State       State     `json:"state"`
	LastOutcome State     `json:"lastOutcome,omitempty"`
}

// view builds the rendered form of an entry: a pending edit shows its
// optimistic configuration, everything else the authoritative one.
func (e *signEntry) view() SignView {
	v := SignView{Sign: e.sign, State: e.state, LastOutcome: e.lastOutcome}
	v.Sign.Config = e.sign.Config.Clone()
	if e.state == StatePending {
		v.Sign.Config = e.pending.Clone()
	}
	return v
}

// Get returns the rendered state of one sign.
func (cp *ControlPlane) Get(id string) (SignView, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if e, ok := cp.signs[id]; ok {
		return e.view(), true
	}
	return SignView{}, false
}

// Snapshot returns rendered copies of all signs in announcement order.
func (cp *ControlPlane) Snapshot() []SignView {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	entries := make([]*signEntry, 0, len(cp.signs))
	for _, e := range cp.signs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]SignView, len(entries))
	for i, e := range entries {
		out[i] = e.view()
	}
	return out
}

// Len returns the number of known signs.
func (cp *ControlPlane) Len() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.signs)
}

// Reset drops all signage state. Used on channel replacement.
func (cp *ControlPlane) Reset() {
	cp.mu.Lock()
	cp.signs = make(map[string]*signEntry)
	cp.mu.Unlock()
}
