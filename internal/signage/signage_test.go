package signage

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadlive/livemap/pkg/core"
	"github.com/cadlive/livemap/pkg/wire"
)

func newTestPlane(timeout time.Duration) *ControlPlane {
	return New(timeout, slog.New(slog.DiscardHandler))
}

func motorwaySign(id string, speeds ...string) wire.SignState {
	return wire.SignState{
		ID:       id,
		Kind:     core.SignMotorway,
		Position: core.Position3D{X: 100, Y: 200},
		Config:   core.SignConfig{LaneSpeeds: speeds},
	}
}

func TestApplyInitial_PopulatesSigns(t *testing.T) {
	cp := newTestPlane(0)

	cp.ApplyInitial([]wire.SignState{
		motorwaySign("mw-1", "70", "70", "70"),
		{ID: "s-1", Kind: core.SignSmart, Config: core.SignConfig{Lines: []string{"DRIVE SAFE"}}},
	})

	assert.Equal(t, 2, cp.Len())
	v, ok := cp.Get("mw-1")
	require.True(t, ok)
	assert.Equal(t, StateSynced, v.State)
	assert.Equal(t, []string{"70", "70", "70"}, v.Sign.Config.LaneSpeeds)
}

func TestEdit_OptimisticApply(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70", "70", "70")})

	var sent []wire.SignUpdate
	cp.SetSender(func(u wire.SignUpdate) error {
		sent = append(sent, u)
		return nil
	})

	err := cp.Edit("mw-1", core.SignConfig{LaneSpeeds: []string{"70", "60", "70"}})
	require.NoError(t, err)

	// rendered configuration shows the edit immediately
	v, _ := cp.Get("mw-1")
	assert.Equal(t, StatePending, v.State)
	assert.Equal(t, []string{"70", "60", "70"}, v.Sign.Config.LaneSpeeds)

	// and the edit went out on the wire
	require.Len(t, sent, 1)
	assert.Equal(t, "mw-1", sent[0].ID)
	assert.Equal(t, []string{"70", "60", "70"}, sent[0].Config.LaneSpeeds)
}

func TestEdit_UnknownSign(t *testing.T) {
	cp := newTestPlane(0)
	err := cp.Edit("nope", core.SignConfig{})
	assert.ErrorIs(t, err, ErrUnknownSign)
}

func TestEdit_SmartSignNotEditable(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{
		{ID: "s-1", Kind: core.SignSmart, Config: core.SignConfig{Lines: []string{"FOG"}}},
	})

	err := cp.Edit("s-1", core.SignConfig{Lines: []string{"HI"}})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestAuthoritativeEcho_ConfirmsEdit(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70", "70", "70")})
	require.NoError(t, cp.Edit("mw-1", core.SignConfig{LaneSpeeds: []string{"70", "60", "70"}}))

	cp.ApplyAuthoritative(motorwaySign("mw-1", "70", "60", "70"))

	v, _ := cp.Get("mw-1")
	assert.Equal(t, StateSynced, v.State)
	assert.Equal(t, StateConfirmed, v.LastOutcome)
	assert.Equal(t, []string{"70", "60", "70"}, v.Sign.Config.LaneSpeeds)
}

func TestAuthoritativeConflict_RevertsEdit(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70", "70", "70")})
	require.NoError(t, cp.Edit("mw-1", core.SignConfig{LaneSpeeds: []string{"70", "60", "70"}}))

	// someone else set lane 2 to 40; the authoritative value wins
	cp.ApplyAuthoritative(motorwaySign("mw-1", "70", "40", "70"))

	v, _ := cp.Get("mw-1")
	assert.Equal(t, StateSynced, v.State)
	assert.Equal(t, StateReverted, v.LastOutcome)
	assert.Equal(t, []string{"70", "40", "70"}, v.Sign.Config.LaneSpeeds,
		"rendered configuration must be the authoritative one, never the local edit")
}

func TestExpirePending_RevertsAfterTimeout(t *testing.T) {
	cp := newTestPlane(50 * time.Millisecond)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70", "70", "70")})
	require.NoError(t, cp.Edit("mw-1", core.SignConfig{LaneSpeeds: []string{"60", "60", "60"}}))

	// echo lost: nothing authoritative arrives within the window
	reverted := cp.ExpirePending(time.Now().Add(time.Second))

	assert.Equal(t, []string{"mw-1"}, reverted)
	v, _ := cp.Get("mw-1")
	assert.Equal(t, StateSynced, v.State)
	assert.Equal(t, StateReverted, v.LastOutcome)
	assert.Equal(t, []string{"70", "70", "70"}, v.Sign.Config.LaneSpeeds,
		"lost echo must fall back to the last authoritative configuration")
}

func TestExpirePending_KeepsFreshEdits(t *testing.T) {
	cp := newTestPlane(time.Minute)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70")})
	require.NoError(t, cp.Edit("mw-1", core.SignConfig{LaneSpeeds: []string{"50"}}))

	reverted := cp.ExpirePending(time.Now())

	assert.Empty(t, reverted)
	v, _ := cp.Get("mw-1")
	assert.Equal(t, StatePending, v.State)
}

func TestSnapshot_AnnouncementOrderAndCopies(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{
		motorwaySign("mw-3", "70"),
		motorwaySign("mw-1", "70"),
		motorwaySign("mw-2", "70"),
	})

	snap := cp.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "mw-3", snap[0].Sign.ID)
	assert.Equal(t, "mw-1", snap[1].Sign.ID)
	assert.Equal(t, "mw-2", snap[2].Sign.ID)

	snap[0].Sign.Config.LaneSpeeds[0] = "tampered"
	v, _ := cp.Get("mw-3")
	assert.Equal(t, "70", v.Sign.Config.LaneSpeeds[0])
}

func TestReset_DropsState(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70")})

	cp.Reset()

	assert.Equal(t, 0, cp.Len())
}

func TestEdit_WithoutSenderStillApplies(t *testing.T) {
	cp := newTestPlane(0)
	cp.ApplyInitial([]wire.SignState{motorwaySign("mw-1", "70")})

	require.NoError(t, cp.Edit("mw-1", core.SignConfig{LaneSpeeds: []string{"30"}}))

	v, _ := cp.Get("mw-1")
	assert.Equal(t, StatePending, v.State)
}
