package catalogue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadlive/livemap/pkg/core"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	markers, err := Load(filepath.Join(t.TempDir(), "absent.db"))
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestWriteAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue.db")

	in := []core.StaticMarker{
		{ID: "hosp-1", Category: "hospital", Label: "Central Medical", Position: core.Position3D{X: 300, Y: -580, Z: 43}},
		{ID: "pd-1", Category: "police", Label: "Mission Row PD", Position: core.Position3D{X: 428, Y: -984, Z: 30}},
		{ID: "fd-1", Category: "fire", Position: core.Position3D{X: 1193, Y: -1464, Z: 34}},
	}
	require.NoError(t, Write(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Load orders by category then id
	assert.Equal(t, "fd-1", out[0].ID)
	assert.Equal(t, "hosp-1", out[1].ID)
	assert.Equal(t, "pd-1", out[2].ID)
	assert.Equal(t, "Central Medical", out[1].Label)
	assert.Equal(t, 428.0, out[2].Position.X)
}

func TestWrite_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue.db")

	require.NoError(t, Write(path, []core.StaticMarker{{ID: "a", Category: "atm"}}))
	require.NoError(t, Write(path, []core.StaticMarker{{ID: "b", Category: "atm"}}))

	out, err := Load(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}
