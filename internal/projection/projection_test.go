package projection

import (
	"errors"
	"math"
	"testing"

	"github.com/cadlive/livemap/internal/config"
)

func testConfig() config.ProjectionConfig {
	return config.ProjectionConfig{
		TileSize:    256,
		MinZoom:     0,
		MaxZoom:     5,
		ImageWidth:  8192,
		ImageHeight: 8192,
		WorldMinX:   -4230,
		WorldMaxX:   7970,
		WorldMinY:   -4000,
		WorldMaxY:   8200,
	}
}

func TestNew_DegenerateExtent(t *testing.T) {
	cfg := testConfig()
	cfg.WorldMaxX = cfg.WorldMinX

	_, err := New(cfg)
	if !errors.Is(err, ErrDegenerateExtent) {
		t.Fatalf("expected ErrDegenerateExtent, got %v", err)
	}
}

func TestToMapSpace_Corners(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// world min X / max Y is the top-left pixel
	pt := p.ToMapSpace(-4230, 8200)
	if pt.X != 0 || pt.Y != 0 {
		t.Errorf("expected (0,0), got (%f,%f)", pt.X, pt.Y)
	}

	// world max X / min Y is the bottom-right pixel
	pt = p.ToMapSpace(7970, -4000)
	if pt.X != 8192 || pt.Y != 8192 {
		t.Errorf("expected (8192,8192), got (%f,%f)", pt.X, pt.Y)
	}
}

func TestToMapSpace_YAxisFlipped(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lower := p.ToMapSpace(0, 0)
	higher := p.ToMapSpace(0, 1000)
	if higher.Y >= lower.Y {
		t.Errorf("expected northing increase to decrease pixel Y: %f vs %f", higher.Y, lower.Y)
	}
}

func TestRoundTrip_WithinEpsilon(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const eps = 1e-9
	coords := [][2]float64{
		{0, 0},
		{-4230, -4000},
		{7970, 8200},
		{123.456, -789.012},
		{-1.5, 4099.999},
		{3333.33, 3333.33},
	}
	for _, c := range coords {
		pt := p.ToMapSpace(c[0], c[1])
		x, y := p.ToWorldSpace(pt.X, pt.Y)
		if math.Abs(x-c[0]) > eps || math.Abs(y-c[1]) > eps {
			t.Errorf("round trip of (%f,%f) gave (%f,%f)", c[0], c[1], x, y)
		}
	}
}

func TestRoundTrip_MapSpaceFirst(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const eps = 1e-9
	for _, c := range [][2]float64{{0, 0}, {4096, 4096}, {8192, 8192}, {17.5, 9000.25}} {
		x, y := p.ToWorldSpace(c[0], c[1])
		pt := p.ToMapSpace(x, y)
		if math.Abs(pt.X-c[0]) > eps || math.Abs(pt.Y-c[1]) > eps {
			t.Errorf("round trip of (%f,%f) gave (%f,%f)", c[0], c[1], pt.X, pt.Y)
		}
	}
}

func TestComputeBounds(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := p.ComputeBounds(8192, 8192)
	mn, ok := env.Min().XY()
	if !ok {
		t.Fatal("expected non-empty envelope")
	}
	mx, _ := env.Max().XY()
	if mn.X != 0 || mn.Y != 0 {
		t.Errorf("expected min (0,0), got (%f,%f)", mn.X, mn.Y)
	}
	if mx.X != 8192 || mx.Y != 8192 {
		t.Errorf("expected max (8192,8192), got (%f,%f)", mx.X, mx.Y)
	}
}

func TestTileCount(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := p.TileCount(); n != 32 {
		t.Errorf("expected 32 tiles, got %d", n)
	}
}
