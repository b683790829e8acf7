// Package projection maps game-world coordinates onto the map-image
// rendering surface and back.
//
// The game world is a flat plane, so a single affine transform relates the
// two spaces: a per-axis scale derived from the configured image pyramid
// plus an origin offset. Y is flipped because image space grows downward
// while the game's northing grows upward. The forward and inverse
// transforms are exact inverses of each other up to floating-point epsilon,
// which is what lets a dragged call pin round-trip back to the same
// game-world point.
package projection

import (
	"errors"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/cadlive/livemap/internal/config"
	"github.com/cadlive/livemap/pkg/core"
)

// ErrDegenerateExtent is returned when the configured world extent or
// image size has zero width or height.
var ErrDegenerateExtent = errors.New("projection: degenerate world extent or image size")

// Projector converts between world space and map space. It is pure and
// stateless after construction; safe for concurrent use.
type Projector struct {
	cfg    config.ProjectionConfig
	scaleX float64
	scaleY float64
}

// New builds a Projector from the map-image pyramid configuration.
func New(cfg config.ProjectionConfig) (*Projector, error) {
	worldW := cfg.WorldMaxX - cfg.WorldMinX
	worldH := cfg.WorldMaxY - cfg.WorldMinY
	if worldW <= 0 || worldH <= 0 || cfg.ImageWidth <= 0 || cfg.ImageHeight <= 0 {
		return nil, ErrDegenerateExtent
	}
	return &Projector{
		cfg:    cfg,
		scaleX: cfg.ImageWidth / worldW,
		scaleY: cfg.ImageHeight / worldH,
	}, nil
}

// ToMapSpace projects a world coordinate into map-image pixels at native
// resolution. Z is ignored.
func (p *Projector) ToMapSpace(worldX, worldY float64) core.MapPoint {
	return core.MapPoint{
		X: (worldX - p.cfg.WorldMinX) * p.scaleX,
		Y: (p.cfg.WorldMaxY - worldY) * p.scaleY,
	}
}

// ToWorldSpace is the inverse of ToMapSpace.
func (p *Projector) ToWorldSpace(px, py float64) (worldX, worldY float64) {
	worldX = px/p.scaleX + p.cfg.WorldMinX
	worldY = p.cfg.WorldMaxY - py/p.scaleY
	return worldX, worldY
}

// Project returns the map-space point for a world position.
func (p *Projector) Project(pos core.Position3D) core.MapPoint {
	return p.ToMapSpace(pos.X, pos.Y)
}

// ComputeBounds derives the renderable map-space bounds for an image of
// the given native size, used to constrain the viewport.
func (p *Projector) ComputeBounds(imageWidth, imageHeight float64) geom.Envelope {
	return geom.NewEnvelope(
		geom.XY{X: 0, Y: 0},
		geom.XY{X: imageWidth, Y: imageHeight},
	)
}

// WorldBounds returns the configured world extent as an envelope.
func (p *Projector) WorldBounds() geom.Envelope {
	return geom.NewEnvelope(
		geom.XY{X: p.cfg.WorldMinX, Y: p.cfg.WorldMinY},
		geom.XY{X: p.cfg.WorldMaxX, Y: p.cfg.WorldMaxY},
	)
}

// TileCount returns how many tiles span the image at the native max zoom.
func (p *Projector) TileCount() int {
	if p.cfg.TileSize <= 0 {
		return 0
	}
	n := int(p.cfg.ImageWidth) / p.cfg.TileSize
	if int(p.cfg.ImageWidth)%p.cfg.TileSize != 0 {
		n++
	}
	return n
}
