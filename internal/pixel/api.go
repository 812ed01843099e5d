// Package pixel defines the tile-addressing unit and the capability contract
// every pixel backend implements. A backend describes which images it can
// serve and hands out readers bound to one image; readers answer tile reads
// until they are closed.
package pixel

import (
	"context"
	"fmt"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/errorx"
)

// Kind names one backend strategy.
type Kind string

const (
	KindWebTile       Kind = "web"
	KindGateway       Kind = "gateway"
	KindBufferService Kind = "buffer"
)

// TileRequest addresses one tile of a pyramidal image. It is an immutable
// value produced by the image-reading layer and passed through opaquely.
type TileRequest struct {
	Level int // resolution index, 0 is full resolution
	X     int // tile column
	Y     int // tile row
	Z     int
	T     int
	C     int
}

// ImageMeta is the declared metadata of one image, supplied by the metadata
// collaborator when a reader is constructed.
type ImageMeta struct {
	ID              int64
	PixelType       cnst.PixelType
	Channels        int
	Width           int
	Height          int
	TileWidth       int
	TileHeight      int
	ResolutionCount int
	ZSize           int
	TSize           int
}

// LevelWidth returns the image width at the given pyramid level.
func (m ImageMeta) LevelWidth(level int) int {
	return max(1, m.Width>>level)
}

// LevelHeight returns the image height at the given pyramid level.
func (m ImageMeta) LevelHeight(level int) int {
	return max(1, m.Height>>level)
}

// TilesAcross returns the tile grid width at the given level.
func (m ImageMeta) TilesAcross(level int) int {
	return (m.LevelWidth(level) + m.TileWidth - 1) / m.TileWidth
}

// TilesDown returns the tile grid height at the given level.
func (m ImageMeta) TilesDown(level int) int {
	return (m.LevelHeight(level) + m.TileHeight - 1) / m.TileHeight
}

// ReaderOptions carries backend-independent reader construction parameters.
type ReaderOptions struct {
	// Smoothing selects interpolated resampling on the single-resolution
	// code path.
	Smoothing bool
	// Args are free-form backend-specific arguments.
	Args map[string]string
}

// API is one strategy for obtaining pixel tiles. Implementations are owned by
// a session, stateless with respect to any single image, and may change
// availability at runtime.
type API interface {
	// Name identifies the backend for display and logging.
	Name() string

	// Kind returns the backend kind.
	Kind() Kind

	// IsAvailable reports whether readers can currently be created. The value
	// may change at runtime, e.g. when the owning session logs out.
	IsAvailable() bool

	// Lossless reports whether returned pixels are raw rather than the
	// product of lossy compression.
	Lossless() bool

	// CanRead reports whether this backend can serve images of the given
	// pixel type and channel count.
	CanRead(t cnst.PixelType, channels int) bool

	// NewReader creates a reader bound to one image. It fails with
	// errorx.ErrAPIUnavailable when IsAvailable is false and with
	// errorx.ErrUnsupportedImage when CanRead is false for the image.
	NewReader(ctx context.Context, meta ImageMeta, opts ReaderOptions) (Reader, error)
}

// Reader reads tiles of the single image it was created for. Whether
// concurrent ReadTile calls are safe is documented per backend; Close is
// always idempotent and releases any backend-held connection.
type Reader interface {
	ReadTile(ctx context.Context, req TileRequest) (*Tile, error)
	Close() error
}

// MetadataSource is the image metadata collaborator.
type MetadataSource interface {
	ImageMeta(ctx context.Context, id int64) (ImageMeta, error)
}

// CheckPreconditions enforces the mandatory NewReader preconditions shared by
// all backends.
func CheckPreconditions(api API, meta ImageMeta) error {
	if !api.IsAvailable() {
		return fmt.Errorf("%w: %s", errorx.ErrAPIUnavailable, api.Name())
	}
	if !api.CanRead(meta.PixelType, meta.Channels) {
		return fmt.Errorf("%w: %s cannot read %s/%d-channel images",
			errorx.ErrUnsupportedImage, api.Name(), meta.PixelType, meta.Channels)
	}
	return nil
}

// ValidateRequest checks a tile request against the image geometry.
func ValidateRequest(meta ImageMeta, req TileRequest) error {
	if req.Level < 0 || req.Level >= maxLevels(meta) {
		return fmt.Errorf("%w: level %d out of range", errorx.ErrTileReadFailed, req.Level)
	}
	if req.X < 0 || req.X >= meta.TilesAcross(req.Level) ||
		req.Y < 0 || req.Y >= meta.TilesDown(req.Level) {
		return fmt.Errorf("%w: tile (%d,%d) out of range at level %d",
			errorx.ErrTileReadFailed, req.X, req.Y, req.Level)
	}
	if req.Z < 0 || req.Z >= meta.ZSize || req.T < 0 || req.T >= meta.TSize {
		return fmt.Errorf("%w: plane z=%d t=%d out of range", errorx.ErrTileReadFailed, req.Z, req.T)
	}
	if req.C < 0 || req.C >= meta.Channels {
		return fmt.Errorf("%w: channel %d out of range", errorx.ErrTileReadFailed, req.C)
	}
	return nil
}

// maxLevels allows downsampled requests against single-resolution images,
// which are served by the client-side resampling path.
func maxLevels(meta ImageMeta) int {
	if meta.ResolutionCount > 1 {
		return meta.ResolutionCount
	}
	levels := 1
	for w, h := meta.Width, meta.Height; w > meta.TileWidth || h > meta.TileHeight; w, h = w/2, h/2 {
		levels++
	}
	return levels
}
