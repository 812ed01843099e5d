package pixel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/errorx"
)

type stubAPI struct {
	available bool
	readable  bool
}

func (s *stubAPI) Name() string                        { return "stub" }
func (s *stubAPI) Kind() Kind                          { return KindWebTile }
func (s *stubAPI) IsAvailable() bool                   { return s.available }
func (s *stubAPI) Lossless() bool                      { return false }
func (s *stubAPI) CanRead(cnst.PixelType, int) bool    { return s.readable }
func (s *stubAPI) NewReader(context.Context, ImageMeta, ReaderOptions) (Reader, error) {
	return nil, nil
}

func TestCheckPreconditions(t *testing.T) {
	meta := ImageMeta{PixelType: cnst.PixelTypeUint8, Channels: 3}

	err := CheckPreconditions(&stubAPI{available: false, readable: true}, meta)
	assert.ErrorIs(t, err, errorx.ErrAPIUnavailable)

	err = CheckPreconditions(&stubAPI{available: true, readable: false}, meta)
	assert.ErrorIs(t, err, errorx.ErrUnsupportedImage)

	assert.NoError(t, CheckPreconditions(&stubAPI{available: true, readable: true}, meta))
}

func TestImageMeta_LevelGeometry(t *testing.T) {
	meta := ImageMeta{Width: 1000, Height: 600, TileWidth: 256, TileHeight: 256}

	assert.Equal(t, 1000, meta.LevelWidth(0))
	assert.Equal(t, 250, meta.LevelWidth(2))
	assert.Equal(t, 1, meta.LevelWidth(12)) // never collapses to zero

	assert.Equal(t, 4, meta.TilesAcross(0))
	assert.Equal(t, 3, meta.TilesDown(0))
	assert.Equal(t, 1, meta.TilesAcross(2))
}

func TestValidateRequest(t *testing.T) {
	meta := ImageMeta{
		PixelType: cnst.PixelTypeUint8, Channels: 3,
		Width: 1024, Height: 512, TileWidth: 256, TileHeight: 256,
		ResolutionCount: 2, ZSize: 2, TSize: 1,
	}

	tests := []struct {
		name string
		req  TileRequest
		ok   bool
	}{
		{"origin tile", TileRequest{}, true},
		{"last tile of level 0", TileRequest{X: 3, Y: 1}, true},
		{"level 1 shrinks the grid", TileRequest{Level: 1, X: 1}, true},
		{"negative level", TileRequest{Level: -1}, false},
		{"level beyond pyramid", TileRequest{Level: 2}, false},
		{"column out of range", TileRequest{X: 4}, false},
		{"row out of range", TileRequest{Y: 2}, false},
		{"z out of range", TileRequest{Z: 2}, false},
		{"t out of range", TileRequest{T: 1}, false},
		{"channel out of range", TileRequest{C: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(meta, tt.req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errorx.ErrTileReadFailed)
			}
		})
	}
}

func TestValidateRequest_SingleResolutionAllowsComputedLevels(t *testing.T) {
	// 1024x1024 with 256 tiles has implicit levels 0..2
	meta := ImageMeta{
		PixelType: cnst.PixelTypeUint8, Channels: 1,
		Width: 1024, Height: 1024, TileWidth: 256, TileHeight: 256,
		ResolutionCount: 1, ZSize: 1, TSize: 1,
	}
	assert.NoError(t, ValidateRequest(meta, TileRequest{Level: 2}))
	assert.ErrorIs(t, ValidateRequest(meta, TileRequest{Level: 3}), errorx.ErrTileReadFailed)
}

func TestNewTile_AllocatesBuffer(t *testing.T) {
	tile := NewTile(TileRequest{Level: 1}, 16, 8, 3, cnst.PixelTypeUint8, false)
	assert.Len(t, tile.Data, 16*8*3)
	assert.Equal(t, 1, tile.Request.Level)
	assert.False(t, tile.Lossless)

	raw := NewTile(TileRequest{}, 4, 4, 1, cnst.PixelTypeUint16, true)
	assert.Len(t, raw.Data, 4*4*2)
	assert.True(t, raw.Lossless)
}
