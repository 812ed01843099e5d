package webtile

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/remote"
)

// reader reads JPEG tiles for one image. It holds no connection of its own,
// so Close only marks it released; concurrent ReadTile calls are safe.
type reader struct {
	logger    *zap.Logger
	api       *remote.API
	meta      pixel.ImageMeta
	quality   float64
	smoothing bool
	closed    atomic.Bool
}

var _ pixel.Reader = (*reader)(nil)

func newReader(logger *zap.Logger, api *remote.API, meta pixel.ImageMeta, quality float64, smoothing bool) *reader {
	return &reader{
		logger:    logger,
		api:       api,
		meta:      meta,
		quality:   quality,
		smoothing: smoothing,
	}
}

// ReadTile implements pixel.Reader.ReadTile
func (r *reader) ReadTile(ctx context.Context, req pixel.TileRequest) (*pixel.Tile, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("%w: reader closed", errorx.ErrTileReadFailed)
	}
	if err := pixel.ValidateRequest(r.meta, req); err != nil {
		return nil, err
	}

	if r.meta.ResolutionCount > 1 || req.Level == 0 {
		// The server holds a pyramid (or full resolution was asked for):
		// select the matching level remotely.
		return r.fetchTile(ctx, req, req.Level, req.X, req.Y)
	}
	return r.downsampled(ctx, req)
}

// fetchTile retrieves and decodes one tile at the given remote level.
func (r *reader) fetchTile(ctx context.Context, req pixel.TileRequest, level, x, y int) (*pixel.Tile, error) {
	data, err := r.api.RenderTile(ctx, r.meta.ID, level, x, y, r.quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errorx.ErrTileReadFailed, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode tile: %w", errorx.ErrTileReadFailed, err)
	}

	bounds := img.Bounds()
	tile := pixel.NewTile(req, bounds.Dx(), bounds.Dy(), 3, cnst.PixelTypeUint8, false)
	i := 0
	for py := bounds.Min.Y; py < bounds.Max.Y; py++ {
		for px := bounds.Min.X; px < bounds.Max.X; px++ {
			cr, cg, cb, _ := img.At(px, py).RGBA()
			tile.Data[i] = byte(cr >> 8)
			tile.Data[i+1] = byte(cg >> 8)
			tile.Data[i+2] = byte(cb >> 8)
			i += 3
		}
	}
	return tile, nil
}

// downsampled serves a level>0 request against an image with no server-side
// pyramid: the covering block of full-resolution tiles is fetched, stitched
// and reduced client-side with optional smoothing.
func (r *reader) downsampled(ctx context.Context, req pixel.TileRequest) (*pixel.Tile, error) {
	factor := 1 << req.Level
	tw, th := r.meta.TileWidth, r.meta.TileHeight

	// Full-resolution pixel extent covered by the requested tile.
	x0 := req.X * tw * factor
	y0 := req.Y * th * factor
	x1 := min(x0+tw*factor, r.meta.Width)
	y1 := min(y0+th*factor, r.meta.Height)
	srcW, srcH := x1-x0, y1-y0

	buf := make([]byte, srcW*srcH*3)
	baseReq := req
	baseReq.Level = 0
	for ty := y0 / th; ty*th < y1; ty++ {
		for tx := x0 / tw; tx*tw < x1; tx++ {
			t, err := r.fetchTile(ctx, baseReq, 0, tx, ty)
			if err != nil {
				return nil, err
			}
			copyRegion(buf, srcW, srcH, x0, y0, t, tx*tw, ty*th)
		}
	}

	data, w, h := pixel.Downscale8(buf, srcW, srcH, 3, factor, r.smoothing)
	tile := pixel.NewTile(req, w, h, 3, cnst.PixelTypeUint8, false)
	copy(tile.Data, data)
	return tile, nil
}

// copyRegion blits the overlap of a fetched tile into the stitch buffer.
func copyRegion(dst []byte, dstW, dstH, offX, offY int, t *pixel.Tile, tileX, tileY int) {
	for row := 0; row < t.Height; row++ {
		dy := tileY + row - offY
		if dy < 0 || dy >= dstH {
			continue
		}
		for col := 0; col < t.Width; col++ {
			dx := tileX + col - offX
			if dx < 0 || dx >= dstW {
				continue
			}
			copy(dst[(dy*dstW+dx)*3:(dy*dstW+dx)*3+3], t.Data[(row*t.Width+col)*3:])
		}
	}
}

// Close implements pixel.Reader.Close; safe to call multiple times.
func (r *reader) Close() error {
	r.closed.Store(true)
	return nil
}
