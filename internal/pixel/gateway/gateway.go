// Package gateway reads raw, lossless pixel data through an optional gateway
// service. The dependency is injected at session construction when the
// feature is enabled; sessions without it simply have no gateway backend.
// Reads additionally require the session to be authenticated, so availability
// drops on logout without recreating the backend.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/pixel"
)

// Name is the backend display name.
const Name = "Raw gateway"

// Conn is one connection to the gateway service. Implementations are not
// required to support concurrent reads; the reader serializes access.
type Conn interface {
	// ReadRawTile returns the raw samples of the requested channel plane,
	// row-major, meta.PixelType sized.
	ReadRawTile(ctx context.Context, meta pixel.ImageMeta, req pixel.TileRequest) ([]byte, error)
	Close() error
}

// AuthFunc reports whether the owning session currently holds a valid token.
type AuthFunc func() bool

// API implements pixel.API over a gateway connection.
type API struct {
	logger        *zap.Logger
	conn          Conn
	authenticated AuthFunc
}

var _ pixel.API = (*API)(nil)

// New creates the gateway backend around an established connection.
func New(logger *zap.Logger, conn Conn, authenticated AuthFunc) *API {
	return &API{
		logger:        logger.Named("pixel.gateway"),
		conn:          conn,
		authenticated: authenticated,
	}
}

// Name implements pixel.API.Name
func (a *API) Name() string { return Name }

// Kind implements pixel.API.Kind
func (a *API) Kind() pixel.Kind { return pixel.KindGateway }

// IsAvailable implements pixel.API.IsAvailable: the gateway requires an
// authenticated session.
func (a *API) IsAvailable() bool {
	return a.conn != nil && a.authenticated()
}

// Lossless implements pixel.API.Lossless; the gateway returns raw samples.
func (a *API) Lossless() bool { return true }

// CanRead implements pixel.API.CanRead; raw access has no format restriction.
func (a *API) CanRead(t cnst.PixelType, channels int) bool {
	return t.BytesPerSample() > 0 && channels >= 1
}

// NewReader implements pixel.API.NewReader. The returned reader serializes
// tile reads internally because it shares the single gateway connection.
func (a *API) NewReader(_ context.Context, meta pixel.ImageMeta, _ pixel.ReaderOptions) (pixel.Reader, error) {
	if err := pixel.CheckPreconditions(a, meta); err != nil {
		return nil, err
	}
	return &reader{api: a, meta: meta}, nil
}

type reader struct {
	api    *API
	meta   pixel.ImageMeta
	mu     sync.Mutex // one request on the wire at a time
	closed atomic.Bool
}

var _ pixel.Reader = (*reader)(nil)

// ReadTile implements pixel.Reader.ReadTile. The tile carries the single
// requested channel plane.
func (r *reader) ReadTile(ctx context.Context, req pixel.TileRequest) (*pixel.Tile, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("%w: reader closed", errorx.ErrTileReadFailed)
	}
	if !r.api.IsAvailable() {
		return nil, fmt.Errorf("%w: %s", errorx.ErrAPIUnavailable, Name)
	}
	if err := pixel.ValidateRequest(r.meta, req); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.api.conn.ReadRawTile(ctx, r.meta, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errorx.ErrTileReadFailed, err)
	}

	w := min(r.meta.TileWidth, r.meta.LevelWidth(req.Level)-req.X*r.meta.TileWidth)
	h := min(r.meta.TileHeight, r.meta.LevelHeight(req.Level)-req.Y*r.meta.TileHeight)
	want := w * h * r.meta.PixelType.BytesPerSample()
	if len(data) != want {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", errorx.ErrTileReadFailed, want, len(data))
	}

	tile := pixel.NewTile(req, w, h, 1, r.meta.PixelType, true)
	copy(tile.Data, data)
	return tile, nil
}

// Close implements pixel.Reader.Close. The shared connection stays open; it
// belongs to the backend and is closed with the session.
func (r *reader) Close() error {
	r.closed.Store(true)
	return nil
}
