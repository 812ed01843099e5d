// Package bufsvc reads lossless tiles from a third-party pixel-buffer
// microservice deployed next to the image repository. The service listens on
// a separate, configurable port; the port can be changed at runtime and is
// picked up by the next availability check without recreating the backend.
package bufsvc

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/transport"
)

// Name is the backend display name.
const Name = "Pixel buffer service"

// probeTTL bounds how often IsAvailable issues a reachability probe.
const probeTTL = 5 * time.Second

// probeTimeout bounds a single reachability probe.
const probeTimeout = 2 * time.Second

// API implements pixel.API against the buffer service.
type API struct {
	logger *zap.Logger
	client transport.Client
	host   string // scheme://host of the repository server, without port
	port   atomic.Int64

	probeMu   sync.Mutex
	probeAt   time.Time
	probeOK   bool
	probePort int64
}

var _ pixel.API = (*API)(nil)

// New creates the buffer-service backend. host is the repository server's
// scheme://hostname; the service is expected on the configured port of the
// same machine.
func New(logger *zap.Logger, client transport.Client, host string, port int) *API {
	a := &API{
		logger: logger.Named("pixel.bufsvc"),
		client: client,
		host:   host,
	}
	a.port.Store(int64(port))
	return a
}

// Name implements pixel.API.Name
func (a *API) Name() string { return Name }

// Kind implements pixel.API.Kind
func (a *API) Kind() pixel.Kind { return pixel.KindBufferService }

// Lossless implements pixel.API.Lossless
func (a *API) Lossless() bool { return true }

// CanRead implements pixel.API.CanRead; the service serves any stored type.
func (a *API) CanRead(t cnst.PixelType, channels int) bool {
	return t.BytesPerSample() > 0 && channels >= 1
}

// Port returns the currently configured service port.
func (a *API) Port() int { return int(a.port.Load()) }

// SetPort changes the service port at runtime. Subsequent availability checks
// and tile reads use the new value.
func (a *API) SetPort(port int) {
	a.port.Store(int64(port))
}

func (a *API) baseURL() string {
	return fmt.Sprintf("%s:%d", a.host, a.port.Load())
}

// IsAvailable implements pixel.API.IsAvailable by probing the service status
// endpoint. Results are cached briefly; a port change invalidates the cache.
func (a *API) IsAvailable() bool {
	a.probeMu.Lock()
	defer a.probeMu.Unlock()

	port := a.port.Load()
	if port == a.probePort && time.Since(a.probeAt) < probeTTL {
		return a.probeOK
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	_, err := a.client.Get(ctx, a.baseURL()+"/status", nil, "")

	a.probeAt = time.Now()
	a.probePort = port
	a.probeOK = err == nil
	if err != nil {
		a.logger.Debug("buffer service unreachable",
			zap.Int64("port", port),
			zap.Error(err))
	}
	return a.probeOK
}

// NewReader implements pixel.API.NewReader. Readers are safe for concurrent
// ReadTile calls; every call is an independent HTTP request.
func (a *API) NewReader(_ context.Context, meta pixel.ImageMeta, _ pixel.ReaderOptions) (pixel.Reader, error) {
	if err := pixel.CheckPreconditions(a, meta); err != nil {
		return nil, err
	}
	return &reader{api: a, meta: meta}, nil
}

type reader struct {
	api    *API
	meta   pixel.ImageMeta
	closed atomic.Bool
}

var _ pixel.Reader = (*reader)(nil)

// ReadTile implements pixel.Reader.ReadTile. The tile carries the single
// requested channel plane, raw and lossless.
func (r *reader) ReadTile(ctx context.Context, req pixel.TileRequest) (*pixel.Tile, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("%w: reader closed", errorx.ErrTileReadFailed)
	}
	if err := pixel.ValidateRequest(r.meta, req); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/tile/%d/%d/%d/%d", r.api.baseURL(), r.meta.ID, req.Level, req.X, req.Y)
	params := url.Values{}
	params.Set("z", fmt.Sprint(req.Z))
	params.Set("t", fmt.Sprint(req.T))
	params.Set("c", fmt.Sprint(req.C))

	data, err := r.api.client.Get(ctx, endpoint, params, "")
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

// Close implements pixel.Reader.Close; safe to call multiple times.
func (r *reader) Close() error {
	r.closed.Store(true)
	return nil
}
