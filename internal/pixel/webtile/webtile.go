// Package webtile reads tiles through the server's web rendering endpoint.
// The wire format is a lossy JPEG per tile, which restricts this backend to
// 8-bit three-channel images, but it needs nothing beyond plain HTTP and is
// therefore always available, authenticated or not.
package webtile

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/remote"
)

const (
	// Name is the backend display name.
	Name = "Web tiles"

	// ArgQuality is the backend argument selecting JPEG quality, in (0,1].
	ArgQuality = "quality"

	// DefaultQuality applies when no quality argument is given or the given
	// one is unusable.
	DefaultQuality = 0.9
)

// API implements pixel.API over the web rendering endpoint.
type API struct {
	logger  *zap.Logger
	api     *remote.API
	quality float64
}

var _ pixel.API = (*API)(nil)

// New creates the web-tile backend. args may carry a quality override; an
// out-of-range or unparsable value falls back to the default with a warning
// rather than failing construction.
func New(logger *zap.Logger, api *remote.API, args map[string]string) *API {
	logger = logger.Named("pixel.webtile")
	return &API{
		logger:  logger,
		api:     api,
		quality: parseQuality(logger, args[ArgQuality]),
	}
}

// Name implements pixel.API.Name
func (a *API) Name() string { return Name }

// Kind implements pixel.API.Kind
func (a *API) Kind() pixel.Kind { return pixel.KindWebTile }

// IsAvailable implements pixel.API.IsAvailable; the web endpoint is part of
// every server, so this backend is always available.
func (a *API) IsAvailable() bool { return true }

// Lossless implements pixel.API.Lossless; JPEG tiles are lossy.
func (a *API) Lossless() bool { return false }

// CanRead implements pixel.API.CanRead. The wire format carries exactly one
// 8-bit RGB rendering per tile.
func (a *API) CanRead(t cnst.PixelType, channels int) bool {
	return t == cnst.PixelTypeUint8 && channels == 3
}

// Quality returns the effective JPEG quality.
func (a *API) Quality() float64 { return a.quality }

// NewReader implements pixel.API.NewReader. Readers are safe for concurrent
// ReadTile calls; every call is an independent HTTP request.
func (a *API) NewReader(_ context.Context, meta pixel.ImageMeta, opts pixel.ReaderOptions) (pixel.Reader, error) {
	if err := pixel.CheckPreconditions(a, meta); err != nil {
		return nil, err
	}

	quality := a.quality
	if s, ok := opts.Args[ArgQuality]; ok {
		quality = parseQuality(a.logger, s)
	}

	return newReader(a.logger, a.api, meta, quality, opts.Smoothing), nil
}

func parseQuality(logger *zap.Logger, s string) float64 {
	if s == "" {
		return DefaultQuality
	}
	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logger.Warn("unparsable quality argument, using default",
			zap.String("value", s),
			zap.Float64("default", DefaultQuality))
		return DefaultQuality
	}
	if q <= 0 || q > 1 {
		logger.Warn("quality argument out of range (0,1], using default",
			zap.Float64("value", q),
			zap.Float64("default", DefaultQuality))
		return DefaultQuality
	}
	return q
}
