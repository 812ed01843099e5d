package session

import (
	"context"

	"github.com/axonlab/mirador/internal/pixel"
)

// metadataSource implements the image metadata collaborator on top of the
// remote API.
type metadataSource struct {
	session *Session
}

var _ pixel.MetadataSource = (*metadataSource)(nil)

// ImageMeta implements pixel.MetadataSource.ImageMeta
func (m *metadataSource) ImageMeta(ctx context.Context, id int64) (pixel.ImageMeta, error) {
	rec, err := m.session.api.Image(ctx, id)
	if err != nil {
		m.session.handleAuthError(err)
		return pixel.ImageMeta{}, err
	}
	return pixel.ImageMeta{
		ID:              rec.ID,
		PixelType:       rec.PixelType,
		Channels:        rec.Channels,
		Width:           rec.Width,
		Height:          rec.Height,
		TileWidth:       rec.TileWidth,
		TileHeight:      rec.TileHeight,
		ResolutionCount: rec.ResolutionCount,
		ZSize:           rec.ZSize,
		TSize:           rec.TSize,
	}, nil
}

// Metadata returns the session's image metadata collaborator.
func (s *Session) Metadata() pixel.MetadataSource {
	return &metadataSource{session: s}
}
