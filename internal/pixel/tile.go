package pixel

import "github.com/axonlab/mirador/internal/common/cnst"

// Tile is one decoded rectangular sub-region of a resolution level. Data
// holds interleaved row-major samples; its length is
// Width*Height*Channels*PixelType.BytesPerSample().
type Tile struct {
	Request   TileRequest
	Width     int
	Height    int
	Channels  int
	PixelType cnst.PixelType
	Lossless  bool
	Data      []byte
}

// NewTile allocates a zero-filled tile for the given geometry.
func NewTile(req TileRequest, width, height, channels int, t cnst.PixelType, lossless bool) *Tile {
	return &Tile{
		Request:   req,
		Width:     width,
		Height:    height,
		Channels:  channels,
		PixelType: t,
		Lossless:  lossless,
		Data:      make([]byte, width*height*channels*t.BytesPerSample()),
	}
}
