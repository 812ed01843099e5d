package remote

import "github.com/axonlab/mirador/internal/common/cnst"

// LoginResult is the parsed outcome of a successful login call.
type LoginResult struct {
	UserID   int64
	Username string
	GroupID  int64
	Token    string
}

// Record is one entry of a project or dataset listing.
type Record struct {
	ID         int64
	Name       string
	OwnerID    int64
	GroupID    int64
	ChildCount int
}

// ImageRecord extends Record with the pixel metadata the reader construction
// path needs. DatasetID is zero for orphaned images.
type ImageRecord struct {
	Record

	DatasetID       int64
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
