package cnst

// PixelType identifies the sample type of an image as declared by the server.
type PixelType string

const (
	PixelTypeUint8   PixelType = "uint8"
	PixelTypeInt8    PixelType = "int8"
	PixelTypeUint16  PixelType = "uint16"
	PixelTypeInt16   PixelType = "int16"
	PixelTypeUint32  PixelType = "uint32"
	PixelTypeInt32   PixelType = "int32"
	PixelTypeFloat   PixelType = "float"
	PixelTypeDouble  PixelType = "double"
	PixelTypeUnknown PixelType = ""
)

// BytesPerSample returns the storage size of one sample, or 0 for unknown types.
func (t PixelType) BytesPerSample() int {
	switch t {
	case PixelTypeUint8, PixelTypeInt8:
		return 1
	case PixelTypeUint16, PixelTypeInt16:
		return 2
	case PixelTypeUint32, PixelTypeInt32, PixelTypeFloat:
		return 4
	case PixelTypeDouble:
		return 8
	default:
		return 0
	}
}

// Default tile geometry used when the server does not declare one.
const (
	DefaultTileWidth  = 256
	DefaultTileHeight = 256
)
