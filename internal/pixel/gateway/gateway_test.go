package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/cnst"
	"github.com/axonlab/mirador/internal/common/config"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/transport"
)

// fakeConn records reads and detects concurrent use.
type fakeConn struct {
	mu      sync.Mutex
	inUse   bool
	overlap bool
	calls   int
	data    []byte
	err     error
}

func (f *fakeConn) ReadRawTile(ctx context.Context, meta pixel.ImageMeta, req pixel.TileRequest) ([]byte, error) {
	f.mu.Lock()
	if f.inUse {
		f.overlap = true
	}
	f.inUse = true
	f.calls++
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inUse = false
	f.mu.Unlock()
	return f.data, f.err
}

func (f *fakeConn) Close() error { return nil }

func uint16Meta() pixel.ImageMeta {
	return pixel.ImageMeta{
		ID: 302, PixelType: cnst.PixelTypeUint16, Channels: 4,
		Width: 512, Height: 512, TileWidth: 256, TileHeight: 256,
		ResolutionCount: 1, ZSize: 5, TSize: 1,
	}
}

func TestAPI_AvailabilityTracksAuthentication(t *testing.T) {
	authed := false
	a := New(zap.NewNop(), &fakeConn{}, func() bool { return authed })

	assert.False(t, a.IsAvailable())
	authed = true
	assert.True(t, a.IsAvailable())
	// logout drops availability without recreating the backend
	authed = false
	assert.False(t, a.IsAvailable())
}

func TestAPI_CanReadAnyStoredType(t *testing.T) {
	a := New(zap.NewNop(), &fakeConn{}, func() bool { return true })
	assert.True(t, a.CanRead(cnst.PixelTypeUint8, 3))
	assert.True(t, a.CanRead(cnst.PixelTypeUint16, 1))
	assert.True(t, a.CanRead(cnst.PixelTypeDouble, 7))
	assert.False(t, a.CanRead(cnst.PixelType("weird"), 1))
	assert.False(t, a.CanRead(cnst.PixelTypeUint8, 0))
}

func TestNewReader_RequiresAuthentication(t *testing.T) {
	a := New(zap.NewNop(), &fakeConn{}, func() bool { return false })
	_, err := a.NewReader(context.Background(), uint16Meta(), pixel.ReaderOptions{})
	assert.ErrorIs(t, err, errorx.ErrAPIUnavailable)
}

func TestReadTile_ReturnsRawChannelPlane(t *testing.T) {
	conn := &fakeConn{data: make([]byte, 256*256*2)}
	conn.data[0] = 0xAB
	a := New(zap.NewNop(), conn, func() bool { return true })

	reader, err := a.NewReader(context.Background(), uint16Meta(), pixel.ReaderOptions{})
	require.NoError(t, err)
	defer reader.Close()

	tile, err := reader.ReadTile(context.Background(), pixel.TileRequest{Z: 2, C: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, tile.Channels)
	assert.True(t, tile.Lossless)
	assert.Equal(t, cnst.PixelTypeUint16, tile.PixelType)
	assert.Equal(t, byte(0xAB), tile.Data[0])
	assert.Len(t, tile.Data, 256*256*2)
}

func TestReadTile_AuthLossAfterReaderCreation(t *testing.T) {
	authed := true
	a := New(zap.NewNop(), &fakeConn{data: make([]byte, 256*256*2)}, func() bool { return authed })

	reader, err := a.NewReader(context.Background(), uint16Meta(), pixel.ReaderOptions{})
	require.NoError(t, err)
	defer reader.Close()

	authed = false
	_, err = reader.ReadTile(context.Background(), pixel.TileRequest{})
	assert.ErrorIs(t, err, errorx.ErrAPIUnavailable)
}

func TestReadTile_ShortPayload(t *testing.T) {
	conn := &fakeConn{data: make([]byte, 100)}
	a := New(zap.NewNop(), conn, func() bool { return true })

	reader, err := a.NewReader(context.Background(), uint16Meta(), pixel.ReaderOptions{})
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadTile(context.Background(), pixel.TileRequest{})
	assert.ErrorIs(t, err, errorx.ErrTileReadFailed)
}

func TestReadTile_SerializesConnectionUse(t *testing.T) {
	conn := &fakeConn{data: make([]byte, 256*256*2)}
	a := New(zap.NewNop(), conn, func() bool { return true })

	reader, err := a.NewReader(context.Background(), uint16Meta(), pixel.ReaderOptions{})
	require.NoError(t, err)
	defer reader.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reader.ReadTile(context.Background(), pixel.TileRequest{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, conn.calls)
	assert.False(t, conn.overlap, "reads must not overlap on the shared connection")
}

func TestHTTPConn_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gateway/raw/302/0/1/2", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("z"))
		assert.Equal(t, "0", r.URL.Query().Get("t"))
		assert.Equal(t, "1", r.URL.Query().Get("c"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("raw"))
	}))
	defer srv.Close()

	client := transport.NewHTTPClient(zap.NewNop(), &config.TransportConfig{
		Timeout:       2 * time.Second,
		RetryInterval: time.Millisecond,
	})
	conn, err := DialHTTP(client, srv.URL, func() string { return "tok" })
	require.NoError(t, err)
	defer conn.Close()

	meta := uint16Meta()
	data, err := conn.ReadRawTile(context.Background(), meta, pixel.TileRequest{X: 1, Y: 2, Z: 3, C: 1})
	require.NoError(t, err)
	assert.Equal(t, "raw", string(data))
}

func TestDialHTTP_EmptyAddress(t *testing.T) {
	_, err := DialHTTP(nil, "", nil)
	assert.Error(t, err)
}
