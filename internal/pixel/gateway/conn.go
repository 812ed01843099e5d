package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/transport"
)

// HTTPConn implements Conn against a gateway service exposing raw planes
// over HTTP.
type HTTPConn struct {
	client transport.Client
	base   string
	token  func() string
}

var _ Conn = (*HTTPConn)(nil)

// DialHTTP creates a connection to the gateway service at addr.
func DialHTTP(client transport.Client, addr string, token func() string) (*HTTPConn, error) {
	base := strings.TrimRight(addr, "/")
	if base == "" {
		return nil, fmt.Errorf("gateway address is empty")
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPConn{client: client, base: base, token: token}, nil
}

// ReadRawTile implements Conn.ReadRawTile
func (c *HTTPConn) ReadRawTile(ctx context.Context, meta pixel.ImageMeta, req pixel.TileRequest) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/gateway/raw/%d/%d/%d/%d", c.base, meta.ID, req.Level, req.X, req.Y)
	params := url.Values{}
	params.Set("z", fmt.Sprint(req.Z))
	params.Set("t", fmt.Sprint(req.T))
	params.Set("c", fmt.Sprint(req.C))
	return c.client.Get(ctx, endpoint, params, c.token())
}

// Close implements Conn.Close; the HTTP connection pool needs no teardown.
func (c *HTTPConn) Close() error { return nil }
