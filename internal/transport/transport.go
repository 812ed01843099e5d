// Package transport implements the HTTP request collaborator consumed by the
// listings client, session login and the web-tile backend. Retry policy lives
// here; callers above this layer surface transport failures immediately.
package transport

import (
	"context"
	"fmt"
	"net/url"
)

// Client issues authorized HTTP requests against a remote image repository.
type Client interface {
	// Get performs a GET request and returns the raw response body.
	Get(ctx context.Context, rawURL string, params url.Values, token string) ([]byte, error)

	// PostForm performs a form-encoded POST request and returns the raw
	// response body.
	PostForm(ctx context.Context, rawURL string, form url.Values, token string) ([]byte, error)
}

// StatusError reports a non-2xx HTTP response that is not an authorization
// failure.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
