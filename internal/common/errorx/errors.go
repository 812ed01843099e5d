package errorx

import "errors"

// Error taxonomy of the client runtime. Callers discriminate with errors.Is;
// every error crossing a package boundary wraps exactly one of these so the
// UI layer can distinguish "could not reach server" from "could not log in"
// from "this image/backend is incompatible".
var (
	// ErrUnreachableServer is returned when the base URL cannot be resolved
	// or contacted at all.
	ErrUnreachableServer = errors.New("server unreachable")
	// ErrIncompatibleServer is returned when the server is reachable but does
	// not expose the expected API version or listing endpoint.
	ErrIncompatibleServer = errors.New("server incompatible")
	// ErrAuthenticationFailed covers rejected credentials and malformed login
	// responses alike.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAuthenticationCanceled is returned when the credential prompt was
	// dismissed by the user.
	ErrAuthenticationCanceled = errors.New("authentication canceled")
	// ErrAPIUnavailable is returned by a pixel backend whose availability
	// precondition does not hold at call time.
	ErrAPIUnavailable = errors.New("pixel API unavailable")
	// ErrUnsupportedImage is returned when a backend cannot serve an image's
	// declared pixel type or channel count.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrTileReadFailed is a per-call tile read failure; the reader stays valid.
	ErrTileReadFailed = errors.New("tile read failed")
	// ErrListingFetchFailed is returned when populating an entity's children
	// fails; the entity may be populated again.
	ErrListingFetchFailed = errors.New("listing fetch failed")

	// ErrSessionClosed is returned by any operation on a closed session or on
	// a reader it has released.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionTokenInvalid signals that the server rejected the session
	// token out of band; the session drops back to unauthenticated.
	ErrSessionTokenInvalid = errors.New("session token invalid")
)
