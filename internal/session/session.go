// Package session owns the lifecycle of connections to remote image
// repositories: a Registry guaranteeing one live Session per server identity,
// and the Session itself, which authenticates, exposes the lazily populated
// catalog root and hands out pixel backends.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/async"
	"github.com/axonlab/mirador/internal/catalog"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/pixel"
	"github.com/axonlab/mirador/internal/remote"
	"github.com/axonlab/mirador/pkg/metrics"
)

// AuthState is the authentication state of a session.
type AuthState int32

const (
	StateUnauthenticated AuthState = iota
	StateAuthenticating
	StateAuthenticated
	StateFailed
	StateCanceled
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// LoginResult is the identity established by a successful login.
type LoginResult struct {
	UserID   int64
	Username string
	GroupID  int64
}

// Session is one live connection context to a remote server, authenticated
// or not. Sessions are created and owned by a Registry; everything a session
// creates (backends, catalog entities, readers) lives and dies with it.
type Session struct {
	id        string
	serverURL string
	logger    *zap.Logger
	api       *remote.API
	registry  *Registry
	metrics   *metrics.Metrics
	prompt    CredentialPrompt

	runCtx    context.Context
	runCancel context.CancelFunc

	token atomic.Value // string

	mu        sync.Mutex
	state     AuthState
	userID    int64
	username  string
	groupID   int64
	loginTask *async.Task[LoginResult]

	apis        []pixel.API
	gatewayConn interface{ Close() error }

	readersMu sync.Mutex
	readers   map[*trackedReader]struct{}

	openedMu sync.Mutex
	opened   map[int64]struct{}

	root   *catalog.Entity
	closed atomic.Bool
}

// ID returns the session's client-generated unique id.
func (s *Session) ID() string { return s.id }

// ServerURL returns the canonical identity of the remote server.
func (s *Session) ServerURL() string { return s.serverURL }

// State returns the current authentication state.
func (s *Session) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated reports whether the session currently holds a token.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// Token returns the current session token, empty when unauthenticated.
func (s *Session) Token() string {
	if v, ok := s.token.Load().(string); ok {
		return v
	}
	return ""
}

// UserID returns the authenticated user id, 0 when unauthenticated.
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Username returns the authenticated user name.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// GroupID returns the authenticated user's current group.
func (s *Session) GroupID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupID
}

// Root returns the server root entity of the catalog tree.
func (s *Session) Root() *catalog.Entity { return s.root }

// APIs returns the pixel backends owned by this session, in a stable order.
func (s *Session) APIs() []pixel.API {
	out := make([]pixel.API, len(s.apis))
	copy(out, s.apis)
	return out
}

// PixelAPI returns the backend of the given kind, or nil if this session has
// none (the raw gateway is optional).
func (s *Session) PixelAPI(kind pixel.Kind) pixel.API {
	for _, a := range s.apis {
		if a.Kind() == kind {
			return a
		}
	}
	return nil
}

// AddOpenedImage bookmarks an image as opened for UI display.
func (s *Session) AddOpenedImage(id int64) {
	s.openedMu.Lock()
	defer s.openedMu.Unlock()
	s.opened[id] = struct{}{}
}

// OpenedImages returns the bookmarked image ids.
func (s *Session) OpenedImages() []int64 {
	s.openedMu.Lock()
	defer s.openedMu.Unlock()
	out := make([]int64, 0, len(s.opened))
	for id := range s.opened {
		out = append(out, id)
	}
	return out
}

// Login authenticates the session. It is not re-entrant: while a login is in
// flight, later callers receive the same task. A failed login leaves the
// session usable unauthenticated; authentication is a capability, not a
// precondition.
func (s *Session) Login(creds *Credentials) *async.Task[LoginResult] {
	if s.closed.Load() {
		return async.Failed[LoginResult](errorx.ErrSessionClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAuthenticating && s.loginTask != nil {
		return s.loginTask
	}
	if s.state == StateAuthenticated {
		return async.Completed(LoginResult{UserID: s.userID, Username: s.username, GroupID: s.groupID})
	}

	s.state = StateAuthenticating
	task := async.Go(s.runCtx, func(ctx context.Context) (LoginResult, error) {
		res, err := s.doLogin(ctx, creds)
		s.finishLogin(res, err)
		s.metrics.ObserveLogin(err)
		return res, err
	})
	s.loginTask = task
	return task
}

func (s *Session) doLogin(ctx context.Context, creds *Credentials) (LoginResult, error) {
	if creds == nil {
		if s.prompt == nil {
			return LoginResult{}, fmt.Errorf("%w: no credentials and no prompt", errorx.ErrAuthenticationCanceled)
		}
		var err error
		creds, err = s.prompt.RequestCredentials(ctx, s.serverURL)
		if err != nil || creds == nil {
			if err == nil {
				err = errorx.ErrAuthenticationCanceled
			}
			if !errors.Is(err, errorx.ErrAuthenticationCanceled) {
				err = errors.Join(errorx.ErrAuthenticationCanceled, err)
			}
			return LoginResult{}, err
		}
	}

	res, err := s.api.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return LoginResult{}, err
	}
	s.token.Store(res.Token)
	return LoginResult{UserID: res.UserID, Username: res.Username, GroupID: res.GroupID}, nil
}

func (s *Session) finishLogin(res LoginResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginTask = nil

	switch {
	case err == nil:
		s.state = StateAuthenticated
		s.userID = res.UserID
		s.username = res.Username
		s.groupID = res.GroupID
		s.logger.Info("login succeeded",
			zap.String("user", res.Username),
			zap.Int64("group", res.GroupID))
	case errors.Is(err, errorx.ErrAuthenticationCanceled):
		s.state = StateCanceled
		s.logger.Info("login canceled")
	default:
		s.state = StateFailed
		s.logger.Warn("login failed", zap.Error(err))
	}
}

// Logout invalidates the session token server-side and drops back to the
// unauthenticated state. Backends that require authentication become
// unavailable without recreating the session.
func (s *Session) Logout(ctx context.Context) error {
	if s.closed.Load() {
		return errorx.ErrSessionClosed
	}
	err := s.api.Logout(ctx)

	s.mu.Lock()
	s.state = StateUnauthenticated
	s.userID = 0
	s.username = ""
	s.groupID = 0
	s.mu.Unlock()
	s.token.Store("")

	return err
}

// handleAuthError reacts to an out-of-band token invalidation detected on any
// request: the session drops to Failed but stays open.
func (s *Session) handleAuthError(err error) {
	if !errors.Is(err, errorx.ErrSessionTokenInvalid) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return
	}
	s.state = StateFailed
	s.token.Store("")
	s.logger.Warn("session token invalidated by server")
}

// Close releases everything the session owns: in-flight fetches and logins
// are canceled, every issued reader is closed and the session is evicted from
// its registry. Close is idempotent.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.runCancel()

	s.readersMu.Lock()
	readers := make([]*trackedReader, 0, len(s.readers))
	for r := range s.readers {
		readers = append(readers, r)
	}
	s.readers = map[*trackedReader]struct{}{}
	s.readersMu.Unlock()

	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.gatewayConn != nil {
		if err := s.gatewayConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.registry != nil {
		s.registry.evict(s)
	}
	s.logger.Info("session closed", zap.Int("readers_released", len(readers)))
	return errors.Join(errs...)
}

// NewReader creates a tile reader on the given backend and registers it with
// the session so Close can release it.
func (s *Session) NewReader(ctx context.Context, api pixel.API, meta pixel.ImageMeta, opts pixel.ReaderOptions) (pixel.Reader, error) {
	if s.closed.Load() {
		return nil, errorx.ErrSessionClosed
	}
	inner, err := api.NewReader(ctx, meta, opts)
	if err != nil {
		return nil, err
	}

	r := &trackedReader{inner: inner, session: s, backend: api.Name()}
	s.readersMu.Lock()
	s.readers[r] = struct{}{}
	s.readersMu.Unlock()
	return r, nil
}

// trackedReader wraps a backend reader so the owning session can release it
// and instrument its reads.
type trackedReader struct {
	inner   pixel.Reader
	session *Session
	backend string
	closed  atomic.Bool
}

var _ pixel.Reader = (*trackedReader)(nil)

// ReadTile implements pixel.Reader.ReadTile
func (r *trackedReader) ReadTile(ctx context.Context, req pixel.TileRequest) (*pixel.Tile, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("%w: reader closed", errorx.ErrTileReadFailed)
	}
	start := time.Now()
	tile, err := r.inner.ReadTile(ctx, req)
	r.session.metrics.ObserveTileRead(r.backend, time.Since(start), err)
	if err != nil {
		r.session.handleAuthError(err)
		return nil, err
	}
	return tile, nil
}

// Close implements pixel.Reader.Close; safe to call multiple times.
func (r *trackedReader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.session.readersMu.Lock()
	delete(r.session.readers, r)
	r.session.readersMu.Unlock()
	return r.inner.Close()
}

// newSessionID generates the client-side session identifier used in logs.
func newSessionID() string {
	return uuid.NewString()
}
