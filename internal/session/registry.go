package session

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/axonlab/mirador/internal/catalog"
	"github.com/axonlab/mirador/internal/common/config"
	"github.com/axonlab/mirador/internal/common/errorx"
	"github.com/axonlab/mirador/internal/pixel/bufsvc"
	"github.com/axonlab/mirador/internal/pixel/gateway"
	"github.com/axonlab/mirador/internal/pixel/webtile"
	"github.com/axonlab/mirador/internal/remote"
	"github.com/axonlab/mirador/internal/transport"
	"github.com/axonlab/mirador/pkg/metrics"
)

// EventType tags a registry membership change.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
)

// Event is one registry membership change, delivered to subscribers.
type Event struct {
	Type    EventType
	Session *Session
}

// Registry maintains at most one live session per server identity. It is an
// explicitly constructed object rather than process-wide state so tests and
// embedders can run several independent registries.
type Registry struct {
	logger  *zap.Logger
	cfg     *config.Config
	client  transport.Client
	prompt  CredentialPrompt
	metrics *metrics.Metrics

	group    singleflight.Group
	mu       sync.RWMutex
	sessions map[string]*Session

	subsMu  sync.Mutex
	subs    map[int64]chan Event
	nextSub int64

	closed atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrompt installs the credential prompt collaborator used when Login is
// called without credentials.
func WithPrompt(p CredentialPrompt) Option {
	return func(r *Registry) { r.prompt = p }
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(c transport.Client) Option {
	return func(r *Registry) { r.client = c }
}

// WithMetrics installs prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a session registry.
func NewRegistry(logger *zap.Logger, cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{
		logger:   logger.Named("session.registry"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
		subs:     make(map[int64]chan Event),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = transport.NewHTTPClient(logger, &cfg.Transport)
	}
	return r
}

// CanonicalIdentity normalizes a server URL to its identity:
// scheme://host[:port], lowercase, with path, query and fragment dropped.
func CanonicalIdentity(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errorx.ErrUnreachableServer, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an http(s) server URL", errorx.ErrUnreachableServer, rawURL)
	}
	return u.Scheme + "://" + strings.ToLower(u.Host), nil
}

// GetOrCreate returns the live session for the given server, creating it if
// none exists. Concurrent calls for the same identity collapse into a single
// creation; every caller observes the same session or the same failure.
// When credentials are given, creation attempts a login; a rejected login is
// logged and leaves the returned session unauthenticated rather than failing
// creation.
func (r *Registry) GetOrCreate(ctx context.Context, rawURL string, creds *Credentials) (*Session, error) {
	if r.closed.Load() {
		return nil, errorx.ErrSessionClosed
	}
	identity, err := CanonicalIdentity(rawURL)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	existing, ok := r.sessions[identity]
	r.mu.RUnlock()
	if ok && !existing.closed.Load() {
		return existing, nil
	}

	v, err, _ := r.group.Do(identity, func() (any, error) {
		r.mu.RLock()
		s, ok := r.sessions[identity]
		r.mu.RUnlock()
		if ok && !s.closed.Load() {
			return s, nil
		}

		s, err := r.createSession(ctx, identity, creds)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sessions[identity] = s
		r.mu.Unlock()
		r.publish(Event{Type: EventAdded, Session: s})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Remove closes the session and evicts it from the registry. Removing an
// already-removed session is a no-op.
func (r *Registry) Remove(s *Session) error {
	if s == nil {
		return nil
	}
	return s.Close()
}

// List returns a snapshot of the live sessions, ordered by server identity.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].serverURL < out[j].serverURL })
	return out
}

// Subscribe registers a membership observer. Events are delivered best-effort
// on a buffered channel; the returned cancel function releases it.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan Event, 16)
	r.subs[id] = ch
	return ch, func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Registry) publish(e Event) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- e:
		default:
			// A stalled subscriber must not block session lifecycle; the
			// membership list is only eventually consistent.
			r.logger.Warn("dropping registry event for slow subscriber",
				zap.String("type", string(e.Type)))
		}
	}
}

// evict removes the session from the map; called by Session.Close.
func (r *Registry) evict(s *Session) {
	r.mu.Lock()
	removed := false
	if cur, ok := r.sessions[s.serverURL]; ok && cur == s {
		delete(r.sessions, s.serverURL)
		removed = true
	}
	r.mu.Unlock()
	if removed {
		r.publish(Event{Type: EventRemoved, Session: s})
	}
}

// Close closes every session and shuts the registry down.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, s := range r.List() {
		_ = s.Close()
	}
	return nil
}

// createSession builds a session for one server: probes compatibility, wires
// the pixel backends and the catalog root, and optionally logs in.
func (r *Registry) createSession(ctx context.Context, identity string, creds *Credentials) (*Session, error) {
	logger := r.logger.Named("session").With(zap.String("server", identity))
	runCtx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        newSessionID(),
		serverURL: identity,
		logger:    logger,
		registry:  r,
		metrics:   r.metrics,
		prompt:    r.prompt,
		runCtx:    runCtx,
		runCancel: cancel,
		readers:   make(map[*trackedReader]struct{}),
		opened:    make(map[int64]struct{}),
	}

	api, err := remote.NewAPI(logger, r.client, identity, s.Token)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", errorx.ErrUnreachableServer, err)
	}
	s.api = api

	if err := api.CheckCompatibility(ctx); err != nil {
		cancel()
		return nil, err
	}

	s.apis = append(s.apis, webtile.New(logger, api, map[string]string{
		webtile.ArgQuality: r.cfg.Backends.WebTile.Quality,
	}))

	if r.cfg.Backends.Gateway.Enabled {
		conn, err := gateway.DialHTTP(r.client, r.cfg.Backends.Gateway.Address, s.Token)
		if err != nil {
			logger.Warn("gateway enabled but not dialable, feature disabled", zap.Error(err))
		} else {
			s.gatewayConn = conn
			s.apis = append(s.apis, gateway.New(logger, conn, s.IsAuthenticated))
		}
	}

	host, label := splitIdentity(identity)
	s.apis = append(s.apis, bufsvc.New(logger, r.client, host, r.cfg.Backends.BufSvc.Port))

	l := &lister{session: s}
	s.root = catalog.New(catalog.KindServer, 0, label, nil, l.opts())

	if creds != nil {
		if _, err := s.Login(creds).Await(ctx); err != nil {
			logger.Warn("initial login failed, session stays unauthenticated", zap.Error(err))
		}
	}

	logger.Info("session created", zap.String("id", s.id))
	return s, nil
}

// splitIdentity returns the scheme://hostname part (without port) and a
// display label for the root entity.
func splitIdentity(identity string) (host, label string) {
	u, err := url.Parse(identity)
	if err != nil {
		return identity, identity
	}
	return u.Scheme + "://" + u.Hostname(), u.Host
}
