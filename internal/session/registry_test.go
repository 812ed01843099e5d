package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axonlab/mirador/cmd/mock-imgserver/backend"
	"github.com/axonlab/mirador/internal/catalog"
	"github.com/axonlab/mirador/internal/common/config"
	"github.com/axonlab/mirador/internal/common/errorx"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Transport.Timeout = 5 * time.Second
	cfg.Transport.MaxRetries = 0
	cfg.Transport.RetryInterval = time.Millisecond
	return cfg
}

// newMockServer starts the in-memory image repository and counts version
// probes so creation dedup is observable.
func newMockServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var probes atomic.Int32
	inner := backend.NewServer(zap.NewNop(), backend.Options{}).Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/" {
			probes.Add(1)
		}
		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &probes
}

func TestCanonicalIdentity(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "http://server.example", "http://server.example", false},
		{"path and query dropped", "https://server.example/webclient/?show=1", "https://server.example", false},
		{"host lowercased", "http://Server.EXAMPLE:8080", "http://server.example:8080", false},
		{"port preserved", "http://server.example:4064", "http://server.example:4064", false},
		{"surrounding space", "  http://server.example ", "http://server.example", false},
		{"not http", "ftp://server.example", "", true},
		{"no host", "http://", "", true},
		{"garbage", "not a url", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalIdentity(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, errorx.ErrUnreachableServer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetOrCreate_ConcurrentCallsShareOneSession(t *testing.T) {
	srv, probes := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	sessions := make([]*Session, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate(context.Background(), srv.URL, nil)
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, int32(1), probes.Load())
	assert.Len(t, r.List(), 1)
}

func TestGetOrCreate_SameIdentityDifferentURLs(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	a, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	b, err := r.GetOrCreate(context.Background(), srv.URL+"/webclient/", nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGetOrCreate_IncompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"version":"v9"}]}`)
	}))
	defer srv.Close()

	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, errorx.ErrIncompatibleServer)
	assert.Empty(t, r.List())
}

func TestGetOrCreate_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), addr, nil)
	assert.ErrorIs(t, err, errorx.ErrUnreachableServer)
}

func TestGetOrCreate_FailureIsNotCached(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), "http://127.0.0.1:1", nil)
	require.Error(t, err)

	// an unrelated reachable server still works
	s, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestGetOrCreate_WithCredentials(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	s, err := r.GetOrCreate(context.Background(), srv.URL, &Credentials{Username: "root", Password: "password"})
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "root", s.Username())
	assert.NotZero(t, s.UserID())
}

func TestGetOrCreate_RejectedCredentialsStillCreates(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	s, err := r.GetOrCreate(context.Background(), srv.URL, &Credentials{Username: "root", Password: "wrong"})
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, StateFailed, s.State())
	assert.Len(t, r.List(), 1)
}

func TestRegistry_Subscribe(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	events, cancel := r.Subscribe()
	defer cancel()

	s, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	e := <-events
	assert.Equal(t, EventAdded, e.Type)
	assert.Same(t, s, e.Session)

	require.NoError(t, r.Remove(s))
	e = <-events
	assert.Equal(t, EventRemoved, e.Type)
	assert.Same(t, s, e.Session)
	assert.Empty(t, r.List())
}

func TestRegistry_CloseRejectsFurtherUse(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())

	s, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.True(t, s.closed.Load())
	_, err = r.GetOrCreate(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, errorx.ErrSessionClosed)
}

func TestClose_EvictsAndAllowsRecreation(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	a, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close()) // idempotent
	assert.Empty(t, r.List())

	b, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestList_SortedByIdentity(t *testing.T) {
	srvA, _ := newMockServer(t)
	srvB, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), srvA.URL, nil)
	require.NoError(t, err)
	_, err = r.GetOrCreate(context.Background(), srvB.URL, nil)
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Less(t, list[0].ServerURL(), list[1].ServerURL())
}

func mockPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestRoot_ListsProjectsAndOrphanedFolder(t *testing.T) {
	srv, _ := newMockServer(t)
	r := NewRegistry(zap.NewNop(), testConfig())
	defer r.Close()

	s, err := r.GetOrCreate(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	children, err := s.Root().GetChildren().Await(context.Background())
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, catalog.KindProject, children[0].Kind)
	assert.Equal(t, "Specimen survey", children[0].Name)
	// the orphaned folder is synthesized as the last child
	last := children[len(children)-1]
	assert.Equal(t, catalog.KindOrphanedFolder, last.Kind)
	assert.Equal(t, OrphanedFolderID, last.ID)

	orphans, err := last.GetChildren().Await(context.Background())
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, catalog.KindImage, orphans[0].Kind)
	assert.Equal(t, "unsorted.tiff", orphans[0].Name)
}
