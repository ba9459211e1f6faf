package session_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/hrclient/devserver"
	"github.com/jmcleod/hrclient/gateway"
	"github.com/jmcleod/hrclient/session"
	"github.com/jmcleod/hrclient/storage"
	"github.com/jmcleod/hrclient/storage/memory"
)

type harness struct {
	dev       *devserver.Server
	srv       *httptest.Server
	gw        *gateway.Client
	store     *session.Store
	repo      storage.Repository
	key       []byte
	persister *session.SealedPersister
	logs      *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newHarness starts a development backend, optionally wrapped by wrap, and
// returns a store bound to it with a sealed in-memory persister.
func newHarness(t *testing.T, wrap func(http.Handler) http.Handler, opts ...session.Option) *harness {
	t.Helper()
	dev, err := devserver.New(devserver.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	var h http.Handler = dev.Handler()
	if wrap != nil {
		h = wrap(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	hexKey, err := session.NewWrappingKeyHex()
	require.NoError(t, err)
	key, err := session.WrappingKeyFromHex(hexKey)
	require.NoError(t, err)

	hs := &harness{
		dev:  dev,
		srv:  srv,
		repo: memory.NewRepository(),
		key:  key,
		logs: &syncBuffer{},
	}
	hs.persister, err = session.NewSealedPersister(hs.repo, "default", key)
	require.NoError(t, err)
	hs.gw, hs.store = hs.newStore(t, opts...)
	return hs
}

// newStore builds a second gateway and store over the same backend and
// persisted state, as a restarted process would.
func (hs *harness) newStore(t *testing.T, opts ...session.Option) (*gateway.Client, *session.Store) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(hs.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	gw, err := gateway.New(hs.srv.URL+devserver.MountPath, gateway.WithLogger(logger))
	require.NoError(t, err)
	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	store := session.NewStore(gw, hs.persister, opts...)
	t.Cleanup(store.Close)
	return gw, store
}

func (hs *harness) login(t *testing.T) session.Session {
	t.Helper()
	res := hs.store.Login(context.Background(), "admin", "admin123")
	require.True(t, res.OK, res.Error)
	return hs.store.Snapshot()
}

// statusOf calls the backend directly with token and returns the status.
func (hs *harness) statusOf(t *testing.T, method, path, token string) int {
	t.Helper()
	req, err := http.NewRequest(method, hs.srv.URL+devserver.MountPath+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := hs.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

// gate holds requests for one path until released.
type gate struct {
	path    string
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate(path string) *gate {
	return &gate{path: path, arrived: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, g.path) {
			g.once.Do(func() { close(g.arrived) })
			<-g.release
		}
		next.ServeHTTP(w, r)
	})
}

// failPath answers 500 for path while on is set.
type failPath struct {
	path string
	mu   sync.Mutex
	on   bool
}

func (f *failPath) set(on bool) {
	f.mu.Lock()
	f.on = on
	f.mu.Unlock()
}

func (f *failPath) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		on := f.on
		f.mu.Unlock()
		if on && strings.HasSuffix(r.URL.Path, f.path) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"database unavailable"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
