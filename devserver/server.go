// Package devserver is an in-memory HR backend implementing the
// authentication endpoints the client talks to. It backs the CLI's
// devserver command and the integration tests of the session and gateway
// packages.
package devserver

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	openapi "github.com/go-openapi/runtime/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/hrclient/internal/util"
)

// MountPath is where Handler serves the API.
const MountPath = "/api"

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

//go:embed openapi.yaml
var openapiSpec []byte

// Server holds the in-memory accounts and token state.
type Server struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	seed       bool
	logger     *slog.Logger
	limiter    *loginLimiter

	mu         sync.Mutex
	accounts   map[string]*account
	nextID     int64
	generation uint64
	revoked    map[string]time.Time

	failRefresh  atomic.Bool
	refreshCalls atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HMAC key used to sign tokens. A random key is
// generated when unset.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithTokenTTL sets access and refresh token lifetimes. Zero keeps the default.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Server) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithoutSeedUsers starts the server with no accounts.
func WithoutSeedUsers() Option {
	return func(s *Server) { s.seed = false }
}

// New creates a server seeded with admin/admin123 and user/user123 unless
// WithoutSeedUsers is given.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		bcryptCost: bcrypt.DefaultCost,
		seed:       true,
		limiter:    newLoginLimiter(),
		accounts:   make(map[string]*account),
		revoked:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("component", "devserver")
	if len(s.secret) == 0 {
		secret, err := util.RandomBytes(32)
		if err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		s.secret = secret
	}
	if s.seed {
		if err := s.seedUsers(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Router returns the API routes, to be mounted at MountPath.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(noStore)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", openapi.SwaggerUI(openapi.SwaggerUIOpts{
		SpecURL: MountPath + "/openapi.yaml",
		Path:    "api/docs",
	}, nil))
	r.Handle("/redoc*", openapi.Redoc(openapi.RedocOpts{
		SpecURL: MountPath + "/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.Get("/health", s.Health)
	r.Post("/auth/login", s.Login)
	r.With(s.countRefresh, s.requireToken(tokenRefresh)).Post("/auth/refresh", s.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken(tokenAccess))
		r.Post("/auth/logout", s.Logout)
		r.Get("/auth/me", s.Me)
		r.Post("/auth/change-password", s.ChangePassword)
		r.Get("/employees", s.ListEmployees)
		r.Get("/employees/{employeeID}", s.GetEmployee)
	})
	return r
}

// Handler returns a root handler serving the API under MountPath.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.Health)
	r.Mount(MountPath, s.Router())
	return r
}

func (s *Server) countRefresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		next.ServeHTTP(w, r)
	})
}

// RevokeAccess invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) RevokeAccess() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// FailRefresh makes /auth/refresh reject every token while on is set.
func (s *Server) FailRefresh(on bool) {
	s.failRefresh.Store(on)
}

// RefreshCalls returns how many requests reached /auth/refresh.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// LastLogin returns the last successful login time of username.
func (s *Server) LastLogin(username string) (time.Time, bool) {
	acct, ok := s.accountByName(username)
	if !ok || acct.lastLogin.IsZero() {
		return time.Time{}, false
	}
	return acct.lastLogin, true
}
