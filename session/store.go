package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jmcleod/hrclient/gateway"
)

// LogoutPolicy decides how Logout treats a backend that did not acknowledge
// the logout call. Local state is cleared under every policy.
type LogoutPolicy int

const (
	// LogoutBestEffort swallows backend logout failures.
	LogoutBestEffort LogoutPolicy = iota
	// LogoutRequireRevocation reports backend logout failures as
	// ErrRevocationFailed, for deployments that need server-side revocation.
	LogoutRequireRevocation
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger for session events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.events = newEventLogger(logger) }
}

// WithLogoutPolicy selects how backend logout failures are reported.
func WithLogoutPolicy(p LogoutPolicy) Option {
	return func(s *Store) { s.logoutPolicy = p }
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

type identityResponse struct {
	User     *User     `json:"user"`
	Employee *Employee `json:"employee"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Store is the single source of truth for authentication state.
type Store struct {
	gw           *gateway.Client
	persister    Persister
	events       *eventLogger
	logoutPolicy LogoutPolicy

	mu    sync.Mutex
	state Session
	phase Phase
	// epoch changes whenever a session begins or ends. Results of network
	// calls started under an older epoch are discarded.
	epoch uint64
	seq   uint64

	saveMu    sync.Mutex
	savedSeq  uint64
	initiated atomic.Bool
	wg        sync.WaitGroup
}

// NewStore creates an anonymous store and registers it as gw's refresher.
func NewStore(gw *gateway.Client, persister Persister, opts ...Option) *Store {
	s := &Store{
		gw:        gw,
		persister: persister,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = newEventLogger(nil)
	}
	gw.SetRefresher(func(ctx context.Context) error {
		return s.Refresh(ctx).Err()
	})
	return s
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Phase returns the current state-machine phase.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ClearError drops the last failure message.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
}

// Close waits for background work started by Initialize.
func (s *Store) Close() {
	s.wg.Wait()
}

// commitLocked records a mutation and returns the projection to persist and
// its sequence number. The caller must hold s.mu and call persist after
// releasing it.
func (s *Store) commitLocked() (Projection, uint64) {
	s.seq++
	return s.state.projection(), s.seq
}

// persist writes proj unless a newer projection has already been written.
func (s *Store) persist(ctx context.Context, proj Projection, seq uint64) {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if seq <= s.savedSeq {
		return
	}
	if err := s.persister.Save(proj); err != nil {
		s.events.logAt(ctx, slog.LevelError, EventPersistFailure, slog.String("error", err.Error()))
		return
	}
	s.savedSeq = seq
}

// Login exchanges credentials for a token pair. On success the store is
// authenticated and the gateway carries the new access token.
func (s *Store) Login(ctx context.Context, username, password string) Result {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.endLocally(ctx, msgCredentialsRequired)
		return failure(msgCredentialsRequired)
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.phase = PhaseAuthenticating
	s.state.IsLoading = true
	s.state.Error = ""
	s.mu.Unlock()

	var lr loginResponse
	resp, err := s.gw.Do(ctx, &gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      loginRequest{Username: username, Password: password},
		NoRecover: true,
	})
	if err == nil {
		err = resp.Decode(&lr)
	}
	if err == nil && (lr.AccessToken == "" || lr.User == nil) {
		err = fmt.Errorf("%w: login response without token or user", gateway.ErrMalformedResponse)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return failure(msgSuperseded)
	}
	if err != nil {
		msg := gateway.Message(err, msgLoginFailed)
		s.state = Session{Error: msg}
		s.phase = PhaseAnonymous
		s.gw.ClearCredential()
		proj, seq := s.commitLocked()
		s.mu.Unlock()
		s.persist(ctx, proj, seq)
		s.events.log(ctx, EventLoginFailure, slog.String("username", username), slog.String("error", err.Error()))
		return failure(msg)
	}

	s.state = Session{
		User:            lr.User,
		AccessToken:     lr.AccessToken,
		RefreshToken:    lr.RefreshToken,
		IsAuthenticated: true,
	}
	s.phase = PhaseAuthenticated
	s.gw.SetCredential(lr.AccessToken)
	proj, seq := s.commitLocked()
	s.mu.Unlock()
	s.persist(ctx, proj, seq)
	s.events.log(ctx, EventLoginSuccess, slog.String("username", lr.User.Username), slog.String("role", string(lr.User.Role)))
	return success()
}

// Logout informs the backend when a session exists, then clears all local
// state regardless of the outcome. It is idempotent. Under
// LogoutRequireRevocation a failed backend call is returned as
// ErrRevocationFailed; otherwise the result is always nil.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.logout(ctx, epoch, false)
}

// logout ends the session. When conditional is set, local state is only
// cleared if no other session began since epoch.
func (s *Store) logout(ctx context.Context, epoch uint64, conditional bool) error {
	s.mu.Lock()
	if conditional && s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	token := s.state.AccessToken
	refreshToken := s.state.RefreshToken
	username := ""
	if s.state.User != nil {
		username = s.state.User.Username
	}
	s.mu.Unlock()

	var revokeErr error
	if token != "" {
		revokeErr = s.revoke(ctx, token)
		// A user-initiated logout with an expired access token renews it once
		// so the backend still learns about the logout. Logouts caused by a
		// failed refresh never come through here.
		if revokeErr != nil && !conditional && refreshToken != "" && errors.Is(revokeErr, gateway.ErrUnauthorized) {
			if fresh, err := s.exchangeRefreshToken(ctx, refreshToken); err == nil {
				revokeErr = s.revoke(ctx, fresh)
			}
		}
		if revokeErr != nil {
			level := slog.LevelWarn
			if s.logoutPolicy == LogoutRequireRevocation {
				level = slog.LevelError
			}
			s.events.logAt(ctx, level, EventLogoutUnacknowledged, slog.String("username", username), slog.String("error", revokeErr.Error()))
		}
	}

	s.mu.Lock()
	if conditional && s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	s.epoch++
	s.state = Session{}
	s.phase = PhaseAnonymous
	s.gw.ClearCredential()
	proj, seq := s.commitLocked()
	s.mu.Unlock()
	s.persist(ctx, proj, seq)
	if token != "" {
		s.events.log(ctx, EventLogout, slog.String("username", username))
	}

	if revokeErr != nil && s.logoutPolicy == LogoutRequireRevocation {
		return fmt.Errorf("%w: %v", ErrRevocationFailed, revokeErr)
	}
	return nil
}

func (s *Store) revoke(ctx context.Context, accessToken string) error {
	_, err := s.gw.Do(ctx, &gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/logout",
		Bearer:    accessToken,
		NoRecover: true,
	})
	return err
}

// endLocally clears the session without contacting the backend and
// records msg as the last error.
func (s *Store) endLocally(ctx context.Context, msg string) {
	s.mu.Lock()
	s.epoch++
	s.state = Session{Error: msg}
	s.phase = PhaseAnonymous
	s.gw.ClearCredential()
	proj, seq := s.commitLocked()
	s.mu.Unlock()
	s.persist(ctx, proj, seq)
}

// Refresh obtains a new access token with the stored refresh token. Only
// the access token changes on success. Any failure ends the session.
func (s *Store) Refresh(ctx context.Context) Result {
	s.mu.Lock()
	refreshToken := s.state.RefreshToken
	epoch := s.epoch
	if refreshToken != "" {
		s.phase = PhaseRefreshing
		s.state.IsLoading = true
	}
	s.mu.Unlock()

	if refreshToken == "" {
		s.events.log(ctx, EventRefreshFailure, slog.String("error", "no refresh token"))
		_ = s.logout(ctx, epoch, true)
		return failure(msgSessionExpired)
	}

	accessToken, err := s.exchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		s.events.log(ctx, EventRefreshFailure, slog.String("error", err.Error()))
		_ = s.logout(ctx, epoch, true)
		return failure(msgSessionExpired)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.events.log(ctx, EventRefreshDiscarded)
		return failure(msgSuperseded)
	}
	s.state.AccessToken = accessToken
	s.state.IsLoading = false
	s.phase = PhaseAuthenticated
	s.gw.SetCredential(accessToken)
	proj, seq := s.commitLocked()
	s.mu.Unlock()
	s.persist(ctx, proj, seq)
	s.events.log(ctx, EventRefreshSuccess)
	return success()
}

// exchangeRefreshToken calls /auth/refresh and returns the new access token
// without touching the session.
func (s *Store) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	resp, err := s.gw.Do(ctx, &gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/refresh",
		Bearer:    refreshToken,
		NoRecover: true,
	})
	if err != nil {
		return "", err
	}
	var rr refreshResponse
	if err := resp.Decode(&rr); err != nil {
		return "", err
	}
	if rr.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh response without access token", gateway.ErrMalformedResponse)
	}
	return rr.AccessToken, nil
}

// FetchIdentity loads the current user and employee profile and merges them
// into the session. A failure is recorded in Error but does not end the
// session.
func (s *Store) FetchIdentity(ctx context.Context) Result {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	var ir identityResponse
	resp, err := s.gw.Get(ctx, "/auth/me", nil)
	if err == nil {
		err = resp.Decode(&ir)
	}
	if err == nil && ir.User == nil {
		err = fmt.Errorf("%w: identity response without user", gateway.ErrMalformedResponse)
	}

	s.mu.Lock()
	// The refresh inside a 401 retry keeps the epoch; only a logout or a
	// new login invalidates this result.
	if s.epoch != epoch {
		s.mu.Unlock()
		return failure(msgSuperseded)
	}
	if err != nil {
		msg := gateway.Message(err, msgIdentityFailed)
		s.state.Error = msg
		s.mu.Unlock()
		s.events.log(ctx, EventIdentityFailure, slog.String("error", err.Error()))
		return failure(msg)
	}
	if !s.state.IsAuthenticated {
		s.mu.Unlock()
		return failure(msgSuperseded)
	}
	user := ir.User
	user.Employee = ir.Employee
	s.state.User = user
	s.state.Error = ""
	proj, seq := s.commitLocked()
	s.mu.Unlock()
	s.persist(ctx, proj, seq)
	return success()
}

// ChangePassword changes the signed-in user's password. Tokens are untouched.
func (s *Store) ChangePassword(ctx context.Context, current, next string) Result {
	if current == "" || next == "" {
		s.mu.Lock()
		s.state.Error = msgPasswordsRequired
		s.mu.Unlock()
		return failure(msgPasswordsRequired)
	}

	s.mu.Lock()
	s.state.IsLoading = true
	s.state.Error = ""
	s.mu.Unlock()

	_, err := s.gw.Post(ctx, "/auth/change-password", changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	})

	s.mu.Lock()
	s.state.IsLoading = false
	if err != nil {
		msg := gateway.Message(err, msgPasswordFailed)
		s.state.Error = msg
		s.mu.Unlock()
		s.events.log(ctx, EventPasswordChangeFailure, slog.String("error", err.Error()))
		return failure(msg)
	}
	username := ""
	if s.state.User != nil {
		username = s.state.User.Username
	}
	s.mu.Unlock()
	s.events.log(ctx, EventPasswordChanged, slog.String("username", username))
	return success()
}

// Initialize restores the persisted projection. It may be called once per
// store. When a saved access token and user exist the store becomes
// authenticated immediately and the profile is re-fetched in the
// background; the returned channel delivers that fetch's result and is
// then closed. With nothing to restore the channel is closed at once.
func (s *Store) Initialize(ctx context.Context) (<-chan Result, error) {
	if !s.initiated.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	done := make(chan Result, 1)
	restored, err := s.restore(ctx)
	if err != nil || !restored {
		close(done)
		return done, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		done <- s.FetchIdentity(ctx)
	}()
	return done, nil
}

// Restore loads the persisted projection like Initialize but makes no
// network call. It reports whether a session was restored. Restore and
// Initialize share the once-per-store guard.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if !s.initiated.CompareAndSwap(false, true) {
		return false, ErrAlreadyInitialized
	}
	return s.restore(ctx)
}

func (s *Store) restore(ctx context.Context) (bool, error) {
	var proj *Projection
	if s.persister != nil {
		var err error
		if proj, err = s.persister.Load(); err != nil {
			return false, fmt.Errorf("restoring session: %w", err)
		}
	}
	if proj == nil || proj.AccessToken == "" || proj.User == nil {
		return false, nil
	}

	s.mu.Lock()
	s.epoch++
	s.state = Session{
		User:            proj.User,
		AccessToken:     proj.AccessToken,
		RefreshToken:    proj.RefreshToken,
		IsAuthenticated: true,
	}
	s.phase = PhaseAuthenticated
	s.gw.SetCredential(proj.AccessToken)
	s.mu.Unlock()
	s.events.log(ctx, EventRestored, slog.String("username", proj.User.Username))
	return true, nil
}
