package session

import (
	"context"
	"io"
	"log/slog"
)

// Event identifies a security-relevant change of session state.
type Event string

const (
	EventLoginSuccess          Event = "login_success"
	EventLoginFailure          Event = "login_failure"
	EventLogout                Event = "logout"
	EventLogoutUnacknowledged  Event = "logout_unacknowledged"
	EventRefreshSuccess        Event = "refresh_success"
	EventRefreshFailure        Event = "refresh_failure"
	EventRefreshDiscarded      Event = "refresh_discarded"
	EventIdentityFailure       Event = "identity_failure"
	EventPasswordChanged       Event = "password_changed"
	EventPasswordChangeFailure Event = "password_change_failure"
	EventRestored              Event = "session_restored"
	EventPersistFailure        Event = "persist_failure"
)

// eventLogger writes structured session events. Tokens are never logged;
// users are identified by username.
type eventLogger struct {
	logger *slog.Logger
}

func newEventLogger(logger *slog.Logger) *eventLogger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &eventLogger{logger: logger.With("component", "session")}
}

func (el *eventLogger) log(ctx context.Context, event Event, attrs ...slog.Attr) {
	el.logAt(ctx, slog.LevelInfo, event, attrs...)
}

func (el *eventLogger) logAt(ctx context.Context, level slog.Level, event Event, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.String("event", string(event))}, attrs...)
	el.logger.LogAttrs(ctx, level, "session event", attrs...)
}
