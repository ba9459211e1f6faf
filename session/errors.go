package session

import "errors"

var (
	// ErrAlreadyInitialized is returned by a second call to Store.Initialize.
	ErrAlreadyInitialized = errors.New("session already initialized")
	// ErrRevocationFailed is returned by Store.Logout under
	// LogoutRequireRevocation when the backend did not acknowledge the logout.
	ErrRevocationFailed = errors.New("backend logout failed")
	// ErrInvalidWrappingKey indicates a wrapping key of the wrong size or encoding.
	ErrInvalidWrappingKey = errors.New("invalid wrapping key")
)

const (
	msgLoginFailed         = "an error occurred while logging in"
	msgCredentialsRequired = "username and password are required"
	msgIdentityFailed      = "failed to fetch user information"
	msgPasswordFailed      = "failed to change password"
	msgPasswordsRequired   = "current and new password are required"
	msgSessionExpired      = "session expired, please log in again"
	msgSuperseded          = "session changed while the request was in flight"
)
