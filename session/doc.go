// Package session owns the authenticated session of the HR client: the
// signed-in user and the access/refresh token pair.
//
// A Store is the only writer of session state. It talks to the backend
// through a gateway.Client, registers itself as that client's refresher,
// and writes a projection of its state through a Persister after every
// mutation so a restarted process can resume the session with Initialize.
//
// Expected failures (bad credentials, expired tokens, unreachable backend)
// are reported as Result values, never as panics.
package session
