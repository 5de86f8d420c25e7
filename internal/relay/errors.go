// Package relay implements the gateway's streaming data plane: provider
// admission, shared-stream fanout, HLS playlist rewriting, and the seamless
// TS fallback loop.
package relay

import "errors"

// Sentinel errors callers branch on. All other failures are plain errors
// wrapped with fmt.Errorf("...: %w", err) at each layer.
var (
	// ErrExhausted means no provider slot or user-connection capacity was
	// available to satisfy the request.
	ErrExhausted = errors.New("relay: capacity exhausted")

	// ErrProviderUnavailable means every configured provider slot for an
	// input is expired or circuit-broken.
	ErrProviderUnavailable = errors.New("relay: provider unavailable")

	// ErrBadToken means an HLS session token failed to decrypt or decode.
	ErrBadToken = errors.New("relay: bad token")

	// ErrUnknownChannel means the requested virtual_id has no catalogue entry.
	ErrUnknownChannel = errors.New("relay: unknown channel")

	// ErrSessionMismatch means a reconnecting request's token referenced a
	// session that no longer exists or belongs to a different user. The
	// gateway also wraps it when a request's credentials match no account.
	ErrSessionMismatch = errors.New("relay: session mismatch")

	// ErrUpstream wraps a failed fetch/dial to a provider.
	ErrUpstream = errors.New("relay: upstream error")
)
