package models

import (
	"strconv"
	"time"
)

// ProxyMode selects how a client's stream requests are served.
type ProxyMode string

const (
	// ProxyModeReverse pulls the upstream and forwards bytes to the client.
	ProxyModeReverse ProxyMode = "reverse"
	// ProxyModeRedirect returns a 302 to the upstream URL; no slot is consumed.
	ProxyModeRedirect ProxyMode = "redirect"
)

// UserCredentials describes one gateway account. It is owned by the user
// manager's config snapshot and is immutable for the lifetime of that
// snapshot; a config reload produces a new snapshot rather than mutating
// this value in place.
type UserCredentials struct {
	Username       string
	Password       string
	Token          string
	MaxConnections int // 0 = unlimited
	ProxyMode      ProxyMode
	Server         string
	Status         string
	ExpDate        *time.Time
}

// IsExpired reports whether the account's expiration date has passed.
func (u *UserCredentials) IsExpired() bool {
	return u.ExpDate != nil && time.Now().After(*u.ExpDate)
}

// IsActive reports whether the account's status field allows streaming.
func (u *UserCredentials) IsActive() bool {
	return u.Status == "" || u.Status == "Active"
}

// Permission is the outcome of evaluating a user's connection count against
// their configured cap at session-creation time.
type Permission int

const (
	// PermissionAllowed means the session is within the user's cap.
	PermissionAllowed Permission = iota
	// PermissionGracePeriod means the session is the one-time overflow
	// allowance; it is subject to a deferred re-check.
	PermissionGracePeriod
	// PermissionExhausted means the session must be served a fallback clip.
	PermissionExhausted
)

func (p Permission) String() string {
	switch p {
	case PermissionAllowed:
		return "allowed"
	case PermissionGracePeriod:
		return "grace_period"
	case PermissionExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// UserSession is one live (user, fingerprint, virtual_id) binding. There is
// exactly one UserSession per concurrently streaming (user, fingerprint_key,
// virtual_id) triple; it is removed on disconnect or idle-TTL expiry.
type UserSession struct {
	FingerprintKey string
	Username       string
	VirtualID      uint32
	ProviderName   string
	StreamURL      string
	Token          string
	Permission     Permission
	CreatedAt      time.Time
	LastTouch      time.Time
}

// Key returns the map key a session is addressed by in the user manager.
func (s *UserSession) Key() string {
	return s.Username + "\x00" + s.FingerprintKey + "\x00" + s.VirtualIDString()
}

// VirtualIDString renders VirtualID for use in composite keys.
func (s *UserSession) VirtualIDString() string {
	return strconv.FormatUint(uint64(s.VirtualID), 10)
}
