package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
)

// Fingerprint is the per-request identity derived from connection metadata.
// Key is deterministic for a given (remote IP, user agent, accept header)
// triple so a reconnecting client recovers the same identity; Addr is the
// live socket endpoint of the current connection and is not stable across
// reconnects.
type Fingerprint struct {
	Key  string
	Addr net.Addr
}

// NewFingerprint derives a Fingerprint from request metadata. addr is the
// connection's socket address; remoteIP is the client IP taken from
// r.RemoteAddr; userAgent and accept come from the corresponding request
// headers. Only remoteIP, userAgent and accept feed Key.
func NewFingerprint(addr net.Addr, remoteIP, userAgent, accept string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(remoteIP))
	h.Write([]byte{0})
	h.Write([]byte(userAgent))
	h.Write([]byte{0})
	h.Write([]byte(accept))
	sum := h.Sum(nil)
	return Fingerprint{
		Key:  hex.EncodeToString(sum[:16]),
		Addr: addr,
	}
}
