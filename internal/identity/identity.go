// Package identity derives stable caller identities for rate limiting.
// A caller is identified by a client-supplied opaque device token when one is
// present, falling back to the network address otherwise. Device tokens allow
// stable identification behind shared NATs and proxies.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrMissing is returned when the resolver requires a device token and the
// request supplied none. Callers are rejected rather than pooled into a
// shared anonymous bucket, which would let one caller exhaust another's quota.
var ErrMissing = errors.New("identity: no device token supplied")

// Metadata is the transport information an identity is derived from.
type Metadata struct {
	DeviceID     string // opaque token from the request body, may be empty
	ForwardedFor string // X-Forwarded-For header, may be empty
	RemoteAddr   string // direct connection address
	UserAgent    string // used only for board device fingerprints
}

// FromRequest collects identity metadata from an HTTP request. The device
// token, when the endpoint carries one, comes from the parsed body and is
// passed separately.
func FromRequest(r *http.Request, deviceID string) Metadata {
	return Metadata{
		DeviceID:     deviceID,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RemoteAddr:   r.RemoteAddr,
		UserAgent:    r.Header.Get("User-Agent"),
	}
}

// Resolver turns request metadata into a rate-limit key.
type Resolver struct {
	requireDeviceID bool
}

// NewResolver creates a resolver. When requireDeviceID is set, requests
// without a device token are rejected with ErrMissing.
func NewResolver(requireDeviceID bool) *Resolver {
	return &Resolver{requireDeviceID: requireDeviceID}
}

// Resolve produces the caller's rate-limit key. A non-empty device token is
// authoritative regardless of network address and is hashed so raw tokens
// never appear in maps or logs. Otherwise the first forwarded-for hop wins,
// then the direct address.
func (r *Resolver) Resolve(meta Metadata) (string, error) {
	if token := strings.TrimSpace(meta.DeviceID); token != "" {
		return "device:" + hash(token), nil
	}

	if r.requireDeviceID {
		return "", ErrMissing
	}

	return "ip:" + clientAddr(meta), nil
}

// Fingerprint derives the board's device identity: a hash of the client
// address and user agent, matching how the board has always keyed its users.
func Fingerprint(meta Metadata) string {
	return hash(clientAddr(meta) + ":" + meta.UserAgent)
}

// clientAddr picks the best client address from the metadata.
func clientAddr(meta Metadata) string {
	if meta.ForwardedFor != "" {
		parts := strings.Split(meta.ForwardedFor, ",")
		if addr := strings.TrimSpace(parts[0]); addr != "" {
			return addr
		}
	}

	// Strip the port from direct connection addresses so one client does
	// not get a fresh bucket per TCP connection.
	if host, _, err := net.SplitHostPort(meta.RemoteAddr); err == nil {
		return host
	}
	return meta.RemoteAddr
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
