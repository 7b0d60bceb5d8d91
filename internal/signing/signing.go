// Package signing produces and checks the keyed signatures carried by the
// per-room QR form links.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"room-status-backend/internal/policy"
)

var (
	// ErrBadSignature is returned when a signature does not match.
	ErrBadSignature = errors.New("signature mismatch")
	// ErrLocalHost is returned for base URLs a phone cannot reach.
	ErrLocalHost = errors.New("base URL host is only reachable from this machine")
)

var localHosts = map[string]bool{
	"0.0.0.0":   true,
	"127.0.0.1": true,
	"localhost": true,
}

// Signer signs (room, role) pairs with HMAC-SHA256.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is empty")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the hex HMAC of "<roomID>:<role>" with role lower-cased.
func (s *Signer) Sign(roomID int64, role policy.Role) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%s", roomID, policy.NormalizeRole(string(role)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature in constant time.
func (s *Signer) Verify(roomID int64, role policy.Role, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: invalid hex", ErrBadSignature)
	}
	want, _ := hex.DecodeString(s.Sign(roomID, role))
	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}

// FormURL builds the signed form link for a room and role.
func (s *Signer) FormURL(baseURL string, roomID int64, role policy.Role) string {
	role = policy.NormalizeRole(string(role))
	q := url.Values{}
	q.Set("room_id", fmt.Sprintf("%d", roomID))
	q.Set("role", string(role))
	q.Set("sig", s.Sign(roomID, role))
	return strings.TrimRight(baseURL, "/") + "/form?" + q.Encode()
}

// ValidateBaseURL requires an http(s) URL with a host. Loopback and
// wildcard hosts are rejected unless allowLocal is set.
func ValidateBaseURL(baseURL string, allowLocal bool) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q must begin with http:// or https://", baseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL %q must include a host", baseURL)
	}
	if !allowLocal && localHosts[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("%w: %s (use the LAN address or allow local-only links)", ErrLocalHost, u.Hostname())
	}
	return nil
}

// GuessReachableHost returns the address of the interface used for outbound
// traffic, falling back to 127.0.0.1. No packets are sent.
func GuessReachableHost() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
