package model

import (
	"fmt"
	"net"
	"time"
)

// Endpoint is the resolved location of the gateway device on the local
// network. Address is usually a dotted-quad IPv4 address, but may carry a
// host:port pair when a non-default admin port is in use.
type Endpoint struct {
	Address string `json:"address"`
	Scheme  string `json:"scheme"`
}

// URL returns the base URL for the endpoint, e.g. "http://10.0.0.1".
func (e Endpoint) URL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, e.Address)
}

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool {
	return e.Address == ""
}

// ValidIPv4 reports whether s is a well-formed dotted-quad IPv4 address.
// Used to vet addresses coming from the host route table or the persisted
// store before they are trusted as gateway candidates.
func ValidIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// Credentials are the admin-interface login credentials. Supplied at startup
// and immutable for a process run.
type Credentials struct {
	Username string
	Password string
}

// Session is an authenticated session against the gateway's admin interface.
// The token is opaque; the device decides its format and lifetime. Exactly
// one session is current at a time, and readers always see an immutable
// snapshot that the session manager replaces wholesale on refresh.
type Session struct {
	Token      string    `json:"token"`
	ObtainedAt time.Time `json:"obtained_at"`
	Endpoint   Endpoint  `json:"endpoint"`

	// Verified marks tokens that have passed a verification request during
	// this process run. Sessions restored from the store start unverified.
	Verified bool `json:"-"`
}

// IsZero reports whether the session carries no token.
func (s Session) IsZero() bool {
	return s.Token == ""
}
