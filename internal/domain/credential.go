package domain

import "time"

// Credential is the immutable snapshot handed out by the token broker.
// A new value is built on every refresh and swapped in atomically, so a
// request always sees a bearer and XSRF token minted together.
type Credential struct {
	Topology AuthTopology

	// Bearer is empty for the basic topology, where Username/Password are
	// attached as HTTP basic auth instead.
	Bearer   string
	Username string
	Password string

	// XSRFToken is sent as both header and cookie on every request.
	XSRFToken string

	FetchedAt time.Time
	// ExpiresAt is the token endpoint's reported expiry, zero when the
	// endpoint reports none. Refresh is interval-driven, not expiry-driven;
	// the value is kept for observability.
	ExpiresAt time.Time
}

func (c *Credential) UsesBasicAuth() bool {
	return c != nil && c.Topology == TopologyBasic
}
