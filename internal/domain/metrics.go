package domain

import "time"

// Metrics receives observations from the gateway, the token broker and the
// schema cache. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveRequest(operation string, duration time.Duration, err error)
	ObserveTokenRefresh(topology AuthTopology, err error)
	ObserveSchemaLoad(rootClass string, duration time.Duration, err error)
}
