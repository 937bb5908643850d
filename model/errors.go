package model

import "github.com/cockroachdb/errors"

// Error taxonomy for the access layer. Callers match with errors.Is; every
// error surfaced by the client wraps exactly one of these sentinels, with the
// underlying cause preserved in the chain.
var (
	// ErrDiscoveryFailed means no gateway endpoint was reachable by any
	// discovery strategy.
	ErrDiscoveryFailed = errors.New("no gateway endpoint reachable")

	// ErrAuthenticationFailed means the device rejected the credentials, or
	// a re-login after an expired session still produced an unauthenticated
	// response.
	ErrAuthenticationFailed = errors.New("gateway authentication failed")

	// ErrTransientNetwork means connectivity faults (timeouts, refused
	// connections, transport resets) persisted through the retry budget.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrUpstreamServer means the device kept answering with server-side
	// faults through the retry budget.
	ErrUpstreamServer = errors.New("gateway server error")

	// ErrMalformedResponse means the markup lacked the expected inventory
	// structure entirely. Individually discarded rows never produce this.
	ErrMalformedResponse = errors.New("malformed gateway response")

	// ErrInvalidRequest is a non-retryable client-side fault, such as a
	// malformed MAC passed to a block call or a 4xx answer from the device.
	ErrInvalidRequest = errors.New("invalid request")
)
