// Package discovery locates the gateway device on the local network. It
// layers strategies from cheapest to broadest: the host route table, the
// persisted last-known address, and a concurrent liveness race over
// conventional gateway addresses.
package discovery

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ndavat/gateway-admin/model"
	"github.com/ndavat/gateway-admin/observability"
	"github.com/ndavat/gateway-admin/store"
)

// DefaultCandidates are probed, in order of preference, when neither the
// route table nor the store yields a reachable address. The vendor default
// comes first, then common consumer-router defaults.
var DefaultCandidates = []string{
	"10.0.0.1",
	"192.168.1.1",
	"192.168.0.1",
	"192.168.100.1",
	"10.1.10.1",
}

// DefaultProbeTimeout bounds each individual liveness probe.
const DefaultProbeTimeout = 3 * time.Second

// Config configures a Resolver.
type Config struct {
	Store  store.Store
	Logger observability.Logger

	// Scheme for built endpoints, "http" by default.
	Scheme string

	// Candidates overrides DefaultCandidates.
	Candidates []string

	// ProbeTimeout bounds each liveness probe; DefaultProbeTimeout if zero.
	ProbeTimeout time.Duration

	// HTTPClient used for liveness probes. A dedicated client with no
	// overall timeout is created when nil (per-probe contexts bound it).
	HTTPClient *http.Client

	// GatewayLookup overrides the host route-table lookup, mainly for tests
	// and platforms without /proc. Return "" for no gateway.
	GatewayLookup func() string
}

// Resolver determines the gateway endpoint. It has no dependency on the
// session or pipeline layers.
type Resolver struct {
	store        store.Store
	logger       observability.Logger
	scheme       string
	candidates   []string
	probeTimeout time.Duration
	client       *http.Client
	gatewayAddr  func() string
}

// New creates a Resolver with defaults applied.
func New(cfg Config) *Resolver {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if cfg.GatewayLookup == nil {
		cfg.GatewayLookup = routeTableGateway
	}
	return &Resolver{
		store:        cfg.Store,
		logger:       cfg.Logger,
		scheme:       cfg.Scheme,
		candidates:   cfg.Candidates,
		probeTimeout: cfg.ProbeTimeout,
		client:       cfg.HTTPClient,
		gatewayAddr:  cfg.GatewayLookup,
	}
}

// Resolve determines the gateway endpoint. When every strategy fails it
// returns the first conventional candidate rather than an error; downstream
// layers surface the eventual connection failure with better context. Use
// Discover when a live endpoint is mandatory.
func (r *Resolver) Resolve(ctx context.Context) (model.Endpoint, error) {
	if ep, ok := r.resolveLive(ctx); ok {
		return ep, nil
	}
	if err := ctx.Err(); err != nil {
		return model.Endpoint{}, errors.Wrap(err, "discovery cancelled")
	}

	fallback := model.Endpoint{Address: r.candidates[0], Scheme: r.scheme}
	r.logger.Warn("no gateway reachable, using last-resort default",
		observability.Field{Key: "address", Value: fallback.Address},
	)
	return fallback, nil
}

// Discover is Resolve without the last-resort fallback: it fails with
// ErrDiscoveryFailed when no strategy produces a live endpoint.
func (r *Resolver) Discover(ctx context.Context) (model.Endpoint, error) {
	if ep, ok := r.resolveLive(ctx); ok {
		return ep, nil
	}
	if err := ctx.Err(); err != nil {
		return model.Endpoint{}, errors.Wrap(err, "discovery cancelled")
	}
	return model.Endpoint{}, errors.Wrapf(model.ErrDiscoveryFailed,
		"tried route table, persisted address, and %d candidates", len(r.candidates))
}

// Persist stores ep as the last-known gateway address.
func (r *Resolver) Persist(ctx context.Context, ep model.Endpoint) error {
	if err := r.store.Set(ctx, store.KeyGatewayAddress, ep.Address); err != nil {
		return errors.Wrap(err, "failed to persist gateway address")
	}
	return nil
}

// Forget clears the persisted address, forcing full re-resolution next time.
func (r *Resolver) Forget(ctx context.Context) error {
	if err := r.store.Remove(ctx, store.KeyGatewayAddress); err != nil {
		return errors.Wrap(err, "failed to clear persisted gateway address")
	}
	return nil
}

func (r *Resolver) resolveLive(ctx context.Context) (model.Endpoint, bool) {
	// Strategy 1: host route table. A stale entry is possible after a
	// network change, so the address is still liveness-probed.
	if addr := r.gatewayAddr(); addr != "" {
		if !wellFormedAddr(addr) {
			r.logger.Debug("route table gateway not a dotted quad, skipping",
				observability.Field{Key: "address", Value: addr},
			)
		} else if r.alive(ctx, addr) {
			ep := model.Endpoint{Address: addr, Scheme: r.scheme}
			r.persistBestEffort(ctx, ep)
			r.logger.Info("gateway resolved from route table",
				observability.Field{Key: "address", Value: addr},
			)
			return ep, true
		}
	}

	// Strategy 2: persisted last-known address.
	if addr, ok, err := r.store.Get(ctx, store.KeyGatewayAddress); err == nil && ok {
		if wellFormedAddr(addr) && r.alive(ctx, addr) {
			r.logger.Info("gateway resolved from persisted address",
				observability.Field{Key: "address", Value: addr},
			)
			return model.Endpoint{Address: addr, Scheme: r.scheme}, true
		}
		r.logger.Debug("persisted gateway address not reachable",
			observability.Field{Key: "address", Value: addr},
		)
	}

	// Strategy 3: race the conventional candidates.
	if addr, ok := r.race(ctx); ok {
		ep := model.Endpoint{Address: addr, Scheme: r.scheme}
		r.persistBestEffort(ctx, ep)
		r.logger.Info("gateway resolved by candidate probe",
			observability.Field{Key: "address", Value: addr},
		)
		return ep, true
	}

	return model.Endpoint{}, false
}

// race probes all candidates concurrently and returns the first one that
// answers; the remaining probes are cancelled.
func (r *Resolver) race(ctx context.Context) (string, bool) {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan string, len(r.candidates))
	for _, addr := range r.candidates {
		go func(addr string) {
			if r.alive(probeCtx, addr) {
				results <- addr
				return
			}
			results <- ""
		}(addr)
	}

	for range r.candidates {
		select {
		case addr := <-results:
			if addr != "" {
				return addr, true
			}
		case <-ctx.Done():
			return "", false
		}
	}
	return "", false
}

// wellFormedAddr accepts a dotted-quad IPv4 address, optionally with a
// port. Gateways answer on the default port, but a non-default admin port
// can land here through the persisted store.
func wellFormedAddr(addr string) bool {
	if model.ValidIPv4(addr) {
		return true
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	return model.ValidIPv4(host)
}

// alive reports whether the admin root path answers at all. Any HTTP
// response, including 4xx, proves reachability; content is not validated.
func (r *Resolver) alive(ctx context.Context, addr string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	url := (model.Endpoint{Address: addr, Scheme: r.scheme}).URL() + "/"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (r *Resolver) persistBestEffort(ctx context.Context, ep model.Endpoint) {
	if err := r.Persist(ctx, ep); err != nil {
		r.logger.Warn("failed to persist resolved gateway",
			observability.Field{Key: "address", Value: ep.Address},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}
