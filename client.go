package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ndavat/gateway-admin/internal/discovery"
	"github.com/ndavat/gateway-admin/internal/extract"
	"github.com/ndavat/gateway-admin/internal/pipeline"
	"github.com/ndavat/gateway-admin/internal/session"
	"github.com/ndavat/gateway-admin/model"
	"github.com/ndavat/gateway-admin/observability"
	"github.com/ndavat/gateway-admin/store"
)

// Re-exported domain types, so callers only import this package.
type (
	Endpoint     = model.Endpoint
	Credentials  = model.Credentials
	Session      = model.Session
	DeviceRecord = model.DeviceRecord
)

// Re-exported error taxonomy; match with errors.Is.
var (
	ErrDiscoveryFailed      = model.ErrDiscoveryFailed
	ErrAuthenticationFailed = model.ErrAuthenticationFailed
	ErrTransientNetwork     = model.ErrTransientNetwork
	ErrUpstreamServer       = model.ErrUpstreamServer
	ErrMalformedResponse    = model.ErrMalformedResponse
	ErrInvalidRequest       = model.ErrInvalidRequest
)

// Admin interface paths for the targeted firmware dialect.
const (
	inventoryPath = "/connected_devices_computers.jst"
	managedPath   = "/managed_devices.jst"
	rebootPath    = "/restore_reboot.jst"
)

// Config configures a Client. Username and Password are required; everything
// else has a sensible default.
type Config struct {
	// Username and Password for the admin interface.
	Username string
	Password string

	// Store persists the last-known gateway address, the session token,
	// and device labels. Defaults to an in-process store; use
	// store/sqlitestore for durability across runs.
	Store store.Store

	// Logger, Metrics, and Sink receive structured events. All default to
	// no-ops.
	Logger  observability.Logger
	Metrics observability.MetricsRecorder
	Sink    observability.Sink

	// HTTPClient used for admin requests. It must not follow redirects
	// (the login flow reads the session cookie off a 302); a compliant
	// client is built when nil.
	HTTPClient *http.Client

	// Scheme for gateway endpoints, "http" by default. These devices do
	// not terminate TLS on the LAN side.
	Scheme string

	// Candidates overrides the conventional gateway addresses probed
	// during discovery.
	Candidates []string

	// GatewayLookup overrides the host route-table lookup used as the
	// first discovery strategy. Mainly for tests and platforms without
	// /proc.
	GatewayLookup func() string

	// ProbeTimeout bounds each discovery liveness probe (default 3s).
	ProbeTimeout time.Duration

	// MaxRetries, BackoffBase, and AttemptTimeout tune the request
	// pipeline (defaults 3, 100ms, 10s).
	MaxRetries     int
	BackoffBase    time.Duration
	AttemptTimeout time.Duration

	// RateLimitPerMinute bounds request throughput (default 600).
	RateLimitPerMinute int

	// SessionMaxAge is how old a persisted session may be before restore
	// skips straight to a fresh login (default 24h).
	SessionMaxAge time.Duration
}

// Client is the public surface of the access layer. All methods are safe for
// concurrent use.
type Client struct {
	resolver *discovery.Resolver
	sessions *session.Manager
	pipe     *pipeline.Pipeline
	store    store.Store
	logger   observability.Logger
}

// New creates a Client with defaults applied.
func New(cfg Config) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("username and password are required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}

	resolver := discovery.New(discovery.Config{
		Store:         cfg.Store,
		Logger:        cfg.Logger,
		Scheme:        cfg.Scheme,
		Candidates:    cfg.Candidates,
		ProbeTimeout:  cfg.ProbeTimeout,
		GatewayLookup: cfg.GatewayLookup,
	})

	pipe, err := pipeline.New(pipeline.Config{
		Endpoints:          resolver,
		Logger:             cfg.Logger,
		Metrics:            cfg.Metrics,
		Sink:               cfg.Sink,
		HTTPClient:         cfg.HTTPClient,
		MaxRetries:         cfg.MaxRetries,
		BackoffBase:        cfg.BackoffBase,
		AttemptTimeout:     cfg.AttemptTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request pipeline")
	}

	sessions, err := session.New(session.Config{
		Credentials: model.Credentials{Username: cfg.Username, Password: cfg.Password},
		Store:       cfg.Store,
		Transport:   pipe,
		Logger:      cfg.Logger,
		MaxAge:      cfg.SessionMaxAge,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build session manager")
	}
	pipe.BindSession(sessions)

	return &Client{
		resolver: resolver,
		sessions: sessions,
		pipe:     pipe,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}, nil
}

// DiscoverEndpoint runs discovery and requires a live endpoint; it fails
// with ErrDiscoveryFailed when nothing on the network answers.
func (c *Client) DiscoverEndpoint(ctx context.Context) (Endpoint, error) {
	return c.resolver.Discover(ctx)
}

// ForgetEndpoint clears the persisted gateway address, forcing full
// re-resolution on the next request.
func (c *Client) ForgetEndpoint(ctx context.Context) error {
	return c.resolver.Forget(ctx)
}

// Login authenticates unconditionally and returns the fresh session.
func (c *Client) Login(ctx context.Context) (Session, error) {
	return c.sessions.Ensure(ctx, true)
}

// InvalidateSession drops the current session and its persisted copy.
func (c *Client) InvalidateSession(ctx context.Context) error {
	return c.sessions.Invalidate(ctx)
}

// FetchDeviceInventory retrieves and extracts the current connected-devices
// snapshot. The result is a full snapshot, sorted by hostname; callers must
// not treat it as an incremental update.
func (c *Client) FetchDeviceInventory(ctx context.Context) ([]DeviceRecord, error) {
	res, err := c.pipe.Execute(ctx, pipeline.Request{
		Method:       http.MethodGet,
		Path:         inventoryPath,
		RequiresAuth: true,
	})
	if err != nil {
		return nil, err
	}

	labels, err := c.labelMap(ctx)
	if err != nil {
		// Labels are cosmetic; a broken store must not fail the fetch.
		c.logger.Warn("failed to load device labels",
			observability.Field{Key: "error", Value: err.Error()},
		)
		labels = map[string]string{}
	}

	return extract.Devices(string(res.Body), labels, c.logger)
}

// SetDeviceLabel assigns a user label to a device, keyed by canonical MAC.
// An empty name removes the label.
func (c *Client) SetDeviceLabel(ctx context.Context, mac, name string) error {
	canonical, err := model.NormalizeMAC(mac)
	if err != nil {
		return err
	}

	labels, err := c.labelMap(ctx)
	if err != nil {
		return err
	}
	if name == "" {
		delete(labels, canonical)
	} else {
		labels[canonical] = name
	}

	raw, err := json.Marshal(labels)
	if err != nil {
		return errors.Wrap(err, "failed to encode device labels")
	}
	if err := c.store.Set(ctx, store.KeyDeviceLabels, string(raw)); err != nil {
		return errors.Wrap(err, "failed to persist device labels")
	}
	return nil
}

// DeviceLabels returns the user-assigned label map, keyed by canonical MAC.
func (c *Client) DeviceLabels(ctx context.Context) (map[string]string, error) {
	return c.labelMap(ctx)
}

// BlockDevice blocks a device's network access through the gateway's
// managed-devices handler.
func (c *Client) BlockDevice(ctx context.Context, mac string) error {
	return c.setBlocked(ctx, mac, true)
}

// UnblockDevice restores a blocked device's network access.
func (c *Client) UnblockDevice(ctx context.Context, mac string) error {
	return c.setBlocked(ctx, mac, false)
}

func (c *Client) setBlocked(ctx context.Context, mac string, blocked bool) error {
	canonical, err := model.NormalizeMAC(mac)
	if err != nil {
		return err
	}

	value := "false"
	if blocked {
		value = "true"
	}
	_, err = c.pipe.Execute(ctx, pipeline.Request{
		Method:       http.MethodPost,
		Path:         managedPath,
		RequiresAuth: true,
		Form: url.Values{
			"mac_address": {canonical},
			"blocked":     {value},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set blocked=%s for %s", value, canonical)
	}
	return nil
}

// Reboot asks the gateway to restart. The device drops all connections as it
// goes down, so a transient transport failure of the reboot request itself
// counts as accepted. The session is established first: a gateway that was
// never reachable surfaces its failure there instead of masquerading as a
// successful reboot.
func (c *Client) Reboot(ctx context.Context) error {
	if _, err := c.sessions.Ensure(ctx, false); err != nil {
		return errors.Wrap(err, "reboot request failed")
	}
	_, err := c.pipe.Execute(ctx, pipeline.Request{
		Method:       http.MethodPost,
		Path:         rebootPath,
		RequiresAuth: true,
		Form:         url.Values{"reboot": {"true"}},
	})
	if err != nil && !errors.Is(err, ErrTransientNetwork) {
		return errors.Wrap(err, "reboot request failed")
	}
	return nil
}

func (c *Client) labelMap(ctx context.Context) (map[string]string, error) {
	raw, ok, err := c.store.Get(ctx, store.KeyDeviceLabels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read device labels")
	}
	labels := map[string]string{}
	if !ok || raw == "" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, errors.Wrap(err, "failed to decode device labels")
	}
	return labels, nil
}
