// Package session owns the authenticated session against the gateway's
// admin interface: login, verification of restored tokens, bounded re-login,
// and persistence. Concurrent callers are coalesced onto a single in-flight
// login; the device's login form is not safe to call concurrently, since
// overlapping logins thrash the single server-side session slot.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/ndavat/gateway-admin/internal/pipeline"
	"github.com/ndavat/gateway-admin/model"
	"github.com/ndavat/gateway-admin/observability"
	"github.com/ndavat/gateway-admin/store"
)

const (
	// DefaultLoginPath accepts form-encoded credentials.
	DefaultLoginPath = "/check.jst"

	// DefaultVerifyPath is a cheap protected page used to verify that a
	// restored token is still accepted.
	DefaultVerifyPath = "/at_a_glance.jst"

	// DefaultMaxAge is how old a persisted session may be before restore
	// skips verification and goes straight to a fresh login.
	DefaultMaxAge = 24 * time.Hour
)

// Transport is the request pipeline as seen by the session manager.
type Transport interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config configures a Manager.
type Config struct {
	Credentials model.Credentials
	Store       store.Store
	Transport   Transport
	Logger      observability.Logger

	LoginPath  string
	VerifyPath string
	CookieName string
	MaxAge     time.Duration
}

// Manager holds the single current session. Readers get an immutable
// snapshot; the login/refresh path replaces the snapshot atomically.
type Manager struct {
	creds      model.Credentials
	store      store.Store
	transport  Transport
	logger     observability.Logger
	loginPath  string
	verifyPath string
	maxAge     time.Duration

	// tokenPattern pulls a session token out of a login response body, the
	// fallback for firmware that echoes the cookie in markup instead of a
	// Set-Cookie header.
	tokenPattern *regexp.Regexp

	mu      sync.RWMutex
	current *model.Session

	flight singleflight.Group
}

// New creates a Manager with defaults applied.
func New(cfg Config) (*Manager, error) {
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if cfg.Credentials.Username == "" {
		return nil, errors.New("credentials are required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.VerifyPath == "" {
		cfg.VerifyPath = DefaultVerifyPath
	}
	if cfg.CookieName == "" {
		cfg.CookieName = pipeline.DefaultCookieName
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Manager{
		creds:        cfg.Credentials,
		store:        cfg.Store,
		transport:    cfg.Transport,
		logger:       cfg.Logger,
		loginPath:    cfg.LoginPath,
		verifyPath:   cfg.VerifyPath,
		maxAge:       cfg.MaxAge,
		tokenPattern: regexp.MustCompile(cfg.CookieName + `=([0-9A-Za-z]+)`),
	}, nil
}

// Current returns a snapshot of the current session, if any.
func (m *Manager) Current() (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return model.Session{}, false
	}
	return *m.current, true
}

// Ensure returns a valid session, reusing the current or persisted one when
// force is false and logging in otherwise. Concurrent callers share a single
// in-flight attempt per mode: forced callers never join a non-forced
// restore/verify flight, whose result may be exactly the token the forced
// caller is trying to replace.
func (m *Manager) Ensure(ctx context.Context, force bool) (model.Session, error) {
	if force {
		v, err, _ := m.flight.Do("login", func() (any, error) {
			return m.login(ctx)
		})
		if err != nil {
			return model.Session{}, err
		}
		return v.(model.Session), nil
	}

	if s, ok := m.Current(); ok && s.Verified {
		return s, nil
	}

	v, err, _ := m.flight.Do("session", func() (any, error) {
		// A concurrent caller may have finished a login while this one was
		// queued on the flight.
		if s, ok := m.Current(); ok && s.Verified {
			return s, nil
		}
		if s, ok := m.restore(ctx); ok {
			return s, nil
		}
		return m.login(ctx)
	})
	if err != nil {
		return model.Session{}, err
	}
	return v.(model.Session), nil
}

// Invalidate drops the current session and its persisted copy. The next
// Ensure performs a fresh login.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Remove(ctx, store.KeySession); err != nil {
		return errors.Wrap(err, "failed to clear persisted session")
	}
	return nil
}

// AdoptToken installs a renewed token observed on a response, replacing the
// current session snapshot atomically. Called by the pipeline write-back.
func (m *Manager) AdoptToken(token string) {
	if token == "" {
		return
	}

	m.mu.Lock()
	if m.current != nil && m.current.Token == token {
		m.mu.Unlock()
		return
	}
	next := model.Session{
		Token:      token,
		ObtainedAt: time.Now(),
		Verified:   true,
	}
	if m.current != nil {
		next.Endpoint = m.current.Endpoint
	}
	m.current = &next
	m.mu.Unlock()

	m.logger.Debug("adopted renewed session token")
	m.persistBestEffort(context.Background(), next)
}

// persistedSession is the JSON shape written to the store.
type persistedSession struct {
	Token      string         `json:"token"`
	ObtainedAt time.Time      `json:"obtained_at"`
	Endpoint   model.Endpoint `json:"endpoint"`
}

// restore loads the persisted session and verifies it with a lightweight
// request. Returns false when there is nothing usable.
func (m *Manager) restore(ctx context.Context) (model.Session, bool) {
	raw, ok, err := m.store.Get(ctx, store.KeySession)
	if err != nil || !ok {
		return model.Session{}, false
	}

	var ps persistedSession
	if err := json.Unmarshal([]byte(raw), &ps); err != nil || ps.Token == "" {
		m.logger.Debug("discarding unreadable persisted session")
		return model.Session{}, false
	}
	if time.Since(ps.ObtainedAt) > m.maxAge {
		m.logger.Debug("persisted session too old, skipping verification")
		return model.Session{}, false
	}

	if !m.verify(ctx, ps.Token) {
		m.logger.Debug("persisted session failed verification")
		return model.Session{}, false
	}

	s := model.Session{
		Token:      ps.Token,
		ObtainedAt: ps.ObtainedAt,
		Endpoint:   ps.Endpoint,
		Verified:   true,
	}
	m.setCurrent(s)
	m.logger.Info("restored persisted session")
	return s, true
}

// verify issues a protected GET with the candidate token attached directly,
// bypassing session management to avoid recursing into Ensure.
func (m *Manager) verify(ctx context.Context, token string) bool {
	_, err := m.transport.Execute(ctx, pipeline.Request{
		Method:       http.MethodGet,
		Path:         m.verifyPath,
		SessionToken: token,
	})
	return err == nil
}

// login submits the credentials and extracts the issued session token.
func (m *Manager) login(ctx context.Context) (model.Session, error) {
	form := url.Values{
		"username": {m.creds.Username},
		"password": {m.creds.Password},
	}
	res, err := m.transport.Execute(ctx, pipeline.Request{
		Method: http.MethodPost,
		Path:   m.loginPath,
		Form:   form,
	})
	if err != nil {
		if errors.Is(err, model.ErrAuthenticationFailed) {
			return model.Session{}, errors.Wrapf(model.ErrAuthenticationFailed,
				"gateway rejected credentials for %s", m.creds.Username)
		}
		return model.Session{}, err
	}

	token := res.RenewedToken
	if token == "" {
		token = m.tokenFromBody(res.Body)
	}
	if token == "" {
		return model.Session{}, errors.Wrap(model.ErrAuthenticationFailed,
			"login response carried no session token")
	}

	s := model.Session{
		Token:      token,
		ObtainedAt: time.Now(),
		Endpoint:   res.Endpoint,
		Verified:   true,
	}
	m.setCurrent(s)
	m.persistBestEffort(ctx, s)
	m.logger.Info("authenticated against gateway",
		observability.Field{Key: "endpoint", Value: res.Endpoint.Address},
	)
	return s, nil
}

func (m *Manager) tokenFromBody(body []byte) string {
	match := m.tokenPattern.FindSubmatch(body)
	if len(match) == 2 {
		return string(match[1])
	}
	return ""
}

func (m *Manager) setCurrent(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &s
}

func (m *Manager) persistBestEffort(ctx context.Context, s model.Session) {
	raw, err := json.Marshal(persistedSession{
		Token:      s.Token,
		ObtainedAt: s.ObtainedAt,
		Endpoint:   s.Endpoint,
	})
	if err != nil {
		return
	}
	if err := m.store.Set(ctx, store.KeySession, string(raw)); err != nil {
		m.logger.Warn("failed to persist session",
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}
