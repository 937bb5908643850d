// Package pipeline implements the resilient request path used by every call
// against the gateway's admin interface. It is the single retry authority:
// it resolves the endpoint, attaches session credentials, dispatches with
// per-attempt timeouts, classifies failures, retries what is retryable with
// exponential backoff, and performs the one bounded re-login when a response
// turns out to be the login page.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/ndavat/gateway-admin/model"
	"github.com/ndavat/gateway-admin/observability"
)

const (
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 100 * time.Millisecond
	DefaultAttemptTimeout = 10 * time.Second

	// DefaultRateLimitPerMinute bounds request throughput. The admin CGI on
	// these devices is effectively single-threaded and collapses under
	// bursts.
	DefaultRateLimitPerMinute = 600

	// DefaultCookieName is the session cookie the device issues on login.
	DefaultCookieName = "DUKSID"

	// maxBodyBytes caps how much of a response is buffered. Inventory pages
	// run to a few hundred KB on crowded networks.
	maxBodyBytes = 4 << 20
)

// SessionProvider is the session manager as seen by the pipeline.
type SessionProvider interface {
	Ensure(ctx context.Context, force bool) (model.Session, error)
	Invalidate(ctx context.Context) error
	AdoptToken(token string)
}

// EndpointSource supplies the resolved gateway endpoint.
type EndpointSource interface {
	Resolve(ctx context.Context) (model.Endpoint, error)
}

// Request describes one logical call against the admin interface.
type Request struct {
	Method string
	Path   string
	Form   url.Values

	// RequiresAuth makes the pipeline attach the current session and
	// re-authenticate once when the response is the login page.
	RequiresAuth bool

	// SessionToken, when set, is attached verbatim and session handling is
	// bypassed entirely. The session manager uses this for its own login
	// and verification calls, which must not recurse into Ensure.
	SessionToken string
}

// Result is a completed response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Endpoint   model.Endpoint

	// RenewedToken is the session cookie carried on this response, if any.
	RenewedToken string
}

// Classified outcomes for a single attempt.
const (
	outcomeOK              = "ok"
	outcomeTransient       = "transient_network"
	outcomeServer          = "server_error"
	outcomeClient          = "client_error"
	outcomeUnauthenticated = "unauthenticated"
	outcomeCancelled       = "cancelled"
)

// Config configures a Pipeline.
type Config struct {
	Endpoints EndpointSource
	Logger    observability.Logger
	Metrics   observability.MetricsRecorder
	Sink      observability.Sink

	// HTTPClient must not follow redirects; the login flow reads the
	// session cookie off a 302. A compliant client is built when nil.
	HTTPClient *http.Client

	MaxRetries         int
	BackoffBase        time.Duration
	AttemptTimeout     time.Duration
	RateLimitPerMinute int
	CookieName         string
}

// Pipeline executes requests. Bind a session manager with BindSession before
// issuing authenticated requests.
type Pipeline struct {
	endpoints EndpointSource
	sessions  SessionProvider
	logger    observability.Logger
	metrics   observability.MetricsRecorder
	sink      observability.Sink
	client    *http.Client
	limiter   *rate.Limiter

	maxRetries     int
	backoffBase    time.Duration
	attemptTimeout time.Duration
	cookieName     string
}

// New creates a Pipeline with defaults applied.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Endpoints == nil {
		return nil, errors.New("endpoint source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetricsRecorder()
	}
	if cfg.Sink == nil {
		cfg.Sink = observability.NoopSink()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	perSecond := rate.Limit(cfg.RateLimitPerMinute) / 60.0
	burst := cfg.RateLimitPerMinute / 60
	if burst < 1 {
		burst = 1
	}

	return &Pipeline{
		endpoints:      cfg.Endpoints,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		sink:           cfg.Sink,
		client:         cfg.HTTPClient,
		limiter:        rate.NewLimiter(perSecond, burst),
		maxRetries:     cfg.MaxRetries,
		backoffBase:    cfg.BackoffBase,
		attemptTimeout: cfg.AttemptTimeout,
		cookieName:     cfg.CookieName,
	}, nil
}

// BindSession wires the session manager in. Done after construction because
// the session manager itself executes requests through this pipeline.
func (p *Pipeline) BindSession(s SessionProvider) {
	p.sessions = s
}

// Execute runs one logical request to completion: retries within budget,
// at most one re-login, classified error otherwise.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	ep, err := p.endpoints.Resolve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "endpoint resolution failed")
	}

	token := req.SessionToken
	managed := req.RequiresAuth && req.SessionToken == ""
	if managed {
		if p.sessions == nil {
			return nil, errors.New("no session provider bound")
		}
		s, err := p.sessions.Ensure(ctx, false)
		if err != nil {
			return nil, err
		}
		token = s.Token
	}

	res, outcome, err := p.attempts(ctx, ep, req, token)
	if err != nil {
		return nil, err
	}

	if outcome == outcomeUnauthenticated {
		if !managed {
			return nil, errors.Wrapf(model.ErrAuthenticationFailed,
				"%s %s answered with the login page", req.Method, req.Path)
		}

		// Bounded re-auth: exactly one invalidate + re-login + replay,
		// kept outside the generic retry budget.
		if err := p.sessions.Invalidate(ctx); err != nil {
			p.logger.Warn("session invalidation failed",
				observability.Field{Key: "error", Value: err.Error()},
			)
		}
		s, err := p.sessions.Ensure(ctx, true)
		if err != nil {
			return nil, err
		}
		res, outcome, err = p.attempts(ctx, ep, req, s.Token)
		if err != nil {
			return nil, err
		}
		if outcome == outcomeUnauthenticated {
			return nil, errors.Wrapf(model.ErrAuthenticationFailed,
				"%s %s still unauthenticated after re-login", req.Method, req.Path)
		}
	}

	if managed && res.RenewedToken != "" && res.RenewedToken != token {
		p.sessions.AdoptToken(res.RenewedToken)
	}
	return res, nil
}

// attempts runs the retry loop for one token binding. It returns a non-nil
// Result only for outcomes ok and unauthenticated; transient and server
// failures are retried until the budget runs out and then surface as
// classified errors, and client errors surface immediately.
func (p *Pipeline) attempts(ctx context.Context, ep model.Endpoint, req Request, token string) (*Result, string, error) {
	var lastCause error
	var lastStatus int

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			wait := p.backoffBase << (attempt - 1)
			p.logger.Debug("retrying request",
				observability.Field{Key: "path", Value: req.Path},
				observability.Field{Key: "attempt", Value: attempt + 1},
				observability.Field{Key: "wait", Value: wait},
			)
			p.metrics.RecordRetry(attempt, req.Path)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, "", errors.Wrap(ctx.Err(), "cancelled during retry wait")
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, "", errors.Wrap(err, "rate limiter wait failed")
		}

		ar, err := p.dispatch(ctx, ep, req, token, attempt)
		if err != nil {
			return nil, "", err
		}

		switch ar.outcome {
		case outcomeOK, outcomeUnauthenticated:
			return ar.res, ar.outcome, nil
		case outcomeClient:
			return nil, ar.outcome, errors.Wrapf(model.ErrInvalidRequest,
				"%s %s answered status %d", req.Method, req.Path, ar.res.StatusCode)
		case outcomeTransient:
			lastCause = ar.cause
		case outcomeServer:
			lastStatus = ar.res.StatusCode
			lastCause = nil
		}
	}

	if lastCause != nil {
		return nil, outcomeTransient, errors.Mark(
			errors.Wrapf(lastCause, "%s %s failed after %d attempts",
				req.Method, req.Path, p.maxRetries+1),
			model.ErrTransientNetwork)
	}
	return nil, outcomeServer, errors.Wrapf(model.ErrUpstreamServer,
		"%s %s answered status %d after %d attempts",
		req.Method, req.Path, lastStatus, p.maxRetries+1)
}

// attemptResult is one classified attempt. cause carries the transport error
// for transient outcomes so retry exhaustion can wrap it.
type attemptResult struct {
	res     *Result
	outcome string
	cause   error
}

// dispatch performs a single attempt. The returned error is non-nil only for
// hard stops (cancellation, unbuildable request); everything else comes back
// as a classified outcome.
func (p *Pipeline) dispatch(ctx context.Context, ep model.Endpoint, req Request, token string, attempt int) (attemptResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	var body io.Reader
	if len(req.Form) > 0 {
		body = strings.NewReader(req.Form.Encode())
	}
	hreq, err := http.NewRequestWithContext(attemptCtx, req.Method, ep.URL()+req.Path, body)
	if err != nil {
		return attemptResult{}, errors.Wrapf(err, "failed to build %s %s", req.Method, req.Path)
	}
	if len(req.Form) > 0 {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		hreq.AddCookie(&http.Cookie{Name: p.cookieName, Value: token})
	}

	start := time.Now()
	resp, err := p.client.Do(hreq)
	if err != nil {
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			// Caller cancellation is not a classified failure and must not
			// advance retry state.
			p.emit(ep, req, attempt, elapsed, outcomeCancelled)
			return attemptResult{}, errors.Wrap(ctx.Err(), "request cancelled")
		}
		p.emit(ep, req, attempt, elapsed, outcomeTransient)
		return attemptResult{res: &Result{Endpoint: ep}, outcome: outcomeTransient, cause: err}, nil
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			p.emit(ep, req, attempt, elapsed, outcomeCancelled)
			return attemptResult{}, errors.Wrap(ctx.Err(), "request cancelled")
		}
		// Transport reset mid-body.
		p.emit(ep, req, attempt, elapsed, outcomeTransient)
		return attemptResult{res: &Result{Endpoint: ep}, outcome: outcomeTransient, cause: err}, nil
	}

	res := &Result{
		StatusCode:   resp.StatusCode,
		Header:       resp.Header,
		Body:         buf,
		Endpoint:     ep,
		RenewedToken: p.sessionCookie(resp),
	}

	outcome := classify(resp.StatusCode, buf)
	p.emit(ep, req, attempt, elapsed, outcome)
	return attemptResult{res: res, outcome: outcome}, nil
}

// sessionCookie returns the value of the device's session cookie on resp,
// or "".
func (p *Pipeline) sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == p.cookieName && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// emit records the attempt to the sink and metrics. Fire-and-forget: a
// misbehaving sink never affects the request.
func (p *Pipeline) emit(ep model.Endpoint, req Request, attempt int, elapsed time.Duration, outcome string) {
	p.metrics.RecordRequest(req.Method, req.Path, outcome, elapsed)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("telemetry sink panicked",
				observability.Field{Key: "panic", Value: r},
			)
		}
	}()
	p.sink.Record(observability.RequestEvent{
		Endpoint: ep.Address,
		Method:   req.Method,
		Path:     req.Path,
		Attempt:  attempt + 1,
		Duration: elapsed,
		Outcome:  outcome,
	})
}
