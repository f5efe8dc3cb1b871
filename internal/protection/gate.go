package protection

import (
	"context"
	"log/slog"
	"sync"

	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/ratelimit"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/circuit"
	"civicdesk/pkg/requestcontext"
)

// Verifier checks a CAPTCHA token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// PolicySource supplies the current policy.
type PolicySource interface {
	Get(ctx context.Context) (*Policy, error)
}

// Gate evaluates a public write against the policy: blacklist, then rate
// limit, then CAPTCHA.
type Gate struct {
	policies PolicySource
	counter  ratelimit.Counter
	fallback ratelimit.Counter
	breaker  *circuit.Breaker
	verifier Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu   sync.Mutex
	last *Policy
}

type GateOption func(*Gate)

func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithFallbackCounter is consulted while the primary counter's circuit is
// open.
func WithFallbackCounter(c ratelimit.Counter) GateOption {
	return func(g *Gate) {
		g.fallback = c
	}
}

func WithBreaker(b *circuit.Breaker) GateOption {
	return func(g *Gate) {
		g.breaker = b
	}
}

func NewGate(policies PolicySource, counter ratelimit.Counter, verifier Verifier, opts ...GateOption) *Gate {
	g := &Gate{
		policies: policies,
		counter:  counter,
		verifier: verifier,
		breaker:  circuit.New("ratelimit"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates class for the client IP carried by ctx.
func (g *Gate) Check(ctx context.Context, class string, captchaToken string) error {
	return g.Evaluate(ctx, Class(class), requestcontext.ClientIP(ctx), captchaToken)
}

// Evaluate returns nil to admit the request, or a forbidden, rate_limited
// or captcha_failed error.
func (g *Gate) Evaluate(ctx context.Context, class Class, ip, captchaToken string) error {
	policy, err := g.policy(ctx)
	if err != nil {
		return err
	}

	if policy.Blacklisted(ip) {
		return dErrors.New(dErrors.CodeForbidden, "access denied")
	}

	rule := policy.RuleFor(class)
	if rule.RateLimited && !g.allow(ctx, class, ip, rule.Rate) {
		g.metrics.IncRateLimitHits()
		return dErrors.New(dErrors.CodeRateLimited, "too many requests")
	}

	if rule.Captcha {
		if captchaToken == "" {
			return dErrors.New(dErrors.CodeCaptchaFailed, "captcha token is required")
		}
		if g.verifier == nil {
			g.metrics.IncRecaptchaFailures()
			return dErrors.New(dErrors.CodeCaptchaFailed, "captcha verification failed")
		}
		if err := g.verifier.Verify(ctx, captchaToken, ip); err != nil {
			g.metrics.IncRecaptchaFailures()
			g.logger.WarnContext(ctx, "captcha verification failed",
				"request_id", requestcontext.RequestID(ctx),
				"ip", ip,
				"error", err,
			)
			return dErrors.New(dErrors.CodeCaptchaFailed, "captcha verification failed")
		}
	}
	return nil
}

// policy returns the stored policy, or the last one read successfully while
// the store is failing. With nothing cached the gate denies.
func (g *Gate) policy(ctx context.Context) (*Policy, error) {
	p, err := g.policies.Get(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		g.last = p.Clone()
		return p, nil
	}
	if g.last != nil {
		g.logger.ErrorContext(ctx, "protection policy unavailable, using last known policy",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return g.last.Clone(), nil
	}
	g.logger.ErrorContext(ctx, "protection policy unavailable, denying request",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return nil, dErrors.Wrap(err, dErrors.CodeInternal, "protection policy unavailable")
}

// allow reports whether the hit fits the budget. Counter errors never deny:
// a short outage admits traffic, a sustained one switches to the fallback
// counter.
func (g *Gate) allow(ctx context.Context, class Class, ip, rate string) bool {
	parsed, err := ParseRate(rate)
	if err != nil {
		g.logger.ErrorContext(ctx, "invalid rate in protection policy",
			"request_id", requestcontext.RequestID(ctx),
			"class", string(class),
			"rate", rate,
		)
		return true
	}
	key := ratelimit.Key(string(class), ip)

	allowed, err := g.counter.IncrementAndCheck(ctx, key, parsed.Window, parsed.Limit)
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "rate limit counter recovered")
		}
		return allowed
	}

	useFallback, change := g.breaker.RecordFailure()
	if change.Opened {
		g.logger.WarnContext(ctx, "rate limit counter circuit opened", "error", err)
	}
	if !useFallback || g.fallback == nil {
		g.logger.WarnContext(ctx, "rate limit counter unavailable, admitting request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return true
	}
	allowed, err = g.fallback.IncrementAndCheck(ctx, key, parsed.Window, parsed.Limit)
	if err != nil {
		return true
	}
	return allowed
}
