package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"finch/internal/backoff"
	"finch/internal/observability"
)

// FallbackConfig configures retry and circuit-breaking behavior for a
// Chain (spec §4.4 "Fallback chain"). Grounded on the teacher's
// agent.FailoverConfig (internal/agent/failover.go).
type FallbackConfig struct {
	MaxRetries              int
	BackoffPolicy           backoff.BackoffPolicy
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	RequestsPerSecond       rate.Limit
	Burst                   int
}

// DefaultFallbackConfig matches spec §7's retry guidance: rate limits
// and transient errors get one retry with backoff before failing over.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MaxRetries:              1,
		BackoffPolicy:           backoff.DefaultPolicy(),
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
		RequestsPerSecond:       5,
		Burst:                   5,
	}
}

type memberState struct {
	failures    int
	circuitOpen bool
	openedAt    time.Time
}

// Chain is an ordered list of providers tried in sequence until one
// succeeds (spec §4.4 "Fallback chain"). When a local-preferred backend
// is configured, NewChain places it first (SPEC_FULL §12's
// local-preferred routing).
type Chain struct {
	members []Provider
	cfg     FallbackConfig

	mu      sync.Mutex
	states  map[string]*memberState
	limiter map[string]*rate.Limiter

	metrics *observability.Metrics
}

// NewChain builds a Chain. If local is non-nil it is tried before any
// member of cloud, per SPEC_FULL.md §12's local-preferred routing.
func NewChain(local Provider, cloud []Provider, cfg FallbackConfig) *Chain {
	var members []Provider
	if local != nil {
		members = append(members, local)
	}
	members = append(members, cloud...)

	c := &Chain{
		members: members,
		cfg:     cfg,
		states:  make(map[string]*memberState),
		limiter: make(map[string]*rate.Limiter),
	}
	for _, m := range members {
		c.states[m.Name()] = &memberState{}
		if cfg.RequestsPerSecond > 0 {
			c.limiter[m.Name()] = rate.NewLimiter(cfg.RequestsPerSecond, c.burst())
		}
	}
	return c
}

// SetMetrics attaches a Metrics sink the chain records per-attempt
// provider request counts, durations, and token usage to. Nil (the
// default) disables recording.
func (c *Chain) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

func (c *Chain) burst() int {
	if c.cfg.Burst <= 0 {
		return 1
	}
	return c.cfg.Burst
}

// Send tries each member in order, sanitizing the request before every
// attempt so a failed member's orphaned tool-use tail never reaches the
// next provider (spec §4.4: "Before each fallback attempt the request
// is re-sanitized").
func (c *Chain) Send(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for _, member := range c.members {
		req.Messages = Sanitize(req.Messages)

		if !c.available(member.Name()) {
			continue
		}
		if limiter, ok := c.limiter[member.Name()]; ok {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.sendWithRetry(ctx, member, req)
		if err == nil {
			c.recordSuccess(member.Name())
			return resp, nil
		}

		lastErr = err
		c.recordFailure(member.Name())

		if !ClassifyError(err).ShouldFailover() {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no available providers")
	}
	return nil, lastErr
}

func (c *Chain) sendWithRetry(ctx context.Context, member Provider, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		start := time.Now()
		resp, err := member.Send(ctx, req)
		c.recordAttempt(member.Name(), req.Model, resp, err, time.Since(start))
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !ClassifyError(err).Retryable() || attempt > c.cfg.MaxRetries {
			return nil, err
		}
		if err := backoff.SleepWithContext(ctx, backoff.ComputeBackoff(c.cfg.BackoffPolicy, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Chain) recordAttempt(providerName, model string, resp *Response, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	var inputTokens, outputTokens int
	if err != nil {
		status = "error"
	} else if resp != nil {
		inputTokens, outputTokens = resp.InputTokens, resp.OutputTokens
	}
	c.metrics.RecordProviderRequest(providerName, model, status, elapsed.Seconds(), inputTokens, outputTokens)
}

func (c *Chain) available(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.states[name]
	if s == nil || !s.circuitOpen {
		return true
	}
	return time.Since(s.openedAt) > c.cfg.CircuitBreakerTimeout
}

func (c *Chain) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.states[name]; s != nil {
		s.failures = 0
		s.circuitOpen = false
	}
}

func (c *Chain) recordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.states[name]
	if s == nil {
		s = &memberState{}
		c.states[name] = s
	}
	s.failures++
	if s.failures >= c.cfg.CircuitBreakerThreshold && !s.circuitOpen {
		s.circuitOpen = true
		s.openedAt = time.Now()
	}
}

// Members returns the chain's providers in fallback order.
func (c *Chain) Members() []Provider { return c.members }
