package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Clock abstracts time so pacing and backoff can be tested without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Rand is the subset of *rand.Rand used for jitter and strategy choices.
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 {
	return rand.Float64()
}

// GlobalRand returns a Rand backed by the process-wide generator.
func GlobalRand() Rand {
	return globalRand{}
}

type systemClock struct{}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PacingPolicy controls the randomized delay inserted before every call.
type PacingPolicy struct {
	MinPause      time.Duration
	MaxPause      time.Duration
	LongPauseProb float64
	LongPauseMin  time.Duration
	LongPauseMax  time.Duration
	MinSpacing    time.Duration
	PageTurnMin   time.Duration
	PageTurnMax   time.Duration
}

// DefaultPacingPolicy returns human-like pacing defaults.
func DefaultPacingPolicy() PacingPolicy {
	return PacingPolicy{
		MinPause:      1500 * time.Millisecond,
		MaxPause:      5 * time.Second,
		LongPauseProb: 0.1,
		LongPauseMin:  8 * time.Second,
		LongPauseMax:  15 * time.Second,
		MinSpacing:    5 * time.Second,
		PageTurnMin:   8 * time.Second,
		PageTurnMax:   15 * time.Second,
	}
}

// BackoffPolicy controls waits after failed calls.
type BackoffPolicy struct {
	RateLimitBase          time.Duration
	RateLimitCap           time.Duration
	TransientBase          time.Duration
	TransientCap           time.Duration
	MaxConsecutiveFailures int
}

// DefaultBackoffPolicy returns the default escalation parameters.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		RateLimitBase:          60 * time.Second,
		RateLimitCap:           time.Hour,
		TransientBase:          30 * time.Second,
		TransientCap:           10 * time.Minute,
		MaxConsecutiveFailures: 5,
	}
}

// RateLimitWait returns min(base * 2^n, cap).
func (p BackoffPolicy) RateLimitWait(n int) time.Duration {
	wait := float64(p.RateLimitBase) * math.Pow(2, float64(n))
	if wait > float64(p.RateLimitCap) {
		return p.RateLimitCap
	}
	return time.Duration(wait)
}

// TransientWait returns min(base * n, cap).
func (p BackoffPolicy) TransientWait(n int) time.Duration {
	wait := p.TransientBase * time.Duration(n)
	if wait > p.TransientCap || wait < 0 {
		return p.TransientCap
	}
	return wait
}

// ControllerState is the pacing state machine position.
type ControllerState string

const (
	StateIdle    ControllerState = "idle"
	StatePacing  ControllerState = "pacing"
	StateBlocked ControllerState = "blocked"
	StateAborted ControllerState = "aborted"
)

// BackoffObserver is notified of every wait the controller performs.
type BackoffObserver interface {
	ObserveWait(kind string, d time.Duration)
}

// Wait kinds reported to a BackoffObserver.
const (
	WaitPacing    = "pacing"
	WaitRateLimit = "rate_limit"
	WaitTransient = "transient"
	WaitAuth      = "auth"
)

// Controller gates every transport call and escalates waits after failures.
// It is owned by the engine loop and is not safe for concurrent use.
type Controller struct {
	pacing   PacingPolicy
	backoff  BackoffPolicy
	clock    Clock
	rng      Rand
	logger   *slog.Logger
	observer BackoffObserver

	state           ControllerState
	lastCall        time.Time
	rateLimitStreak int
	failureStreak   int
}

// NewController creates a controller in the Idle state.
func NewController(pacing PacingPolicy, backoff BackoffPolicy, clock Clock, rng Rand, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = SystemClock()
	}
	if rng == nil {
		rng = GlobalRand()
	}
	return &Controller{
		pacing:  pacing,
		backoff: backoff,
		clock:   clock,
		rng:     rng,
		logger:  logger,
		state:   StateIdle,
	}
}

// SetObserver installs a wait observer, typically the metrics collector.
func (c *Controller) SetObserver(o BackoffObserver) {
	c.observer = o
}

// State returns the current state machine position.
func (c *Controller) State() ControllerState {
	return c.state
}

// RateLimitStreak returns the number of consecutive rate limit signals.
func (c *Controller) RateLimitStreak() int {
	return c.rateLimitStreak
}

// FailureStreak returns the number of consecutive transient failures.
func (c *Controller) FailureStreak() int {
	return c.failureStreak
}

// Pace sleeps before a transport call: a random pause, occasionally a longer
// one, an extra page-turn pause for follow-up pages, and whatever is needed to
// keep MinSpacing since the previous call. It returns the total time slept.
func (c *Controller) Pace(ctx context.Context, followUp bool) (time.Duration, error) {
	c.state = StatePacing

	delay := c.uniform(c.pacing.MinPause, c.pacing.MaxPause)
	if c.pacing.LongPauseProb > 0 && c.rng.Float64() < c.pacing.LongPauseProb {
		delay += c.uniform(c.pacing.LongPauseMin, c.pacing.LongPauseMax)
	}
	if followUp {
		delay += c.uniform(c.pacing.PageTurnMin, c.pacing.PageTurnMax)
	}

	if err := c.sleep(ctx, WaitPacing, delay); err != nil {
		return delay, err
	}

	total := delay
	if !c.lastCall.IsZero() {
		if elapsed := c.clock.Now().Sub(c.lastCall); elapsed < c.pacing.MinSpacing {
			gap := c.pacing.MinSpacing - elapsed
			if err := c.sleep(ctx, WaitPacing, gap); err != nil {
				return total, err
			}
			total += gap
		}
	}

	c.lastCall = c.clock.Now()
	return total, nil
}

// OnSuccess resets both failure streaks after a fully successful call.
func (c *Controller) OnSuccess() {
	c.rateLimitStreak = 0
	c.failureStreak = 0
	c.state = StatePacing
}

// OnRateLimited moves to Blocked, waits min(base * 2^n, cap) where n counts
// consecutive rate limit signals, and returns to Pacing. A larger server hint
// is honoured up to the cap.
func (c *Controller) OnRateLimited(ctx context.Context, retryAfter time.Duration) (time.Duration, error) {
	c.state = StateBlocked
	c.rateLimitStreak++

	wait := c.backoff.RateLimitWait(c.rateLimitStreak)
	if retryAfter > wait {
		wait = min(retryAfter, c.backoff.RateLimitCap)
	}

	c.logger.Warn("rate limited, backing off",
		"streak", c.rateLimitStreak,
		"wait", wait,
	)

	if err := c.sleep(ctx, WaitRateLimit, wait); err != nil {
		return wait, err
	}
	c.state = StatePacing
	return wait, nil
}

// OnTransient waits min(base * n, cap) where n counts consecutive transient
// failures. It reports rotate=true once the streak reaches
// MaxConsecutiveFailures and then starts a new streak.
func (c *Controller) OnTransient(ctx context.Context, cause error) (wait time.Duration, rotate bool, err error) {
	c.failureStreak++
	wait = c.backoff.TransientWait(c.failureStreak)

	c.logger.Warn("transient transport error, backing off",
		"streak", c.failureStreak,
		"wait", wait,
		"error", cause,
	)

	if c.backoff.MaxConsecutiveFailures > 0 && c.failureStreak >= c.backoff.MaxConsecutiveFailures {
		rotate = true
		c.failureStreak = 0
	}

	if err := c.sleep(ctx, WaitTransient, wait); err != nil {
		return wait, rotate, err
	}
	return wait, rotate, nil
}

// Abort moves the controller to its terminal state.
func (c *Controller) Abort() {
	c.state = StateAborted
}

func (c *Controller) sleep(ctx context.Context, kind string, d time.Duration) error {
	if c.observer != nil && d > 0 {
		c.observer.ObserveWait(kind, d)
	}
	if err := c.clock.Sleep(ctx, d); err != nil {
		c.state = StateAborted
		return err
	}
	return nil
}

func (c *Controller) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.rng.Float64()*float64(hi-lo))
}

// RetryPolicy defines how authentication attempts are retried. The wait before
// attempt k+1 is BaseDelay * (k+1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the default authentication retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
	}
}

// ErrRetriesExhausted is returned by Retry when every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry runs fn up to MaxAttempts times with linearly increasing waits.
func Retry(ctx context.Context, clock Clock, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if clock == nil {
		clock = SystemClock()
	}
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		backoff := policy.BaseDelay * time.Duration(attempt+1)
		if err := clock.Sleep(ctx, backoff); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
