// Package batch runs a function over a slice of items with bounded
// concurrency, per-item retries and an optional circuit breaker. Results are
// returned in input order so callers can zip them back onto their inputs.
//
// The explorer uses it for every gateway fan-out: citation lookups for a
// frontier, detail lookups for discovered candidates, and seed resolution.
package batch

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinels
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrCircuitOpen is returned for items skipped while the breaker is open.
	ErrCircuitOpen = errors.New("batch: circuit breaker open")

	// ErrNilFunc is returned when Process is called without a function.
	ErrNilFunc = errors.New("batch: process function must not be nil")
)

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

// Func processes a single item.
type Func[T, R any] func(ctx context.Context, item T) (R, error)

// ItemStatus classifies the outcome of one item.
type ItemStatus string

const (
	StatusSuccess   ItemStatus = "success"
	StatusFailed    ItemStatus = "failed"
	StatusTimeout   ItemStatus = "timeout"
	StatusCancelled ItemStatus = "cancelled"
)

// ItemResult is the outcome for the item at Index.
type ItemResult[R any] struct {
	Index    int
	Result   R
	Err      error
	Attempts int
	Duration time.Duration
	Status   ItemStatus
}

// OK reports whether the item succeeded.
func (r ItemResult[R]) OK() bool { return r.Status == StatusSuccess }

// Result aggregates all item outcomes of one Process call.
type Result[R any] struct {
	Items     []ItemResult[R]
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Failures returns the failed items in input order.
func (r *Result[R]) Failures() []ItemResult[R] {
	out := make([]ItemResult[R], 0, r.Failed)
	for _, it := range r.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// RetryPolicy controls per-item retries. Retryable nil retries every error
// except context cancellation.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Retryable         func(error) bool
}

// DefaultRetryPolicy retries twice with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
	}
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// backoff returns the delay before retry number attempt (1-based) with ±25% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	jitter := d * 0.25 * (2*rand.Float64() - 1)
	return time.Duration(d + jitter)
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

type config struct {
	maxConcurrency int
	itemTimeout    time.Duration
	retry          RetryPolicy
	cbThreshold    int
	cbCooldown     time.Duration
	logger         logging.Logger
	name           string
}

// Option configures a Processor.
type Option func(*config)

// WithMaxConcurrency bounds the number of items in flight. Values < 1 are ignored.
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout bounds each attempt. Zero disables the per-item timeout.
func WithItemTimeout(d time.Duration) Option {
	return func(c *config) { c.itemTimeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *config) { c.retry = p }
}

// WithCircuitBreaker opens the breaker after threshold consecutive failures
// and keeps it open for cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *config) {
		c.cbThreshold = threshold
		c.cbCooldown = cooldown
	}
}

// WithLogger sets the logger used for breaker transitions.
func WithLogger(l logging.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithName labels log entries.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// ─────────────────────────────────────────────────────────────────────────────
// Processor
// ─────────────────────────────────────────────────────────────────────────────

// Processor is safe for concurrent use; the circuit breaker state is shared
// by all Process calls on the same Processor.
type Processor[T, R any] struct {
	cfg config
	cb  *breaker
}

// New builds a Processor.
func New[T, R any](opts ...Option) *Processor[T, R] {
	cfg := config{
		maxConcurrency: 8,
		retry:          DefaultRetryPolicy(),
		logger:         logging.NewNopLogger(),
		name:           "batch",
	}
	for _, o := range opts {
		o(&cfg)
	}
	p := &Processor[T, R]{cfg: cfg}
	if cfg.cbThreshold > 0 && cfg.cbCooldown > 0 {
		p.cb = &breaker{threshold: int64(cfg.cbThreshold), cooldown: cfg.cbCooldown, logger: cfg.logger, name: cfg.name}
	}
	return p
}

// MaxConcurrency returns the configured bound.
func (p *Processor[T, R]) MaxConcurrency() int { return p.cfg.maxConcurrency }

// Process runs fn over items. Per-item failures are reported in the result;
// the returned error is non-nil only for a nil fn or when ctx ends before the
// batch completes, in which case the partial result is still returned.
func (p *Processor[T, R]) Process(ctx context.Context, items []T, fn Func[T, R]) (*Result[R], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	start := time.Now()
	res := &Result[R]{Items: make([]ItemResult[R], len(items))}
	if len(items) == 0 {
		return res, ctx.Err()
	}

	sem := make(chan struct{}, p.cfg.maxConcurrency)
	var wg sync.WaitGroup
	for i := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				res.Items[j] = ItemResult[R]{Index: j, Err: ctx.Err(), Status: classify(ctx.Err())}
			}
			goto wait
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			res.Items[idx] = p.processOne(ctx, idx, items[idx], fn)
		}(i)
	}

wait:
	wg.Wait()
	for _, it := range res.Items {
		if it.OK() {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	res.Duration = time.Since(start)
	return res, ctx.Err()
}

func (p *Processor[T, R]) processOne(ctx context.Context, idx int, item T, fn Func[T, R]) ItemResult[R] {
	start := time.Now()
	ir := ItemResult[R]{Index: idx}
	for attempt := 1; ; attempt++ {
		ir.Attempts = attempt
		if p.cb != nil && !p.cb.allow() {
			ir.Err = ErrCircuitOpen
			ir.Status = StatusFailed
			break
		}

		r, err := p.attempt(ctx, item, fn)
		if err == nil {
			if p.cb != nil {
				p.cb.success()
			}
			ir.Result, ir.Err, ir.Status = r, nil, StatusSuccess
			break
		}
		if p.cb != nil && ctx.Err() == nil {
			p.cb.failure()
		}
		ir.Err = err
		ir.Status = classify(err)
		if attempt > p.cfg.retry.MaxRetries || !p.cfg.retry.shouldRetry(err) || ctx.Err() != nil {
			break
		}
		t := time.NewTimer(p.cfg.retry.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			ir.Err = ctx.Err()
			ir.Status = classify(ctx.Err())
			ir.Duration = time.Since(start)
			return ir
		case <-t.C:
		}
	}
	ir.Duration = time.Since(start)
	return ir
}

func (p *Processor[T, R]) attempt(ctx context.Context, item T, fn Func[T, R]) (r R, err error) {
	if p.cfg.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.itemTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec}
		}
	}()
	return fn(ctx, item)
}

// PanicError wraps a panic recovered from a processing function.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "batch: panic: " + err.Error()
	}
	if s, ok := e.Value.(string); ok {
		return "batch: panic: " + s
	}
	return "batch: panic in process function"
}

func classify(err error) ItemStatus {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// breaker
// ─────────────────────────────────────────────────────────────────────────────

type breaker struct {
	threshold int64
	cooldown  time.Duration
	logger    logging.Logger
	name      string

	consecutive atomic.Int64
	openedAt    atomic.Int64 // unix nanos; 0 means closed
}

func (b *breaker) allow() bool {
	opened := b.openedAt.Load()
	if opened == 0 {
		return true
	}
	if time.Since(time.Unix(0, opened)) >= b.cooldown {
		// half-open: let the next call through; a failure reopens.
		if b.openedAt.CompareAndSwap(opened, 0) {
			b.consecutive.Store(b.threshold - 1)
			b.logger.Info("circuit breaker half-open", logging.String("processor", b.name))
		}
		return true
	}
	return false
}

func (b *breaker) success() {
	b.consecutive.Store(0)
}

func (b *breaker) failure() {
	if b.consecutive.Add(1) >= b.threshold {
		if b.openedAt.CompareAndSwap(0, time.Now().UnixNano()) {
			b.logger.Warn("circuit breaker opened",
				logging.String("processor", b.name),
				logging.Int64("consecutive_failures", b.consecutive.Load()))
		}
	}
}

// Open reports whether the breaker currently rejects calls.
func (p *Processor[T, R]) Open() bool {
	if p.cb == nil {
		return false
	}
	opened := p.cb.openedAt.Load()
	return opened != 0 && time.Since(time.Unix(0, opened)) < p.cb.cooldown
}
