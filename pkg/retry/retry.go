package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains backoff settings
type Config struct {
	// MaxRetries counts retries after the first attempt (0 = single attempt)
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor is the +/- fraction applied to each interval
	JitterFactor float64
}

// DefaultConfig returns exponential backoff 1s, 2s, 4s ... capped at 30s
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError stops the retry loop immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Result describes a finished retry loop
type Result struct {
	// Err is nil on success. Exhaustion and cancellation wrap LastError.
	Err           error
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

// Callback is invoked before each backoff wait
type Callback func(attempt int, err error, next time.Duration)

// Retrier runs operations with exponential backoff
type Retrier struct {
	config Config
}

// New creates a Retrier, filling zero values with defaults
func New(cfg *Config) *Retrier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Max(0, math.Min(1, c.JitterFactor))
	return &Retrier{config: c}
}

// Do executes op until it succeeds, returns a permanent error, or retries run out
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

// DoWithCallback is Do with a hook before every wait
func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, cb Callback) *Result {
	start := time.Now()
	res := &Result{}
	finish := func(err error) *Result {
		res.Err = err
		res.TotalDuration = time.Since(start)
		return res
	}

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return finish(r.wrap(ErrContextCanceled, res.LastError))
		}

		res.Attempts = attempt + 1
		err := op(ctx)
		if err == nil {
			return finish(nil)
		}
		res.LastError = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			res.LastError = perm.Err
			return finish(perm.Err)
		}
		if attempt == r.config.MaxRetries {
			break
		}

		wait := r.interval(attempt)
		if cb != nil {
			cb(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return finish(r.wrap(ErrContextCanceled, res.LastError))
		case <-timer.C:
		}
	}

	return finish(r.wrap(ErrMaxRetriesExceeded, res.LastError))
}

func (r *Retrier) wrap(sentinel, last error) error {
	if last == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, last)
}

func (r *Retrier) interval(attempt int) time.Duration {
	d := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.JitterFactor > 0 {
		j := d * r.config.JitterFactor
		d += (rand.Float64()*2 - 1) * j
	}
	if d > float64(r.config.MaxInterval) {
		d = float64(r.config.MaxInterval)
	}
	if d <= 0 {
		d = float64(r.config.InitialInterval)
	}
	return time.Duration(d)
}

// Do is shorthand for New(cfg).Do(ctx, op)
func Do(ctx context.Context, cfg *Config, op Operation) *Result {
	return New(cfg).Do(ctx, op)
}
