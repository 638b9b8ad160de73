package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ResourceConfig holds resource limits for a run.
type ResourceConfig struct {
	// BufferLimitBytes caps the total artifact bytes buffered in memory
	// at once. If 0, no hard limit is enforced (only tracking).
	BufferLimitBytes int64

	// RequestsPerSecond paces upstream API and download requests.
	// If 0, unlimited.
	RequestsPerSecond float64

	// RequestBurst is the rate limiter burst. If 0, defaults to 1.
	RequestBurst int
}

// Controller manages run-wide resources (buffer memory, request rate).
type Controller struct {
	cfg ResourceConfig

	bufSem  *semaphore.Weighted // nil if unlimited
	bufUsed atomic.Int64

	reqLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg ResourceConfig) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.BufferLimitBytes > 0 {
		c.bufSem = semaphore.NewWeighted(cfg.BufferLimitBytes)
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		c.reqLimiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c
}

// AcquireBuffer reserves buffer memory for one artifact. Blocks until
// memory is available or ctx is canceled.
func (c *Controller) AcquireBuffer(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.bufSem != nil {
		if err := c.bufSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.bufUsed.Add(bytes)
	return nil
}

// ReleaseBuffer releases reserved buffer memory.
func (c *Controller) ReleaseBuffer(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.bufSem != nil {
		c.bufSem.Release(bytes)
	}
	c.bufUsed.Add(-bytes)
}

// BufferUsage returns the currently reserved buffer bytes.
func (c *Controller) BufferUsage() int64 {
	if c == nil {
		return 0
	}
	return c.bufUsed.Load()
}

// AcquireRequest waits until the rate limit allows one upstream request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	if c == nil || c.reqLimiter == nil {
		return nil
	}
	return c.reqLimiter.Wait(ctx)
}
