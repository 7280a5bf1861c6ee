package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Delayer inserts a pause between successive downloads. The delay suspends
// only the calling goroutine, never unrelated concurrent work.
type Delayer interface {
	Delay(ctx context.Context) error
}

// BoundsFunc supplies the current [min, max] delay bounds in seconds. Reading
// them per call lets live setting changes apply without restarting anything.
type BoundsFunc func() (min, max float64, err error)

// FixedBounds returns a BoundsFunc for constant bounds
func FixedBounds(min, max float64) BoundsFunc {
	return func() (float64, float64, error) {
		return min, max, nil
	}
}

// UniformDelayer draws each delay uniformly from the configured bounds. The
// randomization defeats fixed-interval request detection.
type UniformDelayer struct {
	bounds BoundsFunc
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewUniformDelayer creates a delayer drawing from the given bounds
func NewUniformDelayer(bounds BoundsFunc) *UniformDelayer {
	return &UniformDelayer{
		bounds: bounds,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay blocks for a duration drawn uniformly from [min, max] seconds, or
// until the context is cancelled.
func (d *UniformDelayer) Delay(ctx context.Context) error {
	min, max, err := d.bounds()
	if err != nil {
		return err
	}
	if max < min {
		max = min
	}

	d.mu.Lock()
	f := d.rng.Float64()
	d.mu.Unlock()

	duration := time.Duration((min + f*(max-min)) * float64(time.Second))

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
