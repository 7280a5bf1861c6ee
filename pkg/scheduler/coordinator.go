// Package scheduler owns the periodic trigger and the per-account
// single-flight discipline: at most one pipeline run per account at a time,
// overlapping triggers are dropped rather than queued.
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"vidharvest/pkg/feed"
	"vidharvest/pkg/logger"
)

// Pipeline is the extraction work the coordinator triggers
type Pipeline interface {
	Run(ctx context.Context, account string, fetchMedia bool, maxDownloads int) []feed.PostDescriptor
}

// Settings supplies the live scheduling configuration
type Settings interface {
	ScrapeInterval() (int, error)
	MaxDownloads() (int, error)
	TargetAccount() (string, error)
	Set(key, value string) error
}

// accountState tracks the exclusive flag for one account
type accountState struct {
	running bool
}

// DefaultRunTimeout bounds a whole pipeline run. Per-navigation timeouts bound
// each step, but a feed with many slow posts could otherwise hold the
// per-account flag indefinitely and starve every subsequent trigger.
const DefaultRunTimeout = 30 * time.Minute

// Coordinator triggers periodic and on-demand pipeline runs. It is an
// explicit instance rather than process-wide state, so tests can hold
// several coordinators side by side.
type Coordinator struct {
	pipeline Pipeline
	settings Settings
	logger   logger.Logger

	// RunTimeout is the overall deadline for one pipeline run. Zero or
	// negative disables the bound. Set before the first trigger.
	RunTimeout time.Duration

	mu       sync.Mutex
	accounts map[string]*accountState
	active   bool
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Coordinator
func New(pipeline Pipeline, settings Settings, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Coordinator{
		pipeline:   pipeline,
		settings:   settings,
		logger:     log,
		RunTimeout: DefaultRunTimeout,
		accounts:   make(map[string]*accountState),
	}
}

// Start activates the periodic trigger at the configured interval. A
// non-positive interval means "disabled": the coordinator logs and stays
// inactive rather than failing. Calling Start while active is a no-op.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}

	minutes, err := c.settings.ScrapeInterval()
	if err != nil {
		c.logger.WithError(err).Error("cannot read scrape interval, scheduler not started")
		return
	}
	if minutes <= 0 {
		c.logger.WarnWithFields("scrape interval is non-positive, scheduler disabled", map[string]interface{}{
			"interval_minutes": minutes,
		})
		return
	}

	c.ticker = time.NewTicker(time.Duration(minutes) * time.Minute)
	c.stopCh = make(chan struct{})
	c.active = true
	go c.loop(c.ticker, c.stopCh)

	c.logger.InfoWithFields("scheduler started", map[string]interface{}{
		"interval_minutes": minutes,
	})
}

// Stop deactivates the periodic trigger. Safe to call when inactive. An
// in-flight run is not interrupted; only future triggers are prevented.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	c.ticker.Stop()
	close(c.stopCh)
	c.active = false
	c.logger.Info("scheduler stopped")
}

// Reschedule changes the trigger cadence. Active: the cadence changes in
// place, effective from the next tick, without restarting a running
// execution. Inactive: the new interval is persisted and Start is invoked.
func (c *Coordinator) Reschedule(minutes int) {
	c.mu.Lock()
	if c.active {
		if minutes <= 0 {
			c.mu.Unlock()
			c.Stop()
			return
		}
		c.ticker.Reset(time.Duration(minutes) * time.Minute)
		c.mu.Unlock()
		c.logger.InfoWithFields("scheduler rescheduled", map[string]interface{}{
			"interval_minutes": minutes,
		})
		return
	}
	c.mu.Unlock()

	if err := c.settings.Set("SCRAPE_INTERVAL", strconv.Itoa(minutes)); err != nil {
		c.logger.WithError(err).Error("failed to persist scrape interval")
		return
	}
	c.Start()
}

// Active reports whether the periodic trigger is running
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Running reports whether a run for the account is currently in flight
func (c *Coordinator) Running(account string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.accounts[account]
	return ok && st.running
}

// loop waits for ticks until stopped. Ticker and stop channel are passed in
// so a stale loop from a previous Start can never act on new state.
func (c *Coordinator) loop(ticker *time.Ticker, stopCh chan struct{}) {
	for {
		select {
		case <-ticker.C:
			c.runScheduled()
		case <-stopCh:
			return
		}
	}
}

// runScheduled fires a run for the configured target account
func (c *Coordinator) runScheduled() {
	account, err := c.settings.TargetAccount()
	if err != nil || account == "" {
		c.logger.Warn("no target account configured, skipping scheduled run")
		return
	}
	maxDownloads, err := c.settings.MaxDownloads()
	if err != nil || maxDownloads <= 0 {
		c.logger.WithError(err).Warn("cannot read download budget, skipping scheduled run")
		return
	}
	c.RunOnce(account, maxDownloads)
}

// RunOnce triggers one pipeline run for the account on its own goroutine and
// returns immediately. If a run for the same account is already in flight
// the trigger is dropped and RunOnce returns false; there is no queuing.
func (c *Coordinator) RunOnce(account string, maxDownloads int) bool {
	c.mu.Lock()
	st, ok := c.accounts[account]
	if !ok {
		st = &accountState{}
		c.accounts[account] = st
	}
	if st.running {
		c.mu.Unlock()
		c.logger.InfoWithFields("run already in flight, dropping trigger", map[string]interface{}{
			"account": account,
		})
		return false
	}
	st.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			st.running = false
			c.mu.Unlock()
		}()

		ctx := context.Background()
		if c.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.RunTimeout)
			defer cancel()
		}

		start := time.Now()
		posts := c.pipeline.Run(ctx, account, true, maxDownloads)
		c.logger.InfoWithFields("run finished", map[string]interface{}{
			"account":  account,
			"posts":    len(posts),
			"duration": time.Since(start),
		})
	}()

	return true
}

// Shutdown stops the periodic trigger and waits for in-flight runs to drain
func (c *Coordinator) Shutdown() {
	c.Stop()
	c.wg.Wait()
}
