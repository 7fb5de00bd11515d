// Package coordinator schedules and serializes the refresh cycles of one
// entry and tracks whether the last cycle succeeded.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calevents/internal/log"
)

// DefaultSchedule is used when no cron spec is configured.
const DefaultSchedule = "@every 1m"

// ErrStopped is returned by Refresh after Stop.
var ErrStopped = errors.New("coordinator stopped")

// UpdateFunc runs one refresh cycle.
type UpdateFunc func(ctx context.Context) error

// Coordinator runs UpdateFunc on a cron schedule and on demand. Runs never
// overlap: a trigger arriving during a run waits for it to finish.
type Coordinator struct {
	name     string
	schedule string
	update   UpdateFunc
	log      appLog.Logger
	location *time.Location
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	runMu sync.Mutex

	mu          sync.RWMutex
	lastSuccess bool
	lastErr     error
	lastRun     time.Time
	listeners   map[int]func()
	nextID      int
	cron        *cron.Cron
}

type Option func(*Coordinator)

// WithSchedule sets the cron spec, e.g. "*/5 * * * *" or "@every 30s".
func WithSchedule(spec string) Option {
	return func(c *Coordinator) {
		if spec != "" {
			c.schedule = spec
		}
	}
}

func WithLogger(l appLog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithLocation sets the zone cron specs are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) { c.location = loc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New returns a stopped coordinator. The last update is reported as
// successful until a run fails.
func New(name string, update UpdateFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:        name,
		schedule:    DefaultSchedule,
		update:      update,
		log:         appLog.With("coordinator", name),
		location:    time.Local,
		now:         time.Now,
		lastSuccess: true,
		listeners:   make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start begins scheduled refreshes. It does not run an initial refresh.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseCtx.Err() != nil {
		return ErrStopped
	}
	if c.cron != nil {
		return nil
	}

	logger := cronLogger{log: c.log}
	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.DelayIfStillRunning(logger)),
	)
	if _, err := cr.AddFunc(c.schedule, c.scheduled); err != nil {
		return fmt.Errorf("coordinator %s: schedule %q: %w", c.name, c.schedule, err)
	}
	cr.Start()
	c.cron = cr
	c.log.Debug("coordinator started", "schedule", c.schedule)
	return nil
}

func (c *Coordinator) scheduled() {
	// Failures are recorded and logged by Refresh.
	_ = c.Refresh(c.baseCtx)
}

// Refresh runs one cycle now. ctx and the coordinator's own lifetime both
// cancel the run; a cancelled run is not recorded and notifies no listener.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.baseCtx.Err() != nil {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.baseCtx, cancel)
	defer stop()

	started := c.now()
	err := c.update(ctx)
	if err != nil && ctx.Err() != nil {
		// Torn down or abandoned by the caller; the result is discarded.
		if c.baseCtx.Err() != nil {
			return ErrStopped
		}
		c.log.Debug("update abandoned", "error", err.Error())
		return err
	}

	c.mu.Lock()
	c.lastRun = started
	c.lastErr = err
	c.lastSuccess = err == nil
	listeners := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("update failed", "error", err.Error(), "took", c.now().Sub(started).String())
	} else {
		c.log.Debug("update finished", "took", c.now().Sub(started).String())
	}
	for _, fn := range listeners {
		fn()
	}
	return err
}

// LastUpdateSuccess reports whether the most recent run succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastError is the error of the most recent run, nil on success.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastRun is the start time of the most recent completed run.
func (c *Coordinator) LastRun() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRun
}

// AddListener registers fn to be called after every completed run and
// returns a function removing it.
func (c *Coordinator) AddListener(fn func()) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Stop cancels any in-flight run, stops the schedule and waits for a
// running scheduled job to return.
func (c *Coordinator) Stop() {
	c.cancel()

	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
	c.log.Debug("coordinator stopped")
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct {
	log appLog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, err, keysAndValues...)
}
