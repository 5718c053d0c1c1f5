package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/observability"
	"github.com/example/fleet-tracker/internal/schedule"
)

type State int

const (
	Idle State = iota
	Denied
	Tracking
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Denied:
		return "denied"
	case Tracking:
		return "tracking"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Mode int

const (
	Foreground Mode = iota
	Background
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "foreground":
		return Foreground, nil
	case "background":
		return Background, nil
	default:
		return 0, fmt.Errorf("unknown tracking mode %q", s)
	}
}

const (
	DefaultInterval = 60 * time.Second
	DefaultTaskName = "background-location-task"
)

type Permissions interface {
	RequestForeground(ctx context.Context) (bool, error)
	RequestBackground(ctx context.Context) (bool, error)
}

type Positioner interface {
	CurrentPosition(ctx context.Context) (models.Sample, error)
}

type Reporter interface {
	UpdateDriverLocation(ctx context.Context, s models.Sample) error
}

// Mirror receives every sample the backend accepted.
type Mirror interface {
	PublishLocation(ctx context.Context, ev models.LocationEvent) error
}

type Config struct {
	Mode     Mode
	Interval time.Duration
	TaskName string
	Policy   Policy
	// ValidateCoordinates drops out-of-range samples before they are sent.
	ValidateCoordinates bool
	// DriverID attributes mirrored events.
	DriverID int64
}

type Deps struct {
	Permissions Permissions
	Positioner  Positioner
	Reporter    Reporter
	Scheduler   schedule.Scheduler
	Tasks       TaskService
	Mirrors     []Mirror
	OnSample    func(models.Sample)
	Logger      zerolog.Logger
}

// Controller drives one driver's location reporting.
type Controller struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	denied  *PermissionError
	banner  *PermissionError
	current *run

	last atomic.Pointer[models.Sample]
}

// run holds what one Start owns until the matching Stop.
type run struct {
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopTimer  func()
	registered string
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TaskName == "" {
		cfg.TaskName = DefaultTaskName
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = Deferred
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With().Str("component", "tracker").Logger(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Banner is the permission problem to show the driver, if any.
func (c *Controller) Banner() *PermissionError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denied != nil {
		return c.denied
	}
	return c.banner
}

// LastSample is the most recent position, reported or not.
func (c *Controller) LastSample() (models.Sample, bool) {
	p := c.last.Load()
	if p == nil {
		return models.Sample{}, false
	}
	return *p, true
}

// Start asks for permission and begins reporting. It is a no-op while
// tracking. A foreground denial is terminal: the same error is returned on
// every later call without asking again. A background denial is returned too,
// but tracking continues in the foreground.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Tracking:
		c.mu.Unlock()
		return nil
	case Denied:
		c.mu.Unlock()
		return c.denied
	}

	granted, err := c.deps.Permissions.RequestForeground(ctx)
	if err != nil || !granted {
		c.state = Denied
		c.denied = &PermissionError{Kind: ForegroundPermission, Err: err}
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("location permission denied")
		return c.denied
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{ctx: runCtx, cancel: cancel}
	var startErr error
	foreground := true

	switch c.cfg.Mode {
	case Background:
		ok, err := c.deps.Permissions.RequestBackground(ctx)
		if err != nil || !ok {
			c.banner = &PermissionError{Kind: BackgroundPermission, Err: err}
			startErr = c.banner
			c.log.Warn().Err(err).Msg("background location denied, falling back to foreground sampling")
			break
		}
		if err := c.attachBackground(r); err != nil {
			c.log.Error().Err(err).Msg("background task unavailable, falling back to foreground sampling")
			break
		}
		foreground = false
	case Foreground:
	default:
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("unknown tracking mode %d", c.cfg.Mode)
	}

	if foreground {
		stop, err := c.deps.Scheduler.Every(c.cfg.Interval, func() { c.sampleAsync(r) })
		if err != nil {
			c.mu.Unlock()
			cancel()
			return fmt.Errorf("schedule location timer: %w", err)
		}
		r.stopTimer = stop
	}

	c.current = r
	c.state = Tracking
	c.mu.Unlock()

	c.log.Info().Bool("foreground", foreground).Dur("interval", c.cfg.Interval).Msg("location tracking started")
	if foreground {
		c.sampleAsync(r)
	}
	return startErr
}

// attachBackground joins the named task if it already runs, otherwise
// registers it. Called with c.mu held.
func (c *Controller) attachBackground(r *run) error {
	if c.deps.Tasks == nil {
		return errors.New("no background task service")
	}
	name := c.cfg.TaskName
	ch, ok := c.deps.Tasks.Updates(name)
	if !ok {
		var err error
		ch, err = c.deps.Tasks.Register(name, c.cfg.Policy)
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		r.registered = name
	}
	r.wg.Add(1)
	go c.consume(r, ch)
	return nil
}

func (c *Controller) consume(r *run, ch <-chan []models.Sample) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			observability.BackgroundBatches.Inc()
			for _, s := range batch {
				c.record(s)
				c.report(r.ctx, s)
			}
		}
	}
}

// Stop tears down the timer or task and waits for in-flight samples.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.current
	if c.state != Tracking || r == nil {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.state = Stopped
	r.cancel()
	if r.stopTimer != nil {
		r.stopTimer()
	}
	if r.registered != "" {
		if err := c.deps.Tasks.Unregister(r.registered); err != nil {
			c.log.Warn().Err(err).Str("task", r.registered).Msg("unregister background task failed")
		}
	}
	c.mu.Unlock()

	r.wg.Wait()
	c.log.Info().Msg("location tracking stopped")
}

func (c *Controller) sampleAsync(r *run) {
	c.mu.Lock()
	if r.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	r.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer r.wg.Done()
		c.sampleOnce(r.ctx)
	}()
}

func (c *Controller) sampleOnce(ctx context.Context) {
	s, err := c.deps.Positioner.CurrentPosition(ctx)
	if err != nil {
		observability.LocationSamples.WithLabelValues("position_error").Inc()
		c.log.Error().Err(err).Msg("could not read current position")
		return
	}
	c.record(s)
	c.report(ctx, s)
}

func (c *Controller) record(s models.Sample) {
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}
	c.last.Store(&s)
	if c.deps.OnSample != nil {
		c.deps.OnSample(s)
	}
}

func (c *Controller) report(ctx context.Context, s models.Sample) {
	if c.cfg.ValidateCoordinates && !s.InRange() {
		observability.LocationSamples.WithLabelValues("invalid").Inc()
		c.log.Warn().Float64("lat", s.Latitude).Float64("lon", s.Longitude).Msg("dropping out-of-range sample")
		return
	}
	if err := c.deps.Reporter.UpdateDriverLocation(ctx, s); err != nil {
		observability.LocationSamples.WithLabelValues("report_error").Inc()
		c.log.Error().Err(err).Msg("error updating location")
		return
	}
	observability.LocationSamples.WithLabelValues("reported").Inc()

	if len(c.deps.Mirrors) == 0 {
		return
	}
	ev := models.NewLocationEvent(c.cfg.DriverID, s)
	for _, m := range c.deps.Mirrors {
		if err := m.PublishLocation(ctx, ev); err != nil {
			c.log.Warn().Err(err).Msg("mirror publish failed")
		}
	}
}
