package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs fn every d until the returned stop func is called.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func(), err error)
}

// Cron schedules interval jobs on a robfig/cron runner. Each firing runs in
// its own goroutine, so a slow job never delays the next tick.
type Cron struct {
	cron *cron.Cron
	log  zerolog.Logger

	once sync.Once
}

func NewCron(log zerolog.Logger) *Cron {
	return &Cron{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (c *Cron) Every(d time.Duration, fn func()) (func(), error) {
	if d < time.Second {
		return nil, fmt.Errorf("interval %s below one second", d)
	}
	id, err := c.cron.AddFunc("@every "+d.String(), fn)
	if err != nil {
		return nil, err
	}
	c.once.Do(c.cron.Start)
	c.log.Debug().Dur("interval", d).Int("entry", int(id)).Msg("job scheduled")

	var removed sync.Once
	return func() { removed.Do(func() { c.cron.Remove(id) }) }, nil
}

// Stop halts the runner and waits for running jobs, bounded by ctx.
func (c *Cron) Stop(ctx context.Context) {
	done := c.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		c.log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// Manual fires jobs only when Tick is called.
type Manual struct {
	mu      sync.Mutex
	nextID  int
	jobs    map[int]func()
	created int
}

func NewManual() *Manual { return &Manual{jobs: make(map[int]func())} }

func (m *Manual) Every(_ time.Duration, fn func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.jobs[id] = fn
	m.created++
	return func() {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
	}, nil
}

// Tick runs every active job once, synchronously.
func (m *Manual) Tick() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.jobs))
	for _, fn := range m.jobs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Active is the number of jobs not yet stopped.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Created counts every Every call.
func (m *Manual) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}
