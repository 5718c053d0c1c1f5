package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/schedule"
)

var (
	ErrTaskRegistered = errors.New("location task already registered")
	ErrTaskUnknown    = errors.New("location task not registered")
)

// TaskService is the platform's background location service. Batches of
// fixes arrive on the channel; it is closed on Unregister.
type TaskService interface {
	Updates(name string) (<-chan []models.Sample, bool)
	Register(name string, p Policy) (<-chan []models.Sample, error)
	Unregister(name string) error
}

// LocalTaskService runs background tasks in-process by polling a Positioner.
type LocalTaskService struct {
	pos   Positioner
	sched schedule.Scheduler
	log   zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*localTask
}

type localTask struct {
	policy Policy
	ch     chan []models.Sample
	stop   func()
	cancel context.CancelFunc

	mu      sync.Mutex
	last    *models.Sample
	pending []models.Sample
	closed  bool
}

func NewLocalTaskService(pos Positioner, sched schedule.Scheduler, log zerolog.Logger) *LocalTaskService {
	return &LocalTaskService{
		pos:   pos,
		sched: sched,
		log:   log.With().Str("component", "location-task").Logger(),
		tasks: make(map[string]*localTask),
	}
}

func (l *LocalTaskService) Updates(name string) (<-chan []models.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tasks[name]
	if !ok {
		return nil, false
	}
	return t.ch, true
}

func (l *LocalTaskService) Register(name string, p Policy) (<-chan []models.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tasks[name]; ok {
		return nil, ErrTaskRegistered
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &localTask{policy: p, ch: make(chan []models.Sample, 16), cancel: cancel}
	stop, err := l.sched.Every(p.Interval, func() { l.poll(ctx, t) })
	if err != nil {
		cancel()
		return nil, err
	}
	t.stop = stop
	l.tasks[name] = t
	l.log.Info().Str("task", name).Str("policy", p.Name).Msg("location task registered")
	return t.ch, nil
}

func (l *LocalTaskService) Unregister(name string) error {
	l.mu.Lock()
	t, ok := l.tasks[name]
	delete(l.tasks, name)
	l.mu.Unlock()
	if !ok {
		return ErrTaskUnknown
	}
	t.stop()
	t.cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		l.deliver(t, t.pending)
		t.pending = nil
	}
	t.closed = true
	close(t.ch)
	return nil
}

func (l *LocalTaskService) poll(ctx context.Context, t *localTask) {
	s, err := l.pos.CurrentPosition(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("background position read failed")
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.last != nil && geo.Haversine(t.last.Latitude, t.last.Longitude, s.Latitude, s.Longitude) < t.policy.DistanceMeters {
		return
	}
	t.last = &s
	if !t.policy.Deferred {
		l.deliver(t, []models.Sample{s})
		return
	}
	t.pending = append(t.pending, s)
	if len(t.pending) >= max(t.policy.BatchSize, 1) {
		l.deliver(t, t.pending)
		t.pending = nil
	}
}

// deliver never blocks; a full channel drops the batch. Called with t.mu held.
func (l *LocalTaskService) deliver(t *localTask, batch []models.Sample) {
	select {
	case t.ch <- batch:
	default:
		l.log.Warn().Int("fixes", len(batch)).Msg("location batch dropped, consumer not keeping up")
	}
}
