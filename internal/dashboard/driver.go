package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/authctx"
	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/tracker"
)

type DriverDashboard struct {
	session *authctx.Session
	tracker Tracker
	Status  *StatusWidget
	log     zerolog.Logger

	mu       sync.Mutex
	teardown func()
}

func NewDriverDashboard(deps Deps) *DriverDashboard {
	initial := models.StatusAvailable
	if deps.Session != nil {
		if u, ok := deps.Session.User(); ok {
			initial = u.Status
		}
	}
	return &DriverDashboard{
		session: deps.Session,
		tracker: deps.Tracker,
		Status:  NewStatusWidget(deps.Backend, deps.Session, initial, deps.Logger),
		log:     deps.Logger.With().Str("component", "driver-dashboard").Logger(),
	}
}

// Mount starts tracking and ties its teardown to sign-out. Permission
// problems are shown as a banner, not returned.
func (d *DriverDashboard) Mount(ctx context.Context) error {
	err := d.tracker.Start(ctx)
	var pe *tracker.PermissionError
	if err != nil && !errors.As(err, &pe) {
		return err
	}
	if d.tracker.State() == tracker.Tracking && d.session != nil {
		d.mu.Lock()
		if d.teardown == nil {
			d.teardown = d.session.AddTeardown(d.tracker.Stop)
		}
		d.mu.Unlock()
	}
	return nil
}

func (d *DriverDashboard) Unmount() {
	d.tracker.Stop()
	d.mu.Lock()
	if d.teardown != nil {
		d.teardown()
		d.teardown = nil
	}
	d.mu.Unlock()
}

func (d *DriverDashboard) Render(w io.Writer) error {
	if b := d.tracker.Banner(); b != nil {
		fmt.Fprintf(w, "! %s\n", b)
	}
	status := d.Status.Status()
	if d.Status.Loading() {
		fmt.Fprintf(w, "Status: %s (saving...)\n", status)
	} else {
		fmt.Fprintf(w, "Status: %s\n", status)
	}
	fmt.Fprintf(w, "Tracking: %s\n", d.tracker.State())

	var center *models.Coord
	if s, ok := d.tracker.LastSample(); ok {
		c := s.Coord()
		center = &c
		fmt.Fprintf(w, "Last position: %.6f, %.6f at %s\n", s.Latitude, s.Longitude, s.RecordedAt.Format("15:04:05"))
	} else {
		fmt.Fprintln(w, "Last position: waiting for first fix")
	}
	r := geo.RegionAround(center)
	fmt.Fprintf(w, "Map: centered %.4f,%.4f span %.4f x %.4f\n", r.Latitude, r.Longitude, r.LatitudeDelta, r.LongitudeDelta)
	return nil
}
