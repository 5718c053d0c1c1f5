package dashboard

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/authctx"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/roster"
	"github.com/example/fleet-tracker/internal/tracker"
)

// Screen is a role's home view.
type Screen interface {
	Mount(ctx context.Context) error
	Unmount()
	Render(w io.Writer) error
}

// Backend is what the screens need from the gateway.
type Backend interface {
	roster.Source
	roster.CountSource
	StatusChanger
}

// Tracker is the driver's location controller.
type Tracker interface {
	Start(ctx context.Context) error
	Stop()
	State() tracker.State
	LastSample() (models.Sample, bool)
	Banner() *tracker.PermissionError
}

type Deps struct {
	Session *authctx.Session
	Backend Backend
	Tracker Tracker
	Logger  zerolog.Logger
}

// ForRole picks the home screen for role.
func ForRole(role models.Role, deps Deps) (Screen, error) {
	switch role {
	case models.RoleAdmin:
		return NewAdminDashboard(deps), nil
	case models.RoleDriver:
		if deps.Tracker == nil {
			return nil, fmt.Errorf("driver dashboard needs a tracker")
		}
		return NewDriverDashboard(deps), nil
	default:
		return nil, fmt.Errorf("no screen for role %q", role)
	}
}
