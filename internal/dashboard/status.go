package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/authctx"
	"github.com/example/fleet-tracker/internal/models"
)

type StatusChanger interface {
	ChangeStatus(ctx context.Context, s models.Status) error
}

// StatusWidget shows and changes the driver's availability.
type StatusWidget struct {
	backend StatusChanger
	session *authctx.Session
	log     zerolog.Logger

	mu      sync.Mutex
	status  models.Status
	loading bool
}

func NewStatusWidget(backend StatusChanger, session *authctx.Session, initial models.Status, log zerolog.Logger) *StatusWidget {
	return &StatusWidget{backend: backend, session: session, status: initial, log: log.With().Str("component", "status").Logger()}
}

// Change shows st right away and posts it. A failed post is logged and the
// optimistic value stays.
func (s *StatusWidget) Change(ctx context.Context, st models.Status) error {
	if !st.Valid() {
		return fmt.Errorf("unknown status %q", st)
	}
	s.mu.Lock()
	s.status = st
	s.loading = true
	s.mu.Unlock()

	err := s.backend.ChangeStatus(ctx, st)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Str("status", string(st)).Msg("error changing status")
		return err
	}
	if s.session != nil {
		s.session.SetUserStatus(st)
	}
	return nil
}

func (s *StatusWidget) Status() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *StatusWidget) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
