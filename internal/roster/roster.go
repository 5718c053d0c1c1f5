package roster

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/observability"
)

// Source lists drivers for a server-side filter.
type Source interface {
	DriversByFilter(ctx context.Context, f models.Filter) ([]models.User, error)
}

// UserError carries the message shown inline in place of the list.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *UserError) Unwrap() error { return e.Err }

// Roster is the admin's driver list: server filter, client search and
// selection.
type Roster struct {
	src Source
	log zerolog.Logger

	mu         sync.Mutex
	filter     models.Filter
	query      string
	drivers    []models.User
	fetched    bool
	loading    bool
	refreshing bool
	errMsg     string
	selected   *int64
	seq        uint64
}

func New(src Source, log zerolog.Logger) *Roster {
	return &Roster{
		src:    src,
		log:    log.With().Str("component", "roster").Logger(),
		filter: models.FilterAll,
	}
}

// Fetch loads the list for f and makes f the active filter. On failure the
// previous list stays and an inline message is set.
func (r *Roster) Fetch(ctx context.Context, f models.Filter) error {
	r.mu.Lock()
	r.filter = f
	r.seq++
	seq := r.seq
	if !r.fetched {
		r.loading = true
	}
	r.mu.Unlock()

	users, err := r.src.DriversByFilter(ctx, f)

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq == r.seq {
		r.fetched = true
		r.loading = false
	}
	if err != nil {
		observability.RosterFetches.WithLabelValues(string(f), "error").Inc()
		r.log.Error().Err(err).Str("filter", string(f)).Msg("driver fetch failed")
		ue := &UserError{Message: fmt.Sprintf("Error fetching %s drivers", f), Err: err}
		if seq == r.seq {
			r.errMsg = ue.Message
		}
		return ue
	}
	observability.RosterFetches.WithLabelValues(string(f), "ok").Inc()
	// a newer fetch owns the state
	if seq != r.seq {
		return nil
	}
	r.drivers = users
	r.errMsg = ""
	return nil
}

// Refresh re-fetches the active filter while the current list stays visible.
func (r *Roster) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.refreshing = true
	f := r.filter
	r.mu.Unlock()

	err := r.Fetch(ctx, f)

	r.mu.Lock()
	r.refreshing = false
	r.mu.Unlock()
	return err
}

func (r *Roster) Filter() models.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter
}

func (r *Roster) SetQuery(q string) {
	r.mu.Lock()
	r.query = q
	r.mu.Unlock()
}

// Visible is the fetched list narrowed by the search query.
func (r *Roster) Visible() []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return FilterDrivers(r.drivers, r.query)
}

func (r *Roster) Markers() []models.Marker {
	return ProjectMarkers(r.Visible(), r.log)
}

func (r *Roster) Select(id int64) {
	r.mu.Lock()
	r.selected = &id
	r.mu.Unlock()
}

func (r *Roster) ClearSelection() {
	r.mu.Lock()
	r.selected = nil
	r.mu.Unlock()
}

// Selected returns the selected driver if it is still in the fetched list.
func (r *Roster) Selected() (models.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return models.User{}, false
	}
	for _, u := range r.drivers {
		if u.ID == *r.selected {
			return u, true
		}
	}
	return models.User{}, false
}

// View is an immutable snapshot for rendering.
type View struct {
	Filter     models.Filter
	Query      string
	Drivers    []models.User
	Markers    []models.Marker
	Loading    bool
	Refreshing bool
	Error      string
	SelectedID *int64
}

func (r *Roster) View() View {
	r.mu.Lock()
	v := View{
		Filter:     r.filter,
		Query:      r.query,
		Loading:    r.loading,
		Refreshing: r.refreshing,
		Error:      r.errMsg,
	}
	visible := FilterDrivers(r.drivers, r.query)
	if r.selected != nil {
		id := *r.selected
		v.SelectedID = &id
	}
	r.mu.Unlock()

	v.Drivers = append([]models.User(nil), visible...)
	v.Markers = ProjectMarkers(v.Drivers, r.log)
	return v
}

// FilterDrivers keeps users whose name or email contains q, ignoring case.
// An empty q returns list as is.
func FilterDrivers(list []models.User, q string) []models.User {
	if q == "" {
		return list
	}
	needle := strings.ToLower(q)
	out := make([]models.User, 0, len(list))
	for _, u := range list {
		if strings.Contains(strings.ToLower(u.Name), needle) || strings.Contains(strings.ToLower(u.Email), needle) {
			out = append(out, u)
		}
	}
	return out
}
