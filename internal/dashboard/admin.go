package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/roster"
)

type AdminDashboard struct {
	backend Backend
	roster  *roster.Roster
	log     zerolog.Logger

	mu        sync.Mutex
	counts    roster.Counts
	countsErr string
}

func NewAdminDashboard(deps Deps) *AdminDashboard {
	return &AdminDashboard{
		backend: deps.Backend,
		roster:  roster.New(deps.Backend, deps.Logger),
		log:     deps.Logger.With().Str("component", "admin-dashboard").Logger(),
	}
}

func (a *AdminDashboard) Roster() *roster.Roster { return a.roster }

// Mount loads the counts and the full roster. Failures become inline
// messages.
func (a *AdminDashboard) Mount(ctx context.Context) error {
	a.refreshCounts(ctx)
	_ = a.roster.Fetch(ctx, models.FilterAll)
	return nil
}

// Refresh reloads counts and the active filter.
func (a *AdminDashboard) Refresh(ctx context.Context) {
	a.refreshCounts(ctx)
	_ = a.roster.Refresh(ctx)
}

func (a *AdminDashboard) refreshCounts(ctx context.Context) {
	c, err := roster.FetchCounts(ctx, a.backend)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		var ue *roster.UserError
		a.countsErr = roster.CountsErrorMessage
		if errors.As(err, &ue) {
			a.log.Error().Err(ue.Err).Msg("error fetching driver counts")
		}
		return
	}
	a.counts = c
	a.countsErr = ""
}

func (a *AdminDashboard) Counts() (roster.Counts, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts, a.countsErr
}

func (a *AdminDashboard) Unmount() {}

func (a *AdminDashboard) Render(w io.Writer) error {
	counts, countsErr := a.Counts()
	v := a.roster.View()

	if countsErr != "" {
		fmt.Fprintln(w, countsErr)
	} else {
		fmt.Fprintf(w, "Drivers: %d total, %d available, %d busy, %d offline\n", counts.Total, counts.Available, counts.Busy, counts.Offline)
	}
	fmt.Fprintf(w, "Filter: %s", v.Filter)
	if v.Query != "" {
		fmt.Fprintf(w, "  Search: %q", v.Query)
	}
	if v.Refreshing {
		fmt.Fprint(w, "  (refreshing)")
	}
	fmt.Fprintln(w)

	switch {
	case v.Loading:
		fmt.Fprintln(w, "Loading drivers...")
		return nil
	case v.Error != "":
		fmt.Fprintln(w, v.Error)
	}
	if len(v.Drivers) == 0 {
		fmt.Fprintln(w, "No drivers found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tEMAIL\tSTATUS\tLAT\tLON")
	for _, u := range v.Drivers {
		mark := ""
		if v.SelectedID != nil && *v.SelectedID == u.ID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", mark, u.ID, u.Name, u.Email, u.Status, u.Latitude, u.Longitude)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	r := geo.MarkersRegion(v.Markers)
	fmt.Fprintf(w, "Map: %d of %d drivers plotted, centered %.4f,%.4f span %.4f x %.4f\n",
		len(v.Markers), len(v.Drivers), r.Latitude, r.Longitude, r.LatitudeDelta, r.LongitudeDelta)
	return nil
}
