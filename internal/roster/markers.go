package roster

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/observability"
)

const (
	ColorAvailable = "#22c55e"
	ColorBusy      = "#eab308"
	ColorOffline   = "#6b7280"
)

func StatusColor(s models.Status) string {
	switch s {
	case models.StatusAvailable:
		return ColorAvailable
	case models.StatusBusy:
		return ColorBusy
	case models.StatusOffline:
		return ColorOffline
	default:
		return ColorOffline
	}
}

// ProjectMarkers turns users into map markers. Users without two finite
// coordinates are skipped with a warning.
func ProjectMarkers(users []models.User, log zerolog.Logger) []models.Marker {
	out := make([]models.Marker, 0, len(users))
	for _, u := range users {
		lat, okLat := u.Latitude.Float()
		lon, okLon := u.Longitude.Float()
		if !okLat || !okLon {
			observability.MarkersDropped.Inc()
			log.Warn().Int64("driver_id", u.ID).Str("latitude", u.Latitude.String()).Str("longitude", u.Longitude.String()).Msg("invalid coordinates for driver")
			continue
		}
		out = append(out, models.Marker{
			ID:        u.ID,
			Latitude:  lat,
			Longitude: lon,
			Name:      u.Name,
			Email:     u.Email,
			Role:      u.Role,
			Status:    u.Status,
			Geohash:   geo.Cell(lat, lon),
			Color:     StatusColor(u.Status),
		})
	}
	return out
}

type CountSource interface {
	AvailableDriversCount(ctx context.Context) (int, error)
	BusyDriversCount(ctx context.Context) (int, error)
	OfflineDriversCount(ctx context.Context) (int, error)
}

type Counts struct {
	Available int `json:"available"`
	Busy      int `json:"busy"`
	Offline   int `json:"offline"`
	Total     int `json:"total"`
}

const CountsErrorMessage = "Failed to fetch driver data"

// FetchCounts issues the three count calls concurrently.
func FetchCounts(ctx context.Context, src CountSource) (Counts, error) {
	var c Counts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { c.Available, err = src.AvailableDriversCount(gctx); return })
	g.Go(func() (err error) { c.Busy, err = src.BusyDriversCount(gctx); return })
	g.Go(func() (err error) { c.Offline, err = src.OfflineDriversCount(gctx); return })
	if err := g.Wait(); err != nil {
		return Counts{}, &UserError{Message: CountsErrorMessage, Err: err}
	}
	c.Total = c.Available + c.Busy + c.Offline
	return c, nil
}
