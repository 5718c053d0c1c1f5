package eta

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/fleet-tracker/internal/models"
)

var ErrMissingCoordinates = errors.New("user and destination coordinates are required")

// PricePerMinute is the fare rate applied to the total trip minutes.
const PricePerMinute = 0.5

// Quote is a driver's time to pick up the user and reach the destination.
type Quote struct {
	models.Marker
	Minutes float64 `json:"time"`
	Price   float64 `json:"price"`
}

type Quoter struct {
	Client   Client
	SpeedMps float64
	Log      zerolog.Logger
}

// Quote prices every marker. Each leg falls back to the straight-line
// estimate when the client fails.
func (q *Quoter) Quote(ctx context.Context, markers []models.Marker, user, dest *models.Coord) ([]Quote, error) {
	if user == nil || dest == nil {
		return nil, ErrMissingCoordinates
	}
	trip := q.leg(ctx, *user, *dest)

	out := make([]Quote, len(markers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, m := range markers {
		g.Go(func() error {
			pickup := q.leg(gctx, m.Coord(), *user)
			minutes := (pickup + trip) / 60
			out[i] = Quote{Marker: m, Minutes: minutes, Price: math.Round(minutes*PricePerMinute*100) / 100}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Quoter) leg(ctx context.Context, from, to models.Coord) float64 {
	if q.Client != nil {
		s, err := q.Client.EstimateSeconds(ctx, from, to)
		if err == nil {
			return s
		}
		q.Log.Warn().Err(err).Msg("route lookup failed, using straight-line estimate")
	}
	return EstimateSeconds(from, to, q.SpeedMps)
}
