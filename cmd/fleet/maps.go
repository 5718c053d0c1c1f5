package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/example/fleet-tracker/internal/eta"
	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/roster"
)

// onlineMarkers loads the drivers shown on the map.
func onlineMarkers(ctx context.Context, a *app) ([]models.Marker, error) {
	users, err := a.gw.OnlineDrivers(ctx)
	if err != nil {
		return nil, err
	}
	return roster.ProjectMarkers(users, a.log), nil
}

// coordFlag returns nil unless both flags were given.
func coordFlag(fs *pflag.FlagSet, latName, lonName string) *models.Coord {
	if !fs.Changed(latName) || !fs.Changed(lonName) {
		return nil
	}
	lat, _ := fs.GetFloat64(latName)
	lon, _ := fs.GetFloat64(lonName)
	return &models.Coord{Lat: lat, Lon: lon}
}

var nearbyCommand = command{
	summary: "list the online drivers closest to a point",
	flags: func(fs *pflag.FlagSet) {
		fs.Float64("lat", geo.DefaultCenter.Lat, "latitude")
		fs.Float64("lon", geo.DefaultCenter.Lon, "longitude")
		fs.Int("limit", 5, "maximum drivers to list")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		lat, _ := fs.GetFloat64("lat")
		lon, _ := fs.GetFloat64("lon")
		limit, _ := fs.GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("%w: --limit must be positive", errUsage)
		}

		a.session.Start(ctx)
		return a.session.Guard(ctx, func(models.User) error {
			markers, err := onlineMarkers(ctx, a)
			if err != nil {
				return err
			}

			var index geo.Geo
			if a.cfg.Redis.Addr != "" {
				rc := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr, Password: a.cfg.Redis.Password, DB: a.cfg.Redis.DB})
				defer rc.Close()
				index = geo.NewRedisGeo(rc, a.cfg.Redis.GeoKey)
			} else {
				index = geo.NewIndex()
			}
			for _, m := range markers {
				if err := index.Upsert(ctx, m); err != nil {
					return fmt.Errorf("index driver %d: %w", m.ID, err)
				}
			}

			near, err := index.Nearby(ctx, lat, lon, limit)
			if err != nil {
				return err
			}
			if len(near) == 0 {
				fmt.Fprintln(a.out, "No drivers nearby")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tDISTANCE")
			for _, m := range near {
				d := geo.Haversine(lat, lon, m.Latitude, m.Longitude)
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f m\n", m.ID, m.Name, m.Status, d)
			}
			return tw.Flush()
		})
	},
}

var quoteCommand = command{
	summary: "price a trip with every online driver",
	flags: func(fs *pflag.FlagSet) {
		fs.Float64("from-lat", 0, "pickup latitude")
		fs.Float64("from-lon", 0, "pickup longitude")
		fs.Float64("to-lat", 0, "destination latitude")
		fs.Float64("to-lon", 0, "destination longitude")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		user := coordFlag(fs, "from-lat", "from-lon")
		dest := coordFlag(fs, "to-lat", "to-lon")
		if user == nil || dest == nil {
			return fmt.Errorf("%w: %v", errUsage, eta.ErrMissingCoordinates)
		}

		a.session.Start(ctx)
		return a.session.Guard(ctx, func(models.User) error {
			markers, err := onlineMarkers(ctx, a)
			if err != nil {
				return err
			}
			q := eta.Quoter{Client: routeClient(a), Log: a.log}
			quotes, err := q.Quote(ctx, markers, user, dest)
			if err != nil {
				return err
			}
			if len(quotes) == 0 {
				fmt.Fprintln(a.out, "No drivers available")
				return nil
			}
			r := geo.FitRegion(user, dest)
			fmt.Fprintf(a.out, "Trip region: centered %.4f,%.4f span %.4f x %.4f\n", r.Latitude, r.Longitude, r.LatitudeDelta, r.LongitudeDelta)
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tMINUTES\tPRICE")
			for _, qt := range quotes {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%.2f\n", qt.ID, qt.Name, qt.Status, qt.Minutes, qt.Price)
			}
			return tw.Flush()
		})
	},
}

// routeClient prefers OSRM, then the directions API when a key is set. Nil
// means straight-line estimates only.
func routeClient(a *app) eta.Client {
	var next eta.Client
	switch {
	case a.cfg.Maps.OSRMURL != "":
		next = eta.NewOSRMClient(a.cfg.Maps.OSRMURL)
	case a.cfg.Maps.APIKey != "":
		next = eta.NewDirectionsClient(a.cfg.Maps.DirectionsURL, a.cfg.Maps.APIKey)
	default:
		return nil
	}
	return &eta.Cached{Next: next, Cache: eta.NewCache(5 * time.Minute)}
}
