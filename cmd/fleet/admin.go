package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/fleet-tracker/internal/dashboard"
	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/live"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/roster"
	"github.com/example/fleet-tracker/internal/schedule"
)

// asAdmin runs fn once the stored session resolves to an admin.
func asAdmin(ctx context.Context, a *app, fn func(*dashboard.AdminDashboard) error) error {
	a.session.Start(ctx)
	return a.session.Guard(ctx, func(u models.User) error {
		if u.Role != models.RoleAdmin {
			return fmt.Errorf("this command needs an admin account")
		}
		screen, err := dashboard.ForRole(u.Role, dashboard.Deps{Session: a.session, Backend: a.gw, Logger: a.log})
		if err != nil {
			return err
		}
		admin := screen.(*dashboard.AdminDashboard)
		if err := admin.Mount(ctx); err != nil {
			return err
		}
		defer admin.Unmount()
		return fn(admin)
	})
}

var driversCommand = command{
	summary: "list drivers with status filter, search and selection",
	flags: func(fs *pflag.FlagSet) {
		fs.String("filter", "all", "all, available, busy or offline")
		fs.String("query", "", "case-insensitive match on name or email")
		fs.Int64("select", 0, "highlight the driver with this id")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		raw, _ := fs.GetString("filter")
		filter, err := models.ParseFilter(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		query, _ := fs.GetString("query")
		selected, _ := fs.GetInt64("select")

		return asAdmin(ctx, a, func(admin *dashboard.AdminDashboard) error {
			r := admin.Roster()
			if filter != models.FilterAll {
				_ = r.Fetch(ctx, filter)
			}
			r.SetQuery(query)
			if selected != 0 {
				r.Select(selected)
			}
			if err := admin.Render(a.out); err != nil {
				return err
			}
			if msg := r.View().Error; msg != "" {
				return errors.New(msg)
			}
			return nil
		})
	},
}

var countsCommand = command{
	summary: "show driver counts per status",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet) error {
		a.session.Start(ctx)
		return a.session.Guard(ctx, func(u models.User) error {
			if u.Role != models.RoleAdmin {
				return fmt.Errorf("this command needs an admin account")
			}
			c, err := roster.FetchCounts(ctx, a.gw)
			if err != nil {
				a.log.Error().Err(err).Msg("error fetching driver counts")
				return errors.New(roster.CountsErrorMessage)
			}
			fmt.Fprintf(a.out, "available\t%d\nbusy\t%d\noffline\t%d\ntotal\t%d\n", c.Available, c.Busy, c.Offline, c.Total)
			return nil
		})
	},
}

var watchCommand = command{
	summary: "refresh the roster periodically and stream map snapshots over websocket",
	flags: func(fs *pflag.FlagSet) {
		fs.String("addr", "", "listen address for the live feed (default from live.addr, else :8090)")
		fs.Duration("every", 0, "refresh interval (default from roster.refresh_interval)")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		addr, _ := fs.GetString("addr")
		if addr == "" {
			addr = a.cfg.Live.Addr
		}
		if addr == "" {
			addr = ":8090"
		}
		every, _ := fs.GetDuration("every")
		if every <= 0 {
			every = a.cfg.Roster.RefreshInterval
		}

		return asAdmin(ctx, a, func(admin *dashboard.AdminDashboard) error {
			hub := live.NewHub(a.log)
			defer hub.Close()

			srv := &http.Server{Addr: addr, Handler: live.NewServer(hub, a.cfg.Live.AllowedOrigins), ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", addr).Msg("live feed listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			publish := func() {
				snap := snapshotOf(admin)
				if err := hub.Broadcast(snap); err != nil {
					a.log.Warn().Err(err).Msg("broadcast failed")
				}
				a.log.Info().Int("clients", hub.Count()).Int("markers", len(snap.Markers)).Msg("snapshot published")
			}
			publish()

			sched := schedule.NewCron(a.log)
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
			}()
			stop, err := sched.Every(every, func() {
				admin.Refresh(ctx)
				publish()
			})
			if err != nil {
				return err
			}
			defer stop()

			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		})
	},
}

func snapshotOf(admin *dashboard.AdminDashboard) live.Snapshot {
	v := admin.Roster().View()
	s := live.Snapshot{
		At:      time.Now().UTC(),
		Filter:  v.Filter,
		Markers: v.Markers,
		Region:  geo.MarkersRegion(v.Markers),
	}
	if c, msg := admin.Counts(); msg == "" {
		s.Counts = &c
	}
	return s
}
