package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/example/fleet-tracker/internal/dashboard"
	"github.com/example/fleet-tracker/internal/ingest"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/schedule"
	"github.com/example/fleet-tracker/internal/tracker"
)

var trackCommand = command{
	summary: "report the driver's position until interrupted",
	flags: func(fs *pflag.FlagSet) {
		fs.String("mode", "", "foreground or background (default from tracking.mode)")
		fs.Duration("interval", 0, "foreground sampling interval (default from tracking.interval)")
		fs.String("nmea", "", "replay positions from an NMEA log instead of the fixed position")
		fs.Duration("for", 0, "stop after this long; 0 runs until interrupted")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		a.session.Start(ctx)
		return a.session.Guard(ctx, func(u models.User) error {
			if u.Role != models.RoleDriver {
				return fmt.Errorf("tracking is only available to drivers")
			}
			return track(ctx, a, fs, u)
		})
	},
}

func track(ctx context.Context, a *app, fs *pflag.FlagSet, u models.User) error {
	tc := a.cfg.Tracking
	if v, _ := fs.GetString("mode"); v != "" {
		tc.Mode = v
	}
	if v, _ := fs.GetDuration("interval"); v > 0 {
		tc.Interval = v
	}
	if v, _ := fs.GetString("nmea"); v != "" {
		tc.NMEAFile = v
	}
	mode, err := tracker.ParseMode(tc.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	policy, err := tracker.ParsePolicy(tc.Policy)
	if err != nil {
		return err
	}

	var pos tracker.Positioner = tracker.FixedPositioner{Coord: models.Coord{Lat: tc.Latitude, Lon: tc.Longitude}}
	if tc.NMEAFile != "" {
		np, err := tracker.OpenNMEAPositioner(tc.NMEAFile)
		if err != nil {
			return err
		}
		pos = np
	}

	sched := schedule.NewCron(a.log)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	deps := tracker.Deps{
		Permissions: tracker.StaticPermissions{Foreground: tc.GrantForeground, Background: tc.GrantBackground},
		Positioner:  pos,
		Reporter:    a.gw,
		Scheduler:   sched,
		Logger:      a.log,
		OnSample: func(s models.Sample) {
			fmt.Fprintf(a.out, "%s  %.6f, %.6f\n", s.RecordedAt.Format(time.RFC3339), s.Latitude, s.Longitude)
		},
	}
	if mode == tracker.Background {
		deps.Tasks = tracker.NewLocalTaskService(pos, sched, a.log)
	}
	if len(a.cfg.Kafka.Brokers) > 0 {
		producer := ingest.NewKafkaProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		defer producer.Close()
		deps.Mirrors = append(deps.Mirrors, producer)
	}

	ctrl := tracker.New(tracker.Config{
		Mode:                mode,
		Interval:            tc.Interval,
		TaskName:            tc.TaskName,
		Policy:              policy,
		ValidateCoordinates: tc.ValidateCoordinates,
		DriverID:            u.ID,
	}, deps)

	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	screen, err := dashboard.ForRole(u.Role, dashboard.Deps{Session: a.session, Backend: a.gw, Tracker: ctrl, Logger: a.log})
	if err != nil {
		return err
	}
	if err := screen.Mount(ctx); err != nil {
		return err
	}
	defer screen.Unmount()
	if err := screen.Render(a.out); err != nil {
		return err
	}
	if ctrl.State() != tracker.Tracking {
		if b := ctrl.Banner(); b != nil {
			return b
		}
		return errors.New("location tracking did not start")
	}

	if d, _ := fs.GetDuration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	<-ctx.Done()
	return nil
}
