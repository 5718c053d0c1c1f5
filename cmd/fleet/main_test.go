package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	httpapi "github.com/example/fleet-tracker/internal/http"
	"github.com/example/fleet-tracker/internal/models"
)

func newBackend(t *testing.T) *httpapi.Server {
	t.Helper()
	api := httpapi.NewServer(nil, nil, zerolog.Nop())
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	t.Setenv("FLEET_BACKEND_BASE_URL", ts.URL)
	t.Setenv("FLEET_SESSION_DIR", t.TempDir())
	t.Setenv("FLEET_SESSION_SECRET", "test-secret")
	t.Setenv("FLEET_LOG_LEVEL", "error")
	return api
}

func fleet(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustFleet(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := fleet(t, args...)
	if code != exitOK {
		t.Fatalf("fleet %v exited %d: %s", args, code, errOut)
	}
	return out
}

func TestUsageErrors(t *testing.T) {
	if code, _, _ := fleet(t); code != exitUsage {
		t.Fatalf("no args: got %d", code)
	}
	if code, _, errOut := fleet(t, "fly"); code != exitUsage || !strings.Contains(errOut, "unknown command") {
		t.Fatalf("unknown command: got %d %q", code, errOut)
	}
	newBackend(t)
	if code, _, _ := fleet(t, "login", "--email", "x@y.io"); code != exitUsage {
		t.Fatalf("missing password: got %d", code)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	api := newBackend(t)
	_, _ = api.SeedAccount("Driver One", "one@fleet.io", "secret1", models.RoleDriver)

	if code, _, _ := fleet(t, "login", "--email", "one@fleet.io", "--password", "bad"); code != exitError {
		t.Fatalf("bad credentials should exit %d, got %d", exitError, code)
	}
	out := mustFleet(t, "login", "--email", "one@fleet.io", "--password", "secret1")
	if !strings.Contains(out, "Signed in as Driver One (driver)") {
		t.Fatalf("unexpected login output %q", out)
	}
	if out := mustFleet(t, "whoami"); !strings.Contains(out, "one@fleet.io") {
		t.Fatalf("whoami did not show the stored session: %q", out)
	}
	mustFleet(t, "logout")
	if out := mustFleet(t, "whoami"); !strings.Contains(out, "Not signed in") {
		t.Fatalf("session survived logout: %q", out)
	}
}

func TestStatusChange(t *testing.T) {
	api := newBackend(t)
	u, _ := api.SeedAccount("D", "d@fleet.io", "secret1", models.RoleDriver)
	mustFleet(t, "login", "--email", "d@fleet.io", "--password", "secret1")

	if code, _, _ := fleet(t, "status", "napping"); code != exitUsage {
		t.Fatalf("invalid status: got %d", code)
	}
	if out := mustFleet(t, "status", "busy"); !strings.Contains(out, "Status: busy") {
		t.Fatalf("unexpected output %q", out)
	}
	got, _ := api.Accounts.ByID(u.ID)
	if got.Status != models.StatusBusy {
		t.Fatalf("status not applied: %s", got.Status)
	}
}

func TestAdminCommandsNeedAdmin(t *testing.T) {
	api := newBackend(t)
	_, _ = api.SeedAccount("D", "d@fleet.io", "secret1", models.RoleDriver)
	if code, _, _ := fleet(t, "drivers"); code != exitError {
		t.Fatalf("signed-out drivers: got %d", code)
	}
	mustFleet(t, "login", "--email", "d@fleet.io", "--password", "secret1")
	if code, _, errOut := fleet(t, "counts"); code != exitError || !strings.Contains(errOut, "admin") {
		t.Fatalf("driver counts: got %d %q", code, errOut)
	}
}

func TestDriversAndCounts(t *testing.T) {
	api := newBackend(t)
	_, _ = api.SeedAccount("Admin", "admin@fleet.io", "secret1", models.RoleAdmin)
	a, _ := api.SeedAccount("Amal", "amal@fleet.io", "secret1", models.RoleDriver)
	b, _ := api.SeedAccount("Badr", "badr@fleet.io", "secret1", models.RoleDriver)
	_ = api.Accounts.SetStatus(b.ID, models.StatusBusy)
	_ = api.Accounts.SetLocation(a.ID, 26.1, 50.5)
	mustFleet(t, "login", "--email", "admin@fleet.io", "--password", "secret1")

	out := mustFleet(t, "drivers", "--filter", "busy")
	if !strings.Contains(out, "Badr") || strings.Contains(out, "Amal") {
		t.Fatalf("busy filter output:\n%s", out)
	}
	if !strings.Contains(out, "Drivers: 2 total, 1 available, 1 busy, 0 offline") {
		t.Fatalf("missing counts line:\n%s", out)
	}

	out = mustFleet(t, "drivers", "--query", "AMAL")
	if !strings.Contains(out, "Amal") || strings.Contains(out, "Badr") {
		t.Fatalf("search output:\n%s", out)
	}
	if !strings.Contains(out, "Map: 1 of 1 drivers plotted") {
		t.Fatalf("map line missing:\n%s", out)
	}

	out = mustFleet(t, "counts")
	if !strings.Contains(out, "available\t1") || !strings.Contains(out, "total\t2") {
		t.Fatalf("counts output %q", out)
	}
}

func TestTrackReportsConfiguredPosition(t *testing.T) {
	api := newBackend(t)
	u, _ := api.SeedAccount("D", "d@fleet.io", "secret1", models.RoleDriver)
	t.Setenv("FLEET_TRACKING_LATITUDE", "25.5")
	t.Setenv("FLEET_TRACKING_LONGITUDE", "51.25")
	mustFleet(t, "login", "--email", "d@fleet.io", "--password", "secret1")

	out := mustFleet(t, "track", "--for", "500ms")
	if !strings.Contains(out, "Tracking: tracking") {
		t.Fatalf("unexpected track output:\n%s", out)
	}
	got, _ := api.Accounts.ByID(u.ID)
	if lat, ok := got.Latitude.Float(); !ok || lat != 25.5 {
		t.Fatalf("position not reported: %v", got.Latitude)
	}
}

func TestTrackDeniedPermission(t *testing.T) {
	api := newBackend(t)
	_, _ = api.SeedAccount("D", "d@fleet.io", "secret1", models.RoleDriver)
	t.Setenv("FLEET_TRACKING_GRANT_FOREGROUND", "false")
	mustFleet(t, "login", "--email", "d@fleet.io", "--password", "secret1")

	code, _, errOut := fleet(t, "track", "--for", "50ms")
	if code != exitError || !strings.Contains(errOut, "permission") {
		t.Fatalf("expected permission failure, got %d %q", code, errOut)
	}
}

func TestNearbyAndQuote(t *testing.T) {
	api := newBackend(t)
	near, _ := api.SeedAccount("Near", "near@fleet.io", "secret1", models.RoleDriver)
	far, _ := api.SeedAccount("Far", "far@fleet.io", "secret1", models.RoleDriver)
	_ = api.Accounts.SetLocation(near.ID, 26.07, 50.56)
	_ = api.Accounts.SetLocation(far.ID, 26.20, 50.60)
	mustFleet(t, "login", "--email", "near@fleet.io", "--password", "secret1")

	out := mustFleet(t, "nearby", "--lat", "26.0667", "--lon", "50.5577", "--limit", "1")
	if !strings.Contains(out, "Near") || strings.Contains(out, "Far") {
		t.Fatalf("nearby output:\n%s", out)
	}

	if code, _, _ := fleet(t, "quote", "--from-lat", "26.07"); code != exitUsage {
		t.Fatalf("quote without destination: got %d", code)
	}
	out = mustFleet(t, "quote", "--from-lat", "26.0667", "--from-lon", "50.5577", "--to-lat", "26.1", "--to-lon", "50.6")
	if !strings.Contains(out, "PRICE") || !strings.Contains(out, "Near") || !strings.Contains(out, "Far") {
		t.Fatalf("quote output:\n%s", out)
	}
}
