package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/example/fleet-tracker/internal/http"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/session"
)

func newBackend(t *testing.T) (*httpapi.Server, *httptest.Server) {
	t.Helper()
	api := httpapi.NewServer(nil, nil, zerolog.Nop())
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	return api, ts
}

func newClient(baseURL string) (*Client, *session.Store) {
	store := session.NewStore(session.NewMemoryVault())
	return New(baseURL, store, WithTimeout(2*time.Second)), store
}

func TestLoginLoadUserLogout(t *testing.T) {
	ctx := context.Background()
	api, ts := newBackend(t)
	seeded, err := api.SeedAccount("Driver One", "one@fleet.io", "secret1", models.RoleDriver)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	c, store := newClient(ts.URL)

	if err := c.Login(ctx, "one@fleet.io", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	u, err := c.LoadUser(ctx)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if u.ID != seeded.ID {
		t.Fatalf("expected user %d, got %d", seeded.ID, u.ID)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, _ := store.Token(ctx); ok {
		t.Fatal("token still stored after logout")
	}
	if _, err := c.LoadUser(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestLoginBadCredentialsStoresNothing(t *testing.T) {
	ctx := context.Background()
	api, ts := newBackend(t)
	_, _ = api.SeedAccount("D", "d@fleet.io", "secret1", models.RoleDriver)
	c, store := newClient(ts.URL)

	err := c.Login(ctx, "d@fleet.io", "nope")
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
		t.Fatalf("expected AuthError 401, got %v", err)
	}
	if _, ok, _ := store.Token(ctx); ok {
		t.Fatal("token stored after failed login")
	}
}

func TestRegisterStoresToken(t *testing.T) {
	ctx := context.Background()
	_, ts := newBackend(t)
	c, store := newClient(ts.URL)
	if err := c.Register(ctx, "New", "new@fleet.io", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if tok, ok, _ := store.Token(ctx); !ok || tok == "" {
		t.Fatal("expected token after register")
	}
	u, err := c.LoadUser(ctx)
	if err != nil || u.Role != models.RoleDriver {
		t.Fatalf("unexpected user %+v %v", u, err)
	}
}

func TestExpiredTokenIsAuthError(t *testing.T) {
	ctx := context.Background()
	_, ts := newBackend(t)
	c, store := newClient(ts.URL)
	_ = store.SetToken(ctx, "stale")
	_, err := c.LoadUser(ctx)
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestLogoutUnreachableStillClears(t *testing.T) {
	ctx := context.Background()
	c, store := newClient("http://127.0.0.1:1")
	_ = store.SetToken(ctx, "tok")
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout should absorb remote failure: %v", err)
	}
	if _, ok, _ := store.Token(ctx); ok {
		t.Fatal("token not cleared")
	}
}

func TestNetworkErrorClassified(t *testing.T) {
	c, _ := newClient("http://127.0.0.1:1")
	_, err := c.Drivers(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestDriversByFilterAndCounts(t *testing.T) {
	ctx := context.Background()
	api, ts := newBackend(t)
	a, _ := api.SeedAccount("A", "a@fleet.io", "secret1", models.RoleDriver)
	b, _ := api.SeedAccount("B", "b@fleet.io", "secret1", models.RoleDriver)
	_, _ = api.SeedAccount("Admin", "admin@fleet.io", "secret1", models.RoleAdmin)
	_ = api.Accounts.SetStatus(b.ID, models.StatusBusy)
	c, _ := newClient(ts.URL)

	busy, err := c.DriversByFilter(ctx, models.FilterBusy)
	if err != nil || len(busy) != 1 || busy[0].ID != b.ID {
		t.Fatalf("busy filter: %+v %v", busy, err)
	}
	all, err := c.DriversByFilter(ctx, models.FilterAll)
	if err != nil || len(all) != 2 {
		t.Fatalf("all filter: %+v %v", all, err)
	}
	busyAgain, _ := c.DriversByFilter(ctx, models.FilterBusy)
	if len(busyAgain) != 1 || busyAgain[0].ID != busy[0].ID {
		t.Fatalf("filter not reproducible: %+v", busyAgain)
	}
	online, _ := c.OnlineDrivers(ctx)
	if len(online) != 2 {
		t.Fatalf("online drivers: %d", len(online))
	}

	n, err := c.AvailableDriversCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("available count %d %v", n, err)
	}
	if n, _ := c.OfflineDriversCount(ctx); n != 0 {
		t.Fatalf("offline count %d", n)
	}
	_ = a
}

func TestCountAcceptsWrappedObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 7}`))
	}))
	defer ts.Close()
	c, _ := newClient(ts.URL)
	n, err := c.BusyDriversCount(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("got %d %v", n, err)
	}
}

func TestMalformedDriverRecordIsSkipped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 1, "name": "Ok", "role": "driver", "status": "busy"}, {"id": 2, "role": ""}, {"id": 3, "role": "pilot"}, {"id": 4, "name": "Also ok", "role": "driver"}]`))
	}))
	defer ts.Close()
	c, _ := newClient(ts.URL)
	users, err := c.Drivers(context.Background())
	if err != nil {
		t.Fatalf("one bad record must not fail the list: %v", err)
	}
	if len(users) != 2 || users[0].ID != 1 || users[1].ID != 4 {
		t.Fatalf("expected drivers 1 and 4, got %+v", users)
	}
	if users[1].Status != models.StatusAvailable {
		t.Fatalf("missing status should default to available, got %q", users[1].Status)
	}
}

func TestDriverListNotAnArrayIsDataError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"drivers": []}`))
	}))
	defer ts.Close()
	c, _ := newClient(ts.URL)
	_, err := c.Drivers(context.Background())
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataError, got %v", err)
	}
}

func TestUnknownRoleOnUserIsDataError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "role": "pilot"}`))
	}))
	defer ts.Close()
	c, store := newClient(ts.URL)
	_ = store.SetToken(context.Background(), "tok")
	_, err := c.LoadUser(context.Background())
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataError, got %v", err)
	}
}

func TestNestedTokenAccepted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != contentType {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"data": {"token": "nested"}}`))
	}))
	defer ts.Close()
	c, store := newClient(ts.URL)
	if err := c.Login(context.Background(), "x@y", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok, _, _ := store.Token(context.Background()); tok != "nested" {
		t.Fatalf("got token %q", tok)
	}
}

func TestMissingTokenInBodyIsDataError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()
	c, store := newClient(ts.URL)
	err := c.Login(context.Background(), "x@y", "pw")
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataError, got %v", err)
	}
	if _, ok, _ := store.Token(context.Background()); ok {
		t.Fatal("token stored")
	}
}

func TestUpdateLocationAndStatus(t *testing.T) {
	ctx := context.Background()
	api, ts := newBackend(t)
	u, _ := api.SeedAccount("D", "d@fleet.io", "secret1", models.RoleDriver)
	c, _ := newClient(ts.URL)

	if err := c.UpdateDriverLocation(ctx, models.Sample{Latitude: 1, Longitude: 2}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession before login, got %v", err)
	}
	_ = c.Login(ctx, "d@fleet.io", "secret1")
	if err := c.UpdateDriverLocation(ctx, models.Sample{Latitude: 91, Longitude: 50.5}); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if err := c.ChangeStatus(ctx, models.StatusOffline); err != nil {
		t.Fatalf("change status: %v", err)
	}
	if err := c.ChangeStatus(ctx, models.Status("nap")); err == nil {
		t.Fatal("expected invalid status to fail")
	}
	got, _ := api.Accounts.ByID(u.ID)
	if got.Status != models.StatusOffline {
		t.Fatalf("status not applied: %s", got.Status)
	}
	if lat, _ := got.Latitude.Float(); lat != 91 {
		t.Fatalf("latitude not forwarded as-is: %v", lat)
	}
}
