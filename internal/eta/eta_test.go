package eta

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/models"
)

type fixedClient struct {
	secs  float64
	err   error
	calls int32
}

func (f *fixedClient) EstimateSeconds(context.Context, models.Coord, models.Coord) (float64, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.secs, f.err
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	a, b := models.Coord{Lat: 1, Lon: 1}, models.Coord{Lat: 2, Lon: 2}
	c.Set(a, b, 42)
	if v, ok := c.Get(a, b); !ok || v != 42 {
		t.Fatalf("expected cached value, got %v %v", v, ok)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(a, b); ok {
		t.Fatal("expected expiry")
	}
}

func TestCachedClientHitsNextOnce(t *testing.T) {
	next := &fixedClient{secs: 90}
	c := &Cached{Next: next, Cache: NewCache(time.Minute)}
	a, b := models.Coord{Lat: 1}, models.Coord{Lat: 2}
	for i := 0; i < 3; i++ {
		if v, err := c.EstimateSeconds(context.Background(), a, b); err != nil || v != 90 {
			t.Fatalf("got %v %v", v, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
}

func TestQuoteMinutesAndPrice(t *testing.T) {
	q := &Quoter{Client: &fixedClient{secs: 300}, Log: zerolog.Nop()}
	user := &models.Coord{Lat: 26.0, Lon: 50.5}
	dest := &models.Coord{Lat: 26.1, Lon: 50.6}
	quotes, err := q.Quote(context.Background(), []models.Marker{{ID: 1}, {ID: 2}}, user, dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	// 300s to user + 300s trip = 10 minutes, 5.00 at 0.5/minute
	for _, x := range quotes {
		if x.Minutes != 10 || x.Price != 5 {
			t.Fatalf("unexpected quote %+v", x)
		}
	}
	if quotes[1].ID != 2 {
		t.Fatal("quotes out of marker order")
	}
}

func TestQuoteRequiresCoordinates(t *testing.T) {
	q := &Quoter{Log: zerolog.Nop()}
	if _, err := q.Quote(context.Background(), nil, nil, &models.Coord{}); !errors.Is(err, ErrMissingCoordinates) {
		t.Fatalf("expected ErrMissingCoordinates, got %v", err)
	}
}

func TestQuoteFallsBackToStraightLine(t *testing.T) {
	q := &Quoter{Client: &fixedClient{err: errors.New("down")}, SpeedMps: 10, Log: zerolog.Nop()}
	user := &models.Coord{Lat: 0, Lon: 0}
	dest := &models.Coord{Lat: 0, Lon: 0}
	quotes, err := q.Quote(context.Background(), []models.Marker{{ID: 1, Latitude: 0.01, Longitude: 0}}, user, dest)
	if err != nil {
		t.Fatal(err)
	}
	want := EstimateSeconds(models.Coord{Lat: 0.01}, models.Coord{}, 10) / 60
	if math.Abs(quotes[0].Minutes-want) > 1e-9 {
		t.Fatalf("expected %f minutes, got %f", want, quotes[0].Minutes)
	}
}

func TestOSRMClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"duration":123.4}]}`))
	}))
	defer ts.Close()
	v, err := NewOSRMClient(ts.URL).EstimateSeconds(context.Background(), models.Coord{}, models.Coord{Lat: 1})
	if err != nil || v != 123.4 {
		t.Fatalf("got %v %v", v, err)
	}
}

func TestOSRMClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/route/v1/driving/") && r.URL.Query().Get("overview") == "false" {
			w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()
	c := NewOSRMClient(ts.URL + "/")
	if _, err := c.EstimateSeconds(context.Background(), models.Coord{}, models.Coord{Lat: 1}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	c.Profile = "cycling"
	if _, err := c.EstimateSeconds(context.Background(), models.Coord{}, models.Coord{Lat: 1}); err == nil || errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDirectionsClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			w.Write([]byte(`{"status":"REQUEST_DENIED","routes":[]}`))
			return
		}
		w.Write([]byte(`{"status":"OK","routes":[{"legs":[{"duration":{"value":600}}]}]}`))
	}))
	defer ts.Close()
	v, err := NewDirectionsClient(ts.URL, "k").EstimateSeconds(context.Background(), models.Coord{}, models.Coord{Lat: 1})
	if err != nil || v != 600 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := NewDirectionsClient(ts.URL, "bad").EstimateSeconds(context.Background(), models.Coord{}, models.Coord{}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute for denied request, got %v", err)
	}
	if _, err := NewDirectionsClient(ts.URL, "").EstimateSeconds(context.Background(), models.Coord{}, models.Coord{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
