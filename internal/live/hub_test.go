package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
)

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ts := httptest.NewServer(NewServer(hub, nil))
	defer ts.Close()
	defer hub.Close()

	a, b := dial(t, ts), dial(t, ts)
	defer a.Close()
	defer b.Close()
	waitFor(t, func() bool { return hub.Count() == 2 })

	snap := Snapshot{
		At:      time.Now().UTC(),
		Filter:  models.FilterAll,
		Markers: []models.Marker{{ID: 7, Latitude: 26.1, Longitude: 50.5, Status: models.StatusBusy}},
		Region:  geo.RegionAround(nil),
	}
	if err := hub.Broadcast(snap); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got Snapshot
		if err := c.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(got.Markers) != 1 || got.Markers[0].ID != 7 {
			t.Fatalf("unexpected snapshot %+v", got)
		}
	}
}

func TestLateClientGetsLastSnapshot(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ts := httptest.NewServer(NewServer(hub, nil))
	defer ts.Close()
	defer hub.Close()

	_ = hub.Broadcast(Snapshot{Filter: models.FilterBusy})
	c := dial(t, ts)
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Snapshot
	if err := c.ReadJSON(&got); err != nil || got.Filter != models.FilterBusy {
		t.Fatalf("got %+v %v", got, err)
	}

	resp, err := http.Get(ts.URL + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil || snap.Filter != models.FilterBusy {
		t.Fatalf("snapshot endpoint: %+v %v", snap, err)
	}
}

func TestClosedClientIsDropped(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ts := httptest.NewServer(NewServer(hub, nil))
	defer ts.Close()
	defer hub.Close()

	c := dial(t, ts)
	waitFor(t, func() bool { return hub.Count() == 1 })
	c.Close()
	waitFor(t, func() bool {
		_ = hub.Broadcast(Snapshot{})
		return hub.Count() == 0
	})
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://ok.local"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://evil.local")
	if check(r) {
		t.Fatal("foreign origin accepted")
	}
	r.Header.Set("Origin", "http://ok.local")
	if !check(r) {
		t.Fatal("allowed origin rejected")
	}
}
