package roster

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/models"
)

func decodeUsers(t *testing.T, raw string) []models.User {
	t.Helper()
	var out []models.User
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

// fakeSource serves a fixed backend state, filtered like the real endpoints.
type fakeSource struct {
	mu    sync.Mutex
	users []models.User
	err   error
	calls []models.Filter
}

func (f *fakeSource) DriversByFilter(_ context.Context, flt models.Filter) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, flt)
	if f.err != nil {
		return nil, f.err
	}
	if flt == models.FilterAll {
		return append([]models.User(nil), f.users...), nil
	}
	var out []models.User
	for _, u := range f.users {
		if string(u.Status) == string(flt) {
			out = append(out, u)
		}
	}
	return out, nil
}

const fleetJSON = `[
 {"id":1,"name":"Ahmed Ali","email":"ahmed@fleet.io","role":"driver","status":"available","latitude":"26.07","longitude":"50.55"},
 {"id":2,"name":"Sara","email":"sara@fleet.io","role":"driver","status":"busy","latitude":26.1,"longitude":50.6},
 {"id":3,"name":"Omar","email":"omar@ALI.net","role":"driver","status":"busy","latitude":null,"longitude":50.6},
 {"id":4,"name":"Noor","email":"noor@fleet.io","role":"driver","status":"offline","latitude":"n/a","longitude":"50.6"},
 {"id":5,"name":"Hamad","email":"hamad@fleet.io","role":"driver","status":"available","latitude":"NaN","longitude":"50.6"}
]`

func TestProjectMarkersSkipsInvalidCoordinates(t *testing.T) {
	users := decodeUsers(t, fleetJSON)
	markers := ProjectMarkers(users, zerolog.Nop())
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d: %+v", len(markers), markers)
	}
	if markers[0].ID != 1 || markers[0].Latitude != 26.07 || markers[0].Color != ColorAvailable {
		t.Fatalf("unexpected marker %+v", markers[0])
	}
	if markers[1].Color != ColorBusy || markers[1].Geohash == "" {
		t.Fatalf("unexpected marker %+v", markers[1])
	}
	if got := ProjectMarkers(nil, zerolog.Nop()); len(got) != 0 {
		t.Fatal("expected no markers for no users")
	}
}

// userIDs compares rosters by identity; a NaN coordinate never equals itself.
func userIDs(users []models.User) []int64 {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func TestFilterDrivers(t *testing.T) {
	users := decodeUsers(t, fleetJSON)
	if got := FilterDrivers(users, ""); !reflect.DeepEqual(userIDs(got), userIDs(users)) {
		t.Fatal("empty query must be identity")
	}
	got := FilterDrivers(users, "ALI")
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("unexpected match %+v", got)
	}
	for _, q := range []string{"fleet.io", "zzz", "sa"} {
		got := FilterDrivers(users, q)
		if q == "fleet.io" && len(got) == 0 {
			t.Fatal("expected fleet.io matches")
		}
		again := FilterDrivers(got, q)
		if !reflect.DeepEqual(userIDs(got), userIDs(again)) {
			t.Fatalf("filtering %q twice changed the result", q)
		}
	}
}

func TestFetchFilterSwitchIsReproducible(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{users: decodeUsers(t, fleetJSON)}
	r := New(src, zerolog.Nop())

	if err := r.Fetch(ctx, models.FilterBusy); err != nil {
		t.Fatal(err)
	}
	busy := r.Visible()
	for _, u := range busy {
		if u.Status != models.StatusBusy {
			t.Fatalf("non-busy driver %d in busy list", u.ID)
		}
	}
	_ = r.Fetch(ctx, models.FilterAll)
	if len(r.Visible()) != 5 {
		t.Fatalf("expected full list, got %d", len(r.Visible()))
	}
	_ = r.Fetch(ctx, models.FilterBusy)
	if !reflect.DeepEqual(userIDs(busy), userIDs(r.Visible())) {
		t.Fatal("busy list differs after switching filters")
	}
}

func TestFetchFailureKeepsPreviousList(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{users: decodeUsers(t, fleetJSON)}
	r := New(src, zerolog.Nop())
	_ = r.Fetch(ctx, models.FilterAll)

	src.err = errors.New("timeout")
	err := r.Fetch(ctx, models.FilterOffline)
	var ue *UserError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UserError, got %v", err)
	}
	v := r.View()
	if v.Error != "Error fetching offline drivers" {
		t.Fatalf("unexpected message %q", v.Error)
	}
	if len(v.Drivers) != 5 || v.Loading {
		t.Fatalf("previous list lost: %d loading=%v", len(v.Drivers), v.Loading)
	}

	src.err = nil
	_ = r.Refresh(ctx)
	v = r.View()
	if v.Error != "" || v.Filter != models.FilterOffline || len(v.Drivers) != 1 || v.Refreshing {
		t.Fatalf("unexpected view after refresh %+v", v)
	}
	if src.calls[len(src.calls)-1] != models.FilterOffline {
		t.Fatal("refresh did not reuse the active filter")
	}
}

func TestSelectionAndView(t *testing.T) {
	ctx := context.Background()
	r := New(&fakeSource{users: decodeUsers(t, fleetJSON)}, zerolog.Nop())
	_ = r.Fetch(ctx, models.FilterAll)
	r.Select(2)
	r.Select(1)
	if u, ok := r.Selected(); !ok || u.ID != 1 {
		t.Fatalf("selection not replaced: %+v", u)
	}
	r.SetQuery("sara")
	v := r.View()
	if len(v.Drivers) != 1 || len(v.Markers) != 1 || v.SelectedID == nil || *v.SelectedID != 1 {
		t.Fatalf("unexpected view %+v", v)
	}
	r.ClearSelection()
	if _, ok := r.Selected(); ok {
		t.Fatal("selection not cleared")
	}
	if r.View().SelectedID != nil {
		t.Fatal("view still shows selection")
	}
}

type blockingSource struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingSource) DriversByFilter(context.Context, models.Filter) ([]models.User, error) {
	b.started <- struct{}{}
	<-b.release
	return nil, nil
}

func TestLoadingOnlyDuringFirstFetch(t *testing.T) {
	src := &blockingSource{release: make(chan struct{}), started: make(chan struct{}, 2)}
	r := New(src, zerolog.Nop())
	done := make(chan struct{})
	go func() { _ = r.Fetch(context.Background(), models.FilterAll); close(done) }()
	<-src.started
	if !r.View().Loading {
		t.Fatal("expected loading during first fetch")
	}
	close(src.release)
	<-done
	if r.View().Loading {
		t.Fatal("loading still set")
	}

	src2 := &blockingSource{release: make(chan struct{}), started: make(chan struct{}, 1)}
	r.src = src2
	refreshed := make(chan struct{})
	go func() { _ = r.Refresh(context.Background()); close(refreshed) }()
	<-src2.started
	v := r.View()
	close(src2.release)
	<-refreshed
	if v.Loading || !v.Refreshing {
		t.Fatalf("refresh should not set loading: %+v", v)
	}
}

type fakeCounts struct {
	a, b, o int
	err     error
}

func (f fakeCounts) AvailableDriversCount(context.Context) (int, error) { return f.a, nil }
func (f fakeCounts) BusyDriversCount(context.Context) (int, error)      { return f.b, f.err }
func (f fakeCounts) OfflineDriversCount(context.Context) (int, error)   { return f.o, nil }

func TestFetchCounts(t *testing.T) {
	c, err := FetchCounts(context.Background(), fakeCounts{a: 3, b: 2, o: 1})
	if err != nil || c.Total != 6 || c.Available != 3 || c.Busy != 2 || c.Offline != 1 {
		t.Fatalf("unexpected counts %+v %v", c, err)
	}
	_, err = FetchCounts(context.Background(), fakeCounts{err: errors.New("boom")})
	var ue *UserError
	if !errors.As(err, &ue) || ue.Message != CountsErrorMessage {
		t.Fatalf("expected counts error, got %v", err)
	}
}

func TestStatusColor(t *testing.T) {
	cases := map[models.Status]string{
		models.StatusAvailable: ColorAvailable,
		models.StatusBusy:      ColorBusy,
		models.StatusOffline:   ColorOffline,
		"unknown":              ColorOffline,
	}
	for s, want := range cases {
		if got := StatusColor(s); got != want {
			t.Fatalf("%s: got %s want %s", s, got, want)
		}
	}
}
