package geo

import (
	"context"
	"math"
	"sync"

	"github.com/example/fleet-tracker/internal/models"
)

// Geo stores driver markers and answers proximity queries.
type Geo interface {
	Upsert(ctx context.Context, m models.Marker) error
	Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Marker, error)
}

type Index struct {
	mu      sync.RWMutex
	markers map[int64]models.Marker
}

func NewIndex() *Index {
	return &Index{markers: make(map[int64]models.Marker)}
}

func (g *Index) Upsert(_ context.Context, m models.Marker) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m.Geohash == "" {
		m.Geohash = Cell(m.Latitude, m.Longitude)
	}
	g.markers[m.ID] = m
	return nil
}

// Replace swaps the whole index for the given markers.
func (g *Index) Replace(markers []models.Marker) {
	next := make(map[int64]models.Marker, len(markers))
	for _, m := range markers {
		if m.Geohash == "" {
			m.Geohash = Cell(m.Latitude, m.Longitude)
		}
		next[m.ID] = m
	}
	g.mu.Lock()
	g.markers = next
	g.mu.Unlock()
}

// naive scan, offline drivers excluded
func (g *Index) Nearby(_ context.Context, lat, lon float64, limit int) ([]models.Marker, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		m    models.Marker
		dist float64
	}
	arr := make([]pair, 0, len(g.markers))
	for _, m := range g.markers {
		if m.Status == models.StatusOffline {
			continue
		}
		arr = append(arr, pair{m, Haversine(lat, lon, m.Latitude, m.Longitude)})
	}
	// partial selection sort for top-N
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist || (arr[j].dist == arr[minIdx].dist && arr[j].m.ID < arr[minIdx].m.ID) {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Marker, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].m)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
