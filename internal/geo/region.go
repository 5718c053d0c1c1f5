package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/example/fleet-tracker/internal/models"
)

// Bahrain
var DefaultCenter = models.Coord{Lat: 26.0667, Lon: 50.5577}

const (
	defaultLatDelta = 0.0922
	defaultLonDelta = 0.0421
	closeUpDelta    = 0.01
	fitPadding      = 1.3

	CellPrecision = 7
)

// Region is a map viewport: a center and the visible span in degrees.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// RegionAround centers on c, or on DefaultCenter when c is nil.
func RegionAround(c *models.Coord) Region {
	center := DefaultCenter
	if c != nil {
		center = *c
	}
	return Region{Latitude: center.Lat, Longitude: center.Lon, LatitudeDelta: defaultLatDelta, LongitudeDelta: defaultLonDelta}
}

// FitRegion frames user and destination with padding. Without a destination
// it zooms in on the user; without a user it falls back to RegionAround(nil).
func FitRegion(user, dest *models.Coord) Region {
	if user == nil {
		return RegionAround(nil)
	}
	if dest == nil {
		return Region{Latitude: user.Lat, Longitude: user.Lon, LatitudeDelta: closeUpDelta, LongitudeDelta: closeUpDelta}
	}
	return Region{
		Latitude:       (user.Lat + dest.Lat) / 2,
		Longitude:      (user.Lon + dest.Lon) / 2,
		LatitudeDelta:  math.Abs(user.Lat-dest.Lat) * fitPadding,
		LongitudeDelta: math.Abs(user.Lon-dest.Lon) * fitPadding,
	}
}

// MarkersRegion frames every marker. A single marker gets the close-up span.
func MarkersRegion(markers []models.Marker) Region {
	switch len(markers) {
	case 0:
		return RegionAround(nil)
	case 1:
		c := markers[0].Coord()
		return FitRegion(&c, nil)
	}
	minLat, maxLat := markers[0].Latitude, markers[0].Latitude
	minLon, maxLon := markers[0].Longitude, markers[0].Longitude
	for _, m := range markers[1:] {
		minLat = math.Min(minLat, m.Latitude)
		maxLat = math.Max(maxLat, m.Latitude)
		minLon = math.Min(minLon, m.Longitude)
		maxLon = math.Max(maxLon, m.Longitude)
	}
	r := FitRegion(&models.Coord{Lat: minLat, Lon: minLon}, &models.Coord{Lat: maxLat, Lon: maxLon})
	r.LatitudeDelta = math.Max(r.LatitudeDelta, closeUpDelta)
	r.LongitudeDelta = math.Max(r.LongitudeDelta, closeUpDelta)
	return r
}

// Contains reports whether c falls inside the region.
func (r Region) Contains(c models.Coord) bool {
	return math.Abs(c.Lat-r.Latitude) <= r.LatitudeDelta/2 && math.Abs(c.Lon-r.Longitude) <= r.LongitudeDelta/2
}

func Cell(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, CellPrecision)
}

// Neighbors returns the eight cells around cell.
func Neighbors(cell string) []string {
	return geohash.Neighbors(cell)
}
