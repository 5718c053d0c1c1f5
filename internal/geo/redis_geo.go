package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/fleet-tracker/internal/models"
)

const DefaultRadiusMeters = 5000

// RedisGeo implements Geo using Redis GEO commands.
type RedisGeo struct {
	client *redis.Client
	key    string
	Radius float64
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key, Radius: DefaultRadiusMeters}
}

func (r *RedisGeo) Upsert(ctx context.Context, m models.Marker) error {
	name := strconv.FormatInt(m.ID, 10)
	// GEOADD for position, HSET for metadata
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: m.Longitude, Latitude: m.Latitude, Name: name}).Err(); err != nil {
		return fmt.Errorf("geoadd: %w", err)
	}
	return r.client.HSet(ctx, MetaKey(m.ID), map[string]interface{}{
		"name":    m.Name,
		"email":   m.Email,
		"status":  string(m.Status),
		"updated": time.Now().UTC().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Marker, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     r.Radius,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}
	out := make([]models.Marker, 0, len(res))
	for _, g := range res {
		id, err := strconv.ParseInt(g.Name, 10, 64)
		if err != nil {
			continue
		}
		m := models.Marker{ID: id, Latitude: g.Latitude, Longitude: g.Longitude, Role: models.RoleDriver}
		if meta, err := r.client.HGetAll(ctx, MetaKey(id)).Result(); err == nil {
			m.Name = meta["name"]
			m.Email = meta["email"]
			m.Status = models.Status(meta["status"])
		}
		if m.Status == models.StatusOffline {
			continue
		}
		m.Geohash = Cell(m.Latitude, m.Longitude)
		out = append(out, m)
	}
	return out, nil
}

func MetaKey(id int64) string { return "driver:meta:" + strconv.FormatInt(id, 10) }
