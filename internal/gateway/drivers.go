package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/example/fleet-tracker/internal/models"
)

// listDrivers decodes each record on its own so one malformed driver is
// skipped with a warning instead of failing the whole list.
func (c *Client) listDrivers(ctx context.Context, op, path string) ([]models.User, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, call{op: op, method: http.MethodGet, path: path}, &raw); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(raw))
	for i, rec := range raw {
		var u models.User
		if err := json.Unmarshal(rec, &u); err != nil {
			c.log.Warn().Err(err).Str("op", op).Int("index", i).Msg("skipping malformed driver record")
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (c *Client) Drivers(ctx context.Context) ([]models.User, error) {
	return c.listDrivers(ctx, "drivers", "/drivers")
}

// OnlineDrivers lists drivers that are not offline.
func (c *Client) OnlineDrivers(ctx context.Context) ([]models.User, error) {
	return c.listDrivers(ctx, "online_drivers", "/online-drivers")
}

func (c *Client) AvailableDrivers(ctx context.Context) ([]models.User, error) {
	return c.listDrivers(ctx, "available_drivers", "/available-drivers-filter")
}

func (c *Client) BusyDrivers(ctx context.Context) ([]models.User, error) {
	return c.listDrivers(ctx, "busy_drivers", "/busy-drivers-filter")
}

func (c *Client) OfflineDrivers(ctx context.Context) ([]models.User, error) {
	return c.listDrivers(ctx, "offline_drivers", "/offline-drivers-filter")
}

// DriversByFilter maps a roster filter onto its list endpoint.
func (c *Client) DriversByFilter(ctx context.Context, f models.Filter) ([]models.User, error) {
	switch f {
	case models.FilterAll:
		return c.Drivers(ctx)
	case models.FilterAvailable:
		return c.AvailableDrivers(ctx)
	case models.FilterBusy:
		return c.BusyDrivers(ctx)
	case models.FilterOffline:
		return c.OfflineDrivers(ctx)
	default:
		return nil, fmt.Errorf("unknown filter %q", f)
	}
}

func (c *Client) count(ctx context.Context, op, path string) (int, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{op: op, method: http.MethodGet, path: path}, &raw); err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var wrapped struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Count == nil {
		return 0, &DataError{Op: op, Err: fmt.Errorf("not a count: %s", string(raw))}
	}
	return *wrapped.Count, nil
}

func (c *Client) AvailableDriversCount(ctx context.Context) (int, error) {
	return c.count(ctx, "available_count", "/available-drivers-count")
}

func (c *Client) BusyDriversCount(ctx context.Context) (int, error) {
	return c.count(ctx, "busy_count", "/busy-drivers-count")
}

func (c *Client) OfflineDriversCount(ctx context.Context) (int, error) {
	return c.count(ctx, "offline_count", "/offline-drivers-count")
}

type locationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateDriverLocation posts the caller's coordinates as given; no range
// checks happen here.
func (c *Client) UpdateDriverLocation(ctx context.Context, s models.Sample) error {
	body := locationBody{Latitude: s.Latitude, Longitude: s.Longitude}
	return c.do(ctx, call{op: "update_location", method: http.MethodPost, path: "/user/location", body: body, bearer: true}, nil)
}

func (c *Client) ChangeStatus(ctx context.Context, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("change_status: unknown status %q", status)
	}
	body := map[string]string{"status": string(status)}
	return c.do(ctx, call{op: "change_status", method: http.MethodPost, path: "/user/change-status", body: body, bearer: true}, nil)
}
