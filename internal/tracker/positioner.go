package tracker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/example/fleet-tracker/internal/models"
)

// StaticPermissions answers permission prompts from configuration.
type StaticPermissions struct {
	Foreground bool
	Background bool
}

func (p StaticPermissions) RequestForeground(context.Context) (bool, error) { return p.Foreground, nil }
func (p StaticPermissions) RequestBackground(context.Context) (bool, error) { return p.Background, nil }

// FixedPositioner always reports the same coordinates.
type FixedPositioner struct {
	Coord    models.Coord
	Accuracy float64
}

func (f FixedPositioner) CurrentPosition(context.Context) (models.Sample, error) {
	s := models.Sample{Latitude: f.Coord.Lat, Longitude: f.Coord.Lon, RecordedAt: time.Now().UTC()}
	if f.Accuracy > 0 {
		acc := f.Accuracy
		s.Accuracy = &acc
	}
	return s, nil
}

// NMEAPositioner replays fixes from a GPS log, looping at the end.
type NMEAPositioner struct {
	mu    sync.Mutex
	fixes []models.Sample
	next  int
}

// roughly the user equivalent range error of a consumer receiver, in meters
const uereMeters = 5.0

func NewNMEAPositioner(r io.Reader) (*NMEAPositioner, error) {
	var fixes []models.Sample
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		switch m := sentence.(type) {
		case nmea.RMC:
			if m.Validity != nmea.ValidRMC {
				continue
			}
			fixes = append(fixes, models.Sample{Latitude: m.Latitude, Longitude: m.Longitude})
		case nmea.GGA:
			if m.FixQuality == nmea.Invalid {
				continue
			}
			acc := m.HDOP * uereMeters
			fixes = append(fixes, models.Sample{Latitude: m.Latitude, Longitude: m.Longitude, Accuracy: &acc})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read nmea log: %w", err)
	}
	if len(fixes) == 0 {
		return nil, errors.New("nmea log holds no valid fixes")
	}
	return &NMEAPositioner{fixes: fixes}, nil
}

func OpenNMEAPositioner(path string) (*NMEAPositioner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewNMEAPositioner(f)
}

func (n *NMEAPositioner) CurrentPosition(ctx context.Context) (models.Sample, error) {
	if err := ctx.Err(); err != nil {
		return models.Sample{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.fixes[n.next]
	n.next = (n.next + 1) % len(n.fixes)
	s.RecordedAt = time.Now().UTC()
	return s, nil
}
