package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a nullable latitude or longitude as served by the backend.
// Backends send numbers, numeric strings or null; Raw keeps the text form
// so unparseable values survive a round trip.
type Coordinate struct {
	Raw   string
	Value float64
	set   bool
	ok    bool
}

func NewCoordinate(v float64) Coordinate {
	return Coordinate{Raw: strconv.FormatFloat(v, 'f', -1, 64), Value: v, set: true, ok: true}
}

// Float returns the value and whether it is a finite number.
func (c Coordinate) Float() (float64, bool) {
	if !c.set || !c.ok {
		return 0, false
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return 0, false
	}
	return c.Value, true
}

func (c Coordinate) IsNull() bool { return !c.set }

func (c Coordinate) String() string {
	if !c.set {
		return "null"
	}
	return c.Raw
}

func (c *Coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = Coordinate{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = parseCoordinate(s)
		return nil
	}
	*c = parseCoordinate(string(b))
	return nil
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	if v, ok := c.Float(); ok {
		return json.Marshal(v)
	}
	return json.Marshal(c.Raw)
}

func parseCoordinate(s string) Coordinate {
	s = strings.TrimSpace(s)
	if s == "" {
		return Coordinate{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Coordinate{Raw: s, set: true}
	}
	return Coordinate{Raw: s, Value: v, set: true, ok: true}
}
