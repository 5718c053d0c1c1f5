package tracker

import (
	"fmt"
	"time"
)

// Policy is the accuracy/batching contract of a background location task.
type Policy struct {
	Name           string
	DistanceMeters float64
	Interval       time.Duration
	// Deferred batches fixes and delivers BatchSize of them at once.
	Deferred  bool
	BatchSize int
}

var (
	Deferred     = Policy{Name: "deferred", DistanceMeters: 200, Interval: 60 * time.Second, Deferred: true, BatchSize: 5}
	HighAccuracy = Policy{Name: "high_accuracy", DistanceMeters: 1, Interval: time.Second, BatchSize: 1}
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", Deferred.Name:
		return Deferred, nil
	case HighAccuracy.Name:
		return HighAccuracy, nil
	default:
		return Policy{}, fmt.Errorf("unknown location policy %q", s)
	}
}
