package tracker

import "fmt"

type PermissionKind int

const (
	ForegroundPermission PermissionKind = iota
	BackgroundPermission
)

func (k PermissionKind) String() string {
	if k == BackgroundPermission {
		return "background"
	}
	return "foreground"
}

// PermissionError is shown to the driver as a banner.
type PermissionError struct {
	Kind PermissionKind
	Err  error
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission to access %s location was denied", e.Kind)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *PermissionError) Unwrap() error { return e.Err }
