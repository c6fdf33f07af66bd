package capture

import (
	"fmt"
)

// Kind classifies camera failures.
type Kind int

const (
	KindDeviceUnavailable Kind = iota
	KindPermissionDenied
	KindDeviceBusy
	KindDisconnected
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDeviceUnavailable:
		return "device unavailable"
	case KindPermissionDenied:
		return "permission denied"
	case KindDeviceBusy:
		return "device busy"
	case KindDisconnected:
		return "device disconnected"
	default:
		return "unknown"
	}
}

// Error is returned by Source.Start and reported through FatalFunc.
type Error struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera %s: %s: %v", e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("camera %s: %s", e.Target, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so sentinel-style checks like
// errors.Is(err, &capture.Error{Kind: capture.KindDeviceBusy}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Target == "" || t.Target == e.Target)
}
