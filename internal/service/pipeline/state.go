package pipeline

import (
	"time"

	"github.com/pkg/errors"

	"facecapture/internal/model"
)

// State is the lifecycle phase of a Controller.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateIdle; candidate <= StateFailed; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return errors.Errorf("unknown pipeline state %q", text)
}

// Stats counts per-frame outcomes of the current session.
type Stats struct {
	FramesSeen       uint64 `json:"frames_seen"`
	ExtractionMisses uint64 `json:"extraction_misses"`
	ExtractionErrors uint64 `json:"extraction_errors"`
	Submitted        uint64 `json:"submitted"`
	Dropped          uint64 `json:"dropped_backpressure"`
	Classified       uint64 `json:"classified"`
	ClassifyErrors   uint64 `json:"classify_errors"`
	LateDiscarded    uint64 `json:"late_discarded"`
}

// Snapshot is an immutable view of the controller.
type Snapshot struct {
	SessionID string        `json:"session_id,omitempty"`
	State     State         `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	Window    []model.Label `json:"window"`
	LastError string        `json:"last_error,omitempty"`
	InFlight  bool          `json:"in_flight"`
	Stats     Stats         `json:"stats"`
	UpdatedAt time.Time     `json:"updated_at"`

	seq uint64
}
