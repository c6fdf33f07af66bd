package classifier

import "fmt"

// Kind classifies a failed classification attempt.
type Kind int

const (
	// KindTransport covers connection failures and unreadable responses.
	KindTransport Kind = iota
	// KindServer is a non-2xx response.
	KindServer
	// KindInvalidResponse is a 2xx response without a usable label.
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindInvalidResponse:
		return "invalid response"
	default:
		return "unknown"
	}
}

// Error is returned by Client.Classify. All kinds are transient.
type Error struct {
	Kind       Kind
	StatusCode int    // set for KindServer
	Body       string // set for KindServer
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("Server error: %d - %s", e.StatusCode, e.Body)
	default:
		if e.Err != nil {
			return fmt.Sprintf("classify %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("classify %s", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
