package connection

import "time"

// Status is the state of the connection session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusEvent describes one state transition.
type StatusEvent struct {
	From       Status        `json:"from"`
	To         Status        `json:"to"`
	RetryCount int           `json:"retryCount"`
	// Delay is the wait before the next scheduled attempt, when one was scheduled.
	Delay time.Duration `json:"delay,omitempty"`
	Err   error         `json:"-"`
}
