// Package connection owns the lifecycle of the single persistent push channel:
// handshake, drop detection, reconnect with backoff and explicit disconnect.
package connection

import (
	"context"
	"time"
)

// Frame is one discrete message delivered over the push channel.
type Frame struct {
	Topic string
	Body  []byte
}

// Handler receives frames for one subscribed topic.
type Handler func(Frame)

// Dialer performs the transport handshake. Implementations must honour ctx
// cancellation and deadline.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is an established duplex channel.
type Conn interface {
	// Subscribe registers interest in a topic on this connection.
	Subscribe(topic string) error
	// ReadFrame blocks until the next frame. Any error means the connection dropped.
	ReadFrame() (Frame, error)
	// Close tears the connection down and unblocks ReadFrame.
	Close() error
}

// Clock schedules retry timers. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
