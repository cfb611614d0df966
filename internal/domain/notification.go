package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a notification id is not held locally.
	ErrNotFound = errors.New("notification not found")

	// ErrReadStateRejected wraps a failed mark-as-read confirmation after the
	// optimistic change has been rolled back.
	ErrReadStateRejected = errors.New("read state change rejected")

	// ErrUnauthorized means the session token was refused by the backend.
	ErrUnauthorized = errors.New("session unauthorized")
)

// Notification is the core domain entity as the client sees it.
type Notification struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// IsRead reports whether the notification has a read timestamp.
func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Clone returns a copy that shares no pointers with n.
func (n Notification) Clone() Notification {
	if n.ReadAt != nil {
		t := *n.ReadAt
		n.ReadAt = &t
	}
	return n
}

// Snapshot is a read-only view of the local notification state.
type Snapshot struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

// Session is the authenticated user context threaded into the transports and
// the REST collaborators.
type Session struct {
	// ID correlates logs of one session lifetime.
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the token expiry has passed. A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
