package domain

import "context"

// Backend is the port for the notification REST API.
// Implementations live in infrastructure/restapi.
type Backend interface {
	// FetchUnread returns the currently unread notifications (the baseline snapshot).
	FetchUnread(ctx context.Context) ([]Notification, error)

	// MarkAsRead confirms a single notification as read. Idempotent server-side.
	MarkAsRead(ctx context.Context, id string) error

	// MarkAllAsRead confirms every unread notification of the user as read.
	MarkAllAsRead(ctx context.Context) error

	// Delete removes a notification server-side.
	Delete(ctx context.Context, id string) error
}
