package messages

// ─── Read state ──────────────────────────────────────────────────────────────

const (
	MarkReadFailedTitle = "Couldn't mark notification as read"
	MarkReadFailedBody  = "The server did not accept the change, so notification %s is unread again. Try again in a moment."

	MarkAllReadFailedTitle = "Couldn't mark notifications as read"
	MarkAllReadFailedBody  = "The server did not accept the change, so %d notifications are unread again. Try again in a moment."

	DeleteFailedTitle = "Couldn't delete notification"
	DeleteFailedBody  = "The server did not accept the deletion of notification %s. It is still in your list."

	NotificationGoneTitle = "Notification not found"
	NotificationGoneBody  = "Notification %s is no longer available."
)

// ─── Session ─────────────────────────────────────────────────────────────────

const (
	SessionExpiredTitle = "Session expired"
	SessionExpiredBody  = "Your session has expired. Sign in again to keep receiving notifications."
)

// ─── Connection status ───────────────────────────────────────────────────────

const (
	StatusDisconnectedText = "Live updates off"
	StatusConnectingText   = "Connecting to live updates…"
	StatusConnectedText    = "Live updates on"
	StatusReconnectingText = "Connection lost, reconnecting…"
	StatusFailedText       = "Live updates unavailable. Reload to try again."
)
