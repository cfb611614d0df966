// Package messages holds the user-facing strings shown by the presentation layer.
package messages

import (
	"fmt"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
)

// ─── Read state builders ─────────────────────────────────────────────────────

func MarkReadFailed(id string) (string, string) {
	return MarkReadFailedTitle, fmt.Sprintf(MarkReadFailedBody, id)
}

func MarkAllReadFailed(count int) (string, string) {
	return MarkAllReadFailedTitle, fmt.Sprintf(MarkAllReadFailedBody, count)
}

func DeleteFailed(id string) (string, string) {
	return DeleteFailedTitle, fmt.Sprintf(DeleteFailedBody, id)
}

func NotificationGone(id string) (string, string) {
	return NotificationGoneTitle, fmt.Sprintf(NotificationGoneBody, id)
}

// ─── Session builders ────────────────────────────────────────────────────────

func SessionExpired() (string, string) {
	return SessionExpiredTitle, SessionExpiredBody
}

// ─── Status ──────────────────────────────────────────────────────────────────

// StatusText is the banner text for a connection status.
func StatusText(s connection.Status) string {
	switch s {
	case connection.StatusConnecting:
		return StatusConnectingText
	case connection.StatusConnected:
		return StatusConnectedText
	case connection.StatusReconnecting:
		return StatusReconnectingText
	case connection.StatusFailed:
		return StatusFailedText
	default:
		return StatusDisconnectedText
	}
}
