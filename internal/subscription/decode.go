package subscription

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// ErrMalformedFrame is wrapped by every decode failure.
var ErrMalformedFrame = errors.New("malformed notification frame")

// wireNotification mirrors the JSON pushed by the backend. The id is a Java
// Long on the server but may arrive quoted, so it is kept raw.
type wireNotification struct {
	ID        json.RawMessage `json:"id"`
	Title     *string         `json:"title"`
	Message   *string         `json:"message"`
	CreatedAt json.RawMessage `json:"createdAt"`
	ReadAt    json.RawMessage `json:"readAt"`
}

// localLayouts cover LocalDateTime serialisations, interpreted as UTC.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Decode parses one notification payload. id, title, message and createdAt
// are required.
func Decode(body []byte) (domain.Notification, error) {
	var w wireNotification
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&w); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	if w.Title == nil {
		return domain.Notification{}, fmt.Errorf("%w: missing title", ErrMalformedFrame)
	}
	if w.Message == nil {
		return domain.Notification{}, fmt.Errorf("%w: missing message", ErrMalformedFrame)
	}
	createdAt, ok, err := decodeTime(w.CreatedAt)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: createdAt: %v", ErrMalformedFrame, err)
	}
	if !ok {
		return domain.Notification{}, fmt.Errorf("%w: missing createdAt", ErrMalformedFrame)
	}

	n := domain.Notification{
		ID:        id,
		Title:     *w.Title,
		Message:   *w.Message,
		CreatedAt: createdAt,
	}
	readAt, ok, err := decodeTime(w.ReadAt)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: readAt: %v", ErrMalformedFrame, err)
	}
	if ok {
		n.ReadAt = &readAt
	}
	return n, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", fmt.Errorf("%w: missing id", ErrMalformedFrame)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return "", fmt.Errorf("%w: empty id", ErrMalformedFrame)
		}
		return s, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", fmt.Errorf("%w: id must be a string or number", ErrMalformedFrame)
	}
	return num.String(), nil
}

// decodeTime accepts RFC 3339, zone-less ISO date-times and epoch millis.
// ok is false when the field is absent or null.
func decodeTime(raw json.RawMessage) (t time.Time, ok bool, err error) {
	if isNull(raw) {
		return time.Time{}, false, nil
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis).UTC(), true, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false, errors.New("expected string or epoch millis")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognised timestamp %q", s)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
