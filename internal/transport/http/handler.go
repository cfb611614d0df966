package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/messages"
)

// Service is the session API the handlers call. *application.Service
// implements it.
type Service interface {
	Snapshot() domain.Snapshot
	CountUnread() int
	Status() connection.Status
	RetryCount() int
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}

// Handler holds all HTTP handler methods.
type Handler struct {
	svc Service
	hub *Hub
}

// NewHandler creates a new Handler.
func NewHandler(svc Service, hub *Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// errorBody is the JSON shape of user-facing failures.
type errorBody struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// --- REST Handlers ---

// ListNotifications GET /notifications
func (h *Handler) ListNotifications(c echo.Context) error {
	limit := parseIntQuery(c, "limit", 0)
	offset := parseIntQuery(c, "offset", 0)
	unreadOnly := c.QueryParam("unread") == "true"

	snap := h.svc.Snapshot()
	list := snap.Notifications
	if unreadOnly {
		filtered := list[:0:0]
		for _, n := range list {
			if !n.IsRead() {
				filtered = append(filtered, n)
			}
		}
		list = filtered
	}
	total := len(list)

	if offset > len(list) {
		offset = len(list)
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data":        list,
		"total":       total,
		"unreadCount": snap.UnreadCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetUnreadCount GET /notifications/unread-count
func (h *Handler) GetUnreadCount(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"count": h.svc.CountUnread()})
}

// MarkRead PATCH /notifications/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	id := c.Param("id")

	err := h.svc.MarkRead(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		title, msg := messages.NotificationGone(id)
		return c.JSON(http.StatusNotFound, errorBody{Title: title, Message: msg})
	case errors.Is(err, domain.ErrUnauthorized):
		return sessionExpired(c, err)
	case errors.Is(err, domain.ErrReadStateRejected):
		title, msg := messages.MarkReadFailed(id)
		return c.JSON(http.StatusBadGateway, errorBody{Title: title, Message: msg, Detail: err.Error()})
	default:
		log.Error().Err(err).Str("id", id).Msg("mark read failed")
		return echo.ErrInternalServerError
	}
}

// MarkAllRead POST /notifications/read-all
func (h *Handler) MarkAllRead(c echo.Context) error {
	count, err := h.svc.MarkAllRead(c.Request().Context())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]int{"marked": count})
	case errors.Is(err, domain.ErrUnauthorized):
		return sessionExpired(c, err)
	case errors.Is(err, domain.ErrReadStateRejected):
		title, msg := messages.MarkAllReadFailed(h.svc.CountUnread())
		return c.JSON(http.StatusBadGateway, errorBody{Title: title, Message: msg, Detail: err.Error()})
	default:
		log.Error().Err(err).Msg("mark all read failed")
		return echo.ErrInternalServerError
	}
}

// Delete DELETE /notifications/:id
func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")

	err := h.svc.Delete(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		title, msg := messages.NotificationGone(id)
		return c.JSON(http.StatusNotFound, errorBody{Title: title, Message: msg})
	case errors.Is(err, domain.ErrUnauthorized):
		return sessionExpired(c, err)
	default:
		title, msg := messages.DeleteFailed(id)
		return c.JSON(http.StatusBadGateway, errorBody{Title: title, Message: msg, Detail: err.Error()})
	}
}

// --- SSE Handler ---

// Stream GET /notifications/stream
func (h *Handler) Stream(c echo.Context) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sendCh := make(chan []byte, 32)
	client := h.hub.Register(sendCh)
	defer h.hub.Unregister(client)

	status := h.svc.Status()
	hello, _ := buildSSEMessage(EventConnected, map[string]any{
		"status":      status,
		"text":        messages.StatusText(status),
		"retryCount":  h.svc.RetryCount(),
		"unreadCount": h.svc.CountUnread(),
	})
	if _, err := w.Write(hello); err != nil {
		return nil
	}
	w.Flush()

	log.Info().Str("client", client.id).Msg("SSE stream opened")

	ctx := c.Request().Context()
	for {
		select {
		case msg, ok := <-sendCh:
			if !ok {
				return nil
			}
			if _, err := w.Write(msg); err != nil {
				return nil
			}
			w.Flush()

		case <-ctx.Done():
			log.Info().Str("client", client.id).Msg("SSE stream closed by client")
			return nil
		}
	}
}

// --- Healthcheck ---

// Health GET /health
func (h *Handler) Health(c echo.Context) error {
	status := h.svc.Status()
	code, state := http.StatusOK, "ok"
	if status == connection.StatusFailed {
		code, state = http.StatusServiceUnavailable, "degraded"
	}
	return c.JSON(code, map[string]any{
		"status":      state,
		"connection":  status,
		"retry_count": h.svc.RetryCount(),
		"unread":      h.svc.CountUnread(),
		"sse_clients": h.hub.ConnectedCount(),
	})
}

// --- Helpers ---

func sessionExpired(c echo.Context, err error) error {
	title, msg := messages.SessionExpired()
	return c.JSON(http.StatusUnauthorized, errorBody{Title: title, Message: msg, Detail: fmt.Sprint(err)})
}

func parseIntQuery(c echo.Context, key string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
