package stomp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// broker is a scripted STOMP server for one client.
type broker struct {
	t         *testing.T
	onConnect func(ws *websocket.Conn, connect *frame.Frame)
	subs      chan *frame.Frame
}

func newBroker(t *testing.T, onConnect func(ws *websocket.Conn, connect *frame.Frame)) (*broker, string) {
	t.Helper()
	b := &broker{t: t, onConnect: onConnect, subs: make(chan *frame.Frame, 4)}
	upgrader := websocket.Upgrader{Subprotocols: []string{"v12.stomp"}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		connect, err := readFrame(ws)
		if err != nil || connect == nil || connect.Command != frame.CONNECT {
			t.Errorf("expected CONNECT, got %v (%v)", connect, err)
			return
		}
		b.onConnect(ws, connect)
	}))
	t.Cleanup(ts.Close)
	return b, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func send(ws *websocket.Conn, f *frame.Frame) {
	writeFrame(ws, f)
}

func TestDialSubscribeAndRead(t *testing.T) {
	b, url := newBroker(t, nil)
	b.onConnect = func(ws *websocket.Conn, connect *frame.Frame) {
		if got := connect.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("CONNECT Authorization = %q", got)
		}
		if got := connect.Header.Get(frame.AcceptVersion); got != "1.2" {
			t.Errorf("CONNECT accept-version = %q", got)
		}
		send(ws, frame.New(frame.CONNECTED, frame.Version, "1.2"))

		sub, err := readFrame(ws)
		if err != nil || sub == nil {
			return
		}
		b.subs <- sub

		ws.WriteMessage(websocket.TextMessage, []byte("\n"))
		msg := frame.New(frame.MESSAGE,
			frame.Destination, sub.Header.Get(frame.Destination),
			frame.Subscription, sub.Header.Get(frame.Id),
		)
		msg.Body = []byte(`{"id":7}`)
		send(ws, msg)

		// Wait for DISCONNECT or close.
		ws.ReadMessage()
	}

	d := NewDialer(url, &domain.Session{UserID: "u1", Token: "tok"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Subscribe("/user/queue/notifications"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub := <-b.subs
	if sub.Command != frame.SUBSCRIBE || sub.Header.Get(frame.Destination) != "/user/queue/notifications" || sub.Header.Get(frame.Id) == "" {
		t.Fatalf("unexpected SUBSCRIBE %+v", sub)
	}

	f, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Topic != "/user/queue/notifications" || string(f.Body) != `{"id":7}` {
		t.Fatalf("frame = %+v", f)
	}
}

func TestDialRejectsBrokerError(t *testing.T) {
	_, url := newBroker(t, func(ws *websocket.Conn, _ *frame.Frame) {
		send(ws, frame.New(frame.ERROR, frame.Message, "bad credentials"))
	})

	_, err := NewDialer(url, &domain.Session{Token: "tok"}).Dial(context.Background())
	if !errors.Is(err, ErrBroker) || !strings.Contains(err.Error(), "bad credentials") {
		t.Fatalf("err = %v", err)
	}
}

func TestDialUnauthorized(t *testing.T) {
	_, url := newBroker(t, func(*websocket.Conn, *frame.Frame) {})

	_, err := NewDialer(url, &domain.Session{Token: "expired"}).Dial(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestDialTimeout(t *testing.T) {
	_, url := newBroker(t, func(ws *websocket.Conn, _ *frame.Frame) {
		// Never answer CONNECT.
		ws.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := NewDialer(url, &domain.Session{Token: "tok"}).Dial(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestReadFrameReportsDrop(t *testing.T) {
	_, url := newBroker(t, func(ws *websocket.Conn, _ *frame.Frame) {
		send(ws, frame.New(frame.CONNECTED, frame.Version, "1.2"))
		send(ws, frame.New(frame.ERROR, frame.Message, "session closed"))
	})

	conn, err := NewDialer(url, &domain.Session{Token: "tok"}).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ReadFrame(); !errors.Is(err, ErrBroker) {
		t.Fatalf("err = %v, want ErrBroker", err)
	}
}
