package stomp

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// One STOMP frame travels per websocket message. A message holding only EOLs
// is a heart-beat.

type messageReader interface {
	NextReader() (int, io.Reader, error)
}

type messageWriter interface {
	NextWriter(messageType int) (io.WriteCloser, error)
}

// readFrame decodes the next websocket message. It returns a nil frame for
// heart-beats.
func readFrame(ws messageReader) (*frame.Frame, error) {
	_, r, err := ws.NextReader()
	if err != nil {
		return nil, err
	}
	fr := frame.NewReader(r)
	for {
		f, err := fr.Read()
		switch {
		case errors.Is(err, io.EOF):
			return nil, nil
		case err != nil:
			return nil, fmt.Errorf("decode stomp frame: %w", err)
		case f != nil:
			return f, nil
		}
	}
}

// writeFrame encodes f as a single text message.
func writeFrame(ws messageWriter, f *frame.Frame) error {
	w, err := ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := frame.NewWriter(w).Write(f); err != nil {
		w.Close()
		return fmt.Errorf("encode stomp %s: %w", f.Command, err)
	}
	return w.Close()
}
