// Package client mirrors the live feed from a Go program.
package client

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/infrastructure/wire"
	"campus-chat/projection"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Feed is one connection to the feed plus a bounded local copy of it.
type Feed struct {
	log      *slog.Logger
	conn     *websocket.Conn
	timeline *projection.Timeline
	writeMu  sync.Mutex
}

// Dial opens the WebSocket. header may carry an Origin or Authorization value.
func Dial(ctx context.Context, log *slog.Logger, url string, limit int, header http.Header) (*Feed, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", url, err)
	}
	return &Feed{log: log, conn: conn, timeline: projection.NewTimeline(limit)}, nil
}

// Send submits a newMessage. The message comes back through Listen once stored.
func (f *Feed) Send(author, content string) error {
	data, err := json.Marshal(wire.NewMessage{Author: author, Content: content})
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err = f.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return f.conn.WriteJSON(wire.Frame{Event: wire.NewMessageEvent, Data: data})
}

// Listen applies every received event to the local timeline, then hands it to sinks.
// It returns nil when ctx is cancelled or the server closes normally.
func (f *Feed) Listen(ctx context.Context, sinks ...contract.EventSink) error {
	stop := context.AfterFunc(ctx, func() { _ = f.conn.Close() })
	defer stop()

	for {
		var frame wire.Frame
		if err := f.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("feed read: %w", err)
		}
		evt, err := wire.Decode(frame)
		if err != nil {
			f.log.Warn("Frame ignored", "event", frame.Event, "error", err)
			continue
		}
		_ = f.timeline.Consume(ctx, evt)
		for _, sink := range sinks {
			if err = sink.Consume(ctx, evt); err != nil {
				f.log.Warn("Sink failed", "event", evt.Name(), "error", err)
			}
		}
	}
}

// Messages is the local mirror, oldest first.
func (f *Feed) Messages() []chat.Message {
	return f.timeline.Messages()
}

func (f *Feed) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return f.conn.Close()
}

// Printer writes each event as a line, for terminals.
type Printer struct {
	out     io.Writer
	colours bool
}

func NewPrinter(out io.Writer, colours bool) *Printer {
	return &Printer{out: out, colours: colours}
}

func (p *Printer) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.InitMessages:
		for _, message := range evt.Messages {
			p.print(message)
		}
	case event.MessageBroadcast:
		p.print(evt.Message)
	case event.MessageRejected:
		p.line(color.Red, "rejected: "+evt.Reason)
	}
	return nil
}

func (p *Printer) print(message chat.Message) {
	at := message.CreatedAt.Local().Format(time.TimeOnly)
	author := message.Author
	if p.colours {
		at, author = color.Gray.Sprint(at), color.Cyan.Sprint(author)
	}
	_, _ = fmt.Fprintf(p.out, "[%s] %s: %s\n", at, author, message.Content)
}

func (p *Printer) line(c color.Color, text string) {
	if p.colours {
		text = c.Sprint(text)
	}
	_, _ = fmt.Fprintln(p.out, text)
}
