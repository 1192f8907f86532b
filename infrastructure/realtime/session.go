package realtime

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/infrastructure/wire"
	"campus-chat/services"
	"campus-chat/sink"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const rejectedReason = "message could not be stored"

// session owns one connection: the reader handles newMessage frames
// sequentially and the writer is the only goroutine writing data frames.
type session struct {
	id          string
	log         *slog.Logger
	conn        *websocket.Conn
	sink        *sink.ConnectionSink
	chatService services.IChatService
	pongWait    time.Duration
}

func (s *session) readLoop(ctx context.Context) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
		s.log.Warn("Unable to set read deadline", "error", err)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Connection closed unexpectedly", "error", err)
			}
			return
		}
		var frame wire.Frame
		if err = json.Unmarshal(raw, &frame); err != nil {
			s.log.Warn("Malformed frame ignored", "error", err)
			continue
		}
		if frame.Event != wire.NewMessageEvent {
			s.log.Debug("Unknown event ignored", "event", frame.Event)
			continue
		}
		var payload wire.NewMessage
		if err = json.Unmarshal(frame.Data, &payload); err != nil {
			s.log.Warn("Malformed newMessage ignored", "error", err)
			continue
		}
		s.submit(ctx, payload)
	}
}

// submit detaches from the connection so a disconnect never cancels the write
// nor its broadcast to the other clients.
func (s *session) submit(ctx context.Context, payload wire.NewMessage) {
	_, err := s.chatService.PostMessage(context.WithoutCancel(ctx), chat.PostMessageCommand{
		ConnectionID: s.id,
		Author:       payload.Author,
		Content:      payload.Content,
	})
	if err == nil {
		return
	}
	replyCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err = s.sink.Consume(replyCtx, event.MessageRejected{Reason: rejectedReason}); err != nil {
		s.log.Warn("Rejection not delivered", "error", err)
	}
}

// writeLoop sends the initial window then drains the sink.
// Broadcasts already contained in the window are skipped by sequence number.
func (s *session) writeLoop(ctx context.Context, window []chat.Message) error {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer ticker.Stop()

	if err := write(s.conn, event.InitMessages{Messages: window}); err != nil {
		return err
	}
	var lastSeq uint64
	if len(window) > 0 {
		lastSeq = window[len(window)-1].Seq
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case evt := <-s.sink.Events:
			if broadcast, ok := evt.(event.MessageBroadcast); ok && broadcast.Message.Seq <= lastSeq {
				continue
			}
			if err := write(s.conn, evt); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}
