// Package realtime serves the live feed over WebSocket.
package realtime

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/infrastructure/wire"
	"campus-chat/services"
	"campus-chat/sink"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type ChatServer struct {
	log                  *slog.Logger
	chatService          services.IChatService
	upgrader             websocket.Upgrader
	limit                int
	connectionBufferSize int
	pongWait             time.Duration
}

// NewChatServer builds the WebSocket endpoint. An empty allowedOrigin accepts any origin.
func NewChatServer(log *slog.Logger, chatService services.IChatService,
	limit, connectionBufferSize int, pongWait time.Duration, allowedOrigin string) *ChatServer {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return allowedOrigin == "" || r.Header.Get("Origin") == allowedOrigin
		},
	}
	return &ChatServer{
		log:                  log,
		chatService:          chatService,
		upgrader:             upgrader,
		limit:                limit,
		connectionBufferSize: connectionBufferSize,
		pongWait:             pongWait,
	}
}

func (s *ChatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		s.log.Warn("WebSocket upgrade refused", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.Connect(r.Context(), conn)
}

// Connect runs one client session until the peer leaves or ctx is cancelled.
// The sink is registered before the history is read so that no broadcast
// falls between the initial window and the live stream.
func (s *ChatServer) Connect(ctx context.Context, conn *websocket.Conn) {
	connectionID := uuid.NewString()
	connectionSink := sink.NewConnectionSink(s.log, s.connectionBufferSize)
	s.chatService.Join(connectionID, connectionSink)
	defer func() {
		s.chatService.Leave(connectionID)
		connectionSink.Close()
		_ = conn.Close()
		s.log.Debug("Client disconnected", "connection_id", connectionID)
	}()

	window, err := s.chatService.GetMessages(chat.GetMessageCommand{Limit: s.limit})
	if err != nil {
		s.log.Error("Unable to load initial messages", "connection_id", connectionID, "error", err)
		_ = write(conn, event.MessageRejected{Reason: "history unavailable"})
		return
	}
	s.log.Debug("Client connected", "connection_id", connectionID, "messages", len(window))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	session := &session{
		id:          connectionID,
		log:         s.log.With("connection_id", connectionID),
		conn:        conn,
		sink:        connectionSink,
		chatService: s.chatService,
		pongWait:    s.pongWait,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := session.writeLoop(ctx, window); err != nil {
			session.log.Warn("Write loop stopped", "error", err)
		}
		// unblocks the reader
		_ = conn.Close()
	}()

	session.readLoop(ctx)
	cancel()
	<-writerDone
}

func write(conn *websocket.Conn, e event.DomainEvent) error {
	frame, err := wire.Encode(e)
	if err != nil {
		return err
	}
	if err = conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
