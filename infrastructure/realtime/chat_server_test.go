package realtime

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/infrastructure/storage"
	"campus-chat/infrastructure/wire"
	"campus-chat/mocks"
	"campus-chat/observability"
	"campus-chat/runtime"
	"campus-chat/runtime/workers"
	"campus-chat/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testFeed struct {
	server   *httptest.Server
	store    *storage.MessageRepository
	registry *runtime.Registry
}

func newTestFeed(t *testing.T, limit int) *testFeed {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	repository, err := storage.NewMessageRepository(db, log)
	req.NoError(err)
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond), registry,
		repository, storage.NewTrimmer(repository, log, metrics, limit), metrics, 64, time.Second, "")
	req.NoError(orchestrator.Start(context.Background()))

	server := httptest.NewServer(NewChatServer(log, services.NewChatService(orchestrator), limit, 64, time.Minute, ""))
	t.Cleanup(func() {
		server.Close()
		orchestrator.Stop()
		_ = repository.Close()
		_ = db.Close()
	})
	return &testFeed{server: server, store: repository, registry: registry}
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event.DomainEvent {
	t.Helper()
	req := require.New(t)
	req.NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	var frame wire.Frame
	req.NoError(conn.ReadJSON(&frame))
	evt, err := wire.Decode(frame)
	req.NoError(err)
	return evt
}

func readInit(t *testing.T, conn *websocket.Conn) []chat.Message {
	t.Helper()
	init, ok := readEvent(t, conn).(event.InitMessages)
	require.True(t, ok, "first frame must be initMessages")
	return init.Messages
}

func readBroadcast(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	broadcast, ok := readEvent(t, conn).(event.MessageBroadcast)
	require.True(t, ok, "expected messageBroadcast")
	return broadcast.Message
}

func send(t *testing.T, conn *websocket.Conn, author, content string) {
	t.Helper()
	data, err := json.Marshal(wire.NewMessage{Author: author, Content: content})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wire.Frame{Event: wire.NewMessageEvent, Data: data}))
}

func TestChatServer_Empty_Store_Then_Broadcast_To_Everyone(t *testing.T) {
	req := require.New(t)
	feed := newTestFeed(t, chat.RetentionLimit)

	// Given two connected clients on an empty store
	c1 := dial(t, feed.server)
	req.Empty(readInit(t, c1))
	c2 := dial(t, feed.server)
	req.Empty(readInit(t, c2))

	// When C1 posts a message
	before := time.Now().UTC()
	send(t, c1, "Alice", "hi")

	// Then both clients receive it with a server timestamp
	for _, conn := range []*websocket.Conn{c1, c2} {
		message := readBroadcast(t, conn)
		req.Equal("Alice", message.Author)
		req.Equal("hi", message.Content)
		req.NotEqual(uuid.Nil, message.ID)
		req.False(message.CreatedAt.Before(before.Add(-time.Second)))
	}
}

func TestChatServer_Initial_Window_Is_Capped_And_Ascending(t *testing.T) {
	req := require.New(t)
	feed := newTestFeed(t, chat.RetentionLimit)

	// Given more messages than the window, stored without trimming
	for i := 0; i < 105; i++ {
		_, err := feed.store.Append(fmt.Sprintf("author-%03d", i), "content")
		req.NoError(err)
	}

	// When a client connects
	window := readInit(t, dial(t, feed.server))

	// Then it receives the last 100, oldest first
	req.Len(window, chat.RetentionLimit)
	req.Equal("author-005", window[0].Author)
	req.Equal("author-104", window[len(window)-1].Author)
	req.True(lo.IsSortedByKey(window, func(item chat.Message) uint64 { return item.Seq }))
}

func TestChatServer_Post_At_Capacity_Keeps_The_Store_Bounded(t *testing.T) {
	req := require.New(t)
	feed := newTestFeed(t, 3)
	for i := 0; i < 3; i++ {
		_, err := feed.store.Append(fmt.Sprintf("author-%d", i), "content")
		req.NoError(err)
	}
	conn := dial(t, feed.server)
	req.Len(readInit(t, conn), 3)

	// When one more message is posted
	send(t, conn, "Alice", "hi")
	readBroadcast(t, conn)

	// Then the store still holds the limit and the oldest is gone
	count, err := feed.store.Count()
	req.NoError(err)
	req.Equal(3, count)
	recent, err := feed.store.Recent(3)
	req.NoError(err)
	req.Equal([]string{"author-1", "author-2", "Alice"},
		lo.Map(recent, func(item chat.Message, _ int) string { return item.Author }))
}

func TestChatServer_Unknown_Event_Is_Ignored(t *testing.T) {
	req := require.New(t)
	feed := newTestFeed(t, chat.RetentionLimit)
	conn := dial(t, feed.server)
	readInit(t, conn)

	// When an unknown event and a malformed frame precede a valid message
	req.NoError(conn.WriteJSON(wire.Frame{Event: "typing", Data: json.RawMessage(`{}`)}))
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, "Bob", "yo")

	// Then only the valid message produces a frame
	message := readBroadcast(t, conn)
	req.Equal("Bob", message.Author)
}

func TestChatServer_Disconnected_Client_Is_Removed(t *testing.T) {
	req := require.New(t)
	feed := newTestFeed(t, chat.RetentionLimit)
	c1 := dial(t, feed.server)
	readInit(t, c1)
	c2 := dial(t, feed.server)
	readInit(t, c2)
	req.Equal(2, feed.registry.Len())

	// When C2 leaves
	req.NoError(c2.Close())

	// Then it is unregistered and the remaining client still receives broadcasts
	req.Eventually(func() bool { return feed.registry.Len() == 1 }, 3*time.Second, 10*time.Millisecond)
	send(t, c1, "Alice", "still here")
	req.Equal("still here", readBroadcast(t, c1).Content)
}

func TestChatServer_Disconnect_During_Append_Still_Broadcasts(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	repository, err := storage.NewMessageRepository(db, log)
	req.NoError(err)

	// Given a store whose append blocks until released
	entered := make(chan struct{})
	release := make(chan struct{})
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().Append("Alice", "last words").
		DoAndReturn(func(author, content string) (chat.Message, error) {
			close(entered)
			<-release
			return repository.Append(author, content)
		}).
		Times(1)
	store.EXPECT().Recent(gomock.Any()).DoAndReturn(repository.Recent).AnyTimes()
	store.EXPECT().Count().DoAndReturn(repository.Count).AnyTimes()
	store.EXPECT().DeleteOldest(gomock.Any()).DoAndReturn(repository.DeleteOldest).AnyTimes()

	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond), registry,
		store, storage.NewTrimmer(store, log, metrics, chat.RetentionLimit), metrics, 64, time.Second, "")
	req.NoError(orchestrator.Start(context.Background()))

	// C1's session context is cancelled by the test, C2 keeps the request context
	chatServer := NewChatServer(log, services.NewChatService(orchestrator), chat.RetentionLimit, 64, time.Minute, "")
	c1Ctx, disconnectC1 := context.WithCancel(context.Background())
	defer disconnectC1()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("client") == "c1" {
			r = r.WithContext(c1Ctx)
		}
		chatServer.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		server.Close()
		orchestrator.Stop()
		_ = repository.Close()
		_ = db.Close()
	})

	c2 := dial(t, server)
	req.Empty(readInit(t, c2))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?client=c1"
	c1, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	req.Empty(readInit(t, c1))

	// When C1 submits and leaves while the append is in flight
	send(t, c1, "Alice", "last words")
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		req.Fail("append never started")
	}
	disconnectC1()
	req.NoError(c1.Close())
	close(release)

	// Then the write completes and C2 still receives the broadcast
	message := readBroadcast(t, c2)
	req.Equal("Alice", message.Author)
	req.Equal("last words", message.Content)
	req.Eventually(func() bool { return registry.Len() == 1 }, 3*time.Second, 10*time.Millisecond)
	count, err := repository.Count()
	req.NoError(err)
	req.Equal(1, count)
}

func TestChatServer_Storage_Failure_Notifies_Submitter(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	chatService := mocks.NewMockIChatService(ctrl)
	left := make(chan struct{})

	chatService.EXPECT().Join(gomock.Any(), gomock.Any())
	chatService.EXPECT().GetMessages(chat.GetMessageCommand{Limit: chat.RetentionLimit}).Return([]chat.Message{}, nil)
	chatService.EXPECT().PostMessage(gomock.Any(), gomock.Any()).
		Return(chat.Message{}, fmt.Errorf("%w: disk full", errors.ErrStorage))
	chatService.EXPECT().Leave(gomock.Any()).Do(func(string) { close(left) })

	server := httptest.NewServer(NewChatServer(slog.Default(), chatService, chat.RetentionLimit, 8, time.Minute, ""))
	defer server.Close()
	conn := dial(t, server)
	readInit(t, conn)

	// When the store rejects the message
	send(t, conn, "Alice", "hi")

	// Then the submitter gets a messageError
	rejected, ok := readEvent(t, conn).(event.MessageRejected)
	req.True(ok)
	req.Equal(rejectedReason, rejected.Reason)

	req.NoError(conn.Close())
	select {
	case <-left:
	case <-time.After(3 * time.Second):
		req.Fail("connection not released")
	}
}

func TestChatServer_Broadcasts_Already_In_Window_Are_Skipped(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	chatService := mocks.NewMockIChatService(ctrl)
	left := make(chan struct{})
	first := chat.Message{ID: uuid.New(), Seq: 1, Author: "Alice", Content: "one", CreatedAt: time.Now().UTC()}
	second := chat.Message{ID: uuid.New(), Seq: 2, Author: "Bob", Content: "two", CreatedAt: time.Now().UTC()}

	// Given broadcasts queued between registration and the history read
	chatService.EXPECT().Join(gomock.Any(), gomock.Any()).Do(func(_ string, s contract.EventSink) {
		_ = s.Consume(context.Background(), event.MessageBroadcast{Message: first})
		_ = s.Consume(context.Background(), event.MessageBroadcast{Message: second})
	})
	chatService.EXPECT().GetMessages(gomock.Any()).Return([]chat.Message{first}, nil)
	chatService.EXPECT().Leave(gomock.Any()).Do(func(string) { close(left) })

	server := httptest.NewServer(NewChatServer(slog.Default(), chatService, chat.RetentionLimit, 8, time.Minute, ""))
	defer server.Close()
	conn := dial(t, server)

	// Then the window holds the first and only the second is delivered afterwards
	window := readInit(t, conn)
	req.Len(window, 1)
	req.Equal(first.ID, window[0].ID)
	req.Equal(second.ID, readBroadcast(t, conn).ID)

	req.NoError(conn.Close())
	<-left
}

func TestChatServer_Rejects_Foreign_Origin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	chatService := mocks.NewMockIChatService(ctrl)

	server := httptest.NewServer(NewChatServer(slog.Default(), chatService, chat.RetentionLimit, 8, time.Minute, "https://campus.example"))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://evil.example"}})

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(403, resp.StatusCode)
}
