// Package api exposes the HTTP surface of the feed: history, health, metrics
// and the WebSocket endpoint.
package api

import (
	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/infrastructure/wire"
	"campus-chat/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type Handler struct {
	log         *slog.Logger
	chatService services.IChatService
	limit       int
}

// NewRouter wires every route. An empty secret leaves the history endpoint open.
func NewRouter(log *slog.Logger, chatService services.IChatService, limit int,
	secret []byte, feed http.Handler, metrics http.Handler) *mux.Router {
	h := &Handler{log: log, chatService: chatService, limit: limit}

	router := mux.NewRouter()
	router.Use(h.logRequests)
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics).Methods(http.MethodGet)
	router.Handle("/ws", feed).Methods(http.MethodGet)

	messages := router.PathPrefix("/api").Subrouter()
	if len(secret) > 0 {
		messages.Use(auth.BearerMiddleware(log, secret))
	} else {
		log.Warn("AUTH_SECRET is empty, /api/messages is not protected")
	}
	messages.HandleFunc("/messages", h.getMessages).Methods(http.MethodGet)
	return router
}

func (h *Handler) getMessages(w http.ResponseWriter, _ *http.Request) {
	messages, err := h.chatService.GetMessages(chat.GetMessageCommand{Limit: h.limit})
	if err != nil {
		h.log.Error("Unable to read messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "messages unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, wire.FromMessages(messages))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
