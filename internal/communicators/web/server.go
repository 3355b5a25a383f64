// Package web exposes the chat service as a small JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chatbridge/internal/chat"
	"chatbridge/internal/history"
)

// Server serves the chat API on Addr.
type Server struct {
	service *chat.Service
	cache   *history.Cache
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

func NewServer(service *chat.Service, cache *history.Cache, addr string, timeout time.Duration, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: service, cache: cache, addr: addr, timeout: timeout, logger: logger}
}

func (s *Server) ID() string {
	return "web"
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/draw", s.handleDraw)
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistory)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return mux
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting web api", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	AuthorID       string `json:"author_id"`
	Message        string `json:"message"`
}

type ChatResponse struct {
	Reply    string `json:"reply"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.turn(w, r, s.service.Handle)
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	s.turn(w, r, s.service.Draw)
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request, fn func(context.Context, chat.Inbound) (chat.Reply, error)) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	turnCtx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	reply, err := fn(turnCtx, chat.Inbound{
		ConversationID: req.ConversationID,
		AuthorID:       req.AuthorID,
		Text:           req.Message,
	})
	resp := ChatResponse{Reply: reply.Text, ImageURL: reply.ImageURL}
	status := http.StatusOK
	if err != nil {
		s.logger.Warn("turn failed", "conversation", req.ConversationID, "error", err)
		resp.Error = err.Error()
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	ids := s.cache.Conversations()
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = s.cache.Len(id)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	count := 0
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "n must be an integer", http.StatusBadRequest)
			return
		}
		count = n
	}
	msgs := s.service.History(r.PathValue("id"), count)
	if msgs == nil {
		msgs = []history.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "online",
		"time":          time.Now().Format(time.RFC3339),
		"conversations": len(s.cache.Conversations()),
		"max_size":      s.cache.MaxSize(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
