// Package handler exposes the HTTP surface: the chat endpoint, thread
// management, health, and metrics.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"crediflex-agent/internal/domain"
	"crediflex-agent/internal/metrics"
	"crediflex-agent/internal/usecase"
)

// modelName is the advertised assistant identity in chat responses.
const modelName = "CrediFlex AI Assistant"

// ChatService is the chat orchestration consumed by the handler.
type ChatService interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

// ThreadDirectory is the slice of the session store backing the thread
// management endpoints.
type ThreadDirectory interface {
	Get(id string) (domain.Thread, bool)
	Delete(id string) bool
	ListAll() []domain.ThreadSummary
	ActiveCount() int
}

type Handler struct {
	chat    ChatService
	threads ThreadDirectory
}

func NewHandler(chat ChatService, threads ThreadDirectory) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if threads == nil {
		return nil, errors.New("handler: thread directory must not be nil")
	}
	return &Handler{chat: chat, threads: threads}, nil
}

// Routes returns the full HTTP handler with CORS and correlation-id
// middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /threads", h.handleListThreads)
	mux.HandleFunc("GET /threads/{id}", h.handleGetThread)
	mux.HandleFunc("GET /threads/{id}/messages", h.handleThreadMessages)
	mux.HandleFunc("DELETE /threads/{id}", h.handleDeleteThread)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return withCORS(withCorrelationID(mux))
}

type chatRequest struct {
	Query    string           `json:"query"`
	ThreadID string           `json:"thread_id"`
	Context  *domain.Snapshot `json:"context,omitempty"`
	User     *chatUser        `json:"user,omitempty"`
}

type chatUser struct {
	Role string `json:"role"`
}

type chatResponse struct {
	Response           string `json:"response"`
	ThreadID           string `json:"thread_id"`
	Timestamp          int64  `json:"timestamp"`
	Model              string `json:"model"`
	Status             string `json:"status"`
	UpstreamResponseID string `json:"upstream_response_id,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// handleChat runs one conversational turn. Only validation failures get a
// client-error status; everything past validation degrades to a 200-shaped
// error body so the UI always has a message to render.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordChatRequest(false)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Status: "error"})
		return
	}

	in := usecase.ChatInput{
		Query:    req.Query,
		ThreadID: req.ThreadID,
		Snapshot: req.Context,
	}
	if req.User != nil {
		in.UserRole = req.User.Role
	}

	out, err := h.chat.Chat(r.Context(), in)
	if err != nil {
		metrics.RecordChatRequest(false)
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(ucErr.Code), Status: "error"})
			return
		}
		slog.Error("chat turn failed", "err", err)
		writeJSON(w, http.StatusOK, errorResponse{Error: err.Error(), Status: "error"})
		return
	}

	metrics.RecordChatRequest(true)
	writeJSON(w, http.StatusOK, chatResponse{
		Response:           out.Answer,
		ThreadID:           out.ThreadID,
		Timestamp:          time.Now().Unix(),
		Model:              modelName,
		Status:             "success",
		UpstreamResponseID: out.UpstreamResponseID,
	})
}

type listThreadsResponse struct {
	Threads []domain.ThreadSummary `json:"threads"`
	Count   int                    `json:"count"`
}

func (h *Handler) handleListThreads(w http.ResponseWriter, _ *http.Request) {
	summaries := h.threads.ListAll()
	writeJSON(w, http.StatusOK, listThreadsResponse{Threads: summaries, Count: len(summaries)})
}

func (h *Handler) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := h.threads.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "thread not found", Status: "error"})
		return
	}
	writeJSON(w, http.StatusOK, domain.ThreadSummary{
		ID:           t.ID,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
		MessageCount: len(t.Messages),
	})
}

type threadMessagesResponse struct {
	ThreadID string           `json:"thread_id"`
	Messages []domain.Message `json:"messages"`
}

func (h *Handler) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := h.threads.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "thread not found", Status: "error"})
		return
	}
	msgs := t.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, threadMessagesResponse{ThreadID: t.ID, Messages: msgs})
}

func (h *Handler) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.threads.Delete(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "thread not found", Status: "error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status        string `json:"status"`
	ActiveThreads int    `json:"active_threads"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ActiveThreads: h.threads.ActiveCount()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response body", "err", err)
	}
}

// withCORS allows browser dashboards on any origin to reach the API,
// answering preflight requests before routing.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withCorrelationID echoes the caller's correlation id, or generates one, so
// log lines and responses can be matched.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r)
	})
}
