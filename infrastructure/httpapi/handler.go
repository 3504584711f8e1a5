package httpapi

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/services"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 64 << 10

type Handler struct {
	chatService services.IChatService
	authService services.IAuthService
	upgrader    websocket.Upgrader
	options     Options
	log         *slog.Logger
}

func NewHandler(log *slog.Logger, chatService services.IChatService,
	authService services.IAuthService, options Options) *Handler {
	return &Handler{
		chatService: chatService,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		options: options.withDefaults(),
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Get("/messages", h.listMessages)
	r.Post("/messages", h.postMessage)
	r.Get("/messages/search", h.searchMessages)
}

func (h *Handler) RegisterWebsocket(r chi.Router) {
	r.Get("/ws", h.subscribe)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	ID        uint64    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type messagesResponse struct {
	Messages []messageResponse `json:"messages"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsRequest
	if !decode(w, r, &payload) {
		return
	}
	token, err := h.authService.Register(payload.Username, payload.Password)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{Token: token.String()})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsRequest
	if !decode(w, r, &payload) {
		return
	}
	token, err := h.authService.Login(payload.Username, payload.Password)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token.String()})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.ListMessages(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messagesResponse{Messages: toResponses(messages)})
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var payload postMessageRequest
	if !decode(w, r, &payload) {
		return
	}
	message, err := h.chatService.AddMessage(r.Context(), auth.PrincipalFromContext(r.Context()), payload.Text)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toResponse(message))
}

func (h *Handler) searchMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	messages, err := h.chatService.SearchMessages(r.Context(),
		auth.PrincipalFromContext(r.Context()), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messagesResponse{Messages: toResponses(messages)})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
	}
	respondError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func toResponse(m chat.Message) messageResponse {
	return messageResponse{
		ID:        uint64(m.ID),
		Author:    string(m.Author),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func toResponses(messages []chat.Message) []messageResponse {
	return lo.Map(messages, func(item chat.Message, _ int) messageResponse {
		return toResponse(item)
	})
}
