package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/campuschat/internal/chat"
	"github.com/campuschat/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Mount registers the /api/chat routes on r.
func (h *ChatHandler) Mount(r chi.Router) {
	r.Get("/contacts/{userId}", h.GetContacts)
	r.Get("/messages/{userId}/{otherUserId}", h.GetMessages)
	r.Get("/sessions/{userId}", h.GetSessions)
	r.Post("/mark-read", h.MarkRead)
}

func (h *ChatHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.svc.Contacts(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, err, "Server error while fetching contacts")
		return
	}
	writeOK(w, envelope{"contacts": contacts})
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.Messages(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "otherUserId"))
	if err != nil {
		writeServiceError(w, err, "Server error while fetching messages")
		return
	}
	writeOK(w, envelope{"messages": msgs})
}

func (h *ChatHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Sessions(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, err, "Server error while fetching chat sessions")
		return
	}
	writeOK(w, envelope{"sessions": sessions})
}

type markReadRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.svc.MarkRead(r.Context(), req.UserID, req.OtherUserID); err != nil {
		writeServiceError(w, err, "Server error while marking messages as read")
		return
	}
	writeOK(w, envelope{"message": "Messages marked as read"})
}

// UserHandler serves the read-only directory listing.
type UserHandler struct {
	svc *chat.Service
}

func NewUserHandler(svc *chat.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// GetUsers answers GET /api/users[?type=student|teacher].
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	role := model.Role(strings.TrimSpace(r.URL.Query().Get("type")))
	users, err := h.svc.Users(r.Context(), role)
	if err != nil {
		writeServiceError(w, err, "Server error while fetching users")
		return
	}
	writeOK(w, envelope{"users": users, "count": len(users)})
}
