// Package httpapi exposes the CommuNet REST surface: accounts, user search,
// message send, and history fetch.
//
// REST-originated sends flow through the same delivery router as the live
// channel, so an online receiver gets the push regardless of which path the
// sender used.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	v1 "github.com/animeshkarmakar7/CommuNet/contracts/realtime/v1"
	"github.com/animeshkarmakar7/CommuNet/internal/auth"
	"github.com/animeshkarmakar7/CommuNet/internal/realtime"
)

const maxBodyBytes = 64 << 10 // 64 KiB

// Handler wires the REST endpoints to the auth service and delivery router.
type Handler struct {
	log    *slog.Logger
	auth   *auth.Service
	router *realtime.Router
	store  realtime.MessageStore
}

// NewHandler constructs a REST handler.
func NewHandler(log *slog.Logger, authSvc *auth.Service, router *realtime.Router, store realtime.MessageStore) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, auth: authSvc, router: router, store: store}
}

// Register wires API routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/auth/me", h.handleMe)
	mux.HandleFunc("GET /api/users", h.handleListUsers)
	mux.HandleFunc("POST /api/messages", h.handleSendMessage)
	mux.HandleFunc("GET /api/conversations", h.handleConversations)
	mux.HandleFunc("GET /api/messages/{peer_id}", h.handleHistory)
	mux.HandleFunc("PUT /api/messages/{message_id}/read", h.handleMarkRead)
}

// ---- views ----

type userView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u auth.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

type sessionResponse struct {
	User      userView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toMessageView(m realtime.Message) v1.MessagePayload {
	return v1.MessagePayload{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Content:       m.Content,
		AttachmentRef: m.AttachmentRef,
		CreatedAt:     m.CreatedAt,
		DeliveryState: m.DeliveryState,
		ReadAt:        m.ReadAt,
	}
}

// ---- auth endpoints ----

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	now := time.Now().UTC()
	u, issued, err := h.auth.Register(r.Context(), now, auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken", "email already registered")
			return
		}
		writeError(w, http.StatusBadRequest, "registration_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		User:      toUserView(u),
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	u, issued, err := h.auth.Login(r.Context(), time.Now().UTC(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		h.log.Error("api.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		User:      toUserView(u),
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cred := bearerToken(r)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credential")
		return
	}
	if err := h.auth.Logout(r.Context(), cred); err != nil {
		h.log.Error("api.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	u, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	users, err := h.auth.ListOthers(r.Context(), userID)
	if err != nil {
		h.log.Error("api.users.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "listing users failed")
		return
	}

	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- message endpoints ----

type sendMessageRequest struct {
	ReceiverID    string `json:"receiver_id"`
	Content       string `json:"content"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

type sendMessageResponse struct {
	Message   v1.MessagePayload `json:"message"`
	Delivered bool              `json:"delivered"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	// No originating live connection here: the REST response itself is the
	// sender's acknowledgment, so no delivery_ack envelope is emitted.
	out, err := h.router.Route(r.Context(), userID, nil, realtime.SendInput{
		SenderID:      userID,
		ReceiverID:    req.ReceiverID,
		Content:       req.Content,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrInvalidMessage):
			writeError(w, http.StatusBadRequest, "invalid_message", err.Error())
		case errors.Is(err, realtime.ErrUnauthorizedSender):
			writeError(w, http.StatusForbidden, "unauthorized_sender", "sender mismatch")
		default:
			h.log.Error("api.send.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "message could not be persisted")
		}
		return
	}

	writeJSON(w, http.StatusCreated, sendMessageResponse{
		Message:   toMessageView(out.Message),
		Delivered: out.Delivered,
	})
}

type historyResponse struct {
	Messages []v1.MessagePayload `json:"messages"`
	HasMore  bool                `json:"has_more"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	peerID := strings.TrimSpace(r.PathValue("peer_id"))
	if peerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing peer id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	res, err := h.store.History(r.Context(), realtime.HistoryInput{
		UserID:  userID,
		PeerID:  peerID,
		AfterID: strings.TrimSpace(r.URL.Query().Get("after_id")),
		Limit:   limit,
	})
	if err != nil {
		h.log.Error("api.history.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "history fetch failed")
		return
	}

	msgs := make([]v1.MessagePayload, 0, len(res.Messages))
	for _, m := range res.Messages {
		msgs = append(msgs, toMessageView(m))
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: msgs, HasMore: res.HasMore})
}

type conversationView struct {
	PeerID      string            `json:"peer_id"`
	LastMessage v1.MessagePayload `json:"last_message"`
	Unread      int               `json:"unread"`
}

type conversationsResponse struct {
	Conversations []conversationView `json:"conversations"`
}

// handleConversations serves the inbox view: one entry per peer with the
// latest message and unread count, newest conversation first.
func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	convs, err := h.store.Conversations(r.Context(), userID)
	if err != nil {
		h.log.Error("api.conversations.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "conversations fetch failed")
		return
	}

	out := make([]conversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationView{
			PeerID:      c.PeerID,
			LastMessage: toMessageView(c.LastMessage),
			Unread:      c.Unread,
		})
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: out})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	messageID := strings.TrimSpace(r.PathValue("message_id"))
	if messageID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing message id")
		return
	}

	if err := h.router.RouteReadReceipt(r.Context(), userID, messageID); err != nil {
		if errors.Is(err, realtime.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		h.log.Error("api.mark_read.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "mark read failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	cred := bearerToken(r)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credential")
		return "", false
	}

	userID, err := h.auth.Verify(r.Context(), cred)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired credential")
		return "", false
	}
	return userID, true
}

func bearerToken(r *http.Request) string {
	hdr := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(hdr) > len(prefix) && strings.EqualFold(hdr[:len(prefix)], prefix) {
		return strings.TrimSpace(hdr[len(prefix):])
	}
	return ""
}
