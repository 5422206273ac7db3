package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"secret-room/internal/apperr"
	"secret-room/internal/auth"
	"secret-room/internal/invitation"
	"secret-room/internal/membership"
	"secret-room/internal/message"
	myMiddleware "secret-room/internal/middleware"
	"secret-room/internal/presence"
	"secret-room/internal/room"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	Rooms       *room.Registry
	Invitations *invitation.Manager
	Members     membership.Store
	Presence    *presence.Tracker
	Messages    *message.Service
	Tokens      *auth.Issuer
}

type CreateRoomRequest struct {
	Name       string `json:"name"`
	Secret     string `json:"secret"`
	LifespanMS int64  `json:"lifespan_ms"`
	OwnerID    string `json:"owner_id"`
	Kind       string `json:"kind"`
}

type CreateRoomResponse struct {
	Room   *room.Room `json:"room"`
	UserID string     `json:"user_id"`
	Token  string     `json:"token"`
}

type RedeemRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// CreateRoom makes a room and signs its owner in. Without an owner_id a
// fresh identity is generated for the caller.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body", apperr.ErrValidation))
		return
	}
	kind, err := room.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = "user-" + uuid.NewString()
	}

	created, err := h.Rooms.CreateRoom(r.Context(), room.CreateParams{
		Name:     req.Name,
		Secret:   req.Secret,
		Lifespan: time.Duration(req.LifespanMS) * time.Millisecond,
		OwnerID:  req.OwnerID,
		Kind:     kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.Tokens.Issue(req.OwnerID, created.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateRoomResponse{Room: created, UserID: req.OwnerID, Token: token})
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	found, _, ok := h.member(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	userID, _ := myMiddleware.UserID(r.Context())
	if err := h.Rooms.DeleteRoom(r.Context(), chi.URLParam(r, "roomID"), userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) IssueInvitation(w http.ResponseWriter, r *http.Request) {
	found, _, ok := h.member(w, r)
	if !ok {
		return
	}
	inv, err := h.Invitations.IssueOneTime(r.Context(), found.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	found, _, ok := h.member(w, r)
	if !ok {
		return
	}
	members, err := h.Presence.ListOnlineMembers(r.Context(), found.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// ListMessages returns the decrypted history of a room.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	found, _, ok := h.member(w, r)
	if !ok {
		return
	}
	msgs, err := h.Messages.List(r.Context(), found.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) RedeemGlobal(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body", apperr.ErrValidation))
		return
	}
	red, err := h.Invitations.RedeemGlobal(r.Context(), chi.URLParam(r, "globalID"), req.Fingerprint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, red)
}

func (h *Handler) RedeemOneTime(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body", apperr.ErrValidation))
		return
	}
	red, err := h.Invitations.RedeemOneTime(r.Context(), chi.URLParam(r, "code"), req.Fingerprint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, red)
}

// RefreshToken re-issues the caller's token while the room and membership
// still exist.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := myMiddleware.UserID(r.Context())
	roomID, _ := myMiddleware.RoomID(r.Context())

	if _, err := h.Rooms.GetRoom(r.Context(), roomID); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.Members.IsMember(r.Context(), roomID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, fmt.Errorf("%w: not a member of %s", apperr.ErrForbidden, roomID))
		return
	}
	token, err := h.Tokens.Issue(userID, roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// member resolves the room in the URL and checks that the authenticated
// caller belongs to it. A missing room is NotFound and an expired one Gone,
// both ahead of the membership check.
func (h *Handler) member(w http.ResponseWriter, r *http.Request) (found *room.Room, userID string, ok bool) {
	roomID := chi.URLParam(r, "roomID")
	userID, _ = myMiddleware.UserID(r.Context())
	found, err := h.Rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return nil, "", false
	}
	isMember, err := h.Members.IsMember(r.Context(), found.ID, userID)
	if err != nil {
		writeError(w, r, err)
		return nil, "", false
	}
	if !isMember {
		writeError(w, r, fmt.Errorf("%w: not a member of %s", apperr.ErrForbidden, roomID))
		return nil, "", false
	}
	return found, userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err).Error("Request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
