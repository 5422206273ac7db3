package api

import (
	"net/http"

	myMiddleware "secret-room/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST API and the websocket endpoint.
func NewRouter(h *Handler, authMiddleware *myMiddleware.AuthMiddleware, serveWs http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/api/rooms", h.CreateRoom)
	r.Post("/api/invitations/global/{globalID}", h.RedeemGlobal)
	r.Post("/api/invitations/{code}", h.RedeemOneTime)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/ws", serveWs)

		r.Post("/api/auth/refresh", h.RefreshToken)
		r.Route("/api/rooms/{roomID}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Delete("/", h.DeleteRoom)
			r.Post("/invitations", h.IssueInvitation)
			r.Get("/members", h.ListMembers)
			r.Get("/messages", h.ListMessages)
		})
	})

	return r
}
