package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avelez/packstation/internal/httpx/middlewares"
	"github.com/avelez/packstation/internal/session"
)

func NewRouter(handler *Handler, sessions *session.Manager, hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.Trace)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/session/open", handler.OpenOrder)
	r.Post("/session/scan", handler.HandleScan)
	r.Get("/session", handler.GetSession)
	r.Delete("/session", handler.CloseSession)
	r.Post("/session/complete", handler.CompletePacking)
	r.Get("/orders/{id}/activity", handler.GetActivity)
	r.Get("/ws", hub.HandleWS(sessions))
	return r
}
