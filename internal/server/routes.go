package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Webview message proxy
	r.Post("/rpc", s.handleRPC)

	// Event streaming (SSE)
	r.Get("/events", s.bridgeEvents)

	// Bridge and server state
	r.Get("/status", s.getStatus)

	// Per-profile server control
	r.Route("/server/{name}", func(r chi.Router) {
		r.Post("/start", s.startServer)
		r.Post("/stop", s.stopServer)
	})

	// Tear down every managed server
	r.Post("/shutdown", s.shutdownServers)
}
