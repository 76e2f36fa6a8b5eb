package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// getStatus reports package availability and the state of every managed
// server.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

// startServer eagerly launches one server profile. Normally servers launch
// lazily on first proxied request; this lets the CLI warm one up.
func (s *Server) startServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	m, err := s.app.Manager(name)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	ep, err := m.EnsureRunning(r.Context())
	if err != nil {
		writeRPCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "port": ep.Port})
}

// stopServer shuts one server profile down.
func (s *Server) stopServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	m, err := s.app.Manager(name)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	m.Shutdown()
	writeSuccess(w)
}

// shutdownServers tears down every managed server.
func (s *Server) shutdownServers(w http.ResponseWriter, r *http.Request) {
	for _, st := range s.app.Status().Servers {
		if m, err := s.app.Manager(st.Name); err == nil {
			m.Shutdown()
		}
	}
	writeSuccess(w)
}
