package server

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/workroomhq/workroom/internal/hub"
	"github.com/workroomhq/workroom/internal/store"
)

// Server exposes the session channel endpoint and the thin CRUD surface
// around it: the task collaborator (create/list/delete plus the producer
// verbs) and the preview read contract.
type Server struct {
	Hub   *hub.Hub
	Store *store.Store
	log   *slog.Logger
	mux   *http.ServeMux
}

func NewServer(h *hub.Hub, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Hub:   h,
		Store: st,
		log:   logger,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleChannel)

	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/sessions/{id}/tasks", s.handleListTasks)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/progress", s.handleTaskProgress)
	s.mux.HandleFunc("POST /api/tasks/{id}/output", s.handleTaskOutput)
	s.mux.HandleFunc("POST /api/tasks/{id}/complete", s.handleTaskComplete)
	s.mux.HandleFunc("POST /api/tasks/{id}/fail", s.handleTaskFail)
	s.mux.HandleFunc("POST /api/tasks/{id}/cancel", s.handleTaskCancel)

	s.mux.HandleFunc("GET /api/sessions/{id}/previews", s.handleListPreviews)
	s.mux.HandleFunc("POST /api/previews", s.handleSavePreview)
	s.mux.HandleFunc("POST /api/sessions/{id}/end", s.handleEndSession)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChannel accepts the per-session event channel. A new attach for a
// session that already has one supersedes it; the server cannot tell a
// reconnect from a first connect.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	sess, err := s.Hub.Ensure(sessionID)
	if err != nil {
		s.log.Error("ensure session", "session", sessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error("channel accept", "session", sessionID, "error", err)
		return
	}
	defer conn.CloseNow()

	if err := sess.Attach(r.Context(), conn); err != nil {
		s.log.Info("channel detached", "session", sessionID, "reason", err)
	}
}
