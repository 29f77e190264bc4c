package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/workroomhq/workroom/internal/store"
	"github.com/workroomhq/workroom/internal/task"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID   string    `json:"sessionId"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Kind        task.Kind `json:"kind"`
		TotalSteps  int       `json:"totalSteps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "sessionId and title are required")
		return
	}

	sess, err := s.Hub.Ensure(req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	t := sess.Registry.Create(req.Title, req.Description, req.Kind, req.TotalSteps)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	includeTerminal := r.URL.Query().Get("include_terminal") != "false"

	// Live sessions answer from the registry; otherwise fall back to the
	// persisted history.
	if sess, ok := s.Hub.Session(sessionID); ok {
		writeJSON(w, http.StatusOK, sess.Registry.List(includeTerminal))
		return
	}

	tasks, err := s.Store.ListTasks(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !includeTerminal && t.Status.Terminal() {
			continue
		}
		out = append(out, *t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.Store.GetTask(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	if sess, ok := s.Hub.Session(t.SessionID); ok {
		if err := sess.Registry.Remove(id); err != nil {
			if errors.Is(err, task.ErrTaskStillActive) {
				writeError(w, http.StatusConflict, "task still active")
				return
			}
			if !errors.Is(err, task.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	} else if !t.Status.Terminal() {
		writeError(w, http.StatusConflict, "task still active")
		return
	}

	if err := s.Store.DeleteTask(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// registryFor resolves the owning session's registry for a task id.
func (s *Server) registryFor(w http.ResponseWriter, id string) *task.Registry {
	t, err := s.Store.GetTask(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return nil
	}
	sess, err2 := s.Hub.Ensure(t.SessionID)
	if err2 != nil {
		writeError(w, http.StatusInternalServerError, err2.Error())
		return nil
	}
	return sess.Registry
}

func (s *Server) finishMutation(w http.ResponseWriter, reg *task.Registry, id string, err error) {
	switch {
	case err == nil:
		t, _ := reg.Get(id)
		writeJSON(w, http.StatusOK, t)
	case errors.Is(err, task.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleTaskProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Progress    *int   `json:"progress"` // absolute
		Delta       int    `json:"delta"`
		CurrentStep string `json:"currentStep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	reg := s.registryFor(w, id)
	if reg == nil {
		return
	}
	var err error
	if req.Progress != nil {
		err = reg.Advance(id, *req.Progress, req.CurrentStep)
	} else {
		err = reg.AdvanceBy(id, req.Delta, req.CurrentStep)
	}
	s.finishMutation(w, reg, id, err)
}

func (s *Server) handleTaskOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Line string `json:"line"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	reg := s.registryFor(w, id)
	if reg == nil {
		return
	}
	s.finishMutation(w, reg, id, reg.AppendOutput(id, req.Line))
}

func (s *Server) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reg := s.registryFor(w, id)
	if reg == nil {
		return
	}
	s.finishMutation(w, reg, id, reg.Complete(id))
}

func (s *Server) handleTaskFail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	reg := s.registryFor(w, id)
	if reg == nil {
		return
	}
	s.finishMutation(w, reg, id, reg.Fail(id, req.Message))
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reg := s.registryFor(w, id)
	if reg == nil {
		return
	}
	s.finishMutation(w, reg, id, reg.Cancel(id))
}

func (s *Server) handleListPreviews(w http.ResponseWriter, r *http.Request) {
	previews, err := s.Store.ListPreviews(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if previews == nil {
		previews = []*store.Preview{}
	}
	writeJSON(w, http.StatusOK, previews)
}

func (s *Server) handleSavePreview(w http.ResponseWriter, r *http.Request) {
	var p store.Preview
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.SessionID == "" || p.Name == "" {
		writeError(w, http.StatusBadRequest, "sessionId and name are required")
		return
	}
	if p.ID == "" {
		p.ID = uuid.New().String()[:8]
	}
	if p.Status == "" {
		p.Status = "running"
	}
	if _, err := s.Hub.Ensure(p.SessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.Store.SavePreview(&p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Hub.Teardown(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
