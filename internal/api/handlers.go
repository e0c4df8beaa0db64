package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/banphlet/trigger.dev-rails/internal/runs"
	"github.com/banphlet/trigger.dev-rails/internal/scripts"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		TasksConfigured: len(s.tasks),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListRuns handles GET /api/v1/runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if list == nil {
		list = []*runs.Run{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleGetRun handles GET /api/v1/runs/{runID}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.Get(r.Context(), runID)
	if errors.Is(err, runs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load run", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	metadata, err := s.metadata.Get(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to load run metadata", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load run metadata")
		return
	}

	waits, err := s.runs.Waits(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to load run waits", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load run waits")
		return
	}

	s.writeJSON(w, http.StatusOK, RunDetailResponse{
		Run:      run,
		Metadata: metadata,
		Waits:    waits,
	})
}

// handleTriggerTask handles POST /api/v1/tasks/{task}/trigger.
// The default is asynchronous: the run record is created, 202 is returned,
// and the script executes in the background. ?sync=true blocks until the
// script finishes and includes its captured output.
func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	taskName := chi.URLParam(r, "task")

	task, ok := s.tasks[taskName]
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req TriggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	opts := scripts.Options{
		Args:           task.Args,
		WorkingDir:     task.WorkingDir,
		Env:            task.Env,
		Rails:          task.Rails,
		PythonBin:      s.config.Scripts.PythonBin,
		RailsBin:       s.config.Scripts.RailsBin,
		TaskAttributes: taskAttributes(taskName, task.Attributes),
	}
	if len(req.Payload) > 0 {
		if !json.Valid(req.Payload) {
			s.writeError(w, http.StatusBadRequest, "payload must be valid JSON")
			return
		}
		opts.Payload = req.Payload
	}

	if r.URL.Query().Get("sync") == "true" {
		run, result, runErr := s.supervisor.Execute(r.Context(), taskName, task.Script, opts)
		if run == nil {
			s.writeError(w, http.StatusInternalServerError, "failed to start run: "+runErr.Error())
			return
		}

		resp := TriggerResponse{Run: s.reload(r, run)}
		if result != nil {
			resp.Stdout = result.Stdout
			resp.Stderr = result.Stderr
		} else {
			var exitErr *scripts.ExitError
			if errors.As(runErr, &exitErr) {
				resp.Stdout = exitErr.Stdout
				resp.Stderr = exitErr.Stderr
			}
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	run, err := s.supervisor.Launch(r.Context(), taskName, task.Script, opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to start run: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, TriggerResponse{Run: run})
}

// reload fetches the persisted run so the response carries the terminal
// status instead of the snapshot taken at creation.
func (s *Server) reload(r *http.Request, run *runs.Run) *runs.Run {
	if stored, err := s.runs.Get(r.Context(), run.ID); err == nil {
		return stored
	}
	return run
}

func taskAttributes(taskName string, extra map[string]string) map[string]string {
	attrs := map[string]string{"trigger.task": taskName}
	for k, v := range extra {
		attrs[k] = v
	}
	return attrs
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
