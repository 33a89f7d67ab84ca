package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"
	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/prebuilt/travel"
	"github.com/smallnest/researchgraph/store"
)

// TaskStatus is the lifecycle of a planning task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one planning request running in the background.
type Task struct {
	mu sync.Mutex

	ID           string
	Request      travel.Request
	Status       TaskStatus
	CurrentAgent string
	Plan         *travel.Plan
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskView is the JSON form of a task.
type TaskView struct {
	TaskID       string         `json:"task_id"`
	Status       TaskStatus     `json:"status"`
	Destination  string         `json:"destination,omitempty"`
	CurrentAgent string         `json:"current_agent,omitempty"`
	Plan         *travel.Plan   `json:"plan,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Checkpoint   *CheckpointRef `json:"checkpoint,omitempty"`
}

// CheckpointRef describes the stored run of a task.
type CheckpointRef struct {
	Status  store.RunStatus `json:"status"`
	Cursor  string          `json:"cursor"`
	Version int             `json:"version"`
}

func (t *Task) view() TaskView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskView{
		TaskID:       t.ID,
		Status:       t.Status,
		Destination:  t.Request.Destination,
		CurrentAgent: t.CurrentAgent,
		Plan:         t.Plan,
		Error:        t.Error,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (t *Task) update(fn func(t *Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t)
	t.UpdatedAt = time.Now()
}

// Server exposes the travel planner over HTTP.
type Server struct {
	runner  *graph.Runner
	tasks   *haxmap.Map[string, *Task]
	timeout time.Duration
	logger  log.Logger

	// wg tracks background runs for Wait.
	wg sync.WaitGroup
}

// NewServer compiles the planner over st. Extra listeners receive every node event.
func NewServer(cfg travel.Config, st store.CheckpointStore, timeout time.Duration, listeners ...graph.Listener) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.GetDefaultLogger()
	}
	cg, err := travel.New(cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{
		tasks:   haxmap.New[string, *Task](),
		timeout: timeout,
		logger:  cfg.Logger,
	}
	listeners = append(listeners, graph.ListenerFunc(s.track))
	s.runner, err = cg.NewRunner(st, graph.WithRunListeners(listeners...), graph.WithLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /plan", s.handlePlan)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /tasks", s.handleTasks)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDelete)
	return mux
}

// Wait blocks until every background run returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// track follows the agent a run is executing.
func (s *Server) track(_ context.Context, e graph.NodeEvent) {
	if e.Type != graph.EventNodeStart || e.Branch != nil {
		return
	}
	if t, ok := s.tasks.Get(e.RunID); ok {
		t.update(func(t *Task) { t.CurrentAgent = e.Node })
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"tasks":     s.tasks.Len(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req travel.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	input, err := travel.Input(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	t := &Task{
		ID:        uuid.NewString(),
		Request:   graph.Get[travel.Request](input, travel.ChannelRequest),
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks.Set(t.ID, t)
	s.logger.Info("task %s: planning a trip to %s", t.ID, t.Request.Destination)

	s.wg.Add(1)
	go s.execute(t, input)

	writeJSON(w, http.StatusAccepted, t.view())
}

func (s *Server) execute(t *Task, input graph.State) {
	defer s.wg.Done()
	logger := log.WithPrefix(s.logger, "task "+t.ID+": ")

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	t.update(func(t *Task) { t.Status = TaskRunning })
	res, err := s.runner.Run(ctx, t.ID, input)
	if err != nil {
		logger.Error("failed: %v", err)
		t.update(func(t *Task) {
			t.Status = TaskFailed
			t.Error = err.Error()
		})
		return
	}

	plan, err := travel.ParsePlan(graph.Get[string](res.State, travel.ChannelFinalPlan))
	if err != nil {
		t.update(func(t *Task) {
			t.Status = TaskFailed
			t.Error = err.Error()
		})
		return
	}
	logger.Info("completed after %d iterations", plan.Iterations)
	t.update(func(t *Task) {
		t.Status = TaskCompleted
		t.Plan = plan
		t.CurrentAgent = ""
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if t, ok := s.tasks.Get(id); ok {
		v := t.view()
		if info, err := s.runner.GetStatus(r.Context(), id); err == nil {
			v.Checkpoint = &CheckpointRef{Status: info.Status, Cursor: info.Cursor, Version: info.Version}
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	// Tasks of a previous process are only known to the checkpoint store.
	v, err := s.storedTask(r.Context(), id)
	if errors.Is(err, graph.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) storedTask(ctx context.Context, id string) (TaskView, error) {
	info, err := s.runner.GetStatus(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	state, err := s.runner.GetState(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	v := TaskView{
		TaskID:      id,
		Destination: graph.Get[travel.Request](state, travel.ChannelRequest).Destination,
		CreatedAt:   info.CreatedAt,
		UpdatedAt:   info.UpdatedAt,
		Error:       info.Error,
		Checkpoint:  &CheckpointRef{Status: info.Status, Cursor: info.Cursor, Version: info.Version},
	}
	switch info.Status {
	case store.StatusCompleted:
		v.Status = TaskCompleted
		if v.Plan, err = travel.ParsePlan(graph.Get[string](state, travel.ChannelFinalPlan)); err != nil {
			return TaskView{}, err
		}
	case store.StatusFailed:
		v.Status = TaskFailed
	default:
		// The process running it is gone.
		v.Status = TaskFailed
		v.CurrentAgent = info.Cursor
		if v.Error == "" {
			v.Error = "interrupted"
		}
	}
	return v, nil
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	views := make([]TaskView, 0, s.tasks.Len())
	s.tasks.ForEach(func(_ string, t *Task) bool {
		views = append(views, t.view())
		return true
	})
	slices.SortFunc(views, func(a, b TaskView) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views, "total": len(views)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := s.tasks.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if v := t.view(); v.Status == TaskPending || v.Status == TaskRunning {
		writeError(w, http.StatusConflict, "task is still running")
		return
	}
	if err := s.runner.Delete(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.tasks.Del(id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
