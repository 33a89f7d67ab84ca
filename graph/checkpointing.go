package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/store"
)

const (
	// StatusCompleted means the run reached END.
	StatusCompleted = store.StatusCompleted
	// StatusSuspended means the run stopped before an interrupt node and waits for Resume.
	StatusSuspended = store.StatusSuspended
)

// Result is what Start, Run and Resume return on success.
type Result struct {
	RunID  string
	State  State
	Status store.RunStatus
	// Next is the node a suspended run will execute when resumed.
	Next string
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	RunID     string
	Cursor    string
	Status    store.RunStatus
	Error     string
	Version   int
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newRunInfo(cp *store.Checkpoint) *RunInfo {
	return &RunInfo{
		RunID:     cp.RunID,
		Cursor:    cp.Cursor,
		Status:    cp.Status,
		Error:     cp.Error,
		Version:   cp.Version,
		Metadata:  cp.Metadata,
		CreatedAt: cp.CreatedAt,
		UpdatedAt: cp.UpdatedAt,
	}
}

// Runner executes a compiled graph with a checkpoint saved after every step.
type Runner struct {
	graph           *CompiledGraph
	store           store.CheckpointStore
	interruptBefore map[string]bool
	listeners       []Listener
	metadata        map[string]any
	logger          log.Logger

	mu     sync.Mutex
	active map[string]bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithInterruptBefore suspends runs whenever they arrive at one of the nodes.
func WithInterruptBefore(nodes ...string) RunnerOption {
	return func(r *Runner) {
		for _, n := range nodes {
			r.interruptBefore[n] = true
		}
	}
}

// WithRunListeners adds listeners to every run started by the runner.
func WithRunListeners(listeners ...Listener) RunnerOption {
	return func(r *Runner) {
		r.listeners = append(r.listeners, listeners...)
	}
}

// WithMetadata stores the given metadata on new checkpoints.
func WithMetadata(metadata map[string]any) RunnerOption {
	return func(r *Runner) {
		r.metadata = metadata
	}
}

// WithLogger sets the logger used for problems that cannot be returned to the caller.
func WithLogger(logger log.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner persisting to st.
func (g *CompiledGraph) NewRunner(st store.CheckpointStore, opts ...RunnerOption) (*Runner, error) {
	if st == nil {
		return nil, errors.New("runner: nil checkpoint store")
	}
	r := &Runner{
		graph:           g,
		store:           st,
		interruptBefore: make(map[string]bool),
		logger:          log.GetDefaultLogger(),
		active:          make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	for n := range r.interruptBefore {
		if !g.HasNode(n) {
			return nil, fmt.Errorf("runner: interrupt %w: %s", ErrNodeNotFound, n)
		}
	}
	return r, nil
}

// Graph returns the graph the runner executes.
func (r *Runner) Graph() *CompiledGraph { return r.graph }

// Start begins a new run under a fresh id.
func (r *Runner) Start(ctx context.Context, initial State) (*Result, error) {
	return r.Run(ctx, uuid.NewString(), initial)
}

// Run starts runID if it has no checkpoint, otherwise it resumes it with input
// merged onto the persisted state.
func (r *Runner) Run(ctx context.Context, runID string, input State) (*Result, error) {
	if err := r.acquire(runID); err != nil {
		return nil, err
	}
	defer r.release(runID)

	cp, err := r.load(ctx, runID)
	switch {
	case errors.Is(err, ErrRunNotFound):
		return r.begin(ctx, runID, input)
	case err != nil:
		return nil, err
	}
	return r.resume(ctx, cp, input)
}

// Resume continues a stored run. patch is merged onto the persisted state with the
// channel policies before execution continues. Resuming a completed run only
// applies the patch and returns the final state.
func (r *Runner) Resume(ctx context.Context, runID string, patch State) (*Result, error) {
	if err := r.acquire(runID); err != nil {
		return nil, err
	}
	defer r.release(runID)

	cp, err := r.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return r.resume(ctx, cp, patch)
}

// UpdateState merges patch into a stored run without executing anything.
func (r *Runner) UpdateState(ctx context.Context, runID string, patch State) (State, error) {
	if err := r.acquire(runID); err != nil {
		return nil, err
	}
	defer r.release(runID)

	cp, rs, err := r.restore(ctx, runID, patch)
	if err != nil {
		return nil, err
	}
	rs.ResumedAt = cp.ResumedAt
	if err := r.save(ctx, cp, rs, cp.Status, cp.Error); err != nil {
		return nil, err
	}
	return rs.State, nil
}

// GetStatus reports where a stored run is.
func (r *Runner) GetStatus(ctx context.Context, runID string) (*RunInfo, error) {
	cp, err := r.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return newRunInfo(cp), nil
}

// GetState returns the persisted state of a run.
func (r *Runner) GetState(ctx context.Context, runID string) (State, error) {
	cp, err := r.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	state, err := r.graph.channels.Decode(cp.State)
	if err != nil {
		return nil, &CheckpointError{Op: "decode", RunID: runID, Err: err}
	}
	return state, nil
}

// ListRuns lists every run in the store, most recently updated first.
func (r *Runner) ListRuns(ctx context.Context) ([]*RunInfo, error) {
	cps, err := r.store.List(ctx)
	if err != nil {
		return nil, &CheckpointError{Op: "list", Err: err}
	}
	store.SortNewestFirst(cps)
	infos := make([]*RunInfo, 0, len(cps))
	for _, cp := range cps {
		infos = append(infos, newRunInfo(cp))
	}
	return infos, nil
}

// Delete removes the checkpoint of a run.
func (r *Runner) Delete(ctx context.Context, runID string) error {
	if err := r.store.Delete(ctx, runID); err != nil {
		return &CheckpointError{Op: "delete", RunID: runID, Err: err}
	}
	return nil
}

func (r *Runner) acquire(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[runID] {
		return fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	r.active[runID] = true
	return nil
}

func (r *Runner) release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, runID)
}

func (r *Runner) load(ctx context.Context, runID string) (*store.Checkpoint, error) {
	cp, err := r.store.Load(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, &CheckpointError{Op: "load", RunID: runID, Err: err}
	}
	return cp, nil
}

// restore loads a run and merges patch onto its state.
func (r *Runner) restore(ctx context.Context, runID string, patch State) (*store.Checkpoint, *runState, error) {
	cp, err := r.load(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return r.restoreCheckpoint(cp, patch)
}

func (r *Runner) restoreCheckpoint(cp *store.Checkpoint, patch State) (*store.Checkpoint, *runState, error) {
	state, err := r.graph.channels.Decode(cp.State)
	if err != nil {
		return nil, nil, &CheckpointError{Op: "decode", RunID: cp.RunID, Err: err}
	}
	state, err = r.graph.channels.Merge(state, patch)
	if err != nil {
		return nil, nil, err
	}
	if cp.Cursor != END && !r.graph.HasNode(cp.Cursor) {
		return nil, nil, &CheckpointError{Op: "decode", RunID: cp.RunID, Err: fmt.Errorf("%w: cursor %s", ErrNodeNotFound, cp.Cursor)}
	}
	return cp, &runState{State: state, Cursor: cp.Cursor}, nil
}

func (r *Runner) begin(ctx context.Context, runID string, input State) (*Result, error) {
	state, err := r.graph.channels.Merge(State{}, input)
	if err != nil {
		return nil, err
	}
	cp := &store.Checkpoint{
		RunID:     runID,
		Metadata:  r.metadata,
		CreatedAt: time.Now(),
	}
	rs := &runState{State: state, Cursor: r.graph.entry}
	if err := r.save(ctx, cp, rs, store.StatusRunning, ""); err != nil {
		return nil, err
	}
	return r.drive(ctx, cp, rs)
}

func (r *Runner) resume(ctx context.Context, cp *store.Checkpoint, patch State) (*Result, error) {
	_, rs, err := r.restoreCheckpoint(cp, patch)
	if err != nil {
		return nil, err
	}

	if rs.Cursor == END {
		if len(patch) > 0 {
			if err := r.save(ctx, cp, rs, store.StatusCompleted, ""); err != nil {
				return nil, err
			}
		}
		return &Result{RunID: cp.RunID, State: rs.State, Status: StatusCompleted}, nil
	}

	// The caller has seen the suspension, so the interrupt at this cursor fires no more.
	if cp.Status == store.StatusSuspended || cp.ResumedAt == cp.Cursor {
		rs.ResumedAt = cp.Cursor
	}
	if err := r.save(ctx, cp, rs, store.StatusRunning, ""); err != nil {
		return nil, err
	}
	return r.drive(ctx, cp, rs)
}

func (r *Runner) drive(ctx context.Context, cp *store.Checkpoint, rs *runState) (*Result, error) {
	ctx = WithListeners(WithRunID(ctx, cp.RunID), r.listeners...)
	start := time.Now()

	suspended, err := r.graph.execute(ctx, rs, hooks{
		interruptBefore: r.interruptBefore,
		afterStep: func(ctx context.Context, rs *runState) error {
			status := store.StatusRunning
			if rs.Cursor == END {
				status = store.StatusCompleted
			}
			return r.save(ctx, cp, rs, status, "")
		},
	})
	if err != nil {
		var cpErr *CheckpointError
		if !errors.As(err, &cpErr) {
			// Keep the last good state and cursor so a later resume replays the failed step.
			if saveErr := r.save(context.WithoutCancel(ctx), cp, rs, store.StatusFailed, err.Error()); saveErr != nil {
				r.logger.Error("run %s: recording failure: %v", cp.RunID, saveErr)
			}
		}
		r.graph.emit(ctx, NodeEvent{Type: EventRunEnd, Node: rs.Cursor, Err: err, Duration: time.Since(start)})
		return nil, err
	}

	if suspended {
		if err := r.save(ctx, cp, rs, store.StatusSuspended, ""); err != nil {
			return nil, err
		}
		r.graph.emit(ctx, NodeEvent{Type: EventInterrupt, Node: rs.Cursor})
		return &Result{RunID: cp.RunID, State: rs.State, Status: StatusSuspended, Next: rs.Cursor}, nil
	}

	r.graph.emit(ctx, NodeEvent{Type: EventRunEnd, Node: END, Duration: time.Since(start)})
	return &Result{RunID: cp.RunID, State: rs.State, Status: StatusCompleted}, nil
}

func (r *Runner) save(ctx context.Context, cp *store.Checkpoint, rs *runState, status store.RunStatus, errMsg string) error {
	cp.Cursor = rs.Cursor
	cp.State = rs.State
	cp.Status = status
	cp.ResumedAt = rs.ResumedAt
	cp.Error = errMsg
	cp.Version++
	cp.UpdatedAt = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	if err := r.store.Save(ctx, cp); err != nil {
		return &CheckpointError{Op: "save", RunID: cp.RunID, Err: err}
	}
	return nil
}
