package graph_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/store"
	"github.com/smallnest/researchgraph/store/file"
	"github.com/smallnest/researchgraph/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reviewLoop is a -> b -> (a | END); b is the human checkpoint.
func reviewLoop(t *testing.T, rounds int) *graph.CompiledGraph {
	t.Helper()
	g := counterGraph()
	g.SetName("review")
	g.AddNode(nodeA, "draft", visit(nodeA))
	g.AddNode(nodeB, "review", visit(nodeB))
	g.AddEdge(nodeA, nodeB)
	g.AddConditionalEdge(nodeB, func(_ context.Context, s graph.State) (string, error) {
		if graph.Get[int](s, "count") < rounds*2 {
			return nodeA, nil
		}
		return graph.END, nil
	}, nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)
	return cg
}

func TestRunner_InterruptAndResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner, err := reviewLoop(t, 1).NewRunner(memory.NewMemoryCheckpointStore(), graph.WithInterruptBefore(nodeB))
	require.NoError(t, err)

	res, err := runner.Start(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, graph.StatusSuspended, res.Status)
	assert.Equal(t, nodeB, res.Next)
	assert.Equal(t, []string{nodeA}, res.State["trail"])

	info, err := runner.GetStatus(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuspended, info.Status)
	assert.Equal(t, nodeB, info.Cursor)

	res, err = runner.Resume(ctx, res.RunID, graph.State{"trail": "human"})
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, []string{nodeA, "human", nodeB}, res.State["trail"])
	assert.Equal(t, 2, res.State["count"])
}

func TestRunner_ResumeSkipsInterruptOnceThenSuspendsAgain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner, err := reviewLoop(t, 2).NewRunner(memory.NewMemoryCheckpointStore(), graph.WithInterruptBefore(nodeB))
	require.NoError(t, err)

	res, err := runner.Start(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, graph.StatusSuspended, res.Status)

	res, err = runner.Resume(ctx, res.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusSuspended, res.Status, "arriving at the interrupt again must suspend")
	assert.Equal(t, nodeB, res.Next)
	assert.Equal(t, []string{nodeA, nodeB, nodeA}, res.State["trail"])

	res, err = runner.Resume(ctx, res.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, []string{nodeA, nodeB, nodeA, nodeB}, res.State["trail"])
}

func TestRunner_ResumeCompletedIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls atomic.Int32
	g := counterGraph()
	g.AddNode(nodeA, "", func(ctx context.Context, s graph.State) (graph.State, error) {
		calls.Add(1)
		return visit(nodeA)(ctx, s)
	})
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	runner, err := cg.NewRunner(memory.NewMemoryCheckpointStore())
	require.NoError(t, err)

	first, err := runner.Start(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, graph.StatusCompleted, first.Status)
	before, err := runner.GetStatus(ctx, first.RunID)
	require.NoError(t, err)

	again, err := runner.Resume(ctx, first.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, again.Status)
	assert.Equal(t, first.State, again.State)
	assert.Equal(t, int32(1), calls.Load())

	after, err := runner.GetStatus(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	patched, err := runner.Resume(ctx, first.RunID, graph.State{"count": 50})
	require.NoError(t, err)
	assert.Equal(t, 50, patched.State["count"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunner_FailureKeepsLastGoodCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var healthy atomic.Bool
	var drafts atomic.Int32
	g := counterGraph()
	g.AddNode(nodeA, "", func(ctx context.Context, s graph.State) (graph.State, error) {
		drafts.Add(1)
		return visit(nodeA)(ctx, s)
	})
	g.AddNode(nodeB, "", func(ctx context.Context, s graph.State) (graph.State, error) {
		if !healthy.Load() {
			return nil, errors.New("upstream unavailable")
		}
		return visit(nodeB)(ctx, s)
	})
	g.AddEdge(nodeA, nodeB)
	g.AddEdge(nodeB, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	runner, err := cg.NewRunner(memory.NewMemoryCheckpointStore())
	require.NoError(t, err)

	_, err = runner.Run(ctx, "run-fail", nil)
	var nodeErr *graph.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, nodeB, nodeErr.Node)

	info, err := runner.GetStatus(ctx, "run-fail")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, info.Status)
	assert.Equal(t, nodeB, info.Cursor)
	assert.Contains(t, info.Error, "upstream unavailable")

	state, err := runner.GetState(ctx, "run-fail")
	require.NoError(t, err)
	assert.Equal(t, []string{nodeA}, state["trail"])

	healthy.Store(true)
	res, err := runner.Resume(ctx, "run-fail", nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, []string{nodeA, nodeB}, res.State["trail"])
	assert.Equal(t, int32(1), drafts.Load(), "completed steps are not replayed")
}

func TestRunner_FileStoreRehydratesTypes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	build := func() *graph.CompiledGraph {
		g := graph.NewGraph(
			graph.Channel[string]("topic", graph.Replace),
			graph.Channel[[]section]("drafts", graph.Append),
			graph.Channel[int]("revision", graph.Replace),
		)
		g.AddNode("draft", "", func(_ context.Context, s graph.State) (graph.State, error) {
			return graph.State{
				"drafts":   section{Title: graph.Get[string](s, "topic")},
				"revision": graph.Get[int](s, "revision") + 1,
			}, nil
		})
		g.AddNode("publish", "", func(_ context.Context, s graph.State) (graph.State, error) {
			drafts, ok := graph.Lookup[[]section](s, "drafts")
			if !ok {
				return nil, errors.New("drafts not rehydrated")
			}
			return graph.State{"drafts": section{Title: "final", Body: drafts[0].Title}}, nil
		})
		g.AddEdge("draft", "publish")
		g.AddEdge("publish", graph.END)
		g.SetEntryPoint("draft")
		cg, err := g.Compile()
		require.NoError(t, err)
		return cg
	}

	fs, err := file.NewFileCheckpointStore(dir)
	require.NoError(t, err)
	runner, err := build().NewRunner(fs, graph.WithInterruptBefore("publish"))
	require.NoError(t, err)
	res, err := runner.Start(ctx, graph.State{"topic": "agents"})
	require.NoError(t, err)
	require.Equal(t, graph.StatusSuspended, res.Status)

	// A new process: fresh store handle and fresh runner.
	fs2, err := file.NewFileCheckpointStore(dir)
	require.NoError(t, err)
	runner2, err := build().NewRunner(fs2, graph.WithInterruptBefore("publish"))
	require.NoError(t, err)

	out, err := runner2.Resume(ctx, res.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, out.Status)
	assert.Equal(t, 1, out.State["revision"])
	assert.Equal(t, []section{{Title: "agents"}, {Title: "final", Body: "agents"}}, out.State["drafts"])
}

func TestRunner_RunLoadsOrCreates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner, err := reviewLoop(t, 1).NewRunner(memory.NewMemoryCheckpointStore(), graph.WithInterruptBefore(nodeB))
	require.NoError(t, err)

	res, err := runner.Run(ctx, "fixed", graph.State{"count": 0})
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.RunID)
	assert.Equal(t, graph.StatusSuspended, res.Status)

	res, err = runner.Run(ctx, "fixed", nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
}

func TestRunner_UpdateState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner, err := reviewLoop(t, 1).NewRunner(memory.NewMemoryCheckpointStore(), graph.WithInterruptBefore(nodeB))
	require.NoError(t, err)

	res, err := runner.Start(ctx, nil)
	require.NoError(t, err)

	state, err := runner.UpdateState(ctx, res.RunID, graph.State{"trail": "note"})
	require.NoError(t, err)
	assert.Equal(t, []string{nodeA, "note"}, state["trail"])

	info, err := runner.GetStatus(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuspended, info.Status, "updating state does not execute anything")

	_, err = runner.UpdateState(ctx, res.RunID, graph.State{"count": "x"})
	assert.ErrorIs(t, err, graph.ErrChannelType)

	out, err := runner.Resume(ctx, res.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{nodeA, "note", nodeB}, out.State["trail"])
}

func TestRunner_UnknownRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner, err := reviewLoop(t, 1).NewRunner(memory.NewMemoryCheckpointStore())
	require.NoError(t, err)

	_, err = runner.Resume(ctx, "missing", nil)
	assert.ErrorIs(t, err, graph.ErrRunNotFound)
	_, err = runner.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, graph.ErrRunNotFound)
}

func TestRunner_ListAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner, err := reviewLoop(t, 1).NewRunner(memory.NewMemoryCheckpointStore(),
		graph.WithInterruptBefore(nodeB),
		graph.WithMetadata(map[string]any{"owner": "tests"}))
	require.NoError(t, err)

	for _, id := range []string{"r1", "r2"} {
		_, err := runner.Run(ctx, id, nil)
		require.NoError(t, err)
	}

	runs, err := runner.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "tests", runs[0].Metadata["owner"])

	require.NoError(t, runner.Delete(ctx, "r1"))
	runs, err = runner.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].RunID)
}

func TestRunner_RejectsConcurrentUseOfRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	g := counterGraph()
	g.AddNode(nodeA, "", func(context.Context, graph.State) (graph.State, error) {
		close(entered)
		<-release
		return nil, nil
	})
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	runner, err := cg.NewRunner(memory.NewMemoryCheckpointStore())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx, "busy", nil)
		done <- err
	}()
	<-entered

	_, err = runner.Resume(ctx, "busy", nil)
	assert.ErrorIs(t, err, graph.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	cg := reviewLoop(t, 1)
	_, err := cg.NewRunner(nil)
	assert.Error(t, err)

	_, err = cg.NewRunner(memory.NewMemoryCheckpointStore(), graph.WithInterruptBefore("ghost"))
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

type failingStore struct {
	store.CheckpointStore
	failSaves bool
}

func (s *failingStore) Save(ctx context.Context, cp *store.Checkpoint) error {
	if s.failSaves {
		return errors.New("disk full")
	}
	return s.CheckpointStore.Save(ctx, cp)
}

func TestRunner_CheckpointErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &failingStore{CheckpointStore: memory.NewMemoryCheckpointStore(), failSaves: true}
	runner, err := reviewLoop(t, 1).NewRunner(st)
	require.NoError(t, err)

	_, err = runner.Start(ctx, nil)
	var cpErr *graph.CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, "save", cpErr.Op)

	var nodeErr *graph.NodeError
	assert.False(t, errors.As(err, &nodeErr))
}

func TestRunner_Listeners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu sync.Mutex
	var events []graph.NodeEvent
	collect := graph.ListenerFunc(func(_ context.Context, e graph.NodeEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	panicky := graph.ListenerFunc(func(context.Context, graph.NodeEvent) { panic("listener bug") })

	runner, err := reviewLoop(t, 1).NewRunner(memory.NewMemoryCheckpointStore(),
		graph.WithInterruptBefore(nodeB),
		graph.WithRunListeners(panicky, collect, graph.LogListener(nil)))
	require.NoError(t, err)

	res, err := runner.Start(ctx, nil)
	require.NoError(t, err)
	_, err = runner.Resume(ctx, res.RunID, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var types []graph.EventType
	for _, e := range events {
		assert.Equal(t, res.RunID, e.RunID)
		assert.Equal(t, "review", e.Graph)
		types = append(types, e.Type)
	}
	assert.Equal(t, []graph.EventType{
		graph.EventNodeStart, graph.EventNodeEnd, graph.EventInterrupt,
		graph.EventNodeStart, graph.EventNodeEnd, graph.EventRunEnd,
	}, types)
}
