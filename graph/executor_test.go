package graph_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallnest/researchgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_Linear(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA))
	g.AddNode(nodeB, "", visit(nodeB))
	g.AddEdge(nodeA, nodeB)
	g.AddEdge(nodeB, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	out, err := cg.Invoke(context.Background(), graph.State{"count": 10})
	require.NoError(t, err)
	assert.Equal(t, 12, out["count"])
	assert.Equal(t, []string{nodeA, nodeB}, out["trail"])
}

func TestInvoke_RejectsUndeclaredInput(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA))
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), graph.State{"bogus": true})
	assert.ErrorIs(t, err, graph.ErrUndeclaredChannel)
}

func TestInvoke_NodeReceivesCopy(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", func(_ context.Context, s graph.State) (graph.State, error) {
		s["count"] = 99
		delete(s, "trail")
		return nil, nil
	})
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	out, err := cg.Invoke(context.Background(), graph.State{"count": 1, "trail": []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
	assert.Equal(t, []string{"x"}, out["trail"])
}

func TestInvoke_ConditionalLoop(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA))
	g.AddConditionalEdge(nodeA, func(_ context.Context, s graph.State) (string, error) {
		if graph.Get[int](s, "count") < 3 {
			return nodeA, nil
		}
		return graph.END, nil
	}, nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	out, err := cg.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, []string{nodeA, nodeA, nodeA}, out["trail"])
}

func TestInvoke_UndeclaredRoutingTarget(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA))
	g.AddNode(nodeB, "", visit(nodeB))
	g.AddConditionalEdge(nodeA, route(nodeC), nodeB, graph.END)
	g.AddEdge(nodeB, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrUndeclaredTarget)

	var routingErr *graph.RoutingError
	require.ErrorAs(t, err, &routingErr)
	assert.Equal(t, nodeA, routingErr.Node)
	assert.Equal(t, nodeC, routingErr.Target)
}

func TestInvoke_NodeErrorAndPanic(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	for name, fn := range map[string]graph.NodeFunc{
		"error": func(context.Context, graph.State) (graph.State, error) { return nil, boom },
		"panic": func(context.Context, graph.State) (graph.State, error) { panic("kaboom") },
	} {
		t.Run(name, func(t *testing.T) {
			g := counterGraph()
			g.AddNode(nodeA, "", fn)
			g.AddEdge(nodeA, graph.END)
			g.SetEntryPoint(nodeA)
			cg, err := g.Compile()
			require.NoError(t, err)

			_, err = cg.Invoke(context.Background(), nil)
			var nodeErr *graph.NodeError
			require.ErrorAs(t, err, &nodeErr)
			assert.Equal(t, nodeA, nodeErr.Node)
			if name == "panic" {
				assert.ErrorIs(t, err, graph.ErrNodePanic)
			} else {
				assert.ErrorIs(t, err, boom)
			}
		})
	}
}

func TestInvoke_WritesRestriction(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA), graph.Writes("count"))
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, graph.ErrWriteNotAllowed)
}

func TestInvoke_TypeMismatchFromNode(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", func(context.Context, graph.State) (graph.State, error) {
		return graph.State{"count": "many"}, nil
	})
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, graph.ErrChannelType)
	var nodeErr *graph.NodeError
	assert.ErrorAs(t, err, &nodeErr)
}

func TestInvoke_RecursionLimit(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA))
	g.AddConditionalEdge(nodeA, route(nodeA), nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	g.SetRecursionLimit(5)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, graph.ErrRecursionLimit)
}

func TestInvoke_ContextCancelled(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", visit(nodeA))
	g.AddEdge(nodeA, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cg.Invoke(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// fanOutGraph dispatches one "worker" branch per item and joins at "join".
func fanOutGraph(t *testing.T, worker graph.NodeFunc, items ...string) *graph.CompiledGraph {
	t.Helper()

	g := graph.NewGraph(
		graph.Channel[[]string]("items", graph.Replace),
		graph.Channel[string]("item", graph.Replace),
		graph.Channel[[]string]("results", graph.Append),
		graph.Channel[[]string]("log", graph.Append),
		graph.Channel[string]("secret", graph.Replace, graph.Private()),
	)
	g.AddNode("start", "", graph.Passthrough)
	g.AddNode("worker", "", worker)
	g.AddNode("join", "", func(_ context.Context, s graph.State) (graph.State, error) {
		return graph.State{"log": "joined"}, nil
	})
	g.AddFanOut("start", func(_ context.Context, s graph.State) ([]graph.Send, error) {
		var sends []graph.Send
		for _, it := range graph.Get[[]string](s, "items") {
			sends = append(sends, graph.Send{Node: "worker", Seed: graph.State{"item": it}})
		}
		return sends, nil
	}, "join", "worker")
	g.AddEdge("join", graph.END)
	g.SetEntryPoint("start")
	cg, err := g.Compile()
	require.NoError(t, err)
	return cg
}

func TestFanOut_MergesInDispatchOrder(t *testing.T) {
	t.Parallel()

	worker := func(_ context.Context, s graph.State) (graph.State, error) {
		item := graph.Get[string](s, "item")
		// Later items finish first.
		switch item {
		case "first":
			time.Sleep(30 * time.Millisecond)
		case "second":
			time.Sleep(10 * time.Millisecond)
		}
		return graph.State{"results": []string{"done:" + item}}, nil
	}
	cg := fanOutGraph(t, worker)

	out, err := cg.Invoke(context.Background(), graph.State{"items": []string{"first", "second", "third"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"done:first", "done:second", "done:third"}, out["results"])
	assert.Equal(t, []string{"joined"}, out["log"])
}

func TestFanOut_BranchIsolation(t *testing.T) {
	t.Parallel()

	worker := func(ctx context.Context, s graph.State) (graph.State, error) {
		if _, ok := s["secret"]; ok {
			return nil, errors.New("private channel leaked into branch")
		}
		// Mutating inherited values must not affect siblings.
		items := graph.Get[[]string](s, "items")
		items[0] = "mutated"

		b, ok := graph.BranchFromContext(ctx)
		if !ok || b.Source != "start" || b.Node != "worker" {
			return nil, fmt.Errorf("unexpected branch %+v", b)
		}
		return graph.State{"results": []string{fmt.Sprintf("%d:%s", b.Index, graph.Get[string](s, "item"))}}, nil
	}
	cg := fanOutGraph(t, worker)

	out, err := cg.Invoke(context.Background(), graph.State{
		"items":  []string{"x", "y"},
		"secret": "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0:x", "1:y"}, out["results"])
	assert.Equal(t, []string{"x", "y"}, out["items"])
	assert.Equal(t, "s3cret", out["secret"])
}

func TestFanOut_FailFast(t *testing.T) {
	t.Parallel()

	var finished atomic.Int32
	worker := func(ctx context.Context, s graph.State) (graph.State, error) {
		if graph.Get[string](s, "item") == "bad" {
			return nil, errors.New("bad item")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		finished.Add(1)
		return graph.State{"results": "ok"}, nil
	}
	cg := fanOutGraph(t, worker)

	start := time.Now()
	_, err := cg.Invoke(context.Background(), graph.State{"items": []string{"slow", "bad", "slow"}})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "siblings must be cancelled")
	assert.Zero(t, finished.Load())

	var branchErr *graph.BranchError
	require.ErrorAs(t, err, &branchErr)
	assert.Equal(t, "start", branchErr.Source)
	assert.Equal(t, 1, branchErr.Index)
	assert.Equal(t, "worker", branchErr.Node)
}

func TestFanOut_EmptyDispatchGoesToJoin(t *testing.T) {
	t.Parallel()

	cg := fanOutGraph(t, visit("worker"))
	out, err := cg.Invoke(context.Background(), graph.State{"items": []string{}})
	require.NoError(t, err)
	assert.Nil(t, out["results"])
	assert.Equal(t, []string{"joined"}, out["log"])
}

func TestFanOut_UndeclaredBranch(t *testing.T) {
	t.Parallel()

	g := counterGraph()
	g.AddNode(nodeA, "", graph.Passthrough)
	g.AddNode(nodeB, "", visit(nodeB))
	g.AddNode(nodeC, "", graph.Passthrough)
	g.AddFanOut(nodeA, func(context.Context, graph.State) ([]graph.Send, error) {
		return []graph.Send{{Node: nodeC}}, nil
	}, nodeC, nodeB)
	g.AddEdge(nodeC, graph.END)
	g.SetEntryPoint(nodeA)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, graph.ErrUndeclaredTarget)
}

func TestFanOut_MaxConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	worker := func(context.Context, graph.State) (graph.State, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	g := graph.NewGraph(graph.Channel[string]("item", graph.Replace))
	g.AddNode("start", "", graph.Passthrough)
	g.AddNode("worker", "", worker)
	g.AddNode("join", "", graph.Passthrough)
	g.AddFanOut("start", func(context.Context, graph.State) ([]graph.Send, error) {
		sends := make([]graph.Send, 6)
		for i := range sends {
			sends[i] = graph.Send{Node: "worker"}
		}
		return sends, nil
	}, "join", "worker")
	g.AddEdge("join", graph.END)
	g.SetEntryPoint("start")
	g.SetMaxConcurrency(2)
	cg, err := g.Compile()
	require.NoError(t, err)

	_, err = cg.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSubgraph_ReturnsOnlyItsUpdates(t *testing.T) {
	t.Parallel()

	sub := graph.NewGraph(
		graph.Channel[string]("topic", graph.Replace),
		graph.Channel[[]string]("notes", graph.Append),
		graph.Channel[[]string]("sections", graph.Append),
	)
	sub.SetName("writer")
	sub.AddNode("draft", "", func(_ context.Context, s graph.State) (graph.State, error) {
		return graph.State{"notes": "draft about " + graph.Get[string](s, "topic")}, nil
	})
	sub.AddNode("publish", "", func(_ context.Context, s graph.State) (graph.State, error) {
		return graph.State{"sections": fmt.Sprintf("%s (%d notes)", graph.Get[string](s, "topic"), len(graph.Get[[]string](s, "notes")))}, nil
	})
	sub.AddEdge("draft", "publish")
	sub.AddEdge("publish", graph.END)
	sub.SetEntryPoint("draft")
	subCompiled, err := sub.Compile()
	require.NoError(t, err)

	parent := graph.NewGraph(
		graph.Channel[string]("topic", graph.Replace),
		graph.Channel[[]string]("sections", graph.Append),
	)
	parent.AddSubgraph("write", "", subCompiled)
	parent.AddEdge("write", graph.END)
	parent.SetEntryPoint("write")
	cg, err := parent.Compile()
	require.NoError(t, err)

	out, err := cg.Invoke(context.Background(), graph.State{
		"topic":    "graphs",
		"sections": []string{"existing"},
	})
	require.NoError(t, err)
	// The inherited section is not appended twice.
	assert.Equal(t, []string{"existing", "graphs (1 notes)"}, out["sections"])
	assert.NotContains(t, out, "notes")
}

func TestSubgraph_AsFanOutBranch(t *testing.T) {
	t.Parallel()

	sub := graph.NewGraph(
		graph.Channel[string]("name", graph.Replace),
		graph.Channel[[]string]("turns", graph.Append),
		graph.Channel[[]string]("sections", graph.Append),
	)
	sub.AddNode("talk", "", func(_ context.Context, s graph.State) (graph.State, error) {
		return graph.State{"turns": "hello " + graph.Get[string](s, "name")}, nil
	})
	sub.AddNode("summarize", "", func(_ context.Context, s graph.State) (graph.State, error) {
		turns := graph.Get[[]string](s, "turns")
		return graph.State{"sections": turns[len(turns)-1]}, nil
	})
	sub.AddEdge("talk", "summarize")
	sub.AddEdge("summarize", graph.END)
	sub.SetEntryPoint("talk")
	interview, err := sub.Compile()
	require.NoError(t, err)

	parent := graph.NewGraph(
		graph.Channel[[]string]("names", graph.Replace),
		graph.Channel[[]string]("sections", graph.Append),
	)
	parent.AddNode("start", "", graph.Passthrough)
	parent.AddSubgraph("interview", "", interview, graph.SubgraphOutputs("sections"))
	parent.AddNode("report", "", graph.Passthrough)
	parent.AddFanOut("start", func(_ context.Context, s graph.State) ([]graph.Send, error) {
		var sends []graph.Send
		for _, n := range graph.Get[[]string](s, "names") {
			// "name" and "turns" exist only in the sub-graph.
			sends = append(sends, graph.Send{Node: "interview", Seed: graph.State{"name": n, "turns": []string{"opening"}}})
		}
		return sends, nil
	}, "report", "interview")
	parent.AddEdge("report", graph.END)
	parent.SetEntryPoint("start")
	cg, err := parent.Compile()
	require.NoError(t, err)

	out, err := cg.Invoke(context.Background(), graph.State{"names": []string{"ada", "alan"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello ada", "hello alan"}, out["sections"])
}

func TestSubgraph_BadOutputs(t *testing.T) {
	t.Parallel()

	sub := counterGraph()
	sub.AddNode(nodeA, "", visit(nodeA))
	sub.AddEdge(nodeA, graph.END)
	sub.SetEntryPoint(nodeA)
	subCompiled, err := sub.Compile()
	require.NoError(t, err)

	g := graph.NewGraph(graph.Channel[int]("count", graph.Replace))
	g.AddSubgraph("inner", "", subCompiled, graph.SubgraphOutputs("trail"))
	g.AddEdge("inner", graph.END)
	g.SetEntryPoint("inner")
	_, err = g.Compile()
	assert.ErrorIs(t, err, graph.ErrUndeclaredChannel)
}

func TestSubgraph_InputMapper(t *testing.T) {
	t.Parallel()

	sub := graph.NewGraph(graph.Channel[int]("n", graph.Replace))
	sub.AddNode("double", "", func(_ context.Context, s graph.State) (graph.State, error) {
		return graph.State{"n": graph.Get[int](s, "n") * 2}, nil
	})
	sub.AddEdge("double", graph.END)
	sub.SetEntryPoint("double")
	doubler, err := sub.Compile()
	require.NoError(t, err)

	g := graph.NewGraph(
		graph.Channel[int]("count", graph.Replace),
		graph.Channel[int]("n", graph.Replace),
	)
	g.AddSubgraph("double", "", doubler, graph.SubgraphInput(func(s graph.State) graph.State {
		return graph.State{"n": graph.Get[int](s, "count")}
	}))
	g.AddEdge("double", graph.END)
	g.SetEntryPoint("double")
	cg, err := g.Compile()
	require.NoError(t, err)

	out, err := cg.Invoke(context.Background(), graph.State{"count": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, out["n"])
}
