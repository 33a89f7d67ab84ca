// Package graph provides the graph construction and execution engine for researchgraph.
//
// A graph threads a shared State through named nodes. The state is a set of declared
// channels, each with a merge policy that decides how a node's partial update is folded
// into the current value. Edges are static, conditional (a router picks one declared
// target) or fan-out (a dispatcher emits N branches that run concurrently and are joined
// at a single successor).
//
// # Core Concepts
//
// ## Channels
// Every key a node may write is declared up front with Channel. Replace overwrites the
// current value, Append concatenates slices. Merges are type checked against the
// declared Go type and fail fast.
//
// ## Nodes and Edges
// Nodes are functions that receive a copy of the state and return a partial update.
// Each node has exactly one outgoing edge kind. Nodes that are only targets of a
// fan-out need no outgoing edge: a branch runs its node once and its update is
// collected at the barrier.
//
// ## Sub-graphs
// A compiled graph can be registered as a node of another graph with AddSubgraph,
// which gives fan-out branches multi-step, looping bodies.
//
// ## Runs and Checkpoints
// A Runner executes a compiled graph against a store.CheckpointStore. After every
// step the (state, cursor) pair is saved, so a run can suspend before a configured
// node, be inspected or patched by a human, and resume later, possibly in another
// process.
//
// # Example Usage
//
//	g := graph.NewGraph(
//		graph.Channel[string]("topic", graph.Replace),
//		graph.Channel[[]string]("notes", graph.Append),
//	)
//
//	g.AddNode("research", "collect notes", func(ctx context.Context, s graph.State) (graph.State, error) {
//		return graph.State{"notes": []string{"note about " + s["topic"].(string)}}, nil
//	})
//	g.AddNode("review", "human review point", graph.Passthrough)
//	g.AddEdge("research", "review")
//	g.AddEdge("review", graph.END)
//	g.SetEntryPoint("research")
//
//	compiled, err := g.Compile()
//	if err != nil {
//		return err
//	}
//
//	runner, err := compiled.NewRunner(memory.NewMemoryCheckpointStore(),
//		graph.WithInterruptBefore("review"))
//	if err != nil {
//		return err
//	}
//
//	res, err := runner.Start(ctx, graph.State{"topic": "solar"})
//	// res.Status == graph.StatusSuspended, res.Next == "review"
//
//	res, err = runner.Resume(ctx, res.RunID, nil)
//	// res.Status == graph.StatusCompleted
package graph
