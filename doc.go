// ResearchGraph - graph-based agent orchestration for Go
//
// ResearchGraph runs LLM pipelines as directed graphs over typed state channels.
// Nodes return partial updates that are merged with each channel's policy,
// conditional edges route on the merged state, and fan-out edges run branches
// concurrently before joining. Runs can be checkpointed after every step,
// suspended before review nodes and resumed later, also from another process.
//
// # Quick Start
//
//	g := graph.NewGraph(
//		graph.Channel[string]("question", graph.Replace),
//		graph.Channel[[]string]("notes", graph.Append),
//	)
//	g.AddNode("research", "collect notes", research)
//	g.AddNode("answer", "write the answer", answer)
//	g.AddEdge("research", "answer")
//	g.AddEdge("answer", graph.END)
//	g.SetEntryPoint("research")
//
//	cg, err := g.Compile()
//	if err != nil {
//		return err
//	}
//	out, err := cg.Invoke(ctx, graph.State{"question": "why channels?"})
//
// # Key Features
//
//   - Channels: Replace and Append merge policies, private per-branch channels
//   - Fan-out: Send based parallel branches with bounded concurrency
//   - Sub-graphs: compiled graphs used as nodes with their own channels
//   - Checkpointing: memory, file, redis, postgres and sqlite stores
//   - Human in the loop: interrupts, state patches and resume
//   - Events: node listeners, logging and NATS publishing
//   - Visualization: Mermaid flowcharts of compiled graphs
//
// # Package Structure
//
// ## Core Packages
//
// ### graph/
// Graph builder, compiler, executor and checkpointed Runner.
//
// ### llm/
// Message history, text and structured generation over langchaingo models,
// an OpenAI compatible provider and a scripted fake for tests.
//
// ### tool/
// Retrievers for Tavily, Brave, Wikipedia, fetched web pages and in-memory corpora.
//
// ### log/
// The leveled Logger used across the module, with a golog backend.
//
// ## Storage Packages
//
// ### store/
// The CheckpointStore interface and its memory, file, redis, postgres and sqlite
// implementations. store/backend opens one by name.
//
// ## Adapter Packages
//
// ### adapter/natsevents
// Publishes node events of every run to NATS.
//
// ## Pipelines
//
// ### prebuilt/research
// Multi-analyst deep research with human review of the analysts.
//
// ### prebuilt/travel
// Coordinator driven multi-agent travel planning.
//
// ## Showcases
//
//   - showcases/deep_research: terminal client for the research pipeline
//   - showcases/travel_planner: HTTP service running travel plans in the background
package researchgraph // import "github.com/smallnest/researchgraph"
