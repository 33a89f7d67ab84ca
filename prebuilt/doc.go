// Package prebuilt holds ready-to-run pipelines built on the graph package.
//
// # Available Pipelines
//
// ## research
// Multi-analyst deep research. Analyst personas are generated for a topic and
// optionally reviewed by a human, every analyst then interviews an expert in
// parallel (web search and knowledge base lookups fan out per question), and the
// memos are consolidated into a cited Markdown report.
//
//	cg, err := research.New(research.Config{Model: model, Web: web, Knowledge: wiki})
//	runner, err := cg.NewRunner(store, graph.WithInterruptBefore(research.NodeHumanFeedback))
//	res, err := runner.Start(ctx, research.Input("running agents in Go", 3))
//	res, err = runner.Resume(ctx, res.RunID, research.Feedback(""))
//
// ## travel
// Coordinator driven travel planning. A coordinator routes between five
// specialists and a search tool node until the plan can be compiled.
//
//	cg, err := travel.New(travel.Config{Model: model, Search: search})
//	input, err := travel.Input(travel.Request{Destination: "Lisbon", Duration: 4})
//	out, err := cg.Invoke(ctx, input)
//	plan, err := travel.ParsePlan(graph.Get[string](out, travel.ChannelFinalPlan))
//
// Both pipelines take the model as a langchaingo llms.Model, so any provider
// langchaingo supports can drive them, and llm/llmtest can replace it in tests.
package prebuilt
