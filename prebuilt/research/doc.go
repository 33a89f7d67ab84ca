// Package research implements a multi-analyst deep research pipeline on top of
// the graph package.
//
// A run generates a set of analyst personas for a topic, optionally pauses for a
// human to review them, interviews an expert once per analyst in parallel and
// writes the findings up as a Markdown report with an introduction, a body, a
// conclusion and a consolidated source list.
//
// Each interview is itself a graph (see NewInterviewGraph): the analyst asks a
// question, the web and knowledge-base retrievers are searched concurrently, the
// expert answers from the retrieved documents only, and the loop continues until
// the turn budget is spent or the analyst says the closing phrase.
//
//	web, err := tool.NewTavilySearch("") // TAVILY_API_KEY
//	pipeline, err := research.New(research.Config{
//		Model:     model,
//		Web:       web,
//		Knowledge: tool.NewWikipedia(),
//	})
//	runner, err := pipeline.NewRunner(fileStore, graph.WithInterruptBefore(research.NodeHumanFeedback))
//	res, err := runner.Start(ctx, research.Input("graph-based agent runtimes", 3))
//	// inspect res.State[research.ChannelAnalysts], then approve:
//	res, err = runner.Resume(ctx, res.RunID, research.Feedback(""))
//	report := graph.Get[string](res.State, research.ChannelFinalReport)
package research
