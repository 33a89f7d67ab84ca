package research

import (
	"context"
	"errors"
	"strings"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/tool"
	"github.com/tmc/langchaingo/llms"
)

// Research channels.
const (
	ChannelTopic        = "topic"
	ChannelMaxAnalysts  = "max_analysts"
	ChannelFeedback     = "human_analyst_feedback"
	ChannelAnalysts     = "analysts"
	ChannelSections     = "sections"
	ChannelIntroduction = "introduction"
	ChannelContent      = "content"
	ChannelConclusion   = "conclusion"
	ChannelFinalReport  = "final_report"
)

// Research nodes.
const (
	NodeCreateAnalysts     = "create_analysts"
	NodeHumanFeedback      = "human_feedback"
	NodeInitiateInterviews = "initiate_interviews"
	NodeConductInterview   = "conduct_interview"
	NodeWriteSections      = "write_sections"
	NodeWriteReport        = "write_report"
	NodeWriteIntroduction  = "write_introduction"
	NodeWriteConclusion    = "write_conclusion"
	NodeFinalizeReport     = "finalize_report"
)

const documentSeparator = "\n\n---\n\n"

// Config configures the deep research pipeline.
type Config struct {
	// Model writes analysts, questions, answers and the report.
	Model llms.Model

	// Web and Knowledge are searched in parallel for every interview question.
	Web       tool.Retriever
	Knowledge tool.Retriever

	// MaxAnalysts is used when the input carries no max_analysts. Default 3.
	MaxAnalysts int

	// MaxTurns is the number of expert answers per interview. Default 2.
	MaxTurns int

	// ClosingPhrase lets the analyst end an interview early.
	// Default DefaultClosingPhrase.
	ClosingPhrase string

	// Concurrency bounds parallel interviews and searches. Zero means unbounded.
	Concurrency int

	Logger log.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.Model == nil {
		return c, errors.New("model is required")
	}
	if c.Web == nil || c.Knowledge == nil {
		return c, errors.New("web and knowledge retrievers are required")
	}
	if c.MaxAnalysts <= 0 {
		c.MaxAnalysts = 3
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 2
	}
	if c.ClosingPhrase == "" {
		c.ClosingPhrase = DefaultClosingPhrase
	}
	if c.Logger == nil {
		c.Logger = log.GetDefaultLogger()
	}
	return c, nil
}

// Channels declares the state of a research run.
func Channels() []graph.ChannelSpec {
	return []graph.ChannelSpec{
		graph.Channel[string](ChannelTopic, graph.Replace),
		graph.Channel[int](ChannelMaxAnalysts, graph.Replace),
		graph.Channel[string](ChannelFeedback, graph.Replace),
		graph.Channel[[]Analyst](ChannelAnalysts, graph.Replace),
		graph.Channel[[]string](ChannelSections, graph.Append),
		graph.Channel[string](ChannelIntroduction, graph.Replace),
		graph.Channel[string](ChannelContent, graph.Replace),
		graph.Channel[string](ChannelConclusion, graph.Replace),
		graph.Channel[string](ChannelFinalReport, graph.Replace),
	}
}

// Input is the initial state of a research run on topic.
func Input(topic string, maxAnalysts int) graph.State {
	s := graph.State{ChannelTopic: topic}
	if maxAnalysts > 0 {
		s[ChannelMaxAnalysts] = maxAnalysts
	}
	return s
}

// Feedback is the Resume patch for a run suspended before NodeHumanFeedback.
// Empty feedback approves the analysts and starts the interviews; anything else
// regenerates them.
func Feedback(text string) graph.State {
	return graph.State{ChannelFeedback: strings.TrimSpace(text)}
}

type researcher struct {
	cfg Config
}

// New builds the deep research graph:
//
//	create_analysts -> human_feedback -> (create_analysts | initiate_interviews)
//	initiate_interviews ==> conduct_interview x analysts -> write_sections
//	write_sections ==> write_report, write_introduction, write_conclusion -> finalize_report
//
// Run it with graph.WithInterruptBefore(NodeHumanFeedback) to review the analysts
// before the interviews start.
func New(cfg Config) (*graph.CompiledGraph, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	interview, err := NewInterviewGraph(cfg)
	if err != nil {
		return nil, err
	}
	r := &researcher{cfg: cfg}

	g := graph.NewGraph(Channels()...)
	g.SetName("deep-research")
	g.SetMaxConcurrency(cfg.Concurrency)

	g.AddNode(NodeCreateAnalysts, "Generate analyst personas for the topic", r.createAnalysts,
		graph.Writes(ChannelAnalysts, ChannelFeedback))
	g.AddNode(NodeHumanFeedback, "Review point for the generated analysts", graph.Passthrough)
	g.AddNode(NodeInitiateInterviews, "Start one interview per analyst", graph.Passthrough)
	g.AddSubgraph(NodeConductInterview, "Interview an expert and write a section", interview,
		graph.SubgraphOutputs(ChannelSections))
	g.AddNode(NodeWriteSections, "Collect the interview sections", graph.Passthrough)
	g.AddNode(NodeWriteReport, "Consolidate the sections into the report body", r.writeReport,
		graph.Writes(ChannelContent))
	g.AddNode(NodeWriteIntroduction, "Write the report introduction", r.writeIntroConclusion(writeIntroPrompt, ChannelIntroduction),
		graph.Writes(ChannelIntroduction))
	g.AddNode(NodeWriteConclusion, "Write the report conclusion", r.writeIntroConclusion(writeConclusionPrompt, ChannelConclusion),
		graph.Writes(ChannelConclusion))
	g.AddNode(NodeFinalizeReport, "Assemble the final report", finalizeReport,
		graph.Writes(ChannelFinalReport))

	g.SetEntryPoint(NodeCreateAnalysts)
	g.AddEdge(NodeCreateAnalysts, NodeHumanFeedback)
	g.AddConditionalEdge(NodeHumanFeedback, routeFeedback, NodeCreateAnalysts, NodeInitiateInterviews)
	g.AddFanOut(NodeInitiateInterviews, r.initiateAllInterviews, NodeWriteSections, NodeConductInterview)
	g.AddFanOut(NodeWriteSections, writeAll, NodeFinalizeReport,
		NodeWriteReport, NodeWriteIntroduction, NodeWriteConclusion)
	g.AddEdge(NodeFinalizeReport, graph.END)

	return g.Compile()
}

func (r *researcher) createAnalysts(ctx context.Context, state graph.State) (graph.State, error) {
	topic := graph.Get[string](state, ChannelTopic)
	feedback := graph.Get[string](state, ChannelFeedback)
	maxAnalysts := graph.Get[int](state, ChannelMaxAnalysts)
	if maxAnalysts <= 0 {
		maxAnalysts = r.cfg.MaxAnalysts
	}

	system := analystInstructions(topic, feedback, maxAnalysts)
	p, err := llm.GenerateStructured[Perspectives](ctx, r.cfg.Model, system,
		[]llm.Message{llm.Human(generateAnalystsPrompt)})
	if err != nil {
		return nil, err
	}

	analysts := p.Analysts
	if len(analysts) > maxAnalysts {
		r.cfg.Logger.Warn("model returned %d analysts, keeping %d", len(analysts), maxAnalysts)
		analysts = analysts[:maxAnalysts]
	}
	r.cfg.Logger.Info("created %d analysts for %q", len(analysts), topic)

	// Feedback is consumed here so an unattended run does not loop.
	return graph.State{ChannelAnalysts: analysts, ChannelFeedback: ""}, nil
}

func routeFeedback(_ context.Context, state graph.State) (string, error) {
	if strings.TrimSpace(graph.Get[string](state, ChannelFeedback)) != "" {
		return NodeCreateAnalysts, nil
	}
	return NodeInitiateInterviews, nil
}

func (r *researcher) initiateAllInterviews(_ context.Context, state graph.State) ([]graph.Send, error) {
	topic := graph.Get[string](state, ChannelTopic)
	analysts := graph.Get[[]Analyst](state, ChannelAnalysts)

	sends := make([]graph.Send, 0, len(analysts))
	for _, a := range analysts {
		sends = append(sends, graph.Send{Node: NodeConductInterview, Seed: graph.State{
			ChannelAnalyst:     a,
			ChannelMessages:    []llm.Message{llm.Human(openingQuestion(topic))},
			ChannelMaxNumTurns: r.cfg.MaxTurns,
		}})
	}
	return sends, nil
}

func writeAll(context.Context, graph.State) ([]graph.Send, error) {
	return []graph.Send{{Node: NodeWriteReport}, {Node: NodeWriteIntroduction}, {Node: NodeWriteConclusion}}, nil
}

func (r *researcher) writeReport(ctx context.Context, state graph.State) (graph.State, error) {
	topic := graph.Get[string](state, ChannelTopic)
	sections := graph.Get[[]string](state, ChannelSections)

	system := reportWriterInstructions(topic, strings.Join(sections, "\n\n"))
	content, err := llm.GenerateText(ctx, r.cfg.Model, system, []llm.Message{llm.Human(writeReportPrompt)})
	if err != nil {
		return nil, err
	}
	return graph.State{ChannelContent: content}, nil
}

func (r *researcher) writeIntroConclusion(prompt, channel string) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		topic := graph.Get[string](state, ChannelTopic)
		sections := graph.Get[[]string](state, ChannelSections)

		system := introConclusionInstructions(topic, strings.Join(sections, "\n\n"))
		text, err := llm.GenerateText(ctx, r.cfg.Model, system, []llm.Message{llm.Human(prompt)})
		if err != nil {
			return nil, err
		}
		return graph.State{channel: text}, nil
	}
}
