package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/tool"
)

// Interview channels.
const (
	ChannelAnalyst     = "analyst"
	ChannelMessages    = "messages"
	ChannelContext     = "context"
	ChannelMaxNumTurns = "max_num_turns"
	ChannelInterview   = "interview"
)

// Interview nodes.
const (
	NodeAskQuestion         = "ask_question"
	NodeSearchWeb           = "search_web"
	NodeSearchKnowledgeBase = "search_knowledge_base"
	NodeAnswerQuestion      = "answer_question"
	NodeSaveInterview       = "save_interview"
	NodeWriteSection        = "write_section"
)

// ExpertName marks the messages written by the interviewed expert.
const ExpertName = "expert"

// InterviewChannels declares the state of one interview.
func InterviewChannels() []graph.ChannelSpec {
	return []graph.ChannelSpec{
		graph.Channel[Analyst](ChannelAnalyst, graph.Replace),
		graph.Channel[[]llm.Message](ChannelMessages, graph.Append),
		graph.Channel[[]string](ChannelContext, graph.Append),
		graph.Channel[int](ChannelMaxNumTurns, graph.Replace),
		graph.Channel[string](ChannelInterview, graph.Replace),
		graph.Channel[[]string](ChannelSections, graph.Append),
	}
}

type interviewer struct {
	cfg Config
}

// NewInterviewGraph builds the conversation loop between one analyst and an
// expert grounded on the configured retrievers. It ends by appending one report
// section to the sections channel.
func NewInterviewGraph(cfg Config) (*graph.CompiledGraph, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	iv := &interviewer{cfg: cfg}

	g := graph.NewGraph(InterviewChannels()...)
	g.SetName("interview")
	g.SetMaxConcurrency(cfg.Concurrency)
	g.AddNode(NodeAskQuestion, "Analyst asks the next question", iv.askQuestion, graph.Writes(ChannelMessages))
	g.AddNode(NodeSearchWeb, "Retrieve web documents for the last question", iv.search(cfg.Web), graph.Writes(ChannelContext))
	g.AddNode(NodeSearchKnowledgeBase, "Retrieve knowledge-base documents for the last question", iv.search(cfg.Knowledge), graph.Writes(ChannelContext))
	g.AddNode(NodeAnswerQuestion, "Expert answers from the retrieved context", iv.answerQuestion, graph.Writes(ChannelMessages))
	g.AddNode(NodeSaveInterview, "Render the interview transcript", saveInterview, graph.Writes(ChannelInterview))
	g.AddNode(NodeWriteSection, "Write the report section of this interview", iv.writeSection, graph.Writes(ChannelSections))

	g.SetEntryPoint(NodeAskQuestion)
	g.AddFanOut(NodeAskQuestion, searchBoth, NodeAnswerQuestion, NodeSearchWeb, NodeSearchKnowledgeBase)
	g.AddConditionalEdge(NodeAnswerQuestion, iv.routeMessages, NodeAskQuestion, NodeSaveInterview)
	g.AddEdge(NodeSaveInterview, NodeWriteSection)
	g.AddEdge(NodeWriteSection, graph.END)

	return g.Compile()
}

func (iv *interviewer) askQuestion(ctx context.Context, state graph.State) (graph.State, error) {
	analyst := graph.Get[Analyst](state, ChannelAnalyst)
	messages := graph.Get[[]llm.Message](state, ChannelMessages)

	system := questionInstructions(analyst.Persona(), iv.cfg.ClosingPhrase)
	question, err := llm.GenerateText(ctx, iv.cfg.Model, system, messages)
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}
	return graph.State{ChannelMessages: []llm.Message{llm.AI("", question)}}, nil
}

func searchBoth(context.Context, graph.State) ([]graph.Send, error) {
	return []graph.Send{{Node: NodeSearchWeb}, {Node: NodeSearchKnowledgeBase}}, nil
}

func (iv *interviewer) search(retriever tool.Retriever) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		messages := graph.Get[[]llm.Message](state, ChannelMessages)
		query, err := llm.GenerateStructured[SearchQuery](ctx, iv.cfg.Model, searchInstructions, messages)
		if err != nil {
			return nil, fmt.Errorf("generate search query: %w", err)
		}

		docs, err := retriever.Search(ctx, query.SearchQuery)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query.SearchQuery, err)
		}
		iv.cfg.Logger.Debug("search %q returned %d documents", query.SearchQuery, len(docs))
		if len(docs) == 0 {
			return nil, nil
		}
		return graph.State{ChannelContext: []string{tool.FormatDocuments(docs)}}, nil
	}
}

func (iv *interviewer) answerQuestion(ctx context.Context, state graph.State) (graph.State, error) {
	analyst := graph.Get[Analyst](state, ChannelAnalyst)
	messages := graph.Get[[]llm.Message](state, ChannelMessages)
	docs := graph.Get[[]string](state, ChannelContext)

	system := answerInstructions(analyst.Persona(), strings.Join(docs, documentSeparator))
	answer, err := llm.GenerateText(ctx, iv.cfg.Model, system, messages)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return graph.State{ChannelMessages: []llm.Message{llm.AI(ExpertName, answer)}}, nil
}

// routeMessages ends the interview once the expert answered max_num_turns
// times or the analyst closed the conversation before the last answer.
func (iv *interviewer) routeMessages(_ context.Context, state graph.State) (string, error) {
	messages := graph.Get[[]llm.Message](state, ChannelMessages)
	maxTurns, ok := graph.Lookup[int](state, ChannelMaxNumTurns)
	if !ok || maxTurns <= 0 {
		maxTurns = iv.cfg.MaxTurns
	}

	answers := 0
	for _, m := range messages {
		if m.Role == llm.RoleAI && m.Name == ExpertName {
			answers++
		}
	}
	if answers >= maxTurns {
		return NodeSaveInterview, nil
	}
	if len(messages) >= 2 && strings.Contains(messages[len(messages)-2].Content, iv.cfg.ClosingPhrase) {
		return NodeSaveInterview, nil
	}
	return NodeAskQuestion, nil
}

func saveInterview(_ context.Context, state graph.State) (graph.State, error) {
	messages := graph.Get[[]llm.Message](state, ChannelMessages)
	return graph.State{ChannelInterview: llm.BufferString(messages)}, nil
}

func (iv *interviewer) writeSection(ctx context.Context, state graph.State) (graph.State, error) {
	analyst := graph.Get[Analyst](state, ChannelAnalyst)
	docs := graph.Get[[]string](state, ChannelContext)

	system := sectionWriterInstructions(analyst.Description)
	prompt := "Use this source to write your section: " + strings.Join(docs, documentSeparator)
	section, err := llm.GenerateText(ctx, iv.cfg.Model, system, []llm.Message{llm.Human(prompt)})
	if err != nil {
		return nil, fmt.Errorf("write section for %s: %w", analyst.Name, err)
	}
	return graph.State{ChannelSections: []string{section}}, nil
}
