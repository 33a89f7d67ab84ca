package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/tool"
	"github.com/tmc/langchaingo/llms"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Channels of a planning run.
const (
	ChannelRequest        = "request"
	ChannelMessages       = "messages"
	ChannelCurrentAgent   = "current_agent"
	ChannelAgentOutputs   = "agent_outputs"
	ChannelIterationCount = "iteration_count"
	ChannelFinalPlan      = "final_plan"
)

// Agents and nodes.
const (
	AgentCoordinator      = "coordinator"
	AgentTravelAdvisor    = "travel_advisor"
	AgentWeatherAnalyst   = "weather_analyst"
	AgentBudgetOptimizer  = "budget_optimizer"
	AgentLocalExpert      = "local_expert"
	AgentItineraryPlanner = "itinerary_planner"

	NodeTools       = "tools"
	NodeCompilePlan = "compile_plan"
)

// Specialists in the order the coordinator falls back to them.
var Specialists = []string{
	AgentTravelAdvisor,
	AgentWeatherAnalyst,
	AgentBudgetOptimizer,
	AgentLocalExpert,
	AgentItineraryPlanner,
}

var specialistDescriptions = map[string]string{
	AgentTravelAdvisor:    "Destination expertise and attraction recommendations",
	AgentWeatherAnalyst:   "Weather forecast and weather-aware activity planning",
	AgentBudgetOptimizer:  "Cost analysis and money-saving strategies",
	AgentLocalExpert:      "Local insights and cultural tips",
	AgentItineraryPlanner: "Day-by-day schedule and logistics",
}

// Config configures the travel planner.
type Config struct {
	Model llms.Model

	// Search answers the specialists' search requests.
	Search tool.Retriever

	// MaxIterations caps the coordinator turns before the plan is compiled
	// with whatever has been gathered. Default 10.
	MaxIterations int

	Logger log.Logger

	// Now stamps agent outputs. Default time.Now.
	Now func() time.Time
}

// Channels declares the state of a planning run.
func Channels() []graph.ChannelSpec {
	return []graph.ChannelSpec{
		graph.Channel[Request](ChannelRequest, graph.Replace),
		graph.Channel[[]llm.Message](ChannelMessages, graph.Append),
		graph.Channel[string](ChannelCurrentAgent, graph.Replace),
		graph.Channel[[]AgentOutput](ChannelAgentOutputs, graph.Append),
		graph.Channel[int](ChannelIterationCount, graph.Replace),
		graph.Channel[string](ChannelFinalPlan, graph.Replace),
	}
}

// Input validates req and returns the initial state of a planning run.
func Input(req Request) (graph.State, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return graph.State{
		ChannelRequest:  req,
		ChannelMessages: []llm.Message{llm.Human("Plan a trip with these requirements: " + string(raw))},
	}, nil
}

type planner struct {
	cfg Config
}

// New builds the coordinator-driven planning graph:
//
//	coordinator -> (specialist | tools | compile_plan)
//	specialist  -> (tools | coordinator)
//	tools       -> coordinator
//	compile_plan -> END
func New(cfg Config) (*graph.CompiledGraph, error) {
	if cfg.Model == nil {
		return nil, errors.New("model is required")
	}
	if cfg.Search == nil {
		return nil, errors.New("search retriever is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetDefaultLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &planner{cfg: cfg}

	g := graph.NewGraph(Channels()...)
	g.SetName("travel-planner")
	// Each coordinator turn takes at most three steps.
	g.SetRecursionLimit(cfg.MaxIterations*3 + 2)

	g.AddNode(AgentCoordinator, "Decide which agent works next", p.coordinator,
		graph.Writes(ChannelMessages, ChannelCurrentAgent, ChannelIterationCount))
	for _, agent := range Specialists {
		g.AddNode(agent, specialistDescriptions[agent], p.specialist(agent),
			graph.Writes(ChannelMessages, ChannelCurrentAgent, ChannelAgentOutputs))
		g.AddConditionalEdge(agent, routeAgent, NodeTools, AgentCoordinator)
	}
	g.AddNode(NodeTools, "Run the requested search", p.tools, graph.Writes(ChannelMessages))
	g.AddNode(NodeCompilePlan, "Compile the specialist outputs into a plan", p.compilePlan,
		graph.Writes(ChannelFinalPlan))

	g.SetEntryPoint(AgentCoordinator)
	g.AddConditionalEdge(AgentCoordinator, p.routeCoordinator,
		append([]string{NodeTools, NodeCompilePlan}, Specialists...)...)
	g.AddEdge(NodeTools, AgentCoordinator)
	g.AddEdge(NodeCompilePlan, graph.END)

	return g.Compile()
}

func lastN(msgs []llm.Message, n int) []llm.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func (p *planner) coordinator(ctx context.Context, state graph.State) (graph.State, error) {
	req := graph.Get[Request](state, ChannelRequest)
	outputs := graph.Get[[]AgentOutput](state, ChannelAgentOutputs)
	messages := graph.Get[[]llm.Message](state, ChannelMessages)

	reply, err := llm.GenerateText(ctx, p.cfg.Model, coordinatorPrompt(req, formatOutputs(outputs)), lastN(messages, 3))
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	return graph.State{
		ChannelMessages:       []llm.Message{llm.AI(AgentCoordinator, reply)},
		ChannelCurrentAgent:   AgentCoordinator,
		ChannelIterationCount: graph.Get[int](state, ChannelIterationCount) + 1,
	}, nil
}

func (p *planner) specialist(agent string) graph.NodeFunc {
	prompt := specialistPrompts[agent]
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		req := graph.Get[Request](state, ChannelRequest)
		outputs := graph.Get[[]AgentOutput](state, ChannelAgentOutputs)
		messages := graph.Get[[]llm.Message](state, ChannelMessages)

		consulted := strings.Join(latestOutputs(outputs).keys(), ", ")
		if consulted == "" {
			consulted = "none"
		}
		reply, err := llm.GenerateText(ctx, p.cfg.Model, prompt(req, consulted), lastN(messages, 2))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", agent, err)
		}

		status := StatusCompleted
		if strings.Contains(reply, SearchMarker) {
			status = StatusNeedsSearch
		}
		return graph.State{
			ChannelMessages:     []llm.Message{llm.AI(agent, reply)},
			ChannelCurrentAgent: agent,
			ChannelAgentOutputs: []AgentOutput{{Agent: agent, Response: reply, Status: status, Timestamp: p.cfg.Now()}},
		}, nil
	}
}

// routeCoordinator reads the coordinator reply. Keywords win; otherwise the
// first specialist without a completed answer runs, and once every specialist
// answered the plan is compiled.
func (p *planner) routeCoordinator(_ context.Context, state graph.State) (string, error) {
	if n := graph.Get[int](state, ChannelIterationCount); n >= p.cfg.MaxIterations {
		p.cfg.Logger.Warn("travel planner reached %d iterations, compiling plan", n)
		return NodeCompilePlan, nil
	}
	messages := graph.Get[[]llm.Message](state, ChannelMessages)
	if len(messages) == 0 {
		return NodeCompilePlan, nil
	}

	content := strings.ToLower(messages[len(messages)-1].Content)
	if strings.Contains(content, "search") {
		return NodeTools, nil
	}
	for _, agent := range Specialists {
		if strings.Contains(content, agent) {
			return agent, nil
		}
	}
	if strings.Contains(content, "final_plan") {
		return NodeCompilePlan, nil
	}

	done := completedAgents(graph.Get[[]AgentOutput](state, ChannelAgentOutputs))
	for _, agent := range Specialists {
		if !done[agent] {
			return agent, nil
		}
	}
	return NodeCompilePlan, nil
}

func routeAgent(_ context.Context, state graph.State) (string, error) {
	messages := graph.Get[[]llm.Message](state, ChannelMessages)
	if len(messages) > 0 && strings.Contains(messages[len(messages)-1].Content, SearchMarker) {
		return NodeTools, nil
	}
	return AgentCoordinator, nil
}

func completedAgents(outputs []AgentOutput) map[string]bool {
	done := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		if o.Status == StatusCompleted {
			done[o.Agent] = true
		}
	}
	return done
}

type outputIndex struct {
	*orderedmap.OrderedMap[string, AgentOutput]
}

// latestOutputs keeps the last output of every agent, ordered by first appearance.
func latestOutputs(outputs []AgentOutput) outputIndex {
	m := orderedmap.New[string, AgentOutput]()
	for _, o := range outputs {
		m.Set(o.Agent, o)
	}
	return outputIndex{m}
}

func (o outputIndex) keys() []string {
	keys := make([]string, 0, o.Len())
	for p := o.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}
