package travel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallnest/researchgraph/graph"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const planningMethod = "multi-agent graph collaboration"

func (p *planner) compilePlan(_ context.Context, state graph.State) (graph.State, error) {
	plan := CompilePlan(
		graph.Get[Request](state, ChannelRequest),
		graph.Get[[]AgentOutput](state, ChannelAgentOutputs),
		graph.Get[int](state, ChannelIterationCount),
	)
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return graph.State{ChannelFinalPlan: string(raw)}, nil
}

// CompilePlan merges the latest output of every specialist into a plan.
func CompilePlan(req Request, outputs []AgentOutput, iterations int) *Plan {
	contributions := orderedmap.New[string, Contribution]()
	latest := latestOutputs(outputs)
	for p := latest.Oldest(); p != nil; p = p.Next() {
		contributions.Set(p.Key, Contribution{
			Contribution: p.Value.Response,
			Status:       p.Value.Status,
			Timestamp:    p.Value.Timestamp,
		})
	}

	summary := "No specialist contributed to this plan."
	if n := contributions.Len(); n > 0 {
		summary = fmt.Sprintf("Travel plan for %s compiled from %d specialist contributions.", req.Destination, n)
	}
	return &Plan{
		Destination:    req.Destination,
		Duration:       req.Duration,
		TravelDates:    req.Dates(),
		GroupSize:      req.GroupSize,
		BudgetRange:    req.BudgetRange,
		Interests:      req.Interests,
		PlanningMethod: planningMethod,
		Iterations:     iterations,
		Summary:        summary,
		Contributions:  contributions,
	}
}
