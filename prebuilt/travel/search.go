package travel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/tool"
)

// Search categories.
const (
	SearchWeather     = "weather"
	SearchAttractions = "attractions"
	SearchBudget      = "budget"
	SearchHotels      = "hotels"
	SearchRestaurants = "restaurants"
	SearchLocalTips   = "local_tips"
	SearchDestination = "destination"
)

type searchCategory struct {
	name     string
	keywords []string
	query    func(r Request) string
}

// Checked in order; the first category with a matching keyword wins.
var searchCategories = []searchCategory{
	{SearchWeather, []string{"weather", "forecast", "climate"}, func(r Request) string {
		return r.Destination + " weather forecast " + r.Dates() + " travel climate"
	}},
	{SearchAttractions, []string{"attraction", "activity", "activities", "sightseeing"}, func(r Request) string {
		return strings.TrimSpace(r.Destination + " top attractions activities " + strings.Join(r.Interests, " ") + " must-see")
	}},
	{SearchBudget, []string{"budget", "cost", "price"}, func(r Request) string {
		return r.Destination + " travel budget costs daily expenses " + strconv.Itoa(r.Duration) + " days"
	}},
	{SearchHotels, []string{"hotel", "accommodation", "lodging"}, func(r Request) string {
		return r.Destination + " hotels " + r.BudgetRange + " best places to stay"
	}},
	{SearchRestaurants, []string{"restaurant", "food", "dining"}, func(r Request) string {
		return r.Destination + " best restaurants local food dining"
	}},
	{SearchLocalTips, []string{"local", "tip"}, func(r Request) string {
		return r.Destination + " local tips travel guide etiquette"
	}},
}

var destinationSearch = searchCategory{SearchDestination, nil, func(r Request) string {
	return r.Destination + " travel destination guide attractions"
}}

// categorize picks the search category for a request made by agent.
func categorize(agent, query string) searchCategory {
	if agent == AgentWeatherAnalyst {
		return searchCategories[0]
	}
	q := strings.ToLower(query)
	for _, c := range searchCategories {
		for _, k := range c.keywords {
			if strings.Contains(q, k) {
				return c
			}
		}
	}
	return destinationSearch
}

// searchRequest extracts the query after the search marker of the last message.
// A coordinator SEARCH reply carries no marker and searches the destination.
func searchRequest(messages []llm.Message) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	content := messages[len(messages)-1].Content
	i := strings.LastIndex(content, SearchMarker)
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(content[i+len(SearchMarker):]), true
}

// tools runs one search. Failures become a message so the coordinator can
// decide how to continue.
func (p *planner) tools(ctx context.Context, state graph.State) (graph.State, error) {
	req := graph.Get[Request](state, ChannelRequest)
	agent := graph.Get[string](state, ChannelCurrentAgent)

	query, ok := searchRequest(graph.Get[[]llm.Message](state, ChannelMessages))
	category := destinationSearch
	if ok {
		category = categorize(agent, query)
	}
	q := category.query(req)
	p.cfg.Logger.Info("travel search | agent: %s | category: %s | query: %s", agent, category.name, q)

	docs, err := p.cfg.Search.Search(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		p.cfg.Logger.Error("travel search %s failed: %v", category.name, err)
		return graph.State{ChannelMessages: []llm.Message{llm.AI(NodeTools, fmt.Sprintf("Search error: %v", err))}}, nil
	}

	result := "No results found"
	if len(docs) > 0 {
		result = tool.FormatDocuments(docs)
	}
	msg := fmt.Sprintf("Search results (%s):\n%s", category.name, result)
	return graph.State{ChannelMessages: []llm.Message{llm.AI(NodeTools, msg)}}, nil
}
