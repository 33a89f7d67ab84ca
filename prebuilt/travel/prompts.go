package travel

import (
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
)

// SearchMarker prefixes a specialist reply that asks for a search.
const SearchMarker = "NEED_SEARCH:"

func (r Request) summary() string {
	return heredoc.Docf(`
		- Destination: %s
		- Duration: %d days
		- Budget: %s
		- Interests: %s
		- Group size: %d
		- Travel dates: %s`,
		r.Destination, r.Duration, r.BudgetRange, r.interests(), r.GroupSize, r.Dates())
}

func coordinatorPrompt(r Request, outputs string) string {
	return heredoc.Docf(`
		You are the coordinator agent of a multi-agent travel planning system.

		Your responsibilities:
		1. Analyze the travel planning request
		2. Decide which specialist agents should contribute
		3. Coordinate the workflow between agents
		4. Decide when the final plan can be assembled

		Current request:
		%s

		Available agents:
		- travel_advisor: destination expertise and attraction recommendations
		- weather_analyst: weather forecasts and weather-aware activity planning
		- budget_optimizer: cost analysis and money-saving strategies
		- local_expert: local insights and cultural tips
		- itinerary_planner: schedule optimization and logistics

		Agent outputs so far:
		%s

		Decide the next action. Reply with exactly one of:
		- the name of the next agent to call (travel_advisor, weather_analyst, budget_optimizer, local_expert, itinerary_planner)
		- FINAL_PLAN if every relevant agent has contributed
		- SEARCH if information must be looked up first`, r.summary(), outputs)
}

var specialistPrompts = map[string]func(r Request, consulted string) string{
	AgentTravelAdvisor: func(r Request, _ string) string {
		return heredoc.Docf(`
			You are the travel advisor agent, specialized in destination expertise and recommendations.

			Current request:
			%s

			Provide destination advice covering:
			1. Top attractions and must-see places
			2. Cultural insights and etiquette
			3. The best areas to stay and explore
			4. Activities matching the interests

			If you need current information about the destination, reply with '%s [search query]'.
			Otherwise give your expert advice.`, r.summary(), SearchMarker)
	},
	AgentWeatherAnalyst: func(r Request, _ string) string {
		return heredoc.Docf(`
			You are the weather analyst agent, specialized in weather intelligence and climate-aware planning.

			Current request:
			%s

			Base your analysis on actual forecast data. If no search results are in the
			conversation yet, reply only with '%s %s %s weather forecast'.

			Once you have the weather data:
			1. Analyze the conditions during the travel dates
			2. Recommend the best time slots for outdoor activities
			3. Suggest activities that suit the weather
			4. Give packing advice`, r.summary(), SearchMarker, r.Destination, r.Dates())
	},
	AgentBudgetOptimizer: func(r Request, _ string) string {
		return heredoc.Docf(`
			You are the budget optimizer agent, specialized in cost analysis and money-saving strategies.

			Current request:
			%s

			Provide budget advice covering:
			1. Estimated daily and total costs
			2. A breakdown by category (lodging, food, activities, transport)
			3. Money-saving tips
			4. Affordable alternatives to expensive activities

			If you need current prices, reply with '%s [budget search query]'.
			Otherwise give your budget analysis.`, r.summary(), SearchMarker)
	},
	AgentLocalExpert: func(r Request, _ string) string {
		return heredoc.Docf(`
			You are the local expert agent, specialized in insider knowledge and local insights.

			Current request:
			%s

			Provide local insights covering:
			1. Hidden gems and places locals love
			2. Customs and etiquette
			3. Local food recommendations
			4. Insider tips for getting around and saving money

			If you need current local information, reply with '%s [local tips search query]'.
			Otherwise give your local expertise.`, r.summary(), SearchMarker)
	},
	AgentItineraryPlanner: func(r Request, consulted string) string {
		return heredoc.Docf(`
			You are the itinerary planner agent, specialized in schedule optimization and logistics.

			Current request:
			%s
			- Agents consulted so far: %s

			Create an optimized itinerary with:
			1. A day-by-day schedule
			2. The best timing for each activity
			3. Transport between locations
			4. Breaks and meals

			Take the recommendations of the other agents into account and give a
			structured daily plan.`, r.summary(), consulted)
	},
}

func formatOutputs(outputs []AgentOutput) string {
	latest := latestOutputs(outputs)
	if latest.Len() == 0 {
		return "none yet"
	}
	var sb strings.Builder
	for p := latest.Oldest(); p != nil; p = p.Next() {
		sb.WriteString("- " + p.Key + " (" + p.Value.Status + "): " + clip(p.Value.Response, 500) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
