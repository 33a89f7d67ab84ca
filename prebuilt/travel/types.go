package travel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const dateLayout = "2006-01-02"

// Request describes the trip to plan.
type Request struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Duration    int      `json:"duration,omitempty"`
	BudgetRange string   `json:"budget_range,omitempty"`
	GroupSize   int      `json:"group_size,omitempty"`
	Interests   []string `json:"interests,omitempty"`

	TravelStyle              string `json:"travel_style,omitempty"`
	ActivityLevel            string `json:"activity_level,omitempty"`
	DietaryRestrictions      string `json:"dietary_restrictions,omitempty"`
	TransportationPreference string `json:"transportation_preference,omitempty"`
	AccommodationPreference  string `json:"accommodation_preference,omitempty"`
	SpecialRequirements      string `json:"special_requirements,omitempty"`
	Currency                 string `json:"currency,omitempty"`
}

// Normalize fills defaults and derives the duration from the dates.
func (r Request) Normalize() (Request, error) {
	r.Destination = strings.TrimSpace(r.Destination)
	if r.Destination == "" {
		return r, errors.New("destination is required")
	}
	if r.StartDate != "" && r.EndDate != "" {
		start, err := time.Parse(dateLayout, r.StartDate)
		if err != nil {
			return r, fmt.Errorf("start_date: %w", err)
		}
		end, err := time.Parse(dateLayout, r.EndDate)
		if err != nil {
			return r, fmt.Errorf("end_date: %w", err)
		}
		if end.Before(start) {
			return r, errors.New("end_date is before start_date")
		}
		if r.Duration <= 0 {
			r.Duration = int(end.Sub(start).Hours()/24) + 1
		}
	}
	if r.Duration <= 0 {
		r.Duration = 3
	}
	if r.GroupSize <= 0 {
		r.GroupSize = 1
	}
	if r.BudgetRange == "" {
		r.BudgetRange = "mid-range"
	}
	return r, nil
}

// Dates renders the travel dates for prompts and search queries.
func (r Request) Dates() string {
	switch {
	case r.StartDate != "" && r.EndDate != "":
		return r.StartDate + " to " + r.EndDate
	case r.StartDate != "":
		return "from " + r.StartDate
	}
	return "unspecified"
}

func (r Request) interests() string {
	if len(r.Interests) == 0 {
		return "none given"
	}
	return strings.Join(r.Interests, ", ")
}

// Output statuses.
const (
	StatusCompleted   = "completed"
	StatusNeedsSearch = "needs_search"
)

// AgentOutput is one specialist reply.
type AgentOutput struct {
	Agent     string    `json:"agent"`
	Response  string    `json:"response"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Contribution is the plan entry of one specialist.
type Contribution struct {
	Contribution string    `json:"contribution"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// Plan is the compiled result of a planning run. Contributions keep the order in
// which the specialists first answered.
type Plan struct {
	Destination    string   `json:"destination"`
	Duration       int      `json:"duration"`
	TravelDates    string   `json:"travel_dates"`
	GroupSize      int      `json:"group_size"`
	BudgetRange    string   `json:"budget_range"`
	Interests      []string `json:"interests,omitempty"`
	PlanningMethod string   `json:"planning_method"`
	Iterations     int      `json:"total_iterations"`
	Summary        string   `json:"summary"`

	Contributions *orderedmap.OrderedMap[string, Contribution] `json:"agent_contributions"`
}

// ParsePlan decodes the final_plan channel.
func ParsePlan(s string) (*Plan, error) {
	p := &Plan{Contributions: orderedmap.New[string, Contribution]()}
	if err := json.Unmarshal([]byte(s), p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return p, nil
}
