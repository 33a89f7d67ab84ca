package research

import (
	"errors"
	"fmt"
	"strings"
)

// Analyst is one research persona. Every analyst interviews an expert about the
// part of the topic it focuses on.
type Analyst struct {
	Affiliation string `json:"affiliation" jsonschema:"description=Primary affiliation of the analyst"`
	Name        string `json:"name" jsonschema:"description=Name of the analyst"`
	Role        string `json:"role" jsonschema:"description=Role of the analyst in the context of the topic"`
	Description string `json:"description" jsonschema:"description=What the analyst focuses on and why"`
}

// Persona introduces the analyst in prompts.
func (a Analyst) Persona() string {
	return fmt.Sprintf("Name: %s\nRole: %s\nAffiliation: %s\nDescription: %s\n",
		a.Name, a.Role, a.Affiliation, a.Description)
}

// Perspectives is the structured output of the analyst generator.
type Perspectives struct {
	Analysts []Analyst `json:"analysts" jsonschema:"description=Comprehensive list of analysts with their roles and affiliations"`
}

// Validate implements llm.Validator.
func (p *Perspectives) Validate() error {
	if len(p.Analysts) == 0 {
		return errors.New("no analysts")
	}
	for i, a := range p.Analysts {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("analyst %d has no name", i)
		}
	}
	return nil
}

// SearchQuery is the structured output of the query writer.
type SearchQuery struct {
	SearchQuery string `json:"search_query" jsonschema:"description=Search query for retrieval"`
}

// Validate implements llm.Validator.
func (q *SearchQuery) Validate() error {
	if strings.TrimSpace(q.SearchQuery) == "" {
		return errors.New("empty search query")
	}
	return nil
}
