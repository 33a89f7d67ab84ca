package graph

import (
	"fmt"
	"strings"
)

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// Mermaid renders the graph as a Mermaid flowchart.
func (g *CompiledGraph) Mermaid() string {
	return g.MermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// MermaidWithOptions renders the graph with custom options. Conditional edges are
// dotted and fan-out edges are thick; both are labelled.
func (g *CompiledGraph) MermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)
	sb.WriteString("    START([\"START\"])\n")
	sb.WriteString("    END([\"END\"])\n")

	for _, name := range g.order {
		cn := g.nodes[name]
		shape := "[\"%s\"]"
		if cn.subgraph != nil {
			shape = "[[\"%s\"]]"
		}
		fmt.Fprintf(&sb, "    %s"+shape+"\n", mermaidID(name), name)
	}

	fmt.Fprintf(&sb, "    START --> %s\n", mermaidID(g.entry))
	for _, name := range g.order {
		e := g.nodes[name].edge
		if e == nil {
			continue
		}
		from := mermaidID(name)
		switch e.kind {
		case staticEdge:
			fmt.Fprintf(&sb, "    %s --> %s\n", from, mermaidID(e.to))
		case conditionalEdge:
			for _, t := range e.targets {
				fmt.Fprintf(&sb, "    %s -.-> %s\n", from, mermaidID(t))
			}
		case fanOutEdge:
			for _, b := range e.branches {
				fmt.Fprintf(&sb, "    %s ==>|*| %s\n", from, mermaidID(b))
				fmt.Fprintf(&sb, "    %s -.->|join| %s\n", mermaidID(b), mermaidID(e.join))
			}
		}
	}

	sb.WriteString("    style START fill:#90EE90\n")
	sb.WriteString("    style END fill:#FFB6C1\n")
	fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", mermaidID(g.entry))
	return sb.String()
}

// mermaidID keeps END from colliding with Mermaid's reserved "end" keyword.
func mermaidID(name string) string {
	if name == END {
		return "END"
	}
	return "n_" + strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}
