package research

import (
	"context"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/researchgraph/graph"
)

const (
	insightsHeader = "## Insights"
	sourcesHeader  = "\n## Sources\n"
)

func finalizeReport(_ context.Context, state graph.State) (graph.State, error) {
	report := AssembleReport(
		graph.Get[string](state, ChannelIntroduction),
		graph.Get[string](state, ChannelContent),
		graph.Get[string](state, ChannelConclusion),
	)
	return graph.State{ChannelFinalReport: report}, nil
}

// AssembleReport joins the introduction, body and conclusion. The body's
// "## Insights" title is dropped and its sources are moved after the conclusion.
func AssembleReport(introduction, content, conclusion string) string {
	content = strings.TrimLeft(strings.TrimPrefix(content, insightsHeader), "\n ")

	var sources string
	hasSources := false
	if parts := strings.Split(content, sourcesHeader); len(parts) == 2 {
		content, sources, hasSources = parts[0], parts[1], true
	}

	var sb strings.Builder
	sb.WriteString(introduction)
	sb.WriteString(documentSeparator)
	sb.WriteString(content)
	sb.WriteString(documentSeparator)
	sb.WriteString(conclusion)
	if hasSources {
		sb.WriteString("\n\n## Sources\n")
		sb.WriteString(sources)
	}
	return sb.String()
}

// RenderHTML converts a Markdown report to sanitized HTML.
func RenderHTML(report string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(report))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)
	return string(bluemonday.UGCPolicy().SanitizeBytes(out))
}
