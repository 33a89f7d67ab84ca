package main

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/smallnest/researchgraph/prebuilt/research"
	"github.com/smallnest/researchgraph/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	hintStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)

	statusStyles = map[store.RunStatus]lipgloss.Style{
		store.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		store.StatusSuspended: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		store.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		store.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func statusText(s store.RunStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func analystCard(i int, a research.Analyst) string {
	body := strings.Join([]string{
		titleStyle.Render(fmt.Sprintf("%d. %s", i+1, a.Name)),
		field("Role", a.Role),
		field("Affiliation", a.Affiliation),
		a.Description,
	}, "\n")
	return cardStyle.Render(body)
}

// renderFunc turns Markdown into terminal output.
type renderFunc func(markdown string) (string, error)

func newRenderer(style string, width int) (renderFunc, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return r.Render, nil
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { max-width: 52rem; margin: 2rem auto; padding: 0 1rem; font: 16px/1.6 system-ui, sans-serif; color: #222; }
h1, h2 { border-bottom: 1px solid #eee; padding-bottom: .3rem; }
a { color: #0969da; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

func writeHTML(path, title, report string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return renderPage(f, title, report)
}

func renderPage(w io.Writer, title, report string) error {
	return page.Execute(w, struct {
		Title string
		// Body is sanitized by RenderHTML.
		Body template.HTML
	}{
		Title: title,
		Body:  template.HTML(research.RenderHTML(report)), //nolint:gosec
	})
}
