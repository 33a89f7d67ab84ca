package research_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/llm/llmtest"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/prebuilt/research"
	"github.com/smallnest/researchgraph/store/file"
	"github.com/smallnest/researchgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	perspectivesJSON = `{"analysts": [
		{"name": "Ada", "role": "Engineer", "affiliation": "Lab", "description": "focus-alpha"},
		{"name": "Grace", "role": "Economist", "affiliation": "Uni", "description": "focus-beta"},
		{"name": "Linus", "role": "Critic", "affiliation": "Press", "description": "focus-gamma"}
	]}`
	reportBody   = "## Insights\nCombined body [1]\n## Sources\n[1] https://a.example"
	introduction = "# Agents\n## Introduction\nintro text"
	conclusion   = "## Conclusion\nwrap up"
)

// responder plays every role of the pipeline, keyed on the system prompt.
func responder(question string) llmtest.Responder {
	return func(_ context.Context, system, prompt string) (string, error) {
		switch {
		case strings.Contains(system, "AI analyst personas"):
			return "```json\n" + perspectivesJSON + "\n```", nil
		case strings.Contains(system, "well-structured query"):
			return `{"search_query": "graph runtimes"}`, nil
		case strings.Contains(system, "You are an analyst tasked"):
			return question, nil
		case strings.Contains(system, "You are an expert being interviewed"):
			return "It depends [1]", nil
		case strings.Contains(system, "expert technical writer"):
			for _, focus := range []string{"alpha", "beta", "gamma"} {
				if strings.Contains(system, "focus-"+focus) {
					return "## Section " + focus, nil
				}
			}
			return "## Section ?", nil
		case strings.Contains(system, "creating a report on this overall topic"):
			return reportBody, nil
		case strings.Contains(system, "finishing a report"):
			if strings.Contains(prompt, "introduction") {
				return introduction, nil
			}
			return conclusion, nil
		}
		return "", errors.New("unexpected prompt: " + system)
	}
}

type countingRetriever struct {
	calls atomic.Int32
	docs  tool.Static
}

func (r *countingRetriever) Search(ctx context.Context, query string) ([]tool.Document, error) {
	r.calls.Add(1)
	return r.docs.Search(ctx, query)
}

func testConfig(model *llmtest.Model) (research.Config, *countingRetriever, *countingRetriever) {
	web := &countingRetriever{docs: tool.Static{{Source: "https://a.example", Content: "web fact"}}}
	kb := &countingRetriever{docs: tool.Static{{Source: "https://en.wikipedia.org/wiki/Graph", Page: "Graph", Content: "kb fact"}}}
	return research.Config{
		Model:       model,
		Web:         web,
		Knowledge:   kb,
		MaxAnalysts: 2,
		Logger:      &log.NoOpLogger{},
	}, web, kb
}

func TestInterviewGraph(t *testing.T) {
	t.Parallel()

	cfg, web, kb := testConfig(llmtest.New(responder("What matters most?")))
	interview, err := research.NewInterviewGraph(cfg)
	require.NoError(t, err)

	analyst := research.Analyst{Name: "Ada", Role: "Engineer", Affiliation: "Lab", Description: "focus-alpha"}
	out, err := interview.Invoke(context.Background(), graph.State{
		research.ChannelAnalyst:  analyst,
		research.ChannelMessages: []llm.Message{llm.Human("So you said you were writing an article on agents?")},
	})
	require.NoError(t, err)

	messages := graph.Get[[]llm.Message](out, research.ChannelMessages)
	require.Len(t, messages, 5, "opening question plus two question/answer turns")
	assert.Equal(t, llm.AI(research.ExpertName, "It depends [1]"), messages[2])
	assert.Equal(t, llm.AI(research.ExpertName, "It depends [1]"), messages[4])

	assert.Equal(t, int32(2), web.calls.Load())
	assert.Equal(t, int32(2), kb.calls.Load())

	docs := graph.Get[[]string](out, research.ChannelContext)
	require.Len(t, docs, 4)
	assert.Contains(t, docs[0], `<Document href="https://a.example"/>`)
	assert.Contains(t, docs[1], `<Document source="https://en.wikipedia.org/wiki/Graph" page="Graph"/>`)

	transcript := graph.Get[string](out, research.ChannelInterview)
	assert.True(t, strings.HasPrefix(transcript, "Human: So you said"), transcript)
	assert.Contains(t, transcript, "AI: It depends [1]")

	assert.Equal(t, []string{"## Section alpha"}, out[research.ChannelSections])
}

func TestInterviewGraph_ClosingPhraseEndsEarly(t *testing.T) {
	t.Parallel()

	model := llmtest.New(responder("Got it. " + research.DefaultClosingPhrase))
	cfg, _, _ := testConfig(model)
	interview, err := research.NewInterviewGraph(cfg)
	require.NoError(t, err)

	out, err := interview.Invoke(context.Background(), graph.State{
		research.ChannelAnalyst:     research.Analyst{Name: "Ada", Description: "focus-alpha"},
		research.ChannelMessages:    []llm.Message{llm.Human("So you said you were writing an article on agents?")},
		research.ChannelMaxNumTurns: 5,
	})
	require.NoError(t, err)
	assert.Len(t, graph.Get[[]llm.Message](out, research.ChannelMessages), 3)
}

func TestInterviewGraph_MaxTurnsFromState(t *testing.T) {
	t.Parallel()

	cfg, web, _ := testConfig(llmtest.New(responder("And then?")))
	interview, err := research.NewInterviewGraph(cfg)
	require.NoError(t, err)

	out, err := interview.Invoke(context.Background(), graph.State{
		research.ChannelAnalyst:     research.Analyst{Name: "Ada", Description: "focus-alpha"},
		research.ChannelMaxNumTurns: 3,
	})
	require.NoError(t, err)
	assert.Len(t, graph.Get[[]llm.Message](out, research.ChannelMessages), 6)
	assert.Equal(t, int32(3), web.calls.Load())
}

func TestPipeline_Invoke(t *testing.T) {
	t.Parallel()

	model := llmtest.New(responder("What matters most?"))
	cfg, web, _ := testConfig(model)
	pipeline, err := research.New(cfg)
	require.NoError(t, err)

	out, err := pipeline.Invoke(context.Background(), research.Input("agents", 0))
	require.NoError(t, err)

	// The model proposed three analysts; the configured bound keeps two.
	analysts := graph.Get[[]research.Analyst](out, research.ChannelAnalysts)
	require.Len(t, analysts, 2)
	assert.Equal(t, "Ada", analysts[0].Name)

	assert.Equal(t, []string{"## Section alpha", "## Section beta"}, out[research.ChannelSections])
	assert.Equal(t, int32(4), web.calls.Load())

	want := introduction + "\n\n---\n\n" + "Combined body [1]" + "\n\n---\n\n" + conclusion +
		"\n\n## Sources\n" + "[1] https://a.example"
	assert.Equal(t, want, out[research.ChannelFinalReport])

	var opening int
	for _, c := range model.Calls() {
		if strings.Contains(c.Prompt, "So you said you were writing an article on agents?") {
			opening++
		}
	}
	assert.Positive(t, opening)
}

func TestPipeline_HumanFeedback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	model := llmtest.New(responder("What matters most?"))
	cfg, _, _ := testConfig(model)
	pipeline, err := research.New(cfg)
	require.NoError(t, err)

	st, err := file.NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	runner, err := pipeline.NewRunner(st, graph.WithInterruptBefore(research.NodeHumanFeedback))
	require.NoError(t, err)

	res, err := runner.Start(ctx, research.Input("agents", 1))
	require.NoError(t, err)
	assert.Equal(t, graph.StatusSuspended, res.Status)
	assert.Equal(t, research.NodeHumanFeedback, res.Next)
	assert.Len(t, graph.Get[[]research.Analyst](res.State, research.ChannelAnalysts), 1)

	res, err = runner.Resume(ctx, res.RunID, research.Feedback("  add an economist "))
	require.NoError(t, err)
	assert.Equal(t, graph.StatusSuspended, res.Status, "regenerated analysts are reviewed again")
	assert.Empty(t, res.State[research.ChannelFeedback])

	var sawFeedback bool
	for _, c := range model.Calls() {
		if strings.Contains(c.System, "add an economist") {
			sawFeedback = true
		}
	}
	assert.True(t, sawFeedback)

	res, err = runner.Resume(ctx, res.RunID, research.Feedback(""))
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, []string{"## Section alpha"}, res.State[research.ChannelSections])
	assert.Contains(t, res.State[research.ChannelFinalReport], "Combined body [1]")
}

func TestPipeline_RetrieverFailure(t *testing.T) {
	t.Parallel()

	cfg, _, _ := testConfig(llmtest.New(responder("What matters most?")))
	cfg.Knowledge = tool.RetrieverFunc(func(context.Context, string) ([]tool.Document, error) {
		return nil, errors.New("wiki down")
	})
	pipeline, err := research.New(cfg)
	require.NoError(t, err)

	_, err = pipeline.Invoke(context.Background(), research.Input("agents", 1))
	require.Error(t, err)
	assert.ErrorContains(t, err, "wiki down")

	var be *graph.BranchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, research.NodeInitiateInterviews, be.Source)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := research.New(research.Config{})
	assert.Error(t, err)

	_, err = research.New(research.Config{Model: llmtest.Scripted("x")})
	assert.Error(t, err)
}

func TestAssembleReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "insights and sources",
			content: "## Insights\nbody\n## Sources\n[1] a",
			want:    "intro\n\n---\n\nbody\n\n---\n\nend\n\n## Sources\n[1] a",
		},
		{
			name:    "no sources",
			content: "body only",
			want:    "intro\n\n---\n\nbody only\n\n---\n\nend",
		},
		{
			name:    "ambiguous sources kept inline",
			content: "a\n## Sources\nb\n## Sources\nc",
			want:    "intro\n\n---\n\na\n## Sources\nb\n## Sources\nc\n\n---\n\nend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, research.AssembleReport("intro", tt.content, "end"))
		})
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	out := research.RenderHTML("# Title\n\nSee [source](https://a.example).\n\n<script>alert(1)</script>\n")
	assert.Contains(t, out, "Title</h1>")
	assert.Contains(t, out, `href="https://a.example"`)
	assert.NotContains(t, out, "<script")
}

func TestAnalystPersona(t *testing.T) {
	t.Parallel()

	a := research.Analyst{Name: "Ada", Role: "Engineer", Affiliation: "Lab", Description: "compilers"}
	assert.Equal(t, "Name: Ada\nRole: Engineer\nAffiliation: Lab\nDescription: compilers\n", a.Persona())

	assert.Error(t, (&research.Perspectives{}).Validate())
	assert.Error(t, (&research.SearchQuery{SearchQuery: "  "}).Validate())
}
