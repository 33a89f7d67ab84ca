package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/prebuilt/research"
	"github.com/smallnest/researchgraph/store"
)

// app runs the commands against one runner.
type app struct {
	runner *graph.Runner
	out    io.Writer
	render renderFunc
}

func newApp(cfg research.Config, st store.CheckpointStore, out io.Writer, render renderFunc, listeners ...graph.Listener) (*app, error) {
	cg, err := research.New(cfg)
	if err != nil {
		return nil, err
	}
	runner, err := cg.NewRunner(st,
		graph.WithInterruptBefore(research.NodeHumanFeedback),
		graph.WithRunListeners(listeners...),
		graph.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, err
	}
	return &app{runner: runner, out: out, render: render}, nil
}

// start begins a run on topic. With approve the generated analysts are accepted
// without stopping for review.
func (a *app) start(ctx context.Context, topic string, maxAnalysts int, approve bool, htmlPath string) error {
	if topic == "" {
		return errors.New("a topic is required")
	}
	res, err := a.runner.Start(ctx, research.Input(topic, maxAnalysts))
	if err != nil {
		return err
	}
	if approve && res.Status == graph.StatusSuspended {
		if res, err = a.runner.Resume(ctx, res.RunID, research.Feedback("")); err != nil {
			return err
		}
	}
	return a.show(res, htmlPath)
}

// resume continues a suspended run. Empty feedback approves the analysts.
func (a *app) resume(ctx context.Context, runID, feedback, htmlPath string) error {
	if runID == "" {
		return errors.New("a run id is required")
	}
	res, err := a.runner.Resume(ctx, runID, research.Feedback(feedback))
	if err != nil {
		return err
	}
	return a.show(res, htmlPath)
}

func (a *app) show(res *graph.Result, htmlPath string) error {
	if res.Status == graph.StatusSuspended {
		analysts := graph.Get[[]research.Analyst](res.State, research.ChannelAnalysts)
		fmt.Fprintln(a.out, titleStyle.Render(fmt.Sprintf("Run %s is waiting for review of %d analysts", res.RunID, len(analysts))))
		for i, an := range analysts {
			fmt.Fprintln(a.out, analystCard(i, an))
		}
		fmt.Fprintln(a.out, hintStyle.Render(fmt.Sprintf(
			"approve with: deep_research resume -run %s\nor regenerate: deep_research resume -run %s -feedback \"add a regulator\"",
			res.RunID, res.RunID)))
		return nil
	}

	report := graph.Get[string](res.State, research.ChannelFinalReport)
	out, err := a.render(report)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, titleStyle.Render("Run "+res.RunID+" completed"))
	fmt.Fprint(a.out, out)
	if htmlPath == "" {
		return nil
	}
	if err := writeHTML(htmlPath, graph.Get[string](res.State, research.ChannelTopic), report); err != nil {
		return err
	}
	fmt.Fprintln(a.out, field("HTML", htmlPath))
	return nil
}

// status prints one run, or every stored run when runID is empty.
func (a *app) status(ctx context.Context, runID string) error {
	if runID == "" {
		runs, err := a.runner.ListRuns(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(a.out, hintStyle.Render("no runs"))
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTATUS\tNEXT\tUPDATED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RunID, r.Status, r.Cursor, r.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	}

	info, err := a.runner.GetStatus(ctx, runID)
	if err != nil {
		return err
	}
	state, err := a.runner.GetState(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, field("Run", info.RunID))
	fmt.Fprintln(a.out, field("Status", statusText(info.Status)))
	fmt.Fprintln(a.out, field("Topic", graph.Get[string](state, research.ChannelTopic)))
	if info.Status != graph.StatusCompleted {
		fmt.Fprintln(a.out, field("Next", info.Cursor))
	}
	if info.Error != "" {
		fmt.Fprintln(a.out, field("Error", info.Error))
	}
	fmt.Fprintln(a.out, field("Analysts", fmt.Sprint(len(graph.Get[[]research.Analyst](state, research.ChannelAnalysts)))))
	fmt.Fprintln(a.out, field("Sections", fmt.Sprint(len(graph.Get[[]string](state, research.ChannelSections)))))
	return nil
}

// export writes the report of a completed run as HTML.
func (a *app) export(ctx context.Context, runID, htmlPath string) error {
	state, err := a.runner.GetState(ctx, runID)
	if err != nil {
		return err
	}
	report := graph.Get[string](state, research.ChannelFinalReport)
	if report == "" {
		return fmt.Errorf("run %s has no report yet", runID)
	}
	if err := writeHTML(htmlPath, graph.Get[string](state, research.ChannelTopic), report); err != nil {
		return err
	}
	fmt.Fprintln(a.out, field("HTML", htmlPath))
	return nil
}

// mermaid prints the pipeline as a Mermaid flowchart.
func (a *app) mermaid() {
	fmt.Fprint(a.out, a.runner.Graph().Mermaid())
}
