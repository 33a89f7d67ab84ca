// Command deep_research runs the deep research pipeline from the terminal.
//
//	deep_research start -topic "agent runtimes in Go" [-analysts 3] [-approve] [-source URL]... [-html report.html]
//	deep_research resume -run ID [-feedback "add a regulator"] [-source URL]... [-html report.html]
//	deep_research status [-run ID]
//	deep_research export -run ID -html report.html
//	deep_research watch -run ID
//	deep_research graph
//
// Runs stop for review after the analysts are generated; resume without
// feedback to approve them. Configuration is read from the environment and
// an optional .env file, see LoadConfig.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/smallnest/researchgraph/adapter/natsevents"
	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/store"
	"github.com/smallnest/researchgraph/store/backend"
)

const usage = `usage: deep_research <command> [flags]

commands:
  start    start a research run on a topic
  resume   approve or regenerate the analysts of a suspended run
  status   show one run or list every run
  export   write the report of a completed run as HTML
  watch    follow the events of a run over NATS
  graph    print the pipeline as a Mermaid flowchart
`

// sourceList collects repeated -source flags.
type sourceList []string

func (s *sourceList) String() string { return strings.Join(*s, ",") }

func (s *sourceList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, LoadConfig(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	topic := fs.String("topic", "", "research topic")
	analysts := fs.Int("analysts", cfg.MaxAnalysts, "number of analysts")
	approve := fs.Bool("approve", false, "accept the generated analysts without review")
	runID := fs.String("run", "", "run id")
	feedback := fs.String("feedback", "", "feedback on the analysts; empty approves them")
	htmlPath := fs.String("html", "", "also write the report as HTML to this file")
	var sources sourceList
	fs.Var(&sources, "source", "page to add to the knowledge base (repeatable)")

	switch command {
	case "start", "resume", "status", "export", "watch", "graph":
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	log.SetDefaultLogger(logger)

	if command == "watch" {
		return watch(ctx, cfg, *runID)
	}

	rcfg := cfg.Offline(logger)
	if command == "start" || command == "resume" {
		if rcfg, err = cfg.Research(ctx, logger, sources); err != nil {
			return err
		}
	}
	st, closeStore, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	listeners := []graph.Listener{graph.LogListener(logger)}
	if cfg.NATSURL != "" {
		nc, err := natsevents.Connect(cfg.NATSURL, "deep_research")
		if err != nil {
			return err
		}
		defer nc.Drain()
		listeners = append(listeners, natsevents.NewListener(nc, natsevents.WithPrefix(cfg.NATSPrefix), natsevents.WithLogger(logger)))
	}

	render, err := newRenderer(cfg.Style, 100)
	if err != nil {
		return err
	}
	a, err := newApp(rcfg, st, os.Stdout, render, listeners...)
	if err != nil {
		return err
	}

	switch command {
	case "start":
		return a.start(ctx, *topic, *analysts, *approve, *htmlPath)
	case "resume":
		return a.resume(ctx, *runID, *feedback, *htmlPath)
	case "status":
		return a.status(ctx, *runID)
	case "export":
		if *runID == "" || *htmlPath == "" {
			return errors.New("export needs -run and -html")
		}
		return a.export(ctx, *runID, *htmlPath)
	default:
		a.mermaid()
		return nil
	}
}

// watch prints the events of runID until the run ends or suspends.
func watch(ctx context.Context, cfg Config, runID string) error {
	if runID == "" {
		return errors.New("a run id is required")
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = nats.DefaultURL
	}
	nc, err := natsevents.Connect(cfg.NATSURL, "deep_research-watch")
	if err != nil {
		return err
	}
	defer nc.Close()

	done := make(chan struct{})
	sub, err := natsevents.Subscribe(nc, cfg.NATSPrefix, runID, func(e natsevents.Event) {
		fmt.Println(formatEvent(e))
		if e.Type == graph.EventRunEnd || e.Type == graph.EventInterrupt {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Println(hintStyle.Render("watching run " + runID + " on " + cfg.NATSURL))
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func formatEvent(e natsevents.Event) string {
	where := e.Graph + "/" + e.Node
	if e.Branch != nil {
		where += fmt.Sprintf("#%d", e.Branch.Index)
	}
	line := fmt.Sprintf("%s %-12s %s", labelStyle.Render(e.Timestamp.Format("15:04:05")), e.Type, where)
	switch {
	case e.Error != "":
		line += " " + statusStyles[store.StatusFailed].Render(e.Error)
	case e.Branches > 0:
		line += fmt.Sprintf(" (%d branches)", e.Branches)
	case e.DurationMS > 0:
		line += fmt.Sprintf(" %dms", e.DurationMS)
	}
	return line
}
