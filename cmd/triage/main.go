package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepnoodle-ai/triage"
	"github.com/deepnoodle-ai/triage/config"
	"github.com/deepnoodle-ai/triage/workflow"
	"github.com/fatih/color"
)

const usage = `Usage: triage <command> [flags]

Commands:
  run     decide an admission for one visit
  resume  resume a run suspended for review
  list    list recorded runs
  trace   print the trace of a run

Run "triage <command> -h" for command flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(ctx, os.Args[2:])
	case "resume":
		err = resumeCommand(ctx, os.Args[2:])
	case "list":
		err = listCommand(ctx, os.Args[2:])
	case "trace":
		err = traceCommand(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "triage.yaml", "path to config file")
	dbPath := fs.String("db", "visits.db", "path to the visits database")
	visitID := fs.String("visit", "", "visit id to decide")
	reasoner := fs.String("reasoner", "static", "fusion reasoner: static or openai")
	model := fs.String("model", "", "model for the openai reasoner")
	fs.Parse(args)

	if *visitID == "" {
		return fmt.Errorf("-visit is required")
	}

	w, cleanup, err := buildWorkflow(*configPath, *dbPath, *reasoner, *model)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := w.Run(ctx, *visitID)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func resumeCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "triage.yaml", "path to config file")
	dbPath := fs.String("db", "visits.db", "path to the visits database")
	runID := fs.String("run", "", "run id to resume")
	note := fs.String("note", "", "reviewer note; empty finalizes without input")
	reasoner := fs.String("reasoner", "static", "fusion reasoner: static or openai")
	model := fs.String("model", "", "model for the openai reasoner")
	fs.Parse(args)

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}

	w, cleanup, err := buildWorkflow(*configPath, *dbPath, *reasoner, *model)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := w.Resume(ctx, *runID, *note)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func listCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "triage.yaml", "path to config file")
	status := fs.String("status", "", "filter by status (e.g. waiting_review)")
	limit := fs.Int("limit", 20, "maximum runs to list")
	fs.Parse(args)

	cfg, err := config.ParseFile(*configPath)
	if err != nil {
		return err
	}
	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	filter := workflow.RunFilter{Limit: *limit}
	if *status != "" {
		s := workflow.Status(*status)
		filter.Status = &s
	}
	runs, err := store.ListRuns(ctx, filter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-14s  visit=%s  decision=%s  %s\n",
			run.RunID, run.Status, run.VisitID,
			decisionString(run.State.Decision),
			run.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func traceCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	configPath := fs.String("config", "triage.yaml", "path to config file")
	runID := fs.String("run", "", "run id")
	fs.Parse(args)

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}

	cfg, err := config.ParseFile(*configPath)
	if err != nil {
		return err
	}
	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	events, err := store.GetEvents(ctx, *runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no trace found for run %s", *runID)
	}
	for _, event := range events {
		duration := event.EndedAt.Sub(event.StartedAt)
		line := fmt.Sprintf("%2d  %-18s  %-8s  %s", event.Sequence, event.Node, event.Outcome, duration)
		switch event.Outcome {
		case workflow.OutcomeFailure:
			color.Red(line)
		case workflow.OutcomeRetried:
			color.Yellow(line)
		default:
			fmt.Println(line)
		}
		if len(event.Attempts) > 1 {
			for _, attempt := range event.Attempts {
				fmt.Printf("      attempt %d: %s\n", attempt.Number, attemptStatus(attempt.Err))
			}
		}
	}
	return nil
}

func attemptStatus(errText string) string {
	if errText == "" {
		return "ok"
	}
	return errText
}

func printResult(result *workflow.Result) {
	fmt.Printf("run:        %s\n", result.RunID)
	fmt.Printf("visit:      %s\n", result.VisitID)
	fmt.Printf("decision:   %s\n", decisionString(result.Decision))
	if result.FusedProbability != nil {
		fmt.Printf("fused:      %.3f\n", *result.FusedProbability)
		fmt.Printf("confidence: %.2f\n", result.ConfidenceScore)
	}
	if result.Rationale != "" {
		fmt.Printf("rationale:  %s\n", result.Rationale)
	}
	if result.Suspended {
		fmt.Println(color.YellowString("suspended awaiting review; resume with: triage resume -run %s -note \"...\"", result.RunID))
	}
	for _, errText := range result.Errors {
		fmt.Println(color.YellowString("degraded: %s", errText))
	}
}

func decisionString(d triage.Decision) string {
	switch d {
	case triage.DecisionAdmit:
		return color.RedString(string(d))
	case triage.DecisionDischarge:
		return color.GreenString(string(d))
	default:
		return color.YellowString(string(d))
	}
}
