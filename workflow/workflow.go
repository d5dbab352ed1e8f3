package workflow

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/triage"
	"github.com/deepnoodle-ai/triage/config"
	"github.com/deepnoodle-ai/triage/retry"
	"github.com/deepnoodle-ai/triage/risk"
	"github.com/deepnoodle-ai/triage/slogger"
)

// Workflow is the admission decision engine: a deterministic state machine
// that orchestrates the injected predictors, fusion reasoner, and optional
// human input into one decision per visit.
type Workflow struct {
	config     config.Config
	graph      *Graph
	provider   triage.DataProvider
	structured triage.StructuredPredictor
	text       triage.TextPredictor
	fusion     triage.FusionReasoner
	review     triage.ReviewChannel
	store      TraceStore
	logger     slogger.Logger
}

// Options configures a new workflow. Provider, Structured, Text, and Fusion
// are required; Review is optional and its absence makes low-confidence runs
// suspend instead of waiting in-process.
type Options struct {
	Config     config.Config
	Provider   triage.DataProvider
	Structured triage.StructuredPredictor
	Text       triage.TextPredictor
	Fusion     triage.FusionReasoner
	Review     triage.ReviewChannel
	Store      TraceStore
	Logger     slogger.Logger
}

// New creates a workflow from validated options.
func New(opts Options) (*Workflow, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("data provider is required")
	}
	if opts.Structured == nil {
		return nil, fmt.Errorf("structured predictor is required")
	}
	if opts.Text == nil {
		return nil, fmt.Errorf("text predictor is required")
	}
	if opts.Fusion == nil {
		return nil, fmt.Errorf("fusion reasoner is required")
	}
	if opts.Store == nil {
		opts.Store = NewNullTraceStore()
	}
	if opts.Logger == nil {
		opts.Logger = slogger.DefaultLogger
	}
	graph := DecisionGraph()
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision graph: %w", err)
	}
	return &Workflow{
		config:     opts.Config,
		graph:      graph,
		provider:   opts.Provider,
		structured: opts.Structured,
		text:       opts.Text,
		fusion:     opts.Fusion,
		review:     opts.Review,
		store:      opts.Store,
		logger:     opts.Logger,
	}, nil
}

// Result is the outcome of one run.
type Result struct {
	RunID            string          `json:"run_id"`
	VisitID          string          `json:"visit_id"`
	Decision         triage.Decision `json:"decision"`
	FusedProbability *float64        `json:"fused_probability,omitempty"`
	Rationale        string          `json:"rationale,omitempty"`
	ConfidenceScore  float64         `json:"confidence_score"`
	Status           Status          `json:"status"`
	Suspended        bool            `json:"suspended,omitempty"`
	Trace            []*TraceEvent   `json:"trace"`
	Errors           []string        `json:"errors,omitempty"`
}

// Run fetches the visit and drives it through the decision graph. The fetch
// phase happens before the graph: the visit record, patient history, and risk
// features are inputs to every node, not nodes themselves. A cancelled run
// finalizes as PENDING_REVIEW and returns a result, not an error.
func (w *Workflow) Run(ctx context.Context, visitID string) (*Result, error) {
	if visitID == "" {
		return nil, fmt.Errorf("visit id is required")
	}

	policy := retry.Policy{
		MaxAttempts: w.config.MaxAttempts,
		BaseWait:    w.config.RetryBaseWait,
	}

	var visit *triage.VisitRecord
	_, err := retry.Do(ctx, policy, func() error {
		var fetchErr error
		visit, fetchErr = w.provider.FetchVisit(ctx, visitID)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch visit %s: %w", visitID, err)
	}
	if err := visit.Validate(); err != nil {
		return nil, err
	}

	state := NewState(NewRunID(), visit)

	// A missing history degrades to an empty one rather than blocking the
	// decision; the failure is still recorded on the run.
	var history triage.PatientHistory
	_, err = retry.Do(ctx, policy, func() error {
		var fetchErr error
		history, fetchErr = w.provider.FetchHistory(ctx, visit.PatientID)
		return fetchErr
	})
	if err != nil {
		w.logger.Warn("failed to fetch patient history",
			"patient_id", visit.PatientID, "error", err)
		state.AppendError("fetch_history", err)
		history = triage.PatientHistory{}
	}
	state.History = history
	state.RiskFeatures = risk.Features(visit, history)

	w.logger.Info("starting run",
		"run_id", state.RunID, "visit_id", visit.VisitID, "esi", visit.ESI)

	execution := w.newExecution(state)
	return execution.run(ctx, NodeSeverityCheck)
}

// Resume continues a run suspended for review. An empty note means the
// reviewer declined to add context; the run finalizes on the signals it
// already has. A note triggers re-fusion with the note included.
func (w *Workflow) Resume(ctx context.Context, runID, note string) (*Result, error) {
	checkpoint, err := w.store.GetCheckpoint(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for run %s: %w", runID, err)
	}
	if checkpoint.Status != StatusWaitingReview {
		return nil, fmt.Errorf("run %s is %s, not awaiting review", runID, checkpoint.Status)
	}

	state := RestoreState(checkpoint.State)
	state.HumanNoteConsumed = true

	events, err := w.store.GetEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace for run %s: %w", runID, err)
	}
	state.Trace = events

	w.logger.Info("resuming run",
		"run_id", runID, "note_provided", note != "")

	start := NodeFinalize
	if note != "" {
		state.HumanNote = note
		start = NodeFusion
	}
	execution := w.newExecution(state)
	return execution.run(ctx, start)
}

// Graph returns the decision graph, for inspection and rendering.
func (w *Workflow) Graph() *Graph {
	return w.graph
}

func (w *Workflow) newExecution(state *State) *Execution {
	return &Execution{
		workflow: w,
		graph:    w.graph,
		state:    state,
		store:    w.store,
		logger:   w.logger,
	}
}
