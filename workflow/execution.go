package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/triage"
	"github.com/deepnoodle-ai/triage/jsonparse"
	"github.com/deepnoodle-ai/triage/retry"
	"github.com/deepnoodle-ai/triage/slogger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// neutralProbability is substituted when a predictor fails on every attempt.
// It carries no signal either way; the fused decision must not lean on it.
const neutralProbability = 0.5

// errSuspended stops the run loop when a review is pending and no review
// channel is configured. It never escapes Run.
var errSuspended = errors.New("run suspended awaiting review")

// Execution drives one visit through the decision graph.
type Execution struct {
	workflow  *Workflow
	graph     *Graph
	state     *State
	store     TraceStore
	logger    slogger.Logger
	cancelled bool
	suspended bool
}

// run walks the graph from the given node until an end node completes or the
// run suspends. Handlers return the name of the next node; transitions are
// checked against the graph's declared edges.
func (e *Execution) run(ctx context.Context, start string) (*Result, error) {
	e.state.Status = StatusRunning

	current := start
	for current != "" {
		if ctx.Err() != nil && current != NodeFinalize && !e.cancelled {
			e.markCancelled(ctx)
			current = NodeFinalize
			continue
		}

		var next string
		var err error
		switch current {
		case NodeSeverityCheck:
			next, err = e.runSeverityCheck(ctx)
		case NodePredict:
			next, err = e.runPredict(ctx)
		case NodeFusion:
			next, err = e.runFusion(ctx)
		case NodeConfidenceCheck:
			next, err = e.runConfidenceCheck(ctx)
		case NodeHumanReview:
			next, err = e.runHumanReview(ctx)
		case NodeFinalize:
			next, err = e.runFinalize(ctx)
		default:
			err = fmt.Errorf("unknown node %q", current)
		}
		if err != nil {
			if errors.Is(err, errSuspended) {
				return e.result(), nil
			}
			e.state.Status = StatusFailed
			e.saveCheckpoint(ctx)
			return nil, fmt.Errorf("node %s: %w", current, err)
		}
		if next != "" && !e.cancelled {
			step, ok := e.graph.Get(current)
			if !ok || !step.HasEdgeTo(next) {
				e.state.Status = StatusFailed
				return nil, fmt.Errorf("undeclared transition %s -> %s", current, next)
			}
		}
		current = next
	}

	e.state.Status = StatusCompleted
	e.saveCheckpoint(ctx)
	return e.result(), nil
}

func (e *Execution) runSeverityCheck(ctx context.Context) (string, error) {
	_, err := e.executeNode(ctx, nodeCall{
		Name:   NodeSeverityCheck,
		Policy: retry.Policy{MaxAttempts: 1},
		Run: func(ctx context.Context) (map[string]any, error) {
			flag, reason := triage.EvaluateSeverity(e.state.Visit, e.workflow.config.Severity)
			e.state.SeverityFlag = flag
			e.state.SeverityReason = reason
			payload := map[string]any{"severity_flag": flag}
			if reason != "" {
				payload["reason"] = reason
			}
			return payload, nil
		},
	})
	if err != nil {
		return "", err
	}
	if e.state.SeverityFlag {
		e.logger.Info("severity gate triggered",
			"run_id", e.state.RunID, "reason", e.state.SeverityReason)
		return NodeFinalize, nil
	}
	return NodePredict, nil
}

// runPredict fans out to the structured and text predictors in parallel. Each
// predictor records its own trace event; a join event is added only when both
// end on fallback values.
func (e *Execution) runPredict(ctx context.Context) (string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.runStructuredPredict(gctx) })
	g.Go(func() error { return e.runTextPredict(gctx) })
	if err := g.Wait(); err != nil {
		return "", err
	}
	// A cancellation mid-fan-out forces both predictors onto their fallbacks;
	// the trace must record the cancellation, not an insufficient signal.
	if ctx.Err() != nil && !e.cancelled {
		e.markCancelled(ctx)
		return NodeFinalize, nil
	}
	if insufficientSignal(e.state) {
		e.recordEvent(ctx, e.newEvent(NodePredict, OutcomeFailure, map[string]any{
			"reason": "insufficient signal: both predictors failed",
		}))
		return NodeFinalize, nil
	}
	return NodeFusion, nil
}

func (e *Execution) runStructuredPredict(ctx context.Context) error {
	_, err := e.executeNode(ctx, nodeCall{
		Name:   NodeStructuredPredict,
		Policy: e.retryPolicy(),
		Run: func(ctx context.Context) (map[string]any, error) {
			p, err := e.workflow.structured.PredictStructured(ctx, e.state.Visit, e.state.RiskFeatures)
			if err != nil {
				return nil, err
			}
			p = p.Clamp()
			e.state.Structured = &Signal{Probability: p.Probability, Label: p.Label}
			return map[string]any{"probability": p.Probability, "label": p.Label}, nil
		},
		Fallback: func(err error) map[string]any {
			e.state.Structured = &Signal{Probability: neutralProbability, IsFallback: true}
			return map[string]any{"probability": neutralProbability}
		},
	})
	return err
}

func (e *Execution) runTextPredict(ctx context.Context) error {
	_, err := e.executeNode(ctx, nodeCall{
		Name:   NodeTextPredict,
		Policy: e.retryPolicy(),
		Run: func(ctx context.Context) (map[string]any, error) {
			p, err := e.workflow.text.PredictText(ctx, e.state.Visit.TriageNote)
			if err != nil {
				return nil, err
			}
			p = p.Clamp()
			e.state.Text = &Signal{Probability: p.Probability, Label: p.Label}
			return map[string]any{"probability": p.Probability, "label": p.Label}, nil
		},
		Fallback: func(err error) map[string]any {
			e.state.Text = &Signal{Probability: neutralProbability, IsFallback: true}
			return map[string]any{"probability": neutralProbability}
		},
	})
	return err
}

func (e *Execution) runFusion(ctx context.Context) (string, error) {
	input := triage.FusionInput{
		RiskFeatures: e.state.RiskFeatures,
		HumanNote:    e.state.HumanNote,
		Context:      e.state.Visit.TriageNote,
	}
	if s := e.state.Structured; s != nil {
		input.StructuredProbability = triage.Float64(s.Probability)
	}
	if s := e.state.Text; s != nil {
		input.TextProbability = triage.Float64(s.Probability)
		input.TextLabel = s.Label
	}

	// The structured signal is the anchor when the reasoner's output cannot
	// be parsed at all.
	defaultProbability := neutralProbability
	if e.state.Structured != nil {
		defaultProbability = e.state.Structured.Probability
	}

	_, err := e.executeNode(ctx, nodeCall{
		Name:   NodeFusion,
		Policy: e.retryPolicy(),
		Run: func(ctx context.Context) (map[string]any, error) {
			raw, err := e.workflow.fusion.Fuse(ctx, input)
			if err != nil {
				return nil, err
			}
			res := jsonparse.Extract(raw,
				[]string{"admission_probability", "rationale"},
				map[string]any{
					"admission_probability": defaultProbability,
					"rationale":             "fusion parse failed, falling back to structured signal",
				})
			prob, _ := res.Float("admission_probability")
			prob = clamp01(prob)
			rationale, _ := res.String("rationale")
			e.state.AddFusion(FusionAttempt{
				Probability: prob,
				Rationale:   rationale,
				ParseTier:   string(res.Tier),
				Degraded:    res.Degraded,
				HumanNote:   e.state.HumanNote,
				Timestamp:   time.Now(),
			})
			return map[string]any{
				"probability": prob,
				"rationale":   rationale,
				"parse_tier":  string(res.Tier),
			}, nil
		},
		Fallback: func(err error) map[string]any {
			prob := e.meanSignal()
			e.state.AddFusion(FusionAttempt{
				Probability: prob,
				Rationale:   "fusion reasoner unavailable, using mean of predictor signals",
				Degraded:    true,
				HumanNote:   e.state.HumanNote,
				Timestamp:   time.Now(),
			})
			return map[string]any{"probability": prob}
		},
	})
	if err != nil {
		return "", err
	}
	return NodeConfidenceCheck, nil
}

func (e *Execution) runConfidenceCheck(ctx context.Context) (string, error) {
	fusion, ok := e.state.LatestFusion()
	if !ok {
		return "", fmt.Errorf("confidence check reached without a fused probability")
	}
	threshold := *e.workflow.config.AdmissionThreshold
	band := effectiveBand(*e.workflow.config.ConfidenceBand,
		e.workflow.config.RiskAdjustedBand, e.state.RiskFeatures)

	e.state.ConfidenceScore = confidenceScore(fusion.Probability, threshold, band)
	within := withinBand(fusion.Probability, threshold, band)

	_, err := e.executeNode(ctx, nodeCall{
		Name:   NodeConfidenceCheck,
		Policy: retry.Policy{MaxAttempts: 1},
		Run: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{
				"fused_probability": fusion.Probability,
				"threshold":         threshold,
				"band":              band,
				"confidence":        e.state.ConfidenceScore,
				"within_band":       within,
			}, nil
		},
	})
	if err != nil {
		return "", err
	}
	if within && !e.state.HumanNoteConsumed {
		return NodeHumanReview, nil
	}
	return NodeFinalize, nil
}

// runHumanReview escalates a low-confidence case. With a review channel
// configured it waits, bounded by the review timeout, for a note in-process.
// Without one the run suspends: the checkpoint is saved and Resume picks the
// run back up when input arrives.
func (e *Execution) runHumanReview(ctx context.Context) (string, error) {
	prompt := e.reviewPrompt()

	if e.workflow.review == nil {
		e.state.Status = StatusWaitingReview
		e.recordEvent(ctx, e.newEvent(NodeHumanReview, OutcomeSuccess, map[string]any{
			"prompt":         prompt,
			"awaiting_input": true,
		}))
		e.saveCheckpoint(ctx)
		e.suspended = true
		e.logger.Info("run suspended awaiting review", "run_id", e.state.RunID)
		return "", errSuspended
	}

	rctx := ctx
	if timeout := e.workflow.config.ReviewTimeout; timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	note, ok, err := e.workflow.review.RequestReview(rctx, prompt)
	e.state.HumanNoteConsumed = true

	event := e.newEvent(NodeHumanReview, OutcomeSuccess, nil)
	event.StartedAt = started

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled while waiting on input.
			event.Outcome = OutcomeFailure
			event.Payload = map[string]any{"error": err.Error()}
			e.recordEvent(ctx, event)
			e.markCancelled(ctx)
			return NodeFinalize, nil
		}
		e.state.AppendError(NodeHumanReview, err)
		event.Outcome = OutcomeFailure
		event.Payload = map[string]any{"error": err.Error()}
		e.recordEvent(ctx, event)
		return NodeFinalize, nil
	}
	if !ok || note == "" {
		event.Payload = map[string]any{"note_provided": false}
		e.recordEvent(ctx, event)
		return NodeFinalize, nil
	}

	e.state.HumanNote = note
	event.Payload = map[string]any{"note_provided": true}
	e.recordEvent(ctx, event)
	return NodeFusion, nil
}

func (e *Execution) runFinalize(ctx context.Context) (string, error) {
	_, err := e.executeNode(ctx, nodeCall{
		Name:   NodeFinalize,
		Policy: retry.Policy{MaxAttempts: 1},
		Run: func(ctx context.Context) (map[string]any, error) {
			decision := triage.DecisionPendingReview
			var rationale string

			fusion, fused := e.state.LatestFusion()
			switch {
			case e.state.SeverityFlag:
				decision = triage.DecisionAdmit
				rationale = "severity gate: " + e.state.SeverityReason
			case e.cancelled:
				rationale = "run cancelled before a decision was reached"
			case insufficientSignal(e.state):
				rationale = "insufficient signal: both predictors failed"
			case !fused:
				rationale = "no fused probability available"
			case fusion.Probability >= *e.workflow.config.AdmissionThreshold:
				decision = triage.DecisionAdmit
				rationale = fusion.Rationale
			default:
				decision = triage.DecisionDischarge
				rationale = fusion.Rationale
			}

			// Degraded inputs behind the fused probability must surface in
			// the rationale itself, not just the trace.
			if fused {
				if notes := e.degradationNotes(fusion); len(notes) > 0 {
					rationale += " (" + strings.Join(notes, "; ") + ")"
				}
			}

			if decision.Terminal() {
				if err := e.state.SetDecision(decision); err != nil {
					return nil, err
				}
			}
			e.state.Rationale = rationale

			payload := map[string]any{
				"decision":  string(e.state.Decision),
				"rationale": rationale,
			}
			if fused {
				payload["fused_probability"] = fusion.Probability
				payload["confidence"] = e.state.ConfidenceScore
			}
			return payload, nil
		},
	})
	if err != nil {
		return "", err
	}
	e.logger.Info("decision finalized",
		"run_id", e.state.RunID,
		"visit_id", e.state.Visit.VisitID,
		"decision", string(e.state.Decision))
	return "", nil
}

// degradationNotes lists the fallback and degraded paths behind the fused
// probability. The default-tier and reasoner-unavailable rationales already
// state their own degradation, so only the silent paths contribute a note.
func (e *Execution) degradationNotes(fusion FusionAttempt) []string {
	var notes []string
	if s := e.state.Structured; s != nil && s.IsFallback {
		notes = append(notes, "structured signal replaced by neutral fallback")
	}
	if s := e.state.Text; s != nil && s.IsFallback {
		notes = append(notes, "text signal replaced by neutral fallback")
	}
	if fusion.Degraded {
		switch jsonparse.Tier(fusion.ParseTier) {
		case jsonparse.TierBraces, jsonparse.TierPattern:
			notes = append(notes, "fusion output recovered by tolerant parsing ("+fusion.ParseTier+")")
		}
	}
	return notes
}

// markCancelled records the cancellation on the trace and routes the run to a
// safe terminal state.
func (e *Execution) markCancelled(ctx context.Context) {
	e.cancelled = true
	e.recordEvent(ctx, e.newEvent("cancellation", OutcomeFailure, map[string]any{
		"error": context.Cause(ctx).Error(),
	}))
}

func (e *Execution) reviewPrompt() string {
	fusion, _ := e.state.LatestFusion()
	return fmt.Sprintf(
		"Visit %s: fused admission probability %.2f is within the uncertainty band (confidence %.2f). Provide additional clinical context, or submit nothing to proceed without it.",
		e.state.Visit.VisitID, fusion.Probability, e.state.ConfidenceScore)
}

func (e *Execution) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: e.workflow.config.MaxAttempts,
		BaseWait:    e.workflow.config.RetryBaseWait,
	}
}

// meanSignal averages the available predictor probabilities.
func (e *Execution) meanSignal() float64 {
	var sum float64
	var n int
	if s := e.state.Structured; s != nil {
		sum += s.Probability
		n++
	}
	if s := e.state.Text; s != nil {
		sum += s.Probability
		n++
	}
	if n == 0 {
		return neutralProbability
	}
	return sum / float64(n)
}

func (e *Execution) newEvent(node string, outcome Outcome, payload map[string]any) *TraceEvent {
	now := time.Now()
	return &TraceEvent{
		ID:        "event-" + uuid.NewString(),
		RunID:     e.state.RunID,
		VisitID:   e.state.Visit.VisitID,
		Node:      node,
		Sequence:  e.state.NextSequence(),
		StartedAt: now,
		EndedAt:   now,
		Outcome:   outcome,
		Payload:   payload,
	}
}

func (e *Execution) saveCheckpoint(ctx context.Context) {
	checkpoint := &Checkpoint{
		RunID:   e.state.RunID,
		VisitID: e.state.Visit.VisitID,
		Status:  e.state.Status,
		State:   e.state.Snapshot(),
	}
	if err := e.store.SaveCheckpoint(context.WithoutCancel(ctx), checkpoint); err != nil {
		e.logger.Warn("failed to save checkpoint",
			"run_id", e.state.RunID, "error", err)
	}
}

func (e *Execution) result() *Result {
	res := &Result{
		RunID:           e.state.RunID,
		VisitID:         e.state.Visit.VisitID,
		Decision:        e.state.Decision,
		Rationale:       e.state.Rationale,
		ConfidenceScore: e.state.ConfidenceScore,
		Status:          e.state.Status,
		Suspended:       e.suspended,
		Trace:           e.state.Trace,
		Errors:          e.state.Errors,
	}
	if fusion, ok := e.state.LatestFusion(); ok {
		res.FusedProbability = triage.Float64(fusion.Probability)
	}
	return res
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
