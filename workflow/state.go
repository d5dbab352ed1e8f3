package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/deepnoodle-ai/triage"
)

// Status represents the lifecycle of a run
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusWaitingReview Status = "waiting_review"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Signal is the output of one predictor, normalized to an admission
// probability. IsFallback marks a neutral value substituted after the
// predictor failed.
type Signal struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"label,omitempty"`
	IsFallback  bool    `json:"is_fallback,omitempty"`
}

// FusionAttempt is one fused probability with its rationale. A run may hold
// several attempts when human input triggers re-fusion; the latest wins and
// earlier attempts remain for the trace.
type FusionAttempt struct {
	Probability float64   `json:"probability"`
	Rationale   string    `json:"rationale"`
	ParseTier   string    `json:"parse_tier,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	HumanNote   string    `json:"human_note,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// State is the single shared record a run accumulates. It is owned by one
// execution; the mutex guards the fields that parallel predictor nodes touch
// concurrently (trace, errors, sequence counter).
type State struct {
	mu sync.Mutex

	RunID        string
	Visit        *triage.VisitRecord
	History      triage.PatientHistory
	RiskFeatures map[string]float64

	SeverityFlag   bool
	SeverityReason string

	Structured *Signal
	Text       *Signal

	Fusions           []FusionAttempt
	ConfidenceScore   float64
	HumanNote         string
	HumanNoteConsumed bool

	Decision  triage.Decision
	Rationale string

	Status   Status
	Trace    []*TraceEvent
	Errors   []string
	eventSeq int64
}

// NewState creates run state for a visit
func NewState(runID string, visit *triage.VisitRecord) *State {
	return &State{
		RunID:    runID,
		Visit:    visit,
		Decision: triage.DecisionPendingReview,
		Status:   StatusPending,
	}
}

// NextSequence returns the next trace sequence number.
func (s *State) NextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventSeq++
	return s.eventSeq
}

// AppendTrace appends a trace event to the run's trace.
func (s *State) AppendTrace(event *TraceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trace = append(s.Trace, event)
}

// AppendError records a node failure message.
func (s *State) AppendError(node string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", node, err))
}

// SetDecision transitions the decision. Only the pending state may move to a
// terminal state; terminal decisions never change.
func (s *State) SetDecision(d triage.Decision) error {
	if !s.Decision.CanTransition(d) {
		return fmt.Errorf("invalid decision transition %q -> %q", s.Decision, d)
	}
	s.Decision = d
	return nil
}

// AddFusion appends a fusion attempt. The latest attempt supersedes earlier
// ones for routing and finalization.
func (s *State) AddFusion(attempt FusionAttempt) {
	s.Fusions = append(s.Fusions, attempt)
}

// LatestFusion returns the most recent fusion attempt, if any.
func (s *State) LatestFusion() (FusionAttempt, bool) {
	if len(s.Fusions) == 0 {
		return FusionAttempt{}, false
	}
	return s.Fusions[len(s.Fusions)-1], true
}

// Snapshot is the serializable form of run state used for checkpoints.
type Snapshot struct {
	RunID             string                `json:"run_id"`
	Visit             *triage.VisitRecord   `json:"visit"`
	History           []*triage.VisitRecord `json:"history,omitempty"`
	RiskFeatures      map[string]float64    `json:"risk_features,omitempty"`
	SeverityFlag      bool                  `json:"severity_flag"`
	SeverityReason    string                `json:"severity_reason,omitempty"`
	Structured        *Signal               `json:"structured,omitempty"`
	Text              *Signal               `json:"text,omitempty"`
	Fusions           []FusionAttempt       `json:"fusions,omitempty"`
	ConfidenceScore   float64               `json:"confidence_score"`
	HumanNote         string                `json:"human_note,omitempty"`
	HumanNoteConsumed bool                  `json:"human_note_consumed"`
	Decision          triage.Decision       `json:"decision"`
	Rationale         string                `json:"rationale,omitempty"`
	Status            Status                `json:"status"`
	Errors            []string              `json:"errors,omitempty"`
	EventSeq          int64                 `json:"event_seq"`
}

// Snapshot captures the state for persistence. Trace events are persisted
// separately by the trace store and are not part of the snapshot.
func (s *State) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		RunID:             s.RunID,
		Visit:             s.Visit,
		History:           s.History,
		RiskFeatures:      s.RiskFeatures,
		SeverityFlag:      s.SeverityFlag,
		SeverityReason:    s.SeverityReason,
		Structured:        s.Structured,
		Text:              s.Text,
		Fusions:           s.Fusions,
		ConfidenceScore:   s.ConfidenceScore,
		HumanNote:         s.HumanNote,
		HumanNoteConsumed: s.HumanNoteConsumed,
		Decision:          s.Decision,
		Rationale:         s.Rationale,
		Status:            s.Status,
		Errors:            s.Errors,
		EventSeq:          s.eventSeq,
	}
}

// RestoreState rebuilds run state from a snapshot.
func RestoreState(snap *Snapshot) *State {
	return &State{
		RunID:             snap.RunID,
		Visit:             snap.Visit,
		History:           snap.History,
		RiskFeatures:      snap.RiskFeatures,
		SeverityFlag:      snap.SeverityFlag,
		SeverityReason:    snap.SeverityReason,
		Structured:        snap.Structured,
		Text:              snap.Text,
		Fusions:           snap.Fusions,
		ConfidenceScore:   snap.ConfidenceScore,
		HumanNote:         snap.HumanNote,
		HumanNoteConsumed: snap.HumanNoteConsumed,
		Decision:          snap.Decision,
		Rationale:         snap.Rationale,
		Status:            snap.Status,
		Errors:            snap.Errors,
		eventSeq:          snap.EventSeq,
	}
}
