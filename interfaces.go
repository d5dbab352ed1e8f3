package triage

import "context"

// DataProvider fetches visit records and patient history. Implementations
// classify their failures as transient or fatal using the error wrappers in
// this package; unwrapped errors are treated as fatal.
type DataProvider interface {
	FetchVisit(ctx context.Context, visitID string) (*VisitRecord, error)
	FetchHistory(ctx context.Context, patientID string) (PatientHistory, error)
}

// StructuredPredictor scores a visit's structured features. It must be safe to
// call concurrently with a TextPredictor operating on the same inputs, and is
// invoked at most once per execution.
type StructuredPredictor interface {
	PredictStructured(ctx context.Context, visit *VisitRecord, features map[string]float64) (Prediction, error)
}

// TextPredictor scores the free-text triage note. Same concurrency and
// at-most-once contract as StructuredPredictor. Notes arrive pre-redacted;
// implementations must not attempt further de-identification.
type TextPredictor interface {
	PredictText(ctx context.Context, note string) (Prediction, error)
}

// FusionReasoner synthesizes the available signals into a final probability
// and rationale. The raw output may be malformed or only partially structured;
// the engine parses it tolerantly and never depends on well-formedness.
type FusionReasoner interface {
	Fuse(ctx context.Context, input FusionInput) (raw string, err error)
}

// ReviewChannel requests human input for a low-confidence case. It returns the
// note and ok=true, or ok=false when no input arrived within the channel's
// bound. Returning ok=false is not an error: the engine proceeds without
// human input.
type ReviewChannel interface {
	RequestReview(ctx context.Context, prompt string) (note string, ok bool, err error)
}
