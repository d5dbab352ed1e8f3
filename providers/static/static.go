// Package static implements deterministic, dependency-free adapters for the
// predictor and reasoner contracts. They score visits with fixed heuristics,
// which makes them suitable for local runs, demos, and tests.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/triage"
)

// StructuredPredictor scores structured visit data with a fixed heuristic
// over acuity, vitals, and history aggregates.
type StructuredPredictor struct{}

func NewStructuredPredictor() *StructuredPredictor {
	return &StructuredPredictor{}
}

func (p *StructuredPredictor) PredictStructured(ctx context.Context, visit *triage.VisitRecord, features map[string]float64) (triage.Prediction, error) {
	prob := 0.1

	switch visit.ESI {
	case 1:
		prob += 0.6
	case 2:
		prob += 0.45
	case 3:
		prob += 0.2
	case 4:
		prob += 0.05
	}

	if o2 := visit.Vitals.OxygenSaturation; o2 != nil && *o2 < 94 {
		prob += 0.15
	}
	if rr := visit.Vitals.RespiratoryRate; rr != nil && *rr > 24 {
		prob += 0.1
	}
	if hr := visit.Vitals.HeartRate; hr != nil && (*hr > 110 || *hr < 50) {
		prob += 0.05
	}

	prob += 0.1 * features["historical_admission_rate"]
	if features["recent_admissions_30d"] > 0 {
		prob += 0.05
	}

	label := "likely_discharge"
	if prob >= 0.5 {
		label = "likely_admit"
	}
	return triage.Prediction{Probability: prob, Label: label}.Clamp(), nil
}

// highRiskTerms raise the text score when they appear in the triage note.
var highRiskTerms = []string{
	"chest pain", "shortness of breath", "difficulty breathing", "unresponsive",
	"altered mental status", "severe", "syncope", "stroke", "sepsis",
	"hemorrhage", "overdose",
}

// lowRiskTerms lower the text score.
var lowRiskTerms = []string{
	"mild", "resolved", "improving", "stable", "minor", "chronic",
}

// TextPredictor scores the triage note by weighted keyword matching.
type TextPredictor struct{}

func NewTextPredictor() *TextPredictor {
	return &TextPredictor{}
}

func (p *TextPredictor) PredictText(ctx context.Context, note string) (triage.Prediction, error) {
	note = strings.ToLower(note)
	prob := 0.3
	for _, term := range highRiskTerms {
		if strings.Contains(note, term) {
			prob += 0.15
		}
	}
	for _, term := range lowRiskTerms {
		if strings.Contains(note, term) {
			prob -= 0.1
		}
	}

	label := "low_risk"
	if prob >= 0.5 {
		label = "high_risk"
	}
	return triage.Prediction{Probability: prob, Label: label, Raw: note}.Clamp(), nil
}

// Reasoner fuses the available signals with a fixed weighted mean and emits
// the same JSON shape a model-backed reasoner produces. A human note nudges
// the probability toward admission when it mentions a risk factor.
type Reasoner struct {
	structuredWeight float64
	textWeight       float64
}

// ReasonerOptions configures a static reasoner
type ReasonerOptions struct {
	StructuredWeight float64
	TextWeight       float64
}

func NewReasoner(opts ReasonerOptions) *Reasoner {
	if opts.StructuredWeight == 0 && opts.TextWeight == 0 {
		opts.StructuredWeight = 0.6
		opts.TextWeight = 0.4
	}
	return &Reasoner{
		structuredWeight: opts.StructuredWeight,
		textWeight:       opts.TextWeight,
	}
}

// noteRiskTerms shift the fused probability upward when the reviewer's note
// mentions them.
var noteRiskTerms = []string{
	"lives alone", "no support", "noncompliant", "non-compliant", "worse",
	"deteriorating", "concern", "frail", "fall risk",
}

func (r *Reasoner) Fuse(ctx context.Context, input triage.FusionInput) (string, error) {
	var sum, weight float64
	if p := input.StructuredProbability; p != nil {
		sum += r.structuredWeight * *p
		weight += r.structuredWeight
	}
	if p := input.TextProbability; p != nil {
		sum += r.textWeight * *p
		weight += r.textWeight
	}
	if weight == 0 {
		return "", triage.NewFatalError(fmt.Errorf("no signals to fuse"))
	}
	prob := sum / weight

	rationale := fmt.Sprintf("weighted mean of structured and text signals (%.2f)", prob)
	if input.HumanNote != "" {
		note := strings.ToLower(input.HumanNote)
		for _, term := range noteRiskTerms {
			if strings.Contains(note, term) {
				prob += 0.1
				rationale = fmt.Sprintf("reviewer note raises admission likelihood (%q)", term)
				break
			}
		}
	}
	if prob > 1 {
		prob = 1
	}

	out, err := json.Marshal(map[string]any{
		"admission_probability": prob,
		"rationale":             rationale,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Review is a canned review channel that always returns the configured note.
// Useful for demos and tests of the escalation path.
type Review struct {
	Note string
}

func (r *Review) RequestReview(ctx context.Context, prompt string) (string, bool, error) {
	if r.Note == "" {
		return "", false, nil
	}
	return r.Note, true, nil
}
