// Package triage defines the domain model and external collaborator contracts
// for the admission decision workflow. The orchestration engine itself lives in
// the workflow subpackage; everything here is plain data plus the interfaces
// the engine consumes.
package triage

import (
	"fmt"
	"time"
)

// Decision is the terminal classification for a single visit.
type Decision string

const (
	DecisionAdmit         Decision = "ADMIT"
	DecisionDischarge     Decision = "DISCHARGE"
	DecisionPendingReview Decision = "PENDING_REVIEW"
)

// Terminal reports whether the decision is final.
func (d Decision) Terminal() bool {
	return d == DecisionAdmit || d == DecisionDischarge
}

// CanTransition reports whether a transition from d to next is legal.
// The only legal transitions are PENDING_REVIEW to ADMIT or DISCHARGE.
func (d Decision) CanTransition(next Decision) bool {
	if d == next {
		return true
	}
	return d == DecisionPendingReview && next.Terminal()
}

// Vitals holds the structured measurements recorded at triage. Each value is
// nullable since measurements are routinely missing from real visit rows.
type Vitals struct {
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	SystolicBP       *float64 `json:"bp_systolic,omitempty"`
	DiastolicBP      *float64 `json:"bp_diastolic,omitempty"`
	RespiratoryRate  *float64 `json:"resp_rate,omitempty"`
	TemperatureC     *float64 `json:"temperature_c,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
}

// VisitRecord identifies one patient encounter. Records are immutable once
// fetched: the Data Provider owns them and the workflow only reads.
type VisitRecord struct {
	VisitID            string    `json:"visit_id"`
	PatientID          string    `json:"patient_id"`
	Sex                string    `json:"sex,omitempty"`
	AgeBucket          string    `json:"age_bucket,omitempty"`
	Vitals             Vitals    `json:"vitals"`
	TriageNote         string    `json:"triage_note,omitempty"`
	ESI                int       `json:"esi"`
	Admitted           bool      `json:"admitted,omitempty"`
	RecentAdmissions30 int       `json:"recent_admissions_30d,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Validate checks the contract-level requirements for a fetched record.
func (v *VisitRecord) Validate() error {
	if v.VisitID == "" {
		return NewFatalError(fmt.Errorf("visit record missing visit id"))
	}
	if v.ESI < 1 || v.ESI > 5 {
		return NewFatalError(fmt.Errorf("visit %s: esi %d out of range 1-5", v.VisitID, v.ESI))
	}
	return nil
}

// PatientHistory is the ordered sequence of prior visits for the same patient,
// oldest first. Read-only, fetched once per execution.
type PatientHistory []*VisitRecord

// Admissions returns the number of prior visits that ended in admission.
func (h PatientHistory) Admissions() int {
	var n int
	for _, v := range h {
		if v.Admitted {
			n++
		}
	}
	return n
}

// AdmissionRate returns prior admissions divided by prior visits, or zero when
// there is no history.
func (h PatientHistory) AdmissionRate() float64 {
	if len(h) == 0 {
		return 0
	}
	return float64(h.Admissions()) / float64(len(h))
}

// Prediction is the uniform output shape of the structured and text
// predictors: a probability of admission, an optional label, and the raw
// model output for auditing.
type Prediction struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"label,omitempty"`
	Raw         string  `json:"raw,omitempty"`
}

// Clamp bounds the probability to [0, 1]. Predictor adapters occasionally
// return values just outside the range.
func (p Prediction) Clamp() Prediction {
	if p.Probability < 0 {
		p.Probability = 0
	} else if p.Probability > 1 {
		p.Probability = 1
	}
	return p
}

// FusionInput aggregates everything the fusion reasoner sees. SeverityFlag is
// false by construction: severe cases never reach fusion.
type FusionInput struct {
	StructuredProbability *float64           `json:"structured_probability,omitempty"`
	TextProbability       *float64           `json:"text_probability,omitempty"`
	TextLabel             string             `json:"text_label,omitempty"`
	SeverityFlag          bool               `json:"severity_flag"`
	RiskFeatures          map[string]float64 `json:"risk_features,omitempty"`
	HumanNote             string             `json:"human_note,omitempty"`
	Context               string             `json:"context,omitempty"`
}

// Float64 returns a pointer to v. Convenience for optional fields.
func Float64(v float64) *float64 { return &v }
