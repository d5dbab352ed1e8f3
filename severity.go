package triage

import "fmt"

// SeverityThresholds holds the critical-vital cutoffs evaluated by the
// severity gate. The values are data-derived constants supplied through
// configuration; there are no built-in defaults.
type SeverityThresholds struct {
	MinOxygenSaturation float64 `json:"min_oxygen_saturation" yaml:"min_oxygen_saturation"`
	MinSystolicBP       float64 `json:"min_systolic_bp" yaml:"min_systolic_bp"`
	MaxRespiratoryRate  float64 `json:"max_respiratory_rate" yaml:"max_respiratory_rate"`
	MinRespiratoryRate  float64 `json:"min_respiratory_rate" yaml:"min_respiratory_rate"`
	CriticalESI         int     `json:"critical_esi" yaml:"critical_esi"`
}

// Validate checks that every threshold was supplied.
func (t SeverityThresholds) Validate() error {
	if t.MinOxygenSaturation <= 0 {
		return fmt.Errorf("severity threshold min_oxygen_saturation is required")
	}
	if t.MinSystolicBP <= 0 {
		return fmt.Errorf("severity threshold min_systolic_bp is required")
	}
	if t.MaxRespiratoryRate <= 0 {
		return fmt.Errorf("severity threshold max_respiratory_rate is required")
	}
	if t.MinRespiratoryRate <= 0 {
		return fmt.Errorf("severity threshold min_respiratory_rate is required")
	}
	if t.MinRespiratoryRate >= t.MaxRespiratoryRate {
		return fmt.Errorf("severity threshold min_respiratory_rate must be below max_respiratory_rate")
	}
	if t.CriticalESI < 1 || t.CriticalESI > 5 {
		return fmt.Errorf("severity threshold critical_esi must be in 1-5")
	}
	return nil
}

// EvaluateSeverity applies the immediate-admission rules to a visit. It is a
// pure function: no external calls, no randomness. Missing vitals never
// trigger a rule. Returns true and the name of the first rule that fired.
func EvaluateSeverity(visit *VisitRecord, t SeverityThresholds) (bool, string) {
	v := visit.Vitals
	if visit.ESI >= 1 && visit.ESI <= t.CriticalESI {
		return true, fmt.Sprintf("critical_esi (ESI %d)", visit.ESI)
	}
	if v.OxygenSaturation != nil && *v.OxygenSaturation < t.MinOxygenSaturation {
		return true, "low_oxygen_saturation"
	}
	if v.SystolicBP != nil && *v.SystolicBP < t.MinSystolicBP {
		return true, "low_systolic_bp"
	}
	if v.RespiratoryRate != nil {
		if *v.RespiratoryRate > t.MaxRespiratoryRate {
			return true, "high_respiratory_rate"
		}
		if *v.RespiratoryRate < t.MinRespiratoryRate {
			return true, "low_respiratory_rate"
		}
	}
	return false, ""
}
