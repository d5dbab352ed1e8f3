// Package risk derives auxiliary signals from a visit and its patient
// history: temporal features of the encounter time and a composite risk score
// used to contextualize fusion and confidence routing.
package risk

import (
	"github.com/deepnoodle-ai/triage"
)

// TemporalFeatures derives calendar features from the visit timestamp.
// A zero timestamp yields an empty map.
func TemporalFeatures(v *triage.VisitRecord) map[string]float64 {
	if v.Timestamp.IsZero() {
		return map[string]float64{}
	}
	t := v.Timestamp
	features := map[string]float64{
		"hour_of_day": float64(t.Hour()),
		"day_of_week": float64((int(t.Weekday()) + 6) % 7), // 0=Monday
		"month":       float64(int(t.Month())),
	}
	features["is_weekend"] = boolFeature(features["day_of_week"] >= 5)
	features["is_night"] = boolFeature(t.Hour() >= 22 || t.Hour() < 6)
	m := int(t.Month())
	features["is_holiday_season"] = boolFeature(m == 11 || m == 12 || m == 1)
	return features
}

// Score computes a composite patient risk score in [0, 1] from the visit and
// its history. Contributions: age bucket (0-0.2), ESI (0-0.3), recent
// readmissions (0-0.2), historical admission rate (0-0.15), and vital
// abnormalities (0-0.15).
func Score(v *triage.VisitRecord, history triage.PatientHistory) float64 {
	var score float64

	switch v.AgeBucket {
	case "0-17":
		score += 0.1
	case "35-49":
		score += 0.05
	case "50-64":
		score += 0.1
	case "65+":
		score += 0.2
	}

	switch v.ESI {
	case 1:
		score += 0.3
	case 2:
		score += 0.25
	case 3:
		score += 0.1
	case 4:
		score += 0.05
	case 5:
		// no contribution
	default:
		score += 0.1
	}

	readmit := float64(v.RecentAdmissions30) * 0.1
	if readmit > 0.2 {
		readmit = 0.2
	}
	score += readmit

	score += history.AdmissionRate() * 0.15

	var vitals float64
	if hr := v.Vitals.HeartRate; hr != nil && (*hr > 100 || *hr < 60) {
		vitals += 0.05
	}
	if bp := v.Vitals.SystolicBP; bp != nil && (*bp > 160 || *bp < 90) {
		vitals += 0.05
	}
	if o2 := v.Vitals.OxygenSaturation; o2 != nil && *o2 < 95 {
		vitals += 0.05
	}
	if vitals > 0.15 {
		vitals = 0.15
	}
	score += vitals

	if score > 1 {
		score = 1
	}
	return score
}

// Features combines the temporal features, history aggregates, and the
// composite score into the named feature map carried on the execution state.
func Features(v *triage.VisitRecord, history triage.PatientHistory) map[string]float64 {
	features := TemporalFeatures(v)
	features["historical_visit_count"] = float64(len(history))
	features["historical_admission_count"] = float64(history.Admissions())
	features["historical_admission_rate"] = history.AdmissionRate()
	features["recent_admissions_30d"] = float64(v.RecentAdmissions30)
	features["risk_score"] = Score(v, history)
	return features
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
