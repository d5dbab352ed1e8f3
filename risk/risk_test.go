package risk

import (
	"testing"
	"time"

	"github.com/deepnoodle-ai/triage"
	"github.com/stretchr/testify/require"
)

func TestTemporalFeatures(t *testing.T) {
	// Saturday 2025-11-22 23:15 — weekend, night, holiday season.
	v := &triage.VisitRecord{
		Timestamp: time.Date(2025, time.November, 22, 23, 15, 0, 0, time.UTC),
	}
	f := TemporalFeatures(v)
	require.Equal(t, 23.0, f["hour_of_day"])
	require.Equal(t, 5.0, f["day_of_week"])
	require.Equal(t, 1.0, f["is_weekend"])
	require.Equal(t, 1.0, f["is_night"])
	require.Equal(t, 11.0, f["month"])
	require.Equal(t, 1.0, f["is_holiday_season"])
}

func TestTemporalFeaturesWeekdayMorning(t *testing.T) {
	// Tuesday 2025-06-10 09:00.
	v := &triage.VisitRecord{
		Timestamp: time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC),
	}
	f := TemporalFeatures(v)
	require.Equal(t, 1.0, f["day_of_week"])
	require.Equal(t, 0.0, f["is_weekend"])
	require.Equal(t, 0.0, f["is_night"])
	require.Equal(t, 0.0, f["is_holiday_season"])
}

func TestTemporalFeaturesZeroTimestamp(t *testing.T) {
	require.Empty(t, TemporalFeatures(&triage.VisitRecord{}))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		visit    *triage.VisitRecord
		history  triage.PatientHistory
		expected float64
	}{
		{
			name:     "healthy young adult",
			visit:    &triage.VisitRecord{AgeBucket: "18-34", ESI: 5},
			expected: 0.0,
		},
		{
			name: "elderly critical with abnormal vitals",
			visit: &triage.VisitRecord{
				AgeBucket:          "65+",
				ESI:                1,
				RecentAdmissions30: 3,
				Vitals: triage.Vitals{
					HeartRate:        triage.Float64(120),
					SystolicBP:       triage.Float64(80),
					OxygenSaturation: triage.Float64(90),
				},
			},
			// 0.2 age + 0.3 esi + 0.2 readmit cap + 0.15 vitals cap
			expected: 0.85,
		},
		{
			name:    "history drives admission rate term",
			visit:   &triage.VisitRecord{AgeBucket: "18-34", ESI: 5},
			history: triage.PatientHistory{{Admitted: true}, {Admitted: true}},
			// admission rate 1.0 * 0.15
			expected: 0.15,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expected, Score(tc.visit, tc.history), 1e-9)
		})
	}
}

func TestScoreCappedAtOne(t *testing.T) {
	visit := &triage.VisitRecord{
		AgeBucket:          "65+",
		ESI:                1,
		RecentAdmissions30: 10,
		Vitals: triage.Vitals{
			HeartRate:        triage.Float64(140),
			SystolicBP:       triage.Float64(70),
			OxygenSaturation: triage.Float64(85),
		},
	}
	history := triage.PatientHistory{{Admitted: true}}
	require.LessOrEqual(t, Score(visit, history), 1.0)
}

func TestFeatures(t *testing.T) {
	visit := &triage.VisitRecord{
		AgeBucket:          "50-64",
		ESI:                3,
		RecentAdmissions30: 1,
		Timestamp:          time.Date(2025, time.March, 3, 14, 0, 0, 0, time.UTC),
	}
	history := triage.PatientHistory{{Admitted: true}, {Admitted: false}}
	f := Features(visit, history)
	require.Equal(t, 2.0, f["historical_visit_count"])
	require.Equal(t, 1.0, f["historical_admission_count"])
	require.Equal(t, 0.5, f["historical_admission_rate"])
	require.Equal(t, 1.0, f["recent_admissions_30d"])
	require.Greater(t, f["risk_score"], 0.0)
}
