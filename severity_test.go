package triage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testThresholds() SeverityThresholds {
	return SeverityThresholds{
		MinOxygenSaturation: 88,
		MinSystolicBP:       80,
		MaxRespiratoryRate:  35,
		MinRespiratoryRate:  8,
		CriticalESI:         1,
	}
}

func TestEvaluateSeverity(t *testing.T) {
	thresholds := testThresholds()

	tests := []struct {
		name   string
		visit  *VisitRecord
		flag   bool
		reason string
	}{
		{
			name:   "critical esi",
			visit:  &VisitRecord{VisitID: "v", ESI: 1},
			flag:   true,
			reason: "critical_esi (ESI 1)",
		},
		{
			name: "low oxygen",
			visit: &VisitRecord{VisitID: "v", ESI: 3,
				Vitals: Vitals{OxygenSaturation: Float64(85)}},
			flag:   true,
			reason: "low_oxygen_saturation",
		},
		{
			name: "low systolic bp",
			visit: &VisitRecord{VisitID: "v", ESI: 3,
				Vitals: Vitals{SystolicBP: Float64(70)}},
			flag:   true,
			reason: "low_systolic_bp",
		},
		{
			name: "high respiratory rate",
			visit: &VisitRecord{VisitID: "v", ESI: 3,
				Vitals: Vitals{RespiratoryRate: Float64(40)}},
			flag:   true,
			reason: "high_respiratory_rate",
		},
		{
			name: "low respiratory rate",
			visit: &VisitRecord{VisitID: "v", ESI: 3,
				Vitals: Vitals{RespiratoryRate: Float64(5)}},
			flag:   true,
			reason: "low_respiratory_rate",
		},
		{
			name: "esi rule wins over vitals",
			visit: &VisitRecord{VisitID: "v", ESI: 1,
				Vitals: Vitals{OxygenSaturation: Float64(85)}},
			flag:   true,
			reason: "critical_esi (ESI 1)",
		},
		{
			name: "normal vitals",
			visit: &VisitRecord{VisitID: "v", ESI: 3, Vitals: Vitals{
				OxygenSaturation: Float64(98),
				SystolicBP:       Float64(120),
				RespiratoryRate:  Float64(16),
			}},
		},
		{
			name:  "missing vitals never trigger",
			visit: &VisitRecord{VisitID: "v", ESI: 3},
		},
		{
			name: "threshold boundary is not severe",
			visit: &VisitRecord{VisitID: "v", ESI: 2, Vitals: Vitals{
				OxygenSaturation: Float64(88),
				SystolicBP:       Float64(80),
				RespiratoryRate:  Float64(35),
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flag, reason := EvaluateSeverity(tc.visit, thresholds)
			require.Equal(t, tc.flag, flag)
			require.Equal(t, tc.reason, reason)
		})
	}
}

func TestSeverityThresholdsValidate(t *testing.T) {
	require.NoError(t, testThresholds().Validate())

	missing := testThresholds()
	missing.MinOxygenSaturation = 0
	require.Error(t, missing.Validate())

	inverted := testThresholds()
	inverted.MinRespiratoryRate = 40
	require.Error(t, inverted.Validate())

	badESI := testThresholds()
	badESI.CriticalESI = 0
	require.Error(t, badESI.Validate())
}
