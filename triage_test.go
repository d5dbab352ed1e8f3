package triage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecisionTransitions(t *testing.T) {
	require.True(t, DecisionPendingReview.CanTransition(DecisionAdmit))
	require.True(t, DecisionPendingReview.CanTransition(DecisionDischarge))
	require.True(t, DecisionAdmit.CanTransition(DecisionAdmit))
	require.False(t, DecisionAdmit.CanTransition(DecisionDischarge))
	require.False(t, DecisionDischarge.CanTransition(DecisionPendingReview))
	require.False(t, DecisionPendingReview.CanTransition("BOGUS"))

	require.True(t, DecisionAdmit.Terminal())
	require.True(t, DecisionDischarge.Terminal())
	require.False(t, DecisionPendingReview.Terminal())
}

func TestVisitRecordValidate(t *testing.T) {
	valid := &VisitRecord{VisitID: "v1", PatientID: "p1", ESI: 3, Timestamp: time.Now()}
	require.NoError(t, valid.Validate())

	missing := &VisitRecord{ESI: 3}
	err := missing.Validate()
	require.Error(t, err)
	require.True(t, IsFatal(err))

	badESI := &VisitRecord{VisitID: "v1", ESI: 0}
	require.Error(t, badESI.Validate())
	require.Error(t, (&VisitRecord{VisitID: "v1", ESI: 6}).Validate())
}

func TestPatientHistoryAggregates(t *testing.T) {
	require.Equal(t, 0, PatientHistory{}.Admissions())
	require.Equal(t, 0.0, PatientHistory{}.AdmissionRate())

	history := PatientHistory{
		{VisitID: "a", Admitted: true},
		{VisitID: "b"},
		{VisitID: "c", Admitted: true},
		{VisitID: "d"},
	}
	require.Equal(t, 2, history.Admissions())
	require.Equal(t, 0.5, history.AdmissionRate())
}

func TestPredictionClamp(t *testing.T) {
	require.Equal(t, 1.0, Prediction{Probability: 1.3}.Clamp().Probability)
	require.Equal(t, 0.0, Prediction{Probability: -0.1}.Clamp().Probability)
	require.Equal(t, 0.42, Prediction{Probability: 0.42}.Clamp().Probability)
}

func TestErrorClassification(t *testing.T) {
	base := fmt.Errorf("boom")

	transient := NewTransientError(base)
	require.True(t, IsTransient(transient))
	require.False(t, IsFatal(transient))
	require.ErrorIs(t, transient, base)

	fatal := NewFatalError(base)
	require.True(t, IsFatal(fatal))
	require.False(t, IsTransient(fatal))

	// Unclassified errors are neither
	require.False(t, IsTransient(base))
	require.False(t, IsFatal(base))

	// Wrapping preserves the classification
	wrapped := fmt.Errorf("outer: %w", transient)
	require.True(t, IsTransient(wrapped))

	// Cancellation is never transient, even when wrapped as such
	require.False(t, IsTransient(NewTransientError(context.Canceled)))
	require.False(t, IsTransient(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	require.False(t, IsTransient(errors.Join(NewTransientError(base), context.Canceled)))
}
