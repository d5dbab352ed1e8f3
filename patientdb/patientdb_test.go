package patientdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/deepnoodle-ai/triage"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "visits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFetchVisit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	visit := &triage.VisitRecord{
		VisitID:   "visit-1",
		PatientID: "patient-1",
		Sex:       "F",
		AgeBucket: "65+",
		ESI:       2,
		Vitals: triage.Vitals{
			HeartRate:        triage.Float64(92),
			SystolicBP:       triage.Float64(135),
			OxygenSaturation: triage.Float64(94),
		},
		TriageNote:         "shortness of breath on exertion",
		RecentAdmissions30: 1,
		Timestamp:          time.Date(2025, 3, 2, 22, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertVisit(ctx, visit))

	got, err := store.FetchVisit(ctx, "visit-1")
	require.NoError(t, err)
	require.Equal(t, "patient-1", got.PatientID)
	require.Equal(t, 2, got.ESI)
	require.Equal(t, "shortness of breath on exertion", got.TriageNote)
	require.Equal(t, 1, got.RecentAdmissions30)
	require.NotNil(t, got.Vitals.HeartRate)
	require.Equal(t, 92.0, *got.Vitals.HeartRate)
	require.Nil(t, got.Vitals.RespiratoryRate)
	require.True(t, got.Timestamp.Equal(visit.Timestamp))
	require.NoError(t, got.Validate())
}

func TestFetchVisitNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.FetchVisit(context.Background(), "visit-missing")
	require.Error(t, err)
	require.True(t, triage.IsFatal(err))
	require.False(t, triage.IsTransient(err))
}

func TestFetchHistory(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i, admitted := range []bool{true, false, true} {
		require.NoError(t, store.InsertVisit(ctx, &triage.VisitRecord{
			VisitID:   "visit-" + string(rune('a'+i)),
			PatientID: "patient-1",
			ESI:       3,
			Admitted:  admitted,
			Timestamp: base.AddDate(0, i, 0),
		}))
	}
	require.NoError(t, store.InsertVisit(ctx, &triage.VisitRecord{
		VisitID:   "visit-other",
		PatientID: "patient-2",
		ESI:       4,
		Timestamp: base,
	}))

	history, err := store.FetchHistory(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "visit-a", history[0].VisitID)
	require.Equal(t, "visit-c", history[2].VisitID)
	require.Equal(t, 2, history.Admissions())
	require.InDelta(t, 2.0/3.0, history.AdmissionRate(), 1e-9)

	empty, err := store.FetchHistory(ctx, "patient-unknown")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestInsertVisitValidates(t *testing.T) {
	store := openTestStore(t)
	err := store.InsertVisit(context.Background(), &triage.VisitRecord{
		VisitID: "visit-1", PatientID: "patient-1", ESI: 9,
		Timestamp: time.Now(),
	})
	require.Error(t, err)
	require.True(t, triage.IsFatal(err))
}
