// Package patientdb implements a SQLite-backed data provider for visit
// records and patient history.
package patientdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/triage"
	_ "modernc.org/sqlite"
)

// Store is a triage.DataProvider backed by a SQLite visits table.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS visits (
	visit_id              TEXT PRIMARY KEY,
	patient_id            TEXT NOT NULL,
	sex                   TEXT,
	age_bucket            TEXT,
	heart_rate            REAL,
	bp_systolic           REAL,
	bp_diastolic          REAL,
	resp_rate             REAL,
	temperature_c         REAL,
	oxygen_saturation     REAL,
	triage_note           TEXT,
	esi                   INTEGER NOT NULL,
	admitted              INTEGER NOT NULL DEFAULT 0,
	recent_admissions_30d INTEGER NOT NULL DEFAULT 0,
	timestamp             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visits_patient ON visits (patient_id, timestamp);
`

// Open opens (and if needed creates) a visit store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

const visitColumns = `visit_id, patient_id, sex, age_bucket,
	heart_rate, bp_systolic, bp_diastolic, resp_rate, temperature_c, oxygen_saturation,
	triage_note, esi, admitted, recent_admissions_30d, timestamp`

// FetchVisit returns the visit with the given id. A missing visit is a fatal
// error; infrastructure failures are classified transient so the engine
// retries them.
func (s *Store) FetchVisit(ctx context.Context, visitID string) (*triage.VisitRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE visit_id = ?`, visitID)
	visit, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, triage.NewFatalError(fmt.Errorf("visit %s not found", visitID))
		}
		return nil, triage.NewTransientError(fmt.Errorf("failed to fetch visit %s: %w", visitID, err))
	}
	return visit, nil
}

// FetchHistory returns the patient's recorded visits, oldest first.
func (s *Store) FetchHistory(ctx context.Context, patientID string) (triage.PatientHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE patient_id = ?
		 ORDER BY timestamp`, patientID)
	if err != nil {
		return nil, triage.NewTransientError(fmt.Errorf("failed to fetch history for %s: %w", patientID, err))
	}
	defer rows.Close()

	var history triage.PatientHistory
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, triage.NewTransientError(err)
		}
		history = append(history, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, triage.NewTransientError(fmt.Errorf("failed to read history for %s: %w", patientID, err))
	}
	return history, nil
}

// InsertVisit adds a visit record. Used for seeding and tests.
func (s *Store) InsertVisit(ctx context.Context, v *triage.VisitRecord) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (`+visitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VisitID, v.PatientID, v.Sex, v.AgeBucket,
		v.Vitals.HeartRate, v.Vitals.SystolicBP, v.Vitals.DiastolicBP,
		v.Vitals.RespiratoryRate, v.Vitals.TemperatureC, v.Vitals.OxygenSaturation,
		v.TriageNote, v.ESI, v.Admitted, v.RecentAdmissions30,
		v.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert visit %s: %w", v.VisitID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*triage.VisitRecord, error) {
	var v triage.VisitRecord
	var hr, sbp, dbp, rr, temp, o2 sql.NullFloat64
	var sex, ageBucket, note sql.NullString
	var timestamp string
	err := row.Scan(&v.VisitID, &v.PatientID, &sex, &ageBucket,
		&hr, &sbp, &dbp, &rr, &temp, &o2,
		&note, &v.ESI, &v.Admitted, &v.RecentAdmissions30, &timestamp)
	if err != nil {
		return nil, err
	}
	v.Sex = sex.String
	v.AgeBucket = ageBucket.String
	v.TriageNote = note.String
	v.Vitals = triage.Vitals{
		HeartRate:        nullFloat(hr),
		SystolicBP:       nullFloat(sbp),
		DiastolicBP:      nullFloat(dbp),
		RespiratoryRate:  nullFloat(rr),
		TemperatureC:     nullFloat(temp),
		OxygenSaturation: nullFloat(o2),
	}
	if v.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return nil, fmt.Errorf("visit %s: invalid timestamp: %w", v.VisitID, err)
	}
	return &v, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
