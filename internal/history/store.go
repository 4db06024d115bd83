package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sweep statuses.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// NewSweepID returns a fresh sweep identifier.
func NewSweepID() string {
	return uuid.NewString()
}

// SweepRecord is a persisted sweep run.
type SweepRecord struct {
	ID           int64           `json:"id"`
	SweepID      string          `json:"sweep_id"`
	Study        string          `json:"study"`
	Folder       string          `json:"folder"`
	Start        int             `json:"start"`
	Count        int             `json:"count"`
	Status       string          `json:"status"`
	Request      json.RawMessage `json:"request,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorIndices []int           `json:"error_indices,omitempty"`
	Animations   []string        `json:"animations,omitempty"`
	ErrorStudy   string          `json:"error_study,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Outcome is what a finished sweep reports back.
type Outcome struct {
	Status       string
	Error        string
	ErrorIndices []int
	Animations   []string
	ErrorStudy   string
	Warnings     []string
	CompletedAt  time.Time
}

// IterationRecord is the outcome of one replayed row.
type IterationRecord struct {
	SweepID    string    `json:"sweep_id"`
	Index      int       `json:"index"`
	IsError    bool      `json:"is_error"`
	Screenshot string    `json:"screenshot,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store reads and writes sweep history.
type Store struct {
	db *DB
}

// NewStore creates a Store on an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// SaveSweepStart inserts a sweep record in the running state.
func (s *Store) SaveSweepStart(rec SweepRecord) error {
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	query := `
		INSERT INTO sweeps (sweep_id, study, folder, start_index, count, status, request, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			rec.SweepID,
			rec.Study,
			rec.Folder,
			rec.Start,
			rec.Count,
			rec.Status,
			nullJSON(rec.Request),
			rec.StartedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting sweep %s: %w", rec.SweepID, err)
	}
	return nil
}

// SaveIteration records one iteration, replacing an earlier record for the
// same index.
func (s *Store) SaveIteration(it IterationRecord) error {
	query := `
		INSERT OR REPLACE INTO sweep_iterations (sweep_id, iteration, is_error, screenshot, warning, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			it.SweepID,
			it.Index,
			it.IsError,
			nullStr(it.Screenshot),
			nullStr(it.Warning),
			it.RecordedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording iteration %d of sweep %s: %w", it.Index, it.SweepID, err)
	}
	return nil
}

// SaveSweepComplete stores the final outcome of a sweep.
func (s *Store) SaveSweepComplete(sweepID string, out Outcome) error {
	query := `
		UPDATE sweeps
		SET status = ?, error = ?, error_indices = ?, animations = ?, error_study = ?, warnings = ?, completed_at = ?
		WHERE sweep_id = ?
	`
	indices, err := marshalOrNil(out.ErrorIndices)
	if err != nil {
		return err
	}
	animations, err := marshalOrNil(out.Animations)
	if err != nil {
		return err
	}
	warnings, err := marshalOrNil(out.Warnings)
	if err != nil {
		return err
	}
	var res sql.Result
	err = retryOnBusy(func() error {
		var err error
		res, err = s.db.Exec(query,
			out.Status,
			nullStr(out.Error),
			indices,
			animations,
			nullStr(out.ErrorStudy),
			warnings,
			out.CompletedAt.UTC().Format(time.RFC3339Nano),
			sweepID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating sweep %s: %w", sweepID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating sweep %s: no such sweep", sweepID)
	}
	return nil
}

// GetSweep returns a sweep by ID, or nil when it does not exist.
func (s *Store) GetSweep(sweepID string) (*SweepRecord, error) {
	query := `
		SELECT id, sweep_id, study, folder, start_index, count, status, request, error,
		       error_indices, animations, error_study, warnings, started_at, completed_at
		FROM sweeps
		WHERE sweep_id = ?
	`
	rec, err := scanSweep(s.db.QueryRow(query, sweepID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying sweep %s: %w", sweepID, err)
	}
	return rec, nil
}

// ListSweeps returns the most recent sweeps first, optionally limited to one
// study folder.
func (s *Store) ListSweeps(folder string, limit int) ([]SweepRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	query := `
		SELECT id, sweep_id, study, folder, start_index, count, status, request, error,
		       error_indices, animations, error_study, warnings, started_at, completed_at
		FROM sweeps
		WHERE (? = '' OR folder = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, folder, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweeps: %w", err)
	}
	defer rows.Close()

	var sweeps []SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sweep row: %w", err)
		}
		sweeps = append(sweeps, *rec)
	}
	return sweeps, rows.Err()
}

// Iterations returns the recorded iterations of a sweep in index order.
func (s *Store) Iterations(sweepID string) ([]IterationRecord, error) {
	rows, err := s.db.Query(`
		SELECT iteration, is_error, screenshot, warning, recorded_at
		FROM sweep_iterations
		WHERE sweep_id = ?
		ORDER BY iteration
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("listing iterations of %s: %w", sweepID, err)
	}
	defer rows.Close()

	var out []IterationRecord
	for rows.Next() {
		it := IterationRecord{SweepID: sweepID}
		var shot, warning sql.NullString
		var recordedAt string
		if err := rows.Scan(&it.Index, &it.IsError, &shot, &warning, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning iteration row: %w", err)
		}
		it.Screenshot = shot.String
		it.Warning = warning.String
		if it.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at for iteration %d: %w", it.Index, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DeleteSweep removes a sweep and its iterations.
func (s *Store) DeleteSweep(sweepID string) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`DELETE FROM sweeps WHERE sweep_id = ?`, sweepID)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSweep(row rowScanner) (*SweepRecord, error) {
	var rec SweepRecord
	var request, errMsg, indices, animations, errorStudy, warnings sql.NullString
	var startedAt string
	var completedAt sql.NullString
	if err := row.Scan(
		&rec.ID, &rec.SweepID, &rec.Study, &rec.Folder, &rec.Start, &rec.Count, &rec.Status,
		&request, &errMsg, &indices, &animations, &errorStudy, &warnings,
		&startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	rec.Request = jsonOrNil(request)
	rec.Error = errMsg.String
	rec.ErrorStudy = errorStudy.String
	if err := unmarshalIfSet(indices, &rec.ErrorIndices); err != nil {
		return nil, fmt.Errorf("decoding error_indices for %s: %w", rec.SweepID, err)
	}
	if err := unmarshalIfSet(animations, &rec.Animations); err != nil {
		return nil, fmt.Errorf("decoding animations for %s: %w", rec.SweepID, err)
	}
	if err := unmarshalIfSet(warnings, &rec.Warnings); err != nil {
		return nil, fmt.Errorf("decoding warnings for %s: %w", rec.SweepID, err)
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at for sweep %s: %w", rec.SweepID, err)
	}
	rec.StartedAt = t
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at for sweep %s: %w", rec.SweepID, err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// nullStr returns nil for empty strings, pointer to string otherwise.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullJSON returns nil for an empty JSON value.
func nullJSON(data json.RawMessage) *string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	return &s
}

// jsonOrNil converts a sql.NullString to json.RawMessage, returning nil for NULL values.
func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalOrNil[T any](v []T) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	s := string(data)
	return &s, nil
}

func unmarshalIfSet(ns sql.NullString, v interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), v)
}
