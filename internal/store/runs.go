package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

// RunRecord is one pipeline run as persisted. ReportJSON is nil until the
// run reaches REPORTED.
type RunRecord struct {
	ID         uuid.UUID           `json:"id"`
	DocumentID uuid.UUID           `json:"document_id"`
	Filename   string              `json:"filename,omitempty"`
	Format     constants.Format    `json:"format,omitempty"`
	Status     constants.RunStatus `json:"status"`
	Stage      constants.Stage     `json:"stage,omitempty"`
	ReportJSON []byte              `json:"-"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  int64               `json:"created_at"`
	UpdatedAt  int64               `json:"updated_at"`
}

// CreateRun inserts a new run row. CreatedAt/UpdatedAt are stamped here.
func (s *Store) CreateRun(ctx context.Context, rec *RunRecord) error {
	now := time.Now().UnixMilli()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs
			(id, document_id, filename, format, status, stage, error, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID.String(), rec.DocumentID.String(), rec.Filename, string(rec.Format),
		string(rec.Status), string(rec.Stage), rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// SetRunStatus records one orchestrator transition.
func (s *Store) SetRunStatus(ctx context.Context, id uuid.UUID, status constants.RunStatus, stage constants.Stage) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status = ?, stage = ?, updated_at = ? WHERE id = ?`,
		string(status), string(stage), time.Now().UnixMilli(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return requireRow(res, id)
}

// SetRunFormat records the detected format once extraction has resolved it.
func (s *Store) SetRunFormat(ctx context.Context, id uuid.UUID, format constants.Format) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET format = ?, updated_at = ? WHERE id = ?`,
		string(format), time.Now().UnixMilli(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("store: set format: %w", err)
	}
	return requireRow(res, id)
}

// SaveReport marks the run REPORTED and stores the report JSON. Degraded
// reports are stored the same way; the payload carries the flag.
func (s *Store) SaveReport(ctx context.Context, id uuid.UUID, report *domain.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("store: marshal report: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status = ?, stage = ?, report_json = ?, updated_at = ? WHERE id = ?`,
		string(constants.RunStatusReported), string(constants.StageReport),
		string(raw), time.Now().UnixMilli(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("store: save report: %w", err)
	}
	return requireRow(res, id)
}

// MarkRunFailed records the terminal failure with the stage that caused it.
func (s *Store) MarkRunFailed(ctx context.Context, id uuid.UUID, stage constants.Stage, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status = ?, stage = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(constants.RunStatusFailed), string(stage), msg, time.Now().UnixMilli(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	return requireRow(res, id)
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, document_id, filename, format, status, stage, report_json, error, created_at, updated_at
		FROM runs WHERE id = ?`, id.String())
	rec, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return rec, nil
}

// GetReport retrieves the stored report for a run. A run that exists but
// has not reached REPORTED yet reads as not found.
func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	rec, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rec.ReportJSON) == 0 {
		return nil, fmt.Errorf("%w: run %s has no report", common.ErrRunNotFound, id)
	}
	var report domain.Report
	if err := json.Unmarshal(rec.ReportJSON, &report); err != nil {
		return nil, fmt.Errorf("store: decode report: %w", err)
	}
	return &report, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, document_id, filename, format, status, stage, report_json, error, created_at, updated_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var recs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return recs, nil
}

// requireRow turns a zero-row UPDATE into ErrRunNotFound so callers do
// not silently update nothing.
func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", common.ErrRunNotFound, id)
	}
	return nil
}

func scanRun(scan func(...any) error) (*RunRecord, error) {
	var (
		rec        RunRecord
		id, docID  string
		format     string
		status     string
		stage      string
		reportJSON sql.NullString
	)
	err := scan(&id, &docID, &rec.Filename, &format, &status, &stage,
		&reportJSON, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	rec.DocumentID, err = uuid.Parse(docID)
	if err != nil {
		return nil, fmt.Errorf("bad document id %q: %w", docID, err)
	}
	rec.Format = constants.Format(format)
	rec.Status = constants.RunStatus(status)
	rec.Stage = constants.Stage(stage)
	if reportJSON.Valid {
		rec.ReportJSON = []byte(reportJSON.String)
	}
	return &rec, nil
}
