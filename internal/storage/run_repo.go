package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"themeflow/internal/models"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) InsertRun(ctx context.Context, run models.ExtractionRun) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO extraction_runs (run_id, purpose, status)
VALUES ($1, $2, $3)`,
		run.RunID, run.Purpose, run.Status)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepo) UpdateRunStatus(ctx context.Context, runID, status, diagnosis string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE extraction_runs SET status=$2, diagnosis=NULLIF($3,''), updated_at=NOW() WHERE run_id=$1`,
		runID, status, diagnosis)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// SaveReport attaches the final methodology report and familiarization stats
// to a finished run.
func (r *RunRepo) SaveReport(ctx context.Context, runID string, report models.MethodologyReport, stats models.FamiliarizationStats) error {
	rep, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	st, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
UPDATE extraction_runs SET report=$2, stats=$3, updated_at=NOW() WHERE run_id=$1`,
		runID, rep, st)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (r *RunRepo) GetRun(ctx context.Context, runID string) (models.ExtractionRun, error) {
	var run models.ExtractionRun
	err := r.db.Pool.QueryRow(ctx, `
SELECT run_id, purpose, status, COALESCE(diagnosis,''), created_at, updated_at
FROM extraction_runs
WHERE run_id=$1`, runID).
		Scan(&run.RunID, &run.Purpose, &run.Status, &run.Diagnosis, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return models.ExtractionRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *RunRepo) GetRunReport(ctx context.Context, runID string) (models.MethodologyReport, models.FamiliarizationStats, error) {
	var rep, st []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT COALESCE(report,'{}'), COALESCE(stats,'{}') FROM extraction_runs WHERE run_id=$1`, runID).
		Scan(&rep, &st)
	if err != nil {
		return models.MethodologyReport{}, models.FamiliarizationStats{}, fmt.Errorf("get run report: %w", err)
	}
	var report models.MethodologyReport
	var stats models.FamiliarizationStats
	if err := json.Unmarshal(rep, &report); err != nil {
		return models.MethodologyReport{}, models.FamiliarizationStats{}, fmt.Errorf("unmarshal report: %w", err)
	}
	if err := json.Unmarshal(st, &stats); err != nil {
		return models.MethodologyReport{}, models.FamiliarizationStats{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return report, stats, nil
}

func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]models.ExtractionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id, purpose, status, COALESCE(diagnosis,''), created_at, updated_at
FROM extraction_runs
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExtractionRun, 0)
	for rows.Next() {
		var run models.ExtractionRun
		if err := rows.Scan(&run.RunID, &run.Purpose, &run.Status, &run.Diagnosis, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
