package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"themeflow/internal/models"
	"themeflow/internal/vector"
)

type ThemeRepo struct {
	db *DB
}

func NewThemeRepo(db *DB) *ThemeRepo {
	return &ThemeRepo{db: db}
}

// ReplaceThemesForRun swaps a run's theme set atomically. Reruns overwrite
// rather than accumulate.
func (r *ThemeRepo) ReplaceThemesForRun(ctx context.Context, runID string, themes []models.UnifiedTheme) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin theme tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM themes WHERE run_id=$1`, runID); err != nil {
		return fmt.Errorf("clear run themes: %w", err)
	}
	for _, t := range themes {
		prov, err := json.Marshal(t.Provenance)
		if err != nil {
			return fmt.Errorf("marshal provenance: %w", err)
		}
		embedding := any(nil)
		if len(t.Embedding) > 0 {
			embedding = vector.ToLiteral(t.Embedding)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO themes (theme_id, run_id, label, description, keywords, source_ids, confidence, weight, provenance, embedding)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7, $8, $9, $10::vector)`,
			t.ThemeID, runID, t.Label, t.Description, strings.Join(t.Keywords, ","),
			t.SourceIDs, t.Confidence, t.Weight, prov, embedding)
		if err != nil {
			return fmt.Errorf("insert theme: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit themes: %w", err)
	}
	return nil
}

func (r *ThemeRepo) ListThemesByRun(ctx context.Context, runID string) ([]models.UnifiedTheme, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT theme_id, label, COALESCE(description,''), COALESCE(keywords,''), COALESCE(source_ids,'{}'), confidence, weight, COALESCE(provenance,'{}')
FROM themes
WHERE run_id=$1
ORDER BY weight DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	defer rows.Close()

	out := make([]models.UnifiedTheme, 0)
	for rows.Next() {
		var t models.UnifiedTheme
		var keywords string
		var prov []byte
		if err := rows.Scan(&t.ThemeID, &t.Label, &t.Description, &keywords, &t.SourceIDs, &t.Confidence, &t.Weight, &prov); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		if keywords != "" {
			t.Keywords = strings.Split(keywords, ",")
		}
		if err := json.Unmarshal(prov, &t.Provenance); err != nil {
			return nil, fmt.Errorf("unmarshal provenance: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}
	return out, nil
}
