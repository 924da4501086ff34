package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"themeflow/internal/models"
)

type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) UpsertSource(ctx context.Context, s models.Source) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal source metadata: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO sources (source_id, type, title, content, keywords, metadata)
VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)
ON CONFLICT (source_id)
DO UPDATE SET
  type = EXCLUDED.type,
  title = COALESCE(EXCLUDED.title, sources.title),
  content = EXCLUDED.content,
  keywords = EXCLUDED.keywords,
  metadata = EXCLUDED.metadata,
  updated_at = NOW()`,
		s.SourceID, string(s.Type), s.Title, s.Content, s.Keywords, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (r *SourceRepo) GetSource(ctx context.Context, sourceID string) (models.Source, error) {
	var s models.Source
	var typ string
	var meta []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT source_id, type, COALESCE(title,''), content, COALESCE(keywords,'{}'), COALESCE(metadata,'{}'), created_at, updated_at
FROM sources
WHERE source_id=$1`, sourceID).
		Scan(&s.SourceID, &typ, &s.Title, &s.Content, &s.Keywords, &meta, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return models.Source{}, fmt.Errorf("get source: %w", err)
	}
	s.Type = models.SourceType(typ)
	if err := json.Unmarshal(meta, &s.Metadata); err != nil {
		return models.Source{}, fmt.Errorf("unmarshal source metadata: %w", err)
	}
	return s, nil
}

func (r *SourceRepo) ListSources(ctx context.Context, sourceType string) ([]models.Source, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT source_id, type, COALESCE(title,''), content, COALESCE(keywords,'{}'), COALESCE(metadata,'{}'), created_at, updated_at
FROM sources
WHERE ($1 = '' OR type = $1)
ORDER BY created_at DESC`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := make([]models.Source, 0)
	for rows.Next() {
		var s models.Source
		var typ string
		var meta []byte
		if err := rows.Scan(&s.SourceID, &typ, &s.Title, &s.Content, &s.Keywords, &meta, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		s.Type = models.SourceType(typ)
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal source metadata: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func (r *SourceRepo) ListSourcesByIDs(ctx context.Context, sourceIDs []string) ([]models.Source, error) {
	if len(sourceIDs) == 0 {
		return []models.Source{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT source_id, type, COALESCE(title,''), content, COALESCE(keywords,'{}'), COALESCE(metadata,'{}'), created_at, updated_at
FROM sources
WHERE source_id = ANY($1)
ORDER BY created_at DESC`, sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("list sources by ids: %w", err)
	}
	defer rows.Close()

	out := make([]models.Source, 0, len(sourceIDs))
	for rows.Next() {
		var s models.Source
		var typ string
		var meta []byte
		if err := rows.Scan(&s.SourceID, &typ, &s.Title, &s.Content, &s.Keywords, &meta, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source by id: %w", err)
		}
		s.Type = models.SourceType(typ)
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal source metadata: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources by ids: %w", err)
	}
	return out, nil
}

func (r *SourceRepo) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sources WHERE source_id=$1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}
