package vector

import (
	"context"
	"fmt"
	"strings"

	"themeflow/internal/models"

	"github.com/jackc/pgx/v5"
)

type SearchFilters struct {
	RunID string
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchThemes orders stored unified themes by cosine distance of their
// centroid embeddings to the query vector.
func (s *Searcher) SearchThemes(ctx context.Context, queryVec []float32, topK int, filters SearchFilters) ([]models.ThemeSearchResult, error) {
	if topK <= 0 {
		topK = 8
	}
	vecLiteral := ToLiteral(queryVec)
	args := []any{vecLiteral, topK}

	filterSQL := ""
	if strings.TrimSpace(filters.RunID) != "" {
		filterSQL = " AND t.run_id = $3"
		args = append(args, filters.RunID)
	}

	query := `
SELECT t.theme_id,
       t.run_id::text,
       t.label,
       COALESCE(t.keywords, ''),
       1 - (t.embedding <=> $1::vector) AS score
FROM themes t
WHERE t.embedding IS NOT NULL` + filterSQL + `
ORDER BY t.embedding <=> $1::vector
LIMIT $2`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query theme search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ThemeSearchResult, 0, topK)
	for rows.Next() {
		var r models.ThemeSearchResult
		if err := rows.Scan(&r.ThemeID, &r.RunID, &r.Label, &r.Keywords, &r.Score); err != nil {
			return nil, fmt.Errorf("scan theme result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate theme rows: %w", err)
	}
	return results, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
