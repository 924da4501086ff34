package storage

import (
	"context"
	"fmt"
)

// ProviderCallRecord is one audited embedding or generation call. One row per
// call regardless of outcome; the error type is the classified category, not
// the raw message.
type ProviderCallRecord struct {
	CallID       string
	Operation    string
	RunID        string
	SourceID     string
	ProviderName string
	Model        string
	RequestID    string
	Status       string
	ErrorType    string
}

type ProviderAuditRepo struct {
	db *DB
}

func NewProviderAuditRepo(db *DB) *ProviderAuditRepo {
	return &ProviderAuditRepo{db: db}
}

func (r *ProviderAuditRepo) Insert(ctx context.Context, rec ProviderCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO provider_calls(call_id, operation, run_id, source_id, provider_name, model, request_id, status, error_type)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,'')::uuid, NULLIF($4,''), $5, $6, $7, $8, NULLIF($9,''))`,
		rec.CallID, rec.Operation, rec.RunID, rec.SourceID, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert provider call: %w", err)
	}
	return nil
}
