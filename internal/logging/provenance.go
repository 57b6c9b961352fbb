package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ProvenanceLog appends stage entries to the provenance_log table created by
// the state store.
type ProvenanceLog struct {
	db *sql.DB
}

// NewProvenanceLog wraps db.
func NewProvenanceLog(db *sql.DB) *ProvenanceLog {
	return &ProvenanceLog{db: db}
}

// #region log-stage
// LogStage writes one entry. A zero CreatedAt is filled with the current time.
func (p *ProvenanceLog) LogStage(ctx context.Context, entry StageEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO provenance_log (run_id, stage, inputs_json, output_json, ethics, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Stage,
		nullIfEmpty(entry.InputsJSON),
		nullIfEmpty(entry.OutputJSON),
		nullIfEmpty(entry.Ethics),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log stage: %w", err)
	}
	return nil
}
// #endregion log-stage

// #region entries
// Entries returns logged entries in insertion order. An empty stage matches
// every stage; limit <= 0 means no limit.
func (p *ProvenanceLog) Entries(stage string, limit int) ([]StageEntry, error) {
	query := `SELECT id, run_id, stage, inputs_json, output_json, ethics, reason, created_at
		FROM provenance_log WHERE (? = '' OR stage = ?) ORDER BY id ASC`
	args := []any{stage, stage}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var entries []StageEntry
	for rows.Next() {
		var e StageEntry
		var inputs, output, ethics, reason sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &inputs, &output, &ethics, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		e.InputsJSON = inputs.String
		e.OutputJSON = output.String
		e.Ethics = ethics.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
// #endregion entries

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
