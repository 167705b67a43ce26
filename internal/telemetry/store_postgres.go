package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trailguard/pkg/platform/sentinel"
)

// PostgresStore persists telemetry records in the tmt_data table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed telemetry store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert is conditional on the consent row: the INSERT ... SELECT only
// produces a row while the consent is active and unexpired, so a submission
// racing a revocation either lands before the cascade (and is swept by it)
// or inserts nothing at all.
func (s *PostgresStore) Insert(ctx context.Context, record *Record) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("serialize metadata: %w", err)
	}
	query := `
		INSERT INTO tmt_data
			(id, pseudo_id, session_id, test_phase, encrypted_data, encryption_iv,
			 encryption_auth_tag, total_time, total_errors, accuracy,
			 completed_numbers, metadata, consent_token, collected_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		WHERE EXISTS (
			SELECT 1 FROM consents
			WHERE consent_token = $13 AND status = 'active' AND expires_at > $14
		)
	`
	result, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.PseudoID,
		record.SessionID,
		string(record.TestPhase),
		record.Payload.Ciphertext,
		record.Payload.IV,
		record.Payload.AuthTag,
		record.Aggregates.TotalTime,
		record.Aggregates.TotalErrors,
		record.Aggregates.Accuracy,
		record.Aggregates.Completed,
		string(metadata),
		record.ConsentToken,
		record.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert telemetry record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) ListByPseudoID(ctx context.Context, pseudoID string) ([]*Record, error) {
	query := `
		SELECT id, pseudo_id, session_id, test_phase, encrypted_data,
		       encryption_iv, encryption_auth_tag, total_time, total_errors,
		       accuracy, completed_numbers, metadata, consent_token, collected_at
		FROM tmt_data
		WHERE pseudo_id = $1 AND deleted_at IS NULL
		ORDER BY collected_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, pseudoID)
	if err != nil {
		return nil, fmt.Errorf("list telemetry records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			r        Record
			phase    string
			metadata string
		)
		if err := rows.Scan(&r.ID, &r.PseudoID, &r.SessionID, &phase,
			&r.Payload.Ciphertext, &r.Payload.IV, &r.Payload.AuthTag,
			&r.Aggregates.TotalTime, &r.Aggregates.TotalErrors,
			&r.Aggregates.Accuracy, &r.Aggregates.Completed,
			&metadata, &r.ConsentToken, &r.CollectedAt); err != nil {
			return nil, fmt.Errorf("scan telemetry record: %w", err)
		}
		r.TestPhase = Phase(phase)
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry records: %w", err)
	}
	return records, nil
}

// Stats aggregates the clear summary columns across non-deleted rows.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT pseudo_id) FROM tmt_data WHERE deleted_at IS NULL`,
	).Scan(&stats.TotalRecords, &stats.TotalSubjects)
	if err != nil {
		return nil, fmt.Errorf("aggregate telemetry stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT test_phase, COUNT(*), AVG(total_time), AVG(total_errors), AVG(accuracy)
		FROM tmt_data
		WHERE deleted_at IS NULL
		GROUP BY test_phase
		ORDER BY test_phase
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregate telemetry stats by phase: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ps    PhaseStats
			phase string
		)
		if err := rows.Scan(&phase, &ps.Records, &ps.AvgTotalTime, &ps.AvgErrors, &ps.AvgAccuracy); err != nil {
			return nil, fmt.Errorf("scan telemetry stats: %w", err)
		}
		ps.Phase = Phase(phase)
		stats.ByPhase = append(stats.ByPhase, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) SoftDeleteByToken(ctx context.Context, token string, deletedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tmt_data SET deleted_at = $1 WHERE consent_token = $2 AND deleted_at IS NULL`,
		deletedAt, token,
	)
	if err != nil {
		return fmt.Errorf("soft delete telemetry records: %w", err)
	}
	return nil
}
