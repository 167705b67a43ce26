package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"trailguard/pkg/platform/sentinel"
)

// PostgresStore persists consent records in the consents table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed consent store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	types, err := json.Marshal(record.ConsentTypes)
	if err != nil {
		return fmt.Errorf("serialize consent types: %w", err)
	}
	query := `
		INSERT INTO consents
			(consent_token, pseudo_id, consent_types, consent_text, ip_address,
			 user_agent, expires_at, encrypted_demographics, demographics_iv,
			 demographics_auth_tag, status, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.Token,
		record.PseudoID,
		string(types),
		record.ConsentText,
		record.IPAddress,
		record.UserAgent,
		record.ExpiresAt,
		record.Demographics.Ciphertext,
		record.Demographics.IV,
		record.Demographics.AuthTag,
		string(record.Status),
		record.IssuedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	query := `
		SELECT consent_token, pseudo_id, consent_types, consent_text, ip_address,
		       user_agent, expires_at, encrypted_demographics, demographics_iv,
		       demographics_auth_tag, status, issued_at, revoked_at
		FROM consents
		WHERE consent_token = $1
	`
	var (
		record    Record
		types     string
		ip, agent sql.NullString
		revokedAt sql.NullTime
		status    string
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&record.Token,
		&record.PseudoID,
		&types,
		&record.ConsentText,
		&ip,
		&agent,
		&record.ExpiresAt,
		&record.Demographics.Ciphertext,
		&record.Demographics.IV,
		&record.Demographics.AuthTag,
		&status,
		&record.IssuedAt,
		&revokedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	if err := json.Unmarshal([]byte(types), &record.ConsentTypes); err != nil {
		return nil, fmt.Errorf("decode consent types: %w", err)
	}
	record.IPAddress = ip.String
	record.UserAgent = agent.String
	record.Status = Status(status)
	if revokedAt.Valid {
		record.RevokedAt = &revokedAt.Time
	}
	return &record, nil
}

// TransitionStatus relies on the conditional WHERE to guarantee at most one
// winner per token: the row moves out of `from` exactly once, and everyone
// else sees zero rows affected.
func (s *PostgresStore) TransitionStatus(ctx context.Context, token string, from, to Status, at time.Time) (bool, error) {
	var query string
	var result sql.Result
	var err error
	if to == StatusRevoked {
		query = `UPDATE consents SET status = $1, revoked_at = $2 WHERE consent_token = $3 AND status = $4`
		result, err = s.db.ExecContext(ctx, query, string(to), at, token, string(from))
	} else {
		query = `UPDATE consents SET status = $1 WHERE consent_token = $2 AND status = $3`
		result, err = s.db.ExecContext(ctx, query, string(to), token, string(from))
	}
	if err != nil {
		return false, fmt.Errorf("transition consent status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition consent status: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, token string, revokedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE consents SET status = $1, revoked_at = $2 WHERE consent_token = $3`,
		string(StatusRevoked), revokedAt, token,
	)
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
