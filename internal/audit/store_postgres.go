package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit events in the audit_logs table. Inserts only;
// the table carries no update path from this service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_logs
			(action, ip_address, user_agent, endpoint, data_subject, user_id,
			 user_role, request_data, response_status, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(event.Action),
		event.IPAddress,
		event.UserAgent,
		event.Endpoint,
		nullIfEmpty(event.DataSubject),
		event.UserID,
		event.UserRole,
		event.RequestData,
		event.ResponseStatus,
		event.Status,
		nullIfEmpty(event.ErrorMessage),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT action, ip_address, user_agent, endpoint, data_subject, user_id,
		       user_role, request_data, response_status, status, error_message, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var action string
		var ip, ua, endpoint, subject, requestData, errMessage sql.NullString
		if err := rows.Scan(&action, &ip, &ua, &endpoint, &subject, &e.UserID,
			&e.UserRole, &requestData, &e.ResponseStatus, &e.Status, &errMessage, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.Endpoint = endpoint.String
		e.DataSubject = subject.String
		e.RequestData = requestData.String
		e.ErrorMessage = errMessage.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
