package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("calls: not found")

// Store persists outbound call sessions, scoped by owning user ID.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, userID, id string) (Session, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `
id, user_id, project_id, phone_number_id, from_number, to_number,
room_name, participant_id, agent_dispatch_id, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	const q = `
INSERT INTO call_sessions (
    id, user_id, project_id, phone_number_id, from_number, to_number,
    room_name, participant_id, agent_dispatch_id, status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, q,
		sess.ID, sess.UserID, sess.ProjectID, sess.PhoneNumberID, sess.From, sess.To,
		sess.RoomName, sess.ParticipantID, sess.AgentDispatchID, sess.Status,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE user_id = $1 AND id = $2`
	var out Session
	err := s.db.QueryRowContext(ctx, q, userID, id).Scan(
		&out.ID, &out.UserID, &out.ProjectID, &out.PhoneNumberID, &out.From, &out.To,
		&out.RoomName, &out.ParticipantID, &out.AgentDispatchID, &out.Status,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan call session: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query call sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.ProjectID, &sess.PhoneNumberID, &sess.From, &sess.To,
			&sess.RoomName, &sess.ParticipantID, &sess.AgentDispatchID, &sess.Status,
			&sess.CreatedAt, &sess.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan call session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
