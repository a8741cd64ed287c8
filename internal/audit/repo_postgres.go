package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends audit events to an INSERT-only table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
    id, user_id, type, actor_role,
    number_id, project_id, room_name, call_id,
    message, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.Type, e.ActorRole,
		e.NumberID, e.ProjectID, e.RoomName, e.CallID,
		e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
