package numbers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("numbers: not found")

// Store persists phone number records. Every read and write is scoped by the
// owning user ID.
type Store interface {
	Get(ctx context.Context, userID, id string) (PhoneNumber, error)
	Create(ctx context.Context, n PhoneNumber) error
	Update(ctx context.Context, userID, id string, upd Update) (PhoneNumber, error)
	ListByUser(ctx context.Context, userID string) ([]PhoneNumber, error)
	ListByProject(ctx context.Context, userID, projectID string) ([]PhoneNumber, error)
}

const numberColumns = `
id, user_id, COALESCE(project_id, ''), e164, country_code, number_type,
provider_order_id, provider_number_id, status, active,
inbound_enabled, outbound_enabled, recording_enabled, voice_agent_enabled,
COALESCE(sip_connection_id, ''), COALESCE(messaging_profile_id, ''),
COALESCE(inbound_trunk_id, ''), COALESCE(outbound_trunk_id, ''),
COALESCE(dispatch_rule_id, ''),
created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (PhoneNumber, error) {
	q := `SELECT ` + numberColumns + ` FROM phone_numbers WHERE user_id = $1 AND id = $2`
	return scanNumber(s.db.QueryRowContext(ctx, q, userID, id))
}

func (s *PostgresStore) Create(ctx context.Context, n PhoneNumber) error {
	const q = `
INSERT INTO phone_numbers (
    id, user_id, project_id, e164, country_code, number_type,
    provider_order_id, provider_number_id, status, active,
    inbound_enabled, outbound_enabled, recording_enabled, voice_agent_enabled,
    sip_connection_id, messaging_profile_id,
    inbound_trunk_id, outbound_trunk_id, dispatch_rule_id,
    created_at, updated_at
) VALUES (
    $1, $2, NULLIF($3, ''), $4, $5, $6,
    $7, $8, $9, $10,
    $11, $12, $13, $14,
    NULLIF($15, ''), NULLIF($16, ''),
    NULLIF($17, ''), NULLIF($18, ''), NULLIF($19, ''),
    $20, $21
)`
	_, err := s.db.ExecContext(ctx, q,
		n.ID, n.UserID, n.ProjectID, n.E164, n.CountryCode, n.NumberType,
		n.ProviderOrderID, n.ProviderNumberID, n.Status, n.Active,
		n.InboundEnabled, n.OutboundEnabled, n.RecordingEnabled, n.VoiceAgentEnabled,
		n.SIPConnectionID, n.MessagingProfileID,
		n.InboundTrunkID, n.OutboundTrunkID, n.DispatchRuleID,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert phone number: %w", err)
	}
	return nil
}

// Update applies the non-nil fields of upd and returns the updated row.
// String columns set to "" are stored as NULL.
func (s *PostgresStore) Update(ctx context.Context, userID, id string, upd Update) (PhoneNumber, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{userID, id}

	addString := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = NULLIF($%d, '')", col, len(args)))
	}
	addBool := func(col string, v *bool) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	addString("project_id", upd.ProjectID)
	if upd.Status != nil {
		args = append(args, string(*upd.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	addBool("inbound_enabled", upd.InboundEnabled)
	addBool("outbound_enabled", upd.OutboundEnabled)
	addBool("recording_enabled", upd.RecordingEnabled)
	addBool("voice_agent_enabled", upd.VoiceAgentEnabled)
	addString("sip_connection_id", upd.SIPConnectionID)
	addString("messaging_profile_id", upd.MessagingProfileID)
	addString("inbound_trunk_id", upd.InboundTrunkID)
	addString("outbound_trunk_id", upd.OutboundTrunkID)
	addString("dispatch_rule_id", upd.DispatchRuleID)

	q := `UPDATE phone_numbers SET ` + strings.Join(sets, ", ") +
		` WHERE user_id = $1 AND id = $2 RETURNING ` + numberColumns

	return scanNumber(s.db.QueryRowContext(ctx, q, args...))
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]PhoneNumber, error) {
	q := `SELECT ` + numberColumns + ` FROM phone_numbers WHERE user_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, q, userID)
}

func (s *PostgresStore) ListByProject(ctx context.Context, userID, projectID string) ([]PhoneNumber, error) {
	q := `SELECT ` + numberColumns + ` FROM phone_numbers WHERE user_id = $1 AND project_id = $2 ORDER BY created_at DESC`
	return s.list(ctx, q, userID, projectID)
}

func (s *PostgresStore) list(ctx context.Context, q string, args ...any) ([]PhoneNumber, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query phone numbers: %w", err)
	}
	defer rows.Close()

	var out []PhoneNumber
	for rows.Next() {
		n, err := scanNumber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNumber(row rowScanner) (PhoneNumber, error) {
	var n PhoneNumber
	err := row.Scan(
		&n.ID, &n.UserID, &n.ProjectID, &n.E164, &n.CountryCode, &n.NumberType,
		&n.ProviderOrderID, &n.ProviderNumberID, &n.Status, &n.Active,
		&n.InboundEnabled, &n.OutboundEnabled, &n.RecordingEnabled, &n.VoiceAgentEnabled,
		&n.SIPConnectionID, &n.MessagingProfileID,
		&n.InboundTrunkID, &n.OutboundTrunkID, &n.DispatchRuleID,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, ErrNotFound
	}
	if err != nil {
		return PhoneNumber{}, fmt.Errorf("scan phone number: %w", err)
	}
	return n, nil
}
