package projects

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("projects: not found")

// Store is the read contract the orchestrator depends on.
// Every read is scoped by owning user ID (authorization is row-level).
type Store interface {
	Get(ctx context.Context, userID, projectID string) (CallingProject, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID, projectID string) (CallingProject, error) {
	const q = `
SELECT id, user_id, name, system_prompt,
       stt_provider, stt_model, stt_language,
       tts_provider, tts_model, tts_voice,
       llm_provider, llm_model, llm_temperature,
       first_message_mode, latency_priority,
       created_at, updated_at
FROM calling_projects
WHERE user_id = $1 AND id = $2
`
	var p CallingProject
	if err := s.db.QueryRowContext(ctx, q, userID, projectID).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.SystemPrompt,
		&p.STTProvider,
		&p.STTModel,
		&p.STTLanguage,
		&p.TTSProvider,
		&p.TTSModel,
		&p.TTSVoice,
		&p.LLMProvider,
		&p.LLMModel,
		&p.LLMTemperature,
		&p.FirstMessageMode,
		&p.LatencyPriority,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallingProject{}, ErrNotFound
		}
		return CallingProject{}, err
	}
	return p, nil
}
