package projects

import "time"

// CallingProject owns the agent configuration a phone number is bound to.
//
// Ownership invariant: UserID is required on every row.
//
// The provisioning orchestrator reads projects but never writes them; project
// CRUD lives in the API layer. Configuration here is denormalized into
// dispatch-rule metadata at assignment time, which is why a configuration
// change requires a dispatch-rule resync.
type CallingProject struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`

	SystemPrompt string `json:"system_prompt" db:"system_prompt"`

	STTProvider string `json:"stt_provider" db:"stt_provider"`
	STTModel    string `json:"stt_model" db:"stt_model"`
	STTLanguage string `json:"stt_language" db:"stt_language"`

	TTSProvider string `json:"tts_provider" db:"tts_provider"`
	TTSModel    string `json:"tts_model" db:"tts_model"`
	TTSVoice    string `json:"tts_voice" db:"tts_voice"`

	LLMProvider    string  `json:"llm_provider" db:"llm_provider"`
	LLMModel       string  `json:"llm_model" db:"llm_model"`
	LLMTemperature float64 `json:"llm_temperature" db:"llm_temperature"`

	FirstMessageMode string `json:"first_message_mode" db:"first_message_mode"`
	LatencyPriority  string `json:"latency_priority" db:"latency_priority"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
