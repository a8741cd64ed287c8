// Package dispatch defines the metadata contract carried on dispatch rules
// and agent dispatches. The voice agent reads this JSON at call time; fields
// are append-only and every field carries a default so older agents keep
// working against newer producers.
package dispatch

import (
	"encoding/json"
	"fmt"

	"voiceline-platform/internal/projects"
)

// MetadataVersion identifies the current shape of the contract.
const MetadataVersion = 1

// Agent-side fallbacks. The agent applies the same values when a field is
// missing, so changing one here requires a coordinated agent release.
const (
	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4o-mini"

	DefaultSTTProvider = "deepgram"
	DefaultSTTModel    = "nova-3"
	DefaultSTTLanguage = "en"

	DefaultTTSProvider = "cartesia"
	DefaultTTSModel    = "sonic-2"

	DefaultFirstMessageMode = "assistant_speaks_first"
	DefaultLatencyPriority  = "balanced"
)

// Metadata is the JSON payload embedded in a dispatch rule or agent dispatch.
type Metadata struct {
	Version   int    `json:"version"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`

	Prompt string `json:"prompt"`

	STTProvider string `json:"stt_provider"`
	STTModel    string `json:"stt_model"`
	STTLanguage string `json:"stt_language"`

	TTSProvider string `json:"tts_provider"`
	TTSModel    string `json:"tts_model"`
	TTSVoice    string `json:"tts_voice,omitempty"`

	LLMProvider    string  `json:"llm_provider"`
	LLMModel       string  `json:"llm_model"`
	LLMTemperature float64 `json:"llm_temperature,omitempty"`

	FirstMessageMode string `json:"first_message_mode"`
	LatencyPriority  string `json:"latency_priority"`

	// PhoneNumber lets dispatch rules be matched back to the number they
	// serve when trunk linkage is missing.
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Build denormalizes a project's agent configuration into call-time metadata.
// Unset project fields fall back to the documented defaults, never to empty
// strings.
func Build(p projects.CallingProject, e164 string) Metadata {
	m := Metadata{
		Version:          MetadataVersion,
		ProjectID:        p.ID,
		UserID:           p.UserID,
		Prompt:           p.SystemPrompt,
		STTProvider:      orDefault(p.STTProvider, DefaultSTTProvider),
		STTModel:         orDefault(p.STTModel, DefaultSTTModel),
		STTLanguage:      orDefault(p.STTLanguage, DefaultSTTLanguage),
		TTSProvider:      orDefault(p.TTSProvider, DefaultTTSProvider),
		TTSModel:         orDefault(p.TTSModel, DefaultTTSModel),
		TTSVoice:         p.TTSVoice,
		LLMProvider:      orDefault(p.LLMProvider, DefaultLLMProvider),
		LLMModel:         orDefault(p.LLMModel, DefaultLLMModel),
		LLMTemperature:   p.LLMTemperature,
		FirstMessageMode: orDefault(p.FirstMessageMode, DefaultFirstMessageMode),
		LatencyPriority:  orDefault(p.LatencyPriority, DefaultLatencyPriority),
		PhoneNumber:      e164,
	}
	return m
}

// Encode serializes the metadata for the wire.
func (m Metadata) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode dispatch metadata: %w", err)
	}
	return string(b), nil
}

// Decode parses metadata from a dispatch rule. Unknown fields are ignored so
// newer producers stay readable.
func Decode(raw string) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("decode dispatch metadata: %w", err)
	}
	return m, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
