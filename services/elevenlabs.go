package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultVoiceID = "pNInz6obpgDQGcFmaJgB" // Adam

type ElevenLabsService struct {
	apiKey  string
	voiceID string
	client  *http.Client
}

type ElevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func NewElevenLabsService(apiKey string) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: defaultVoiceID,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// VoiceID returns the voice used for question playback.
func (e *ElevenLabsService) VoiceID() string {
	return e.voiceID
}

// TextToSpeech synthesizes the question text and returns the MP3 bytes.
func (e *ElevenLabsService) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	request := ElevenLabsRequest{
		Text:    text,
		ModelID: "eleven_turbo_v2", // Fast model so the candidate is not kept waiting
		VoiceSettings: VoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := "https://api.elevenlabs.io/v1/text-to-speech/" + e.voiceID
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs API error: %d - %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	slog.Info("Generated audio from ElevenLabs", "text_length", len(text), "audio_size", len(audio))
	return audio, nil
}
