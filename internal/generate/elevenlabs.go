package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/artifact"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	elevenLabsModel   = "eleven_multilingual_v2"
	maxAudioBytes     = 32 << 20
)

// ElevenLabs synthesizes the voice track and stores it in the artifact
// store. The persona "voice_id" setting overrides the default voice.
type ElevenLabs struct {
	apiKey     string
	baseURL    string
	voiceID    string
	store      artifact.Store
	httpClient *http.Client
}

func NewElevenLabs(apiKey, voiceID string, store artifact.Store) *ElevenLabs {
	return &ElevenLabs{
		apiKey:     apiKey,
		baseURL:    elevenLabsBaseURL,
		voiceID:    voiceID,
		store:      store,
		httpClient: &http.Client{Timeout: httpClientTimeout},
	}
}

// NewElevenLabsWithBaseURL points the client at a custom base URL (for testing).
func NewElevenLabsWithBaseURL(apiKey, voiceID, baseURL string, store artifact.Store) *ElevenLabs {
	e := NewElevenLabs(apiKey, voiceID, store)
	e.baseURL = strings.TrimRight(baseURL, "/")
	return e
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (e *ElevenLabs) Generate(ctx context.Context, in Input) (string, error) {
	if strings.TrimSpace(in.Script) == "" {
		return "", fmt.Errorf("elevenlabs: no script to voice: %w", domain.ErrInvalidInput)
	}
	voice := e.voiceID
	if v := in.Item.Persona["voice_id"]; v != "" {
		voice = v
	}
	if voice == "" {
		return "", fmt.Errorf("elevenlabs: no voice configured: %w", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(speechRequest{
		Text:    in.Script,
		ModelID: elevenLabsModel,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           pacingSpeed(in.Item.Script[domain.ScriptPacingField]),
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/text-to-speech/"+voice, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", transportError("elevenlabs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", statusError("elevenlabs", resp.StatusCode, string(respBody))
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return "", transportError("elevenlabs", err)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("elevenlabs: empty audio: %w", domain.ErrProviderUnavailable)
	}

	return e.store.Put(ctx, "voice/"+in.Item.ID+".mp3", "audio/mpeg", audio)
}

// pacingSpeed maps the script pacing setting to a speech rate.
func pacingSpeed(pacing string) float64 {
	switch pacing {
	case "fast":
		return 1.15
	case "slow":
		return 0.85
	}
	return 1.0
}
