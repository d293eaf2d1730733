package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

const (
	heygenBaseURL  = "https://api.heygen.com"
	heygenPoll     = 10 * time.Second
	heygenMaxPolls = 90
)

// HeyGenConfig selects the avatar and photo used for renders.
type HeyGenConfig struct {
	APIKey string
	// Avatars maps the persona hair_length setting to an avatar id; the
	// "default" entry is used when no setting matches.
	Avatars map[string]string
	// TalkingPhotoID is used for IMAGE_MONTAGE items.
	TalkingPhotoID string
}

// HeyGen renders the video from the voice track and polls until the render
// finishes. The handle is the rendered video URL.
type HeyGen struct {
	cfg        HeyGenConfig
	baseURL    string
	httpClient *http.Client
	poll       time.Duration
	maxPolls   uint64
}

func NewHeyGen(cfg HeyGenConfig) *HeyGen {
	return &HeyGen{
		cfg:        cfg,
		baseURL:    heygenBaseURL,
		httpClient: &http.Client{Timeout: httpClientTimeout},
		poll:       heygenPoll,
		maxPolls:   heygenMaxPolls,
	}
}

// NewHeyGenWithBaseURL points the client at a custom base URL (for testing).
func NewHeyGenWithBaseURL(cfg HeyGenConfig, baseURL string) *HeyGen {
	h := NewHeyGen(cfg)
	h.baseURL = strings.TrimRight(baseURL, "/")
	return h
}

func (h *HeyGen) Name() string { return "heygen" }

type heygenCharacter struct {
	Type           string `json:"type"`
	AvatarID       string `json:"avatar_id,omitempty"`
	AvatarStyle    string `json:"avatar_style,omitempty"`
	TalkingPhotoID string `json:"talking_photo_id,omitempty"`
}

type heygenVoice struct {
	Type     string `json:"type"`
	AudioURL string `json:"audio_url"`
}

type heygenBackground struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type heygenInput struct {
	Character  heygenCharacter  `json:"character"`
	Voice      heygenVoice      `json:"voice"`
	Background heygenBackground `json:"background"`
}

type heygenDimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type heygenRequest struct {
	VideoInputs []heygenInput   `json:"video_inputs"`
	Dimension   heygenDimension `json:"dimension"`
}

func (h *HeyGen) Generate(ctx context.Context, in Input) (string, error) {
	if in.Voice == "" {
		return "", fmt.Errorf("heygen: no voice track: %w", domain.ErrInvalidInput)
	}
	char, err := h.character(in.Item)
	if err != nil {
		return "", err
	}
	w, ht := dimension(in.Item.Video["aspect_ratio"])
	body, err := json.Marshal(heygenRequest{
		VideoInputs: []heygenInput{{
			Character:  char,
			Voice:      heygenVoice{Type: "audio", AudioURL: in.Voice},
			Background: heygenBackground{Type: "color", Value: backgroundColor(in.Item.Video["lighting_color"])},
		}},
		Dimension: heygenDimension{Width: w, Height: ht},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var created struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
	}
	if err := h.do(ctx, http.MethodPost, "/v2/video/generate", body, &created); err != nil {
		return "", err
	}
	if created.Data.VideoID == "" {
		return "", fmt.Errorf("heygen: no video id returned: %w", domain.ErrProviderUnavailable)
	}
	return h.wait(ctx, created.Data.VideoID)
}

func (h *HeyGen) character(item domain.QueueItem) (heygenCharacter, error) {
	if domain.Tier(item.Video["tier"]) == domain.TierImageMontage {
		if h.cfg.TalkingPhotoID == "" {
			return heygenCharacter{}, fmt.Errorf("heygen: no talking photo configured: %w", domain.ErrInvalidInput)
		}
		return heygenCharacter{Type: "talking_photo", TalkingPhotoID: h.cfg.TalkingPhotoID}, nil
	}
	avatar := h.cfg.Avatars[item.Persona["hair_length"]]
	if avatar == "" {
		avatar = h.cfg.Avatars["default"]
	}
	if avatar == "" {
		return heygenCharacter{}, fmt.Errorf("heygen: no avatar configured: %w", domain.ErrInvalidInput)
	}
	return heygenCharacter{Type: "avatar", AvatarID: avatar, AvatarStyle: "normal"}, nil
}

var errRendering = errors.New("render in progress")

// wait polls the render status until it completes or fails.
func (h *HeyGen) wait(ctx context.Context, videoID string) (string, error) {
	var videoURL string
	op := func() error {
		var status struct {
			Data struct {
				Status   string `json:"status"`
				VideoURL string `json:"video_url"`
				Error    any    `json:"error"`
			} `json:"data"`
		}
		if err := h.do(ctx, http.MethodGet, "/v1/video_status.get?video_id="+url.QueryEscape(videoID), nil, &status); err != nil {
			return backoff.Permanent(err)
		}
		switch status.Data.Status {
		case "completed":
			videoURL = status.Data.VideoURL
			return nil
		case "failed":
			return backoff.Permanent(fmt.Errorf("heygen: render %s failed: %v: %w", videoID, status.Data.Error, domain.ErrProviderUnavailable))
		}
		return errRendering
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(h.poll), h.maxPolls), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, errRendering) {
			return "", fmt.Errorf("heygen: render %s not finished after %d polls: %w", videoID, h.maxPolls, domain.ErrProviderUnavailable)
		}
		return "", err
	}
	if videoURL == "" {
		return "", fmt.Errorf("heygen: render %s completed without url: %w", videoID, domain.ErrProviderUnavailable)
	}
	return videoURL, nil
}

func (h *HeyGen) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", h.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return transportError("heygen", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("heygen", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("heygen: decoding response: %v: %w", err, domain.ErrProviderUnavailable)
	}
	return nil
}

func dimension(aspect string) (int, int) {
	switch aspect {
	case "16:9":
		return 1280, 720
	case "1:1":
		return 1080, 1080
	}
	return 720, 1280
}

func backgroundColor(lighting string) string {
	switch lighting {
	case "blue":
		return "#1e3a8a"
	case "warm":
		return "#f5d0a9"
	}
	return "#f5f5f5"
}
