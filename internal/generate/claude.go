package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

const (
	claudeBaseURL     = "https://api.anthropic.com"
	claudeVersion     = "2023-06-01"
	claudeModel       = "claude-sonnet-4-5"
	claudeMaxTokens   = 1024
	maxRetries        = 3
	initialBackoff    = 500 * time.Millisecond
	maxResponseBytes  = 4 << 20
	httpClientTimeout = 120 * time.Second
)

// Claude writes scripts through the Anthropic Messages API.
type Claude struct {
	apiKey     string
	baseURL    string
	model      string
	composer   *Composer
	httpClient *http.Client
	backoff    time.Duration
}

func NewClaude(apiKey, model string, composer *Composer) *Claude {
	if model == "" {
		model = claudeModel
	}
	if composer == nil {
		composer = NewComposer(0, nil)
	}
	return &Claude{
		apiKey:     apiKey,
		baseURL:    claudeBaseURL,
		model:      model,
		composer:   composer,
		httpClient: &http.Client{Timeout: httpClientTimeout},
		backoff:    initialBackoff,
	}
}

// NewClaudeWithBaseURL points the client at a custom base URL (for testing).
func NewClaudeWithBaseURL(apiKey, baseURL string, composer *Composer) *Claude {
	c := NewClaude(apiKey, "", composer)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Claude) Name() string { return "claude" }

// Generate writes the script for in.Item. The handle is the script text.
func (c *Claude) Generate(ctx context.Context, in Input) (string, error) {
	system, user := c.composer.Compose(in.Item)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("claude: empty script: %w", domain.ErrProviderUnavailable)
	}
	return text, nil
}

// DescribeIngredients asks for the active ingredients of product, used to
// re-plan products whose listing text names none.
func (c *Claude) DescribeIngredients(ctx context.Context, product domain.Product) (string, error) {
	system := "You list the active ingredients of supplement and wellness products. " +
		"Reply with a comma separated list of ingredient names and nothing else. Reply \"none\" if unknown."
	user := fmt.Sprintf("Product: %s\nCategory: %s\nDescription: %s", product.Name, product.Category, product.Description)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(text, "none") {
		return "", nil
	}
	return text, nil
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// complete sends one message and returns the concatenated text blocks.
// Rate limits are retried with exponential backoff.
func (c *Claude) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		System:    system,
		Messages:  []claudeMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		text, err := c.doComplete(ctx, body)
		if err == nil {
			return text, nil
		}
		if !isRateLimit(err) {
			return "", err
		}
		lastErr = err
		if attempt < maxRetries-1 {
			wait := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Claude) doComplete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("claude", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", statusError("claude", resp.StatusCode, string(respBody))
	}

	var out claudeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("claude: decoding response: %v: %w", err, domain.ErrProviderUnavailable)
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func (e *rateLimitError) Is(target error) bool { return target == domain.ErrQuotaExceeded }

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}
