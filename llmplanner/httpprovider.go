package llmplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/common/redact"
	"github.com/bdobrica/robit/common/retry"
)

// HTTPConfig configures an OpenAI-compatible chat-completions backend.
type HTTPConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature *float64
	// MaxRetries bounds how many times ParseDecision's retry sentinel
	// triggers a fresh completion request for the same input.
	MaxRetries int
}

// DefaultHTTPConfig mirrors the teacher's provider defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Model:      "gpt-4o-mini",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    30 * time.Second,
		MaxRetries: 1,
	}
}

// HTTPClient is a Planner backed by any OpenAI-compatible chat completions
// endpoint (OpenAI itself, or a compatible self-hosted gateway).
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPClient returns a ready-to-use HTTPClient.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPConfig().Timeout
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHTTPConfig().Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHTTPConfig().BaseURL
	}
	return &HTTPClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// WithBinding returns a copy of the client pinned to model (and temperature,
// if non-nil), sharing the same underlying http.Client and credentials. A
// room-scoped ConfigUpdatePayload.ProviderBinding uses this to steer one
// room's completions to a different model without touching the engine's
// default backend.
func (c *HTTPClient) WithBinding(model string, temperature *float64) Planner {
	cfg := c.cfg
	if model != "" {
		cfg.Model = model
	}
	if temperature != nil {
		cfg.Temperature = temperature
	}
	return &HTTPClient{cfg: cfg, client: c.client}
}

// ModelName reports the configured model, used to label the engine's active
// backend for display and for conversation-key decoration.
func (c *HTTPClient) ModelName() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Format      *chatFormat   `json:"response_format,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// PlanWithHistory builds a system+history+user prompt, posts it to the
// configured chat-completions endpoint, and recovers a Decision from the
// reply via ParseDecision. On a RetrySentinel result it retries up to
// cfg.MaxRetries times with a sterner follow-up instruction, using
// common/retry's backoff between attempts.
func (c *HTTPClient) PlanWithHistory(ctx context.Context, input string, actions []action.Spec, history []ChatMessage) (Decision, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt(actions)}}
	for _, h := range history {
		messages = append(messages, chatMessage{Role: string(h.Role), Content: h.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: input})

	maxAttempts := c.cfg.MaxRetries + 1
	var decision Decision

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, func() error {
		content, err := c.complete(ctx, messages)
		if err != nil {
			return err
		}
		decision = ParseDecision(content, input)
		if decision.Kind == DecisionUnknown && decision.Message == RetrySentinel {
			messages = append(messages, chatMessage{
				Role:    "user",
				Content: "RETRY: your previous reply was not valid JSON. Respond with exactly one JSON object per the schema.",
			})
			return fmt.Errorf("llmplanner: %s", RetrySentinel)
		}
		return nil
	})
	if err != nil && decision.Kind != DecisionUnknown {
		return Decision{}, err
	}
	return decision, nil
}

func (c *HTTPClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		Format:      &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("llmplanner: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llmplanner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llmplanner: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llmplanner: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		body := redact.String(string(data), c.cfg.APIKey)
		return "", fmt.Errorf("llmplanner: backend returned %d: %s", resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("llmplanner: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llmplanner: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// systemPrompt lists the five allowed decision schemas and the known
// actions, matching the shape of the teacher's prompt template and the
// original engine's system_prompt_base heuristics.
func systemPrompt(actions []action.Spec) string {
	var b strings.Builder
	b.WriteString("You are robit, a conversational action engine. Respond with exactly one JSON object, no prose, no markdown fences.\n")
	b.WriteString("Allowed shapes:\n")
	b.WriteString(`  {"type":"action","name":"<action>","params":{...}}` + "\n")
	b.WriteString(`  {"type":"need_input","prompt":"...","action":"<action>","missing":["..."]}` + "\n")
	b.WriteString(`  {"type":"plan","steps":[{"action":"<action>","params":{...},"note":"..."}],"message":"..."}` + "\n")
	b.WriteString(`  {"type":"chat","message":"..."}` + "\n")
	b.WriteString(`  {"type":"unknown","message":"..."}` + "\n")
	b.WriteString("Only pick actions from this list:\n")
	for _, spec := range actions {
		fmt.Fprintf(&b, "  - %s: %s\n", spec.Name, spec.Description)
	}
	b.WriteString("Interpret \"desktop\" or \"桌面\" as ~/Desktop. Interpret \"current directory\" or \"当前目录\" as the working directory given in context. ")
	b.WriteString("Prefer type=plan for multi-step requests, type=chat for pure conversation, type=need_input when a required detail is missing.\n")
	return b.String()
}
