package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
)

const (
	chatCompletionsPath = "/chat/completions"

	maxTemperature = 2.0
	maxMaxTokens   = 200000
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are optional completion parameters. Nil pointers are omitted from
// the request.
type Options struct {
	Temperature *float64
	MaxTokens   *int
	// Schema, when set, requests a structured JSON answer and validates it.
	Schema *Schema
}

// Completion is a successful chat completion.
type Completion struct {
	Text    string
	Model   string
	Usage   TokenUsage
	Latency time.Duration
	// Attempts counts HTTP attempts, retries included.
	Attempts int
	// JSON holds the decoded object when Options.Schema was set.
	JSON map[string]any
}

// Gateway is the only component that knows the chat completion wire format.
type Gateway struct {
	client *Client
	usage  *Usage
}

// NewGateway wires a Gateway over client. usage may be nil, in which case a
// private zero-cost accumulator is used. Pass the same Usage given to the
// client through WithUsage so latency samples and counters line up.
func NewGateway(client *Client, usage *Usage) *Gateway {
	if usage == nil {
		usage = NewUsage(0)
	}
	if client.usage == nil {
		client.usage = usage
	}
	return &Gateway{client: client, usage: usage}
}

// Usage returns the current usage statistics.
func (g *Gateway) Usage() UsageStats { return g.usage.Snapshot() }

// ResetUsage zeroes usage statistics.
func (g *Gateway) ResetUsage() { g.usage.Reset() }

// CircuitState returns the circuit breaker state.
func (g *Gateway) CircuitState() CircuitState { return g.client.Circuit() }

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

// Complete runs one chat completion.
//
// Invalid arguments fail with InvalidRequest before any network call. A
// response whose content is missing or does not satisfy opts.Schema fails with
// SchemaInvalid and is not retried.
func (g *Gateway) Complete(ctx context.Context, model string, messages []Message, opts Options) (*Completion, error) {
	if err := validate(model, messages, opts); err != nil {
		return nil, err
	}

	req := chatRequest{
		Model:       strings.TrimSpace(model),
		Messages:    make([]Message, len(messages)),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = Message{Role: m.Role, Content: SanitizeContent(m.Content)}
	}
	if opts.Schema != nil {
		req.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName(opts.Schema),
				"strict": true,
				"schema": opts.Schema.JSONSchema(),
			},
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "encode chat request", err)
	}

	raw, err := g.client.Send(ctx, http.MethodPost, chatCompletionsPath, body)
	if err != nil {
		g.usage.Record(TokenUsage{}, true)
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		g.usage.Record(TokenUsage{}, true)
		return nil, apperr.Wrap(apperr.KindSchemaInvalid, "llm response is not valid JSON", err).
			WithDetail("snippet", summarizeSnippet(string(raw.Body)))
	}
	recordTokens(resp.Usage)

	out := &Completion{
		Model:    firstNonEmpty(resp.Model, req.Model),
		Usage:    resp.Usage,
		Latency:  raw.Duration,
		Attempts: raw.Attempts,
	}
	if len(resp.Choices) == 0 {
		g.usage.Record(resp.Usage, true)
		return nil, apperr.New(apperr.KindSchemaInvalid, "llm response has no choices")
	}
	choice := resp.Choices[0]
	out.Text = strings.TrimSpace(choice.Message.Content)
	if out.Text == "" {
		g.usage.Record(resp.Usage, true)
		e := apperr.New(apperr.KindSchemaInvalid, "llm response content is empty").
			WithDetail("finish_reason", choice.FinishReason)
		if choice.Message.Refusal != "" {
			e.WithDetail("refusal", summarizeSnippet(choice.Message.Refusal))
		}
		return nil, e
	}

	if opts.Schema != nil {
		var obj map[string]any
		if err := DecodeJSON(out.Text, &obj); err != nil {
			g.usage.Record(resp.Usage, true)
			return nil, apperr.Wrap(apperr.KindSchemaInvalid, "llm content is not a JSON object", err)
		}
		if err := opts.Schema.Validate(obj); err != nil {
			g.usage.Record(resp.Usage, true)
			return nil, apperr.Wrap(apperr.KindSchemaInvalid, "llm content does not match schema", err).
				WithDetail("schema", schemaName(opts.Schema))
		}
		out.JSON = obj
	}

	g.usage.Record(resp.Usage, false)
	return out, nil
}

func validate(model string, messages []Message, opts Options) error {
	if strings.TrimSpace(model) == "" {
		return apperr.New(apperr.KindInvalidRequest, "model is required")
	}
	if len(messages) == 0 {
		return apperr.New(apperr.KindInvalidRequest, "at least one message is required")
	}
	for i, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return apperr.New(apperr.KindInvalidRequest, "invalid message role").
				WithDetail("index", i).
				WithDetail("role", m.Role)
		}
	}
	if t := opts.Temperature; t != nil && (*t < 0 || *t > maxTemperature) {
		return apperr.New(apperr.KindInvalidRequest, "temperature must be within [0, 2]").
			WithDetail("temperature", *t)
	}
	if mt := opts.MaxTokens; mt != nil && (*mt < 1 || *mt > maxMaxTokens) {
		return apperr.New(apperr.KindInvalidRequest, "max_tokens must be within [1, 200000]").
			WithDetail("max_tokens", *mt)
	}
	if opts.Schema != nil && len(opts.Schema.Properties) == 0 {
		return apperr.Wrap(apperr.KindInvalidRequest, "schema has no properties", errors.New("empty schema"))
	}
	return nil
}

func recordTokens(u TokenUsage) {
	if u.PromptTokens > 0 {
		llmTokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	}
	if u.CompletionTokens > 0 {
		llmTokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	}
}

func schemaName(s *Schema) string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return "response"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
