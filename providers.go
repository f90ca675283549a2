package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ProviderCallError wraps any failure talking to a model backend, including
// a missing credential. There is no retry and no fallback to another
// provider behind the caller's back.
type ProviderCallError struct {
	Provider string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s call failed: %v", e.Provider, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

var errCredentialNotConfigured = errors.New("credential not configured")

// providerClient is one text-generation backend resolved from config.
type providerClient interface {
	name() string
	invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type ModelInfo struct {
	ID            string
	ContextTokens int
}

type ProviderDescriptor struct {
	Name         string
	DefaultModel string
	Models       []ModelInfo
}

var providerCatalog = []ProviderDescriptor{
	{
		Name:         "anthropic",
		DefaultModel: "claude-sonnet-4-20250514",
		Models: []ModelInfo{
			{ID: "claude-sonnet-4-20250514", ContextTokens: 200000},
			{ID: "claude-3-5-haiku-latest", ContextTokens: 200000},
		},
	},
	{
		Name:         "openai",
		DefaultModel: "gpt-4o",
		Models: []ModelInfo{
			{ID: "gpt-4o", ContextTokens: 128000},
			{ID: "gpt-4o-mini", ContextTokens: 128000},
		},
	},
	{
		Name:         "gemini",
		DefaultModel: "gemini-2.0-flash",
		Models: []ModelInfo{
			{ID: "gemini-2.0-flash", ContextTokens: 1048576},
			{ID: "gemini-1.5-pro", ContextTokens: 1048576},
		},
	},
	{
		Name:         "deepseek",
		DefaultModel: "deepseek-chat",
		Models: []ModelInfo{
			{ID: "deepseek-chat", ContextTokens: 65536},
		},
	},
}

func lookupProvider(name string) (ProviderDescriptor, bool) {
	for _, d := range providerCatalog {
		if d.Name == name {
			return d, true
		}
	}
	return ProviderDescriptor{}, false
}

// ContextTokens returns the window for a model, falling back to the default
// model's window for custom model IDs.
func (d ProviderDescriptor) ContextTokens(model string) int {
	tokens := 0
	for _, m := range d.Models {
		if m.ID == d.DefaultModel {
			tokens = m.ContextTokens
		}
		if m.ID == model {
			return m.ContextTokens
		}
	}
	return tokens
}

const (
	openAIEndpoint   = "https://api.openai.com/v1/chat/completions"
	deepSeekEndpoint = "https://api.deepseek.com/chat/completions"
	geminiEndpoint   = "https://generativelanguage.googleapis.com"
)

// newProviderClient resolves the configured provider and model. A missing
// credential fails here, before any rows are touched, rather than silently
// substituting a different backend.
func newProviderClient(cfg Config) (providerClient, error) {
	desc, ok := lookupProvider(cfg.AIProvider)
	if !ok {
		return nil, fmt.Errorf("unknown ai_provider %q", cfg.AIProvider)
	}
	model := cfg.AIModel
	if model == "" {
		model = desc.DefaultModel
	}
	key := cfg.APIKeyFor(desc.Name)
	if key == "" {
		return nil, &ProviderCallError{Provider: desc.Name, Err: errCredentialNotConfigured}
	}

	switch desc.Name {
	case "anthropic":
		return &anthropicClient{apiKey: key, model: model}, nil
	case "openai":
		return &chatCompletionsClient{provider: "openai", endpoint: openAIEndpoint, apiKey: key, model: model}, nil
	case "deepseek":
		return &chatCompletionsClient{provider: "deepseek", endpoint: deepSeekEndpoint, apiKey: key, model: model}, nil
	case "gemini":
		return &geminiClient{endpoint: geminiEndpoint, apiKey: key, model: model}, nil
	}
	return nil, fmt.Errorf("unknown ai_provider %q", cfg.AIProvider)
}

// FormatProviderStatus lists each provider's credential state and models for
// the providers command.
func FormatProviderStatus(cfg Config) string {
	var b strings.Builder
	for _, desc := range providerCatalog {
		status := "credential not configured"
		if cfg.APIKeyFor(desc.Name) != "" {
			status = "available"
		}
		var models []string
		for _, m := range desc.Models {
			id := m.ID
			if m.ID == desc.DefaultModel {
				id += " (default)"
			}
			models = append(models, fmt.Sprintf("%s ctx=%d", id, m.ContextTokens))
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", desc.Name, status))
		for _, m := range models {
			b.WriteString("  " + m + "\n")
		}
	}
	return b.String()
}

// --- Anthropic ---

type anthropicClient struct {
	apiKey string
	model  string
}

func (c *anthropicClient) name() string { return "anthropic" }

func (c *anthropicClient) invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("ai anthropic error: %v", err)
		return "", &ProviderCallError{Provider: "anthropic", Err: err}
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("ai anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", &ProviderCallError{Provider: "anthropic", Err: fmt.Errorf("no text content in response")}
}

// --- OpenAI-style chat completions (OpenAI, DeepSeek) ---

type chatCompletionsRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionsClient struct {
	provider string
	endpoint string
	apiKey   string
	model    string
}

func (c *chatCompletionsClient) name() string { return c.provider }

func (c *chatCompletionsClient) invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatCompletionsRequest{
		Model: c.model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderCallError{Provider: c.provider, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &ProviderCallError{Provider: c.provider, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		log.Printf("ai %s error: %v", c.provider, err)
		return "", &ProviderCallError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderCallError{Provider: c.provider, Err: fmt.Errorf("reading response: %w", err)}
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderCallError{Provider: c.provider, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if parsed.Error != nil {
		log.Printf("ai %s api error: %s", c.provider, parsed.Error.Message)
		return "", &ProviderCallError{Provider: c.provider, Err: fmt.Errorf("api error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderCallError{Provider: c.provider, Err: fmt.Errorf("no choices in response")}
	}

	content := parsed.Choices[0].Message.Content
	if parsed.Usage != nil {
		log.Printf("ai %s response size=%d tokens_in=%d tokens_out=%d", c.provider, len(content), parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	} else {
		log.Printf("ai %s response size=%d", c.provider, len(content))
	}
	return content, nil
}

// --- Gemini ---

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type geminiClient struct {
	endpoint string
	apiKey   string
	model    string
}

func (c *geminiClient) name() string { return "gemini" }

func (c *geminiClient) invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderCallError{Provider: "gemini", Err: fmt.Errorf("marshaling request: %w", err)}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &ProviderCallError{Provider: "gemini", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		log.Printf("ai gemini error: %v", err)
		return "", &ProviderCallError{Provider: "gemini", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderCallError{Provider: "gemini", Err: fmt.Errorf("reading response: %w", err)}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderCallError{Provider: "gemini", Err: fmt.Errorf("parsing response: %w", err)}
	}
	if parsed.Error != nil {
		log.Printf("ai gemini api error: %s", parsed.Error.Message)
		return "", &ProviderCallError{Provider: "gemini", Err: fmt.Errorf("api error %s: %s", parsed.Error.Status, parsed.Error.Message)}
	}
	if len(parsed.Candidates) == 0 {
		return "", &ProviderCallError{Provider: "gemini", Err: fmt.Errorf("no candidates in response")}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	log.Printf("ai gemini response size=%d", text.Len())
	return text.String(), nil
}
