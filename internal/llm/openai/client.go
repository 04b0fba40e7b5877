// Package openai implements llm.Client against an OpenAI-compatible
// chat/embeddings API (including Azure OpenAI deployments) using the
// sashabaranov/go-openai SDK.
package openai

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/sashabaranov/go-openai"

	"github.com/linnemanlabs/claimdesk/internal/llm"
)

// Config holds connection settings for the OpenAI-compatible backend.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the API endpoint. Empty means api.openai.com.
	BaseURL string

	// AzureEndpoint, if set, switches the client into Azure OpenAI mode.
	// ChatModel and EmbeddingModel are then deployment names.
	AzureEndpoint string

	// ChatModel is the model (or Azure deployment) for completions.
	ChatModel string

	// EmbeddingModel is the model (or Azure deployment) for embeddings.
	EmbeddingModel string
}

// Client talks to an OpenAI-compatible API.
type Client struct {
	api            *oai.Client
	chatModel      string
	embeddingModel string
}

// New creates a client from the given config.
func New(cfg Config) *Client {
	var cc oai.ClientConfig
	switch {
	case cfg.AzureEndpoint != "":
		cc = oai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
	default:
		cc = oai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			cc.BaseURL = cfg.BaseURL
		}
	}

	return &Client{
		api:            oai.NewClientWithConfig(cc),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Complete sends the prompt as a single user message and returns the
// assistant text. This is the only place provider response shapes are
// inspected; everything past here is plain text.
func (c *Client) Complete(ctx context.Context, prompt string, p llm.Params) (string, error) {
	req := oai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &llm.ProviderError{Op: "complete", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &llm.ProviderError{Op: "complete", Err: fmt.Errorf("empty choices in response %s", resp.ID)}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, oai.EmbeddingRequest{
		Model: oai.EmbeddingModel(c.embeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, &llm.ProviderError{Op: "embed", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &llm.ProviderError{Op: "embed", Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))}
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &llm.ProviderError{Op: "embed", Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
