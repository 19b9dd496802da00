// Package claude extracts expenses with Anthropic's Claude models.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/llm"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

const maxTokens = 1024

// MessageCreator is the subset of the Messages API the client needs.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client extracts expenses through the Messages API.
type Client struct {
	messages MessageCreator
	model    string
}

// NewClient creates a Client. A nil httpClient uses the SDK default.
func NewClient(apiKey, model string, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	client := anthropic.NewClient(opts...)
	return NewClientWithCreator(&client.Messages, model), nil
}

// NewClientWithCreator creates a Client backed by a custom MessageCreator.
func NewClientWithCreator(messages MessageCreator, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{messages: messages, model: model}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// ExtractExpense asks Claude for a structured reading of expense text.
func (c *Client) ExtractExpense(ctx context.Context, text string) (*models.ModelExtraction, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	message, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: llm.SystemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(llm.BuildExtractionPrompt(text, time.Now()))),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, llm.ErrTimeout
		}
		logger.Log.Error().Err(err).
			Str("text", logger.SanitizeText(text)).
			Msg("ExtractExpense: Claude API call failed")
		return nil, fmt.Errorf("claude API call failed: %w", err)
	}

	if message == nil || len(message.Content) == 0 {
		return nil, llm.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return nil, llm.ErrEmptyResponse
	}

	return llm.ParseReply(sb.String())
}
