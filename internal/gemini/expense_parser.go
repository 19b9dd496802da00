package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/llm"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"google.golang.org/genai"
)

// ExtractExpense asks Gemini for a structured reading of expense text. The
// caller's context bounds the call; deadline errors map to llm.ErrTimeout.
func (c *Client) ExtractExpense(ctx context.Context, text string) (*models.ModelExtraction, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	textHash := logger.SanitizeText(text)
	prompt := llm.BuildExtractionPrompt(text, time.Now())

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.generator.GenerateContent(ctx, c.model, contents, extractionConfig())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, llm.ErrTimeout
		}
		logger.Log.Error().Err(err).
			Str("text", textHash).
			Msg("ExtractExpense: Gemini API call failed")
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	fullText := resp.Text()
	if fullText == "" {
		return nil, llm.ErrEmptyResponse
	}

	extraction, err := llm.ParseReply(fullText)
	if err != nil {
		logger.Log.Debug().Err(err).
			Str("text", textHash).
			Msg("ExtractExpense: unusable Gemini reply")
		return nil, err
	}

	return extraction, nil
}

func extractionConfig() *genai.GenerateContentConfig {
	temp := float32(0.1)
	return &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(400),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: llm.SystemInstruction}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"amount": {
					Type:        genai.TypeString,
					Description: "Amount paid as a plain number string, empty if absent",
				},
				"merchant": {
					Type:        genai.TypeString,
					Description: "Shop, app or payee, empty if absent",
				},
				"category": {
					Type:        genai.TypeString,
					Enum:        append(llm.CategoryNames(), ""),
					Description: "Expense category, empty if unsure",
				},
				"description": {
					Type:        genai.TypeString,
					Description: "Short description of what was bought",
				},
				"payment_method": {
					Type:        genai.TypeString,
					Enum:        append(llm.PaymentNames(), ""),
					Description: "How it was paid, empty if absent",
				},
				"date": {
					Type:        genai.TypeString,
					Description: "Expense date as YYYY-MM-DD, empty if absent",
				},
			},
			Required: []string{"amount", "merchant", "category", "description", "payment_method", "date"},
		},
	}
}
