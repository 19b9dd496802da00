package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"google.golang.org/genai"
)

// RecognizeTimeout bounds a single OCR request.
const RecognizeTimeout = 30 * time.Second

// ErrRecognizeTimeout indicates the OCR call timed out.
var ErrRecognizeTimeout = errors.New("receipt recognition timed out")

// ErrNoText indicates the image held no readable expense.
var ErrNoText = errors.New("no text recognized in image")

const noExpenseMarker = "NONE"

const ocrPrompt = `Read this receipt or payment screenshot and summarize the expense as ONE line of plain text in this exact form:
<amount with currency symbol> at <merchant> <payment method> - <main items>

Examples:
₹350 at Zomato upi - paneer wrap, lassi
$54.60 at Swee Choon card - dim sum

Use the final total paid, not a subtotal. Omit the payment method if it is not shown.
If the image does not show an expense, reply with exactly: NONE`

// RecognizeText converts a receipt image to a one-line expense summary that
// the text extraction pipeline can read.
func (c *Client) RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image data is required")
	}

	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, RecognizeTimeout)
	defer cancel()

	resp, err := c.generator.GenerateContent(timeoutCtx, c.model, []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
				{Text: ocrPrompt},
			},
		},
	}, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrRecognizeTimeout
		}
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	line := firstLine(sb.String())
	if line == "" || strings.EqualFold(line, noExpenseMarker) {
		return "", ErrNoText
	}

	logger.Log.Debug().
		Int("image_bytes", len(image)).
		Str("summary", logger.SanitizeText(line)).
		Msg("RecognizeText: receipt summarized")

	return line, nil
}

func firstLine(s string) string {
	for line := range strings.Lines(s) {
		line = strings.Trim(strings.TrimSpace(line), "`")
		if line != "" {
			return line
		}
	}
	return ""
}
