package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestRecognizeText(t *testing.T) {
	t.Parallel()

	image := []byte{0xff, 0xd8, 0xff}

	t.Run("returns the summary line", func(t *testing.T) {
		t.Parallel()

		mockGen := &mockGenerator{response: textResponse("₹350 at Zomato upi - paneer wrap\n")}
		client := NewClientWithGenerator(mockGen, "gemini-test")

		got, err := client.RecognizeText(context.Background(), image, "")
		require.NoError(t, err)
		require.Equal(t, "₹350 at Zomato upi - paneer wrap", got)

		require.Equal(t, "gemini-test", mockGen.lastModel)
		blob := mockGen.lastContents[0].Parts[0].InlineData
		require.Equal(t, "image/jpeg", blob.MIMEType)
		require.Equal(t, image, blob.Data)
	})

	t.Run("skips code fences", func(t *testing.T) {
		t.Parallel()

		client := NewClientWithGenerator(&mockGenerator{response: textResponse("```\n$12.50 at Subway card\n```")}, "")
		got, err := client.RecognizeText(context.Background(), image, "image/png")
		require.NoError(t, err)
		require.Equal(t, "$12.50 at Subway card", got)
	})

	t.Run("no expense in image", func(t *testing.T) {
		t.Parallel()

		client := NewClientWithGenerator(&mockGenerator{response: textResponse("NONE")}, "")
		_, err := client.RecognizeText(context.Background(), image, "")
		require.ErrorIs(t, err, ErrNoText)
	})

	t.Run("empty candidates", func(t *testing.T) {
		t.Parallel()

		client := NewClientWithGenerator(&mockGenerator{response: &genai.GenerateContentResponse{}}, "")
		_, err := client.RecognizeText(context.Background(), image, "")
		require.Error(t, err)
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		t.Parallel()

		client := NewClientWithGenerator(&mockGenerator{err: context.DeadlineExceeded}, "")
		_, err := client.RecognizeText(context.Background(), image, "")
		require.ErrorIs(t, err, ErrRecognizeTimeout)
	})

	t.Run("empty image", func(t *testing.T) {
		t.Parallel()

		client := NewClientWithGenerator(&mockGenerator{}, "")
		_, err := client.RecognizeText(context.Background(), nil, "")
		require.Error(t, err)
	})
}
