package extractor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

func TestParseWithPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		text        string
		wantOK      bool
		amount      string
		merchant    string
		description string
		payment     models.PaymentMethod
	}{
		{name: "description amount merchant", text: "Lunch $15 McDonald's", wantOK: true, amount: "15", merchant: "McDonald's", description: "Lunch"},
		{name: "at phrase stops at payment", text: "350 at Zomato upi", wantOK: true, amount: "350", merchant: "Zomato", description: "Zomato", payment: models.PaymentUPI},
		{name: "ocr summary line", text: "₹350 at Zomato upi - paneer wrap, lassi", wantOK: true, amount: "350", merchant: "Zomato", description: "paneer wrap lassi", payment: models.PaymentUPI},
		{name: "to phrase stops at stop word", text: "paid 500 to Ramesh for groceries", wantOK: true, amount: "500", merchant: "Ramesh", description: "groceries"},
		{name: "multi word payment", text: "1,299.50 from Amazon via credit card", wantOK: true, amount: "1299.5", merchant: "Amazon", description: "Amazon", payment: models.PaymentCard},
		{name: "payment synonym", text: "coffee 120 starbucks gpay", wantOK: true, amount: "120", merchant: "starbucks", description: "coffee", payment: models.PaymentUPI},
		{name: "remainder is merchant", text: "Uber 250", wantOK: true, amount: "250", merchant: "Uber", description: "Uber"},
		{name: "multi word merchant phrase", text: "dinner at Pizza Hut, 640 cash", wantOK: true, amount: "640", merchant: "Pizza Hut", description: "dinner", payment: models.PaymentCash},
		{name: "amount only", text: "Rs. 80", wantOK: true, amount: "80"},
		{name: "no amount", text: "great coffee today", wantOK: false},
		{name: "time is not an amount", text: "meeting at 10:30", wantOK: false},
		{name: "too large", text: "house 50000000", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseWithPatterns(tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			require.True(t, decimal.RequireFromString(tt.amount).Equal(got.amount.Decimal), "amount %s", got.amount.Decimal)
			require.Equal(t, tt.merchant, got.merchant)
			require.Equal(t, tt.description, got.description)
			require.Equal(t, tt.payment, got.paymentMethod)
		})
	}
}

func TestPaymentKeywordsOrder(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, paymentKeywords)
	for i := 1; i < len(paymentKeywords); i++ {
		require.GreaterOrEqual(t, len(paymentKeywords[i-1].words), len(paymentKeywords[i].words))
	}
	for _, kw := range paymentKeywords {
		require.NotEqual(t, models.PaymentOther, kw.method)
	}
}
