// Package money finds and parses monetary amounts in free text.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount accepted from user input.
var MaxAmount = decimal.NewFromInt(10_000_000)

// ErrNoAmount indicates no amount token was found.
var ErrNoAmount = errors.New("no amount found")

const numberPattern = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

var (
	prefixedPattern = regexp.MustCompile(`(?i)(s\$|us\$|a\$|\$|₹|€|£|¥|\brs\.?|\binr|\busd|\bsgd|\beur|\bgbp)\s?` + numberPattern)
	suffixedPattern = regexp.MustCompile(`(?i)` + numberPattern + `\s?(rs\b|rupees?\b|inr\b|dollars?\b|bucks\b|usd\b|sgd\b|eur\b|euros?\b|gbp\b|/-|₹|\$|€|£)`)
	barePattern     = regexp.MustCompile(numberPattern)
)

// Match is an amount token located in text.
type Match struct {
	Value decimal.Decimal
	// Start and End are the byte offsets of the whole token, currency included.
	Start int
	End   int
	// Marked reports whether the number carried a currency marker.
	Marked bool
}

// Find locates the most likely amount in text. Currency-marked numbers win
// over bare numbers; among equals the leftmost wins.
func Find(text string) (Match, bool) {
	var best *Match

	for _, loc := range prefixedPattern.FindAllStringSubmatchIndex(text, -1) {
		if m, ok := buildMatch(text, loc[0], loc[1], loc[4], loc[5], true); ok {
			best = earliest(best, m)
			break
		}
	}
	for _, loc := range suffixedPattern.FindAllStringSubmatchIndex(text, -1) {
		if m, ok := buildMatch(text, loc[0], loc[1], loc[2], loc[3], true); ok {
			best = earliest(best, m)
			break
		}
	}
	if best != nil {
		return *best, true
	}

	for _, loc := range barePattern.FindAllStringIndex(text, -1) {
		if m, ok := buildMatch(text, loc[0], loc[1], loc[0], loc[1], false); ok {
			return m, true
		}
	}

	return Match{}, false
}

func earliest(cur *Match, m Match) *Match {
	if cur == nil || m.Start < cur.Start {
		return &m
	}
	return cur
}

func buildMatch(text string, start, end, numStart, numEnd int, marked bool) (Match, bool) {
	if !leftBoundary(text, start, marked) || !rightBoundary(text, numEnd, end) {
		return Match{}, false
	}

	value, err := decimal.NewFromString(strings.ReplaceAll(text[numStart:numEnd], ",", ""))
	if err != nil {
		return Match{}, false
	}

	return Match{Value: value, Start: start, End: end, Marked: marked}, true
}

// leftBoundary rejects numbers glued to words or other numbers ("v2", "1.2.3").
func leftBoundary(text string, start int, marked bool) bool {
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:start])
	if marked {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(".,/:-$₹€£¥", r)
}

// rightBoundary rejects times, dates, ordinals and units ("10:30", "3pm").
func rightBoundary(text string, numEnd, end int) bool {
	if end > numEnd {
		// The currency suffix already bounds the token.
		return end == len(text) || !isWordRune(text, end)
	}
	if end == len(text) {
		return true
	}
	r, size := utf8.DecodeRuneInString(text[end:])
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r):
		return false
	case r == ':' || r == '/':
		return false
	case r == '.' || r == ',':
		next := end + size
		return next == len(text) || !isDigitAt(text, next)
	}
	return true
}

func isWordRune(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigitAt(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsDigit(r)
}

// Parse reads a user-typed amount such as "12.50", "$1,200" or "500 rs".
// The input must contain exactly one non-negative amount and nothing else.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrNoAmount
	}

	m, ok := Find(s)
	if !ok {
		return decimal.Zero, ErrNoAmount
	}
	if strings.TrimSpace(s[:m.Start]) != "" || strings.TrimSpace(s[m.End:]) != "" {
		return decimal.Zero, fmt.Errorf("unexpected text around amount in %q", s)
	}
	if m.Value.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	if m.Value.GreaterThan(MaxAmount) {
		return decimal.Zero, fmt.Errorf("amount exceeds %s", MaxAmount.String())
	}

	return m.Value.Round(2), nil
}

// Format renders d with the currency symbol and thousands separators.
func Format(symbol string, d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)

	return b.String()
}
