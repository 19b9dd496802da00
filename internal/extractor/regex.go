package extractor

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/money"
)

// maxMerchantWords caps merchant phrases taken from free text.
const maxMerchantWords = 5

var prepositions = map[string]bool{"at": true, "from": true, "to": true}

// stopWords end a merchant phrase.
var stopWords = map[string]bool{
	"at": true, "from": true, "to": true, "for": true, "on": true,
	"in": true, "via": true, "using": true, "with": true, "by": true,
	"and": true, "paid": true, "spent": true, "today": true,
	"yesterday": true, "tonight": true,
}

// fillerWords carry no merchant or description information.
var fillerWords = map[string]bool{
	"at": true, "from": true, "to": true, "for": true, "on": true,
	"in": true, "via": true, "using": true, "with": true, "by": true,
	"and": true, "paid": true, "pay": true, "spent": true, "spend": true,
	"the": true, "a": true, "an": true, "of": true, "today": true,
	"yesterday": true, "tonight": true,
}

type paymentKeyword struct {
	words  []string
	method models.PaymentMethod
}

// paymentKeywords are matched longest first so "credit card" beats "card".
var paymentKeywords = buildPaymentKeywords()

func buildPaymentKeywords() []paymentKeyword {
	var out []paymentKeyword
	for kw, pm := range models.PaymentKeywords() {
		if pm == models.PaymentOther {
			continue
		}
		out = append(out, paymentKeyword{words: strings.Fields(kw), method: pm})
	}
	slices.SortFunc(out, func(a, b paymentKeyword) int {
		if c := cmp.Compare(len(b.words), len(a.words)); c != 0 {
			return c
		}
		ka, kb := strings.Join(a.words, " "), strings.Join(b.words, " ")
		if c := cmp.Compare(len(kb), len(ka)); c != 0 {
			return c
		}
		return cmp.Compare(ka, kb)
	})
	return out
}

// regexResult is what the pattern strategy recovered from text.
type regexResult struct {
	amount        decimal.NullDecimal
	merchant      string
	description   string
	paymentMethod models.PaymentMethod
}

type token struct {
	text string
	norm string
	// breakAfter marks tokens followed by a clause separator.
	breakAfter bool
	amount     bool
	payment    bool
	used       bool
}

func (t token) punct() bool {
	return t.norm == ""
}

func (t token) skippable() bool {
	return t.amount || t.payment || t.used || t.punct() || fillerWords[t.norm]
}

func (t token) endsPhrase() bool {
	if t.amount || t.payment || t.punct() || stopWords[t.norm] {
		return true
	}
	r, _ := utf8.DecodeRuneInString(t.norm)
	return unicode.IsDigit(r)
}

// parseWithPatterns finds the amount, payment method and merchant in text.
// It reports false when no amount is present.
func parseWithPatterns(text string) (regexResult, bool) {
	m, ok := money.Find(text)
	if !ok || m.Value.IsNegative() || m.Value.GreaterThan(money.MaxAmount) {
		return regexResult{}, false
	}

	tokens := tokenize(text[:m.Start])
	amountAt := len(tokens)
	tokens = append(tokens, token{text: text[m.Start:m.End], norm: "#", amount: true})
	tokens = append(tokens, tokenize(text[m.End:])...)

	res := regexResult{amount: decimal.NewNullDecimal(m.Value.Round(2))}
	res.paymentMethod = markPayment(tokens)

	switch {
	case merchantAfterPreposition(tokens, &res):
	case merchantAfterAmount(tokens, amountAt, &res):
	default:
		remainder := collect(tokens, 0, len(tokens))
		res.merchant = clip(remainder, models.MaxMerchantLength)
		res.description = clip(remainder, models.MaxDescriptionLength)
		return res, true
	}

	res.description = clip(collect(tokens, 0, len(tokens)), models.MaxDescriptionLength)
	if res.description == "" {
		res.description = res.merchant
	}
	return res, true
}

func tokenize(s string) []token {
	fields := strings.Fields(s)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		text := strings.TrimRightFunc(f, isClausePunct)
		norm := strings.TrimFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		tokens = append(tokens, token{
			text:       text,
			norm:       norm,
			breakAfter: len(text) < len(f),
		})
	}
	return tokens
}

func isClausePunct(r rune) bool {
	return strings.ContainsRune(".,;:!?", r)
}

func markPayment(tokens []token) models.PaymentMethod {
	for _, kw := range paymentKeywords {
		for i := 0; i+len(kw.words) <= len(tokens); i++ {
			if !matchesWords(tokens[i:i+len(kw.words)], kw.words) {
				continue
			}
			for j := range kw.words {
				tokens[i+j].payment = true
			}
			return kw.method
		}
	}
	return ""
}

func matchesWords(tokens []token, words []string) bool {
	for i, w := range words {
		if tokens[i].amount || tokens[i].norm != w {
			return false
		}
	}
	return true
}

// merchantAfterPreposition takes the phrase after the first "at", "from" or
// "to" that is followed by a usable word.
func merchantAfterPreposition(tokens []token, res *regexResult) bool {
	for i, t := range tokens {
		if t.amount || !prepositions[t.norm] {
			continue
		}
		if words := phrase(tokens, i+1); words != "" {
			tokens[i].used = true
			res.merchant = clip(words, models.MaxMerchantLength)
			return true
		}
	}
	return false
}

// merchantAfterAmount handles "<description> <amount> <merchant>".
func merchantAfterAmount(tokens []token, amountAt int, res *regexResult) bool {
	if !hasContent(tokens[:amountAt]) || !hasContent(tokens[amountAt+1:]) {
		return false
	}
	start := amountAt + 1
	for start < len(tokens) && tokens[start].skippable() {
		start++
	}
	words := phrase(tokens, start)
	if words == "" {
		return false
	}
	res.merchant = clip(words, models.MaxMerchantLength)
	return true
}

// phrase joins words from start until a phrase boundary and marks them used.
func phrase(tokens []token, start int) string {
	var words []string
	for i := start; i < len(tokens) && len(words) < maxMerchantWords; i++ {
		if tokens[i].endsPhrase() {
			break
		}
		words = append(words, tokens[i].text)
		if tokens[i].breakAfter {
			break
		}
	}
	for i := range words {
		tokens[start+i].used = true
	}
	return strings.Join(words, " ")
}

func hasContent(tokens []token) bool {
	return slices.ContainsFunc(tokens, func(t token) bool { return !t.skippable() })
}

func collect(tokens []token, from, to int) string {
	var words []string
	for _, t := range tokens[from:to] {
		if !t.skippable() {
			words = append(words, t.text)
		}
	}
	return strings.Join(words, " ")
}

func clip(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return strings.TrimSpace(strings.ToValidUTF8(s[:maxLength], ""))
}
