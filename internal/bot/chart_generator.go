package bot

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/go-analyze/charts"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// categoryTotal is one slice of the summary.
type categoryTotal struct {
	Category models.Category
	Total    decimal.Decimal
	Count    int
}

// monthTotals aggregates rows dated in the month containing day, largest
// total first.
func monthTotals(rows []models.ConfirmedExpenseRow, day time.Time) ([]categoryTotal, decimal.Decimal) {
	year, month, _ := day.Date()
	return categoryTotals(rows, func(row models.ConfirmedExpenseRow) bool {
		y, m, _ := row.Date.Date()
		return y == year && m == month
	})
}

// categoryTotals aggregates the rows keep accepts, largest total first.
func categoryTotals(rows []models.ConfirmedExpenseRow, keep func(models.ConfirmedExpenseRow) bool) ([]categoryTotal, decimal.Decimal) {
	byCategory := make(map[models.Category]*categoryTotal)
	grand := decimal.Zero
	for _, row := range rows {
		if keep != nil && !keep(row) {
			continue
		}
		t, ok := byCategory[row.Category]
		if !ok {
			t = &categoryTotal{Category: row.Category}
			byCategory[row.Category] = t
		}
		t.Total = t.Total.Add(row.Amount)
		t.Count++
		grand = grand.Add(row.Amount)
	}

	totals := make([]categoryTotal, 0, len(byCategory))
	for _, t := range byCategory {
		totals = append(totals, *t)
	}
	slices.SortFunc(totals, func(a, b categoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})

	return totals, grand
}

// GenerateSummaryChart creates a pie chart of category totals as PNG bytes.
func GenerateSummaryChart(totals []categoryTotal, title string) ([]byte, error) {
	if len(totals) == 0 {
		return nil, fmt.Errorf("no expenses to chart")
	}

	values := make([]float64, 0, len(totals))
	names := make([]string, 0, len(totals))
	for _, t := range totals {
		values = append(values, t.Total.InexactFloat64())
		names = append(names, t.Category.Label())
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{
			Text: title,
		}),
		charts.LegendLabelsOptionFunc(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	return buf, nil
}
