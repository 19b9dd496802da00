package categorizer

import (
	"sort"
	"strings"
	"sync"

	"github.com/jbrukh/bayesian"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// Learner ranks categories for quick-fix suggestions from confirmed
// expenses, using a naive Bayes model over description words.
type Learner struct {
	mu      sync.Mutex
	classes []bayesian.Class
	cl      *bayesian.Classifier
	learned int
}

// NewLearner creates an untrained Learner over all selectable categories.
func NewLearner() *Learner {
	classes := make([]bayesian.Class, 0, len(models.AllCategories))
	for _, c := range models.AllCategories {
		classes = append(classes, bayesian.Class(c))
	}

	return &Learner{
		classes: classes,
		cl:      bayesian.NewClassifier(classes...),
	}
}

// Learn records that text was confirmed as category c.
func (l *Learner) Learn(text string, c models.Category) {
	if c == models.CategoryUncategorized || !c.Valid() {
		return
	}

	terms := learnerTerms(text)
	if len(terms) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cl.Learn(terms, bayesian.Class(c))
	l.learned++
}

// Learned returns the number of training documents seen.
func (l *Learner) Learned() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.learned
}

// Rank returns every selectable category, most likely first. Before any
// training, or for text with no usable words, declaration order is returned.
func (l *Learner) Rank(text string) []models.Category {
	ranked := make([]models.Category, len(models.AllCategories))
	copy(ranked, models.AllCategories)

	terms := learnerTerms(text)
	if len(terms) == 0 {
		return ranked
	}

	l.mu.Lock()
	if l.learned == 0 {
		l.mu.Unlock()
		return ranked
	}
	scores, _, _ := l.cl.LogScores(terms)
	l.mu.Unlock()

	byClass := make(map[models.Category]float64, len(scores))
	for i, score := range scores {
		byClass[models.Category(l.classes[i])] = score
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return byClass[ranked[i]] > byClass[ranked[j]]
	})

	return ranked
}

func learnerTerms(text string) []string {
	fields := strings.Fields(normalize(text))
	terms := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}
