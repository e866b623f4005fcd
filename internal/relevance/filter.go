// Package relevance guards semantic matches with a lexical relevance check.
package relevance

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultBypassSimilarity is the similarity above which the lexical check is skipped.
const DefaultBypassSimilarity = 0.9

// Filter decides whether a semantically retrieved candidate is actually relevant to the query.
type Filter struct {
	expansions *Expansions
	bypass     float64
	failOpen   bool
	logger     *zap.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithExpansions replaces the built-in expansion table.
func WithExpansions(x *Expansions) FilterOption {
	return func(f *Filter) {
		if x != nil {
			f.expansions = x
		}
	}
}

// WithBypassSimilarity sets the similarity above which candidates always pass.
func WithBypassSimilarity(s float64) FilterOption {
	return func(f *Filter) { f.bypass = s }
}

// WithFailOpen sets the verdict returned when the check itself fails.
func WithFailOpen(open bool) FilterOption {
	return func(f *Filter) { f.failOpen = open }
}

// WithLogger sets a logger for filter decisions.
func WithLogger(l *zap.Logger) FilterOption {
	return func(f *Filter) { f.logger = l }
}

// NewFilter returns a fail-open filter with the built-in expansions.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		expansions: DefaultExpansions(),
		bypass:     DefaultBypassSimilarity,
		failOpen:   true,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// Terms returns the lowercase term set a candidate must contain to pass for query.
func (f *Filter) Terms(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	terms := []string{q}
	if exp, ok := f.expansions.Lookup(q); ok {
		return append(terms, exp...)
	}
	return append(terms, strings.Fields(q)...)
}

// Relevant reports whether a candidate with the given profile text, tags and
// semantic similarity should be kept for query. An empty query keeps everything.
func (f *Filter) Relevant(query, profileText string, tags []string, similarity float64) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("keyword relevance check failed", zap.Any("panic", r), zap.Bool("fail_open", f.failOpen))
			keep = f.failOpen
		}
	}()
	terms := f.Terms(query)
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(profileText) + " " + strings.ToLower(strings.Join(tags, " "))
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	if similarity > f.bypass {
		return true
	}
	f.logger.Debug("candidate dropped by keyword filter", zap.String("query", query), zap.Float64("similarity", similarity))
	return false
}
