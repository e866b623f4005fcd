// Package vector provides cosine similarity and an in-memory vector index keyed by user.
package vector

import "context"

// Index stores one vector per ID and answers similarity queries.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]*Result, error)
	Remove(ctx context.Context, ids ...string) error
	Size() int
	Close() error
}

// SearchOptions narrows a similarity query.
type SearchOptions struct {
	Limit         int
	MinSimilarity float64
	// Exclude is skipped, typically the requester.
	Exclude string
	// Allow, when non-nil, restricts results to these IDs.
	Allow map[string]struct{}
}

// Result is a single similarity hit.
type Result struct {
	ID    string
	Score float64
}
