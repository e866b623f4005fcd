package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/vector"
)

// Similarity is the semantic closeness of two users.
type Similarity struct {
	UserA            string   `json:"user_a"`
	UserB            string   `json:"user_b"`
	Score            float64  `json:"similarity_score"`
	Level            string   `json:"similarity_level"`
	SharedTags       []string `json:"shared_tags"`
	SharedCategories []string `json:"shared_categories"`
}

// UserSimilarity compares the embeddings of two users, vectorizing either if needed.
func (e *Engine) UserSimilarity(ctx context.Context, userA, userB string) (*Similarity, error) {
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("two user IDs are required")
	}
	a, err := e.vectorizer.Ensure(ctx, userA)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userA, err)
	}
	b, err := e.vectorizer.Ensure(ctx, userB)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userB, err)
	}
	score := vector.Cosine(a.Vector, b.Vector)
	return &Similarity{
		UserA:            userA,
		UserB:            userB,
		Score:            score,
		Level:            vector.Level(score),
		SharedTags:       sharedTags(a.Metadata.Tags, b.Metadata.Tags),
		SharedCategories: e.sharedCategories(a, b),
	}, nil
}

func sharedTags(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, t := range b {
		in[t] = struct{}{}
	}
	out := []string{}
	for _, t := range a {
		if _, ok := in[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) sharedCategories(a, b *models.ProfileEmbedding) []string {
	in := make(map[string]struct{})
	for _, c := range e.table.CategorySet(b.Metadata.Tags) {
		in[string(c)] = struct{}{}
	}
	out := []string{}
	for _, c := range e.table.CategorySet(a.Metadata.Tags) {
		if _, ok := in[string(c)]; ok {
			out = append(out, string(c))
		}
	}
	return out
}
