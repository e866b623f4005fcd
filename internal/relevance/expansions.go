package relevance

import (
	"fmt"
	"strings"
)

// Expansion lists terms that count as evidence for a query mentioning Key.
type Expansion struct {
	Key   string   `yaml:"key"`
	Terms []string `yaml:"terms"`
}

// Expansions is an immutable, ordered expansion table.
type Expansions struct {
	entries []Expansion
}

// NewExpansions validates and lowercases entries, keeping their order.
func NewExpansions(entries []Expansion) (*Expansions, error) {
	out := make([]Expansion, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Key))
		if key == "" {
			return nil, fmt.Errorf("expansion without a key")
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate expansion key %q", key)
		}
		seen[key] = struct{}{}
		terms := make([]string, 0, len(e.Terms))
		for _, t := range e.Terms {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				terms = append(terms, t)
			}
		}
		out = append(out, Expansion{Key: key, Terms: terms})
	}
	return &Expansions{entries: out}, nil
}

// Lookup returns the terms of the first entry whose key occurs in query or
// whose terms include query itself.
func (x *Expansions) Lookup(query string) ([]string, bool) {
	for _, e := range x.entries {
		if strings.Contains(query, e.Key) {
			return e.Terms, true
		}
		for _, t := range e.Terms {
			if t == query {
				return e.Terms, true
			}
		}
	}
	return nil, false
}

var defaultExpansions = []Expansion{
	{"bollywood", []string{"bollywood", "hindi cinema", "hindi film", "hindi movie", "mumbai film", "indian cinema", "film industry", "movie", "cinema", "entertainment"}},
	{"technology", []string{"technology", "tech", "programming", "software", "computer", "coding", "ai", "artificial intelligence", "machine learning", "developer", "engineering"}},
	{"food", []string{"food", "cooking", "cuisine", "restaurant", "chef", "recipe", "dining", "culinary", "meal", "dish"}},
	{"music", []string{"music", "song", "singer", "artist", "instrument", "concert", "album", "melody", "rhythm", "classical"}},
	{"travel", []string{"travel", "trip", "vacation", "tourism", "destination", "journey", "adventure", "explore", "wanderlust"}},
	{"sports", []string{"sports", "game", "fitness", "exercise", "athlete", "competition", "team", "cricket", "football", "basketball"}},
	{"art", []string{"art", "artist", "painting", "drawing", "creative", "design", "sculpture", "gallery", "exhibition"}},
	{"business", []string{"business", "entrepreneur", "startup", "company", "finance", "marketing", "management", "corporate", "professional"}},
	{"education", []string{"education", "learning", "study", "school", "university", "course", "teaching", "knowledge", "academic"}},
	{"health", []string{"health", "fitness", "wellness", "medical", "doctor", "exercise", "nutrition", "yoga", "meditation"}},
}

var defaultTable = mustExpansions(defaultExpansions)

// DefaultExpansions returns the built-in expansion table. It is immutable and shared.
func DefaultExpansions() *Expansions {
	return defaultTable
}

func mustExpansions(entries []Expansion) *Expansions {
	x, err := NewExpansions(entries)
	if err != nil {
		panic(err)
	}
	return x
}
