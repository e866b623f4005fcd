// Package tags maps free-form interest tags onto a closed set of categories.
package tags

import (
	"fmt"
	"strings"
)

// Category is one entry of the closed category set.
type Category string

const (
	FoodCuisine   Category = "Food & Cuisine"
	Technology    Category = "Technology"
	Entertainment Category = "Entertainment"
	Sports        Category = "Sports"
	Travel        Category = "Travel"
	Business      Category = "Business"
	Education     Category = "Education"
	Health        Category = "Health"
	Location      Category = "Location"
	Lifestyle     Category = "Lifestyle"
	Professional  Category = "Professional"
	Other         Category = "Other"
)

// Rule assigns Category to any tag containing one of Keywords.
// A keyword may carry a leading or trailing space to require a word boundary,
// since tags are matched with a space bolted on each side.
type Rule struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Table is an immutable, ordered keyword table. The first matching rule wins.
type Table struct {
	rules []Rule
	order map[Category]int
}

// NewTable builds a table from rules in declared order. Keywords are lowercased.
// Other is always the implicit last category and cannot carry keywords.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{order: make(map[Category]int, len(rules)+1)}
	for _, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("category rule without a name")
		}
		if r.Category == Other {
			return nil, fmt.Errorf("%q is the fallback category and cannot have keywords", Other)
		}
		if _, dup := t.order[r.Category]; dup {
			return nil, fmt.Errorf("duplicate category %q", r.Category)
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(kw)
			if strings.TrimSpace(kw) == "" {
				continue
			}
			kws = append(kws, kw)
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("category %q has no keywords", r.Category)
		}
		t.order[r.Category] = len(t.rules)
		t.rules = append(t.rules, Rule{Category: r.Category, Keywords: kws})
	}
	t.order[Other] = len(t.rules)
	return t, nil
}

// Categorize returns the category of tag. Unmatched tags are Other.
func (t *Table) Categorize(tag string) Category {
	padded := " " + strings.ToLower(strings.TrimSpace(tag)) + " "
	if strings.TrimSpace(padded) == "" {
		return Other
	}
	for _, r := range t.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(padded, kw) {
				return r.Category
			}
		}
	}
	return Other
}

// CategorySet returns the distinct categories of tags in table order.
func (t *Table) CategorySet(tags []string) []Category {
	present := make(map[Category]struct{}, len(tags))
	for _, tag := range tags {
		present[t.Categorize(tag)] = struct{}{}
	}
	out := make([]Category, 0, len(present))
	for _, c := range t.Categories() {
		if _, ok := present[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Categories lists every category in table order, ending with Other.
func (t *Table) Categories() []Category {
	out := make([]Category, 0, len(t.rules)+1)
	for _, r := range t.rules {
		out = append(out, r.Category)
	}
	return append(out, Other)
}
