package tags

import "strings"

// Root strips one common English suffix from a lowercase word.
func Root(word string) string {
	switch {
	case strings.HasSuffix(word, "ing"):
		return word[:len(word)-3]
	case strings.HasSuffix(word, "ed"), strings.HasSuffix(word, "er"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && len(word) > 3:
		return word[:len(word)-1]
	}
	return word
}

// Roots returns the root of every whitespace-separated word of tag.
func Roots(tag string) []string {
	words := strings.Fields(strings.ToLower(tag))
	roots := make([]string, len(words))
	for i, w := range words {
		roots[i] = Root(w)
	}
	return roots
}

// DedupeByRoot drops tags shorter than two characters and tags sharing any
// root word with an earlier tag. Input order decides which variant survives.
func DedupeByRoot(tags []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if len([]rune(tag)) < 2 {
			continue
		}
		roots := Roots(tag)
		dup := false
		for _, r := range roots {
			if _, ok := seen[r]; ok {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		for _, r := range roots {
			seen[r] = struct{}{}
		}
		out = append(out, tag)
	}
	return out
}
