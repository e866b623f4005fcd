// Package profiletext renders a user profile as the text blob that gets embedded.
package profiletext

import (
	"strings"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/tags"
)

const (
	segmentSep       = " | "
	maxTagsPerBucket = 3
	maxLanguages     = 2
)

// Builder turns profiles into embedding input. It is pure and safe for concurrent use.
type Builder struct {
	table *tags.Table
}

// NewBuilder returns a builder that buckets interests with table.
// A nil table uses tags.DefaultTable.
func NewBuilder(table *tags.Table) *Builder {
	if table == nil {
		table = tags.DefaultTable()
	}
	return &Builder{table: table}
}

// Build renders p. An empty profile yields an empty string, and an unchanged
// profile always yields byte-identical output.
func (b *Builder) Build(p *models.UserProfile) string {
	if p == nil {
		return ""
	}
	var segments []string
	if name := strings.TrimSpace(p.Name); name != "" {
		segments = append(segments, "User: "+name)
	}
	if interests := b.interests(p.Tags); interests != "" {
		segments = append(segments, "Interests: "+interests)
	}
	if loc := location(p.Location); loc != "" {
		segments = append(segments, "Location: "+loc)
	}
	if langs := languages(p.Languages); langs != "" {
		segments = append(segments, "Languages: "+langs)
	}
	return strings.Join(segments, segmentSep)
}

func (b *Builder) interests(raw []string) string {
	kept := tags.DedupeByRoot(models.NormalizeTags(raw))
	if len(kept) == 0 {
		return ""
	}
	buckets := make(map[tags.Category][]string)
	for _, t := range kept {
		c := b.table.Categorize(t)
		if len(buckets[c]) < maxTagsPerBucket {
			buckets[c] = append(buckets[c], t)
		}
	}
	parts := make([]string, 0, len(buckets))
	for _, c := range b.table.Categories() {
		if ts, ok := buckets[c]; ok {
			parts = append(parts, string(c)+": "+strings.Join(ts, ", "))
		}
	}
	return strings.Join(parts, segmentSep)
}

func location(l models.Location) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{l.City, l.State, l.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func languages(l models.Languages) string {
	seen := make(map[string]struct{})
	out := make([]string, 0, maxLanguages)
	for _, lang := range append([]string{l.Native}, l.Preferred...) {
		lang = strings.TrimSpace(lang)
		key := strings.ToLower(lang)
		if lang == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, lang)
		if len(out) == maxLanguages {
			break
		}
	}
	return strings.Join(out, ", ")
}
