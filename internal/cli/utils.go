// Package cli formats engine results for the nearby command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/search"
	"github.com/hyperjump/nearby/internal/vectorizer"
	"github.com/hyperjump/nearby/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat parses a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w in the given format.
// Unknown formats are written as text.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	writeSearchText(w, resp)
	return nil
}

func writeSearchText(w io.Writer, resp *models.SearchResponse) {
	if !resp.Success && resp.Error != nil {
		fmt.Fprintf(w, "\nSearch failed (%s): %s\n", resp.Error.Kind, resp.Error.Reason)
		if resp.Error.Cause != "" {
			fmt.Fprintf(w, "Cause: %s\n", resp.Error.Cause)
		}
		return
	}
	fmt.Fprintf(w, "\nFound %d users in %dms (mode %s, method %s)\n", resp.Total, resp.QueryTime, resp.Mode, resp.SearchMethod)
	if resp.FilteredOut > 0 {
		fmt.Fprintf(w, "%d candidates dropped by the keyword filter\n", resp.FilteredOut)
	}
	if resp.UsedCityFallback {
		fmt.Fprintln(w, "Requester has no coordinates; matched by city")
	}
	fmt.Fprintln(w)
	for _, c := range resp.Results {
		writeCandidate(w, c)
	}
}

func writeCandidate(w io.Writer, c *models.ScoredCandidate) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "#%d %s (%s) | Score: %.4f (Semantic: %.4f, Location: %.4f, Diversity: %.2f)\n",
		c.Rank, utils.Truncate(c.Name, 40), c.UserID, c.DiversityAdjustedScore,
		c.SemanticScore, c.LocationScore, c.DiversityFactor)
	loc := utils.JoinNonEmpty(", ", c.Location.City, c.Location.State, c.Location.Country)
	if c.DistanceKm != nil {
		loc = fmt.Sprintf("%s (%.1f km)", loc, utils.Round(*c.DistanceKm, 1))
	}
	if loc != "" {
		fmt.Fprintf(w, "Location: %s\n", loc)
	}
	if len(c.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(c.Tags, ", "))
	}
	if len(c.Categories) > 0 {
		fmt.Fprintf(w, "Categories: %s\n", strings.Join(c.Categories, ", "))
	}
	fmt.Fprintln(w)
}

// WriteSimilarity writes a user-to-user similarity.
func WriteSimilarity(w io.Writer, s *search.Similarity, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "%s ~ %s: %.4f (%s)\n", s.UserA, s.UserB, s.Score, s.Level)
	if len(s.SharedTags) > 0 {
		fmt.Fprintf(w, "Shared tags: %s\n", strings.Join(s.SharedTags, ", "))
	}
	if len(s.SharedCategories) > 0 {
		fmt.Fprintf(w, "Shared categories: %s\n", strings.Join(s.SharedCategories, ", "))
	}
	return nil
}

// WriteStatistics writes engine statistics.
func WriteStatistics(w io.Writer, st *search.Statistics, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Store:                %s\n", st.StoreDriver)
	fmt.Fprintf(w, "Stored embeddings:    %d\n", st.StoredEmbeddings)
	fmt.Fprintf(w, "Cached embeddings:    %d\n", st.CachedEmbeddings)
	fmt.Fprintf(w, "Dimensions:           %d\n", st.Dimensions)
	fmt.Fprintf(w, "Embeddings available: %t\n", st.EmbeddingsAvailable)
	fmt.Fprintf(w, "Similarity threshold: %.2f (min %.2f)\n", st.SimilarityThreshold, st.MinSimilarity)
	fmt.Fprintf(w, "Location weight:      %.2f\n", st.LocationWeight)
	fmt.Fprintf(w, "Default radius:       %.0f km\n", st.DefaultRadiusKm)
	if st.StorageBytes > 0 {
		fmt.Fprintf(w, "Storage size:         %s\n", FormatBytes(st.StorageBytes))
	}
	return nil
}

// WriteBulkResult writes the outcome of a bulk vectorization.
func WriteBulkResult(w io.Writer, r *vectorizer.BulkResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "Vectorized %d profiles, %d failed\n", r.Vectorized, len(r.Failed))
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %s\n", id, r.Failed[id])
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
