package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/search"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

func sampleResponse() *models.SearchResponse {
	d := 4.98
	return &models.SearchResponse{
		Success:      true,
		RequesterID:  "u1",
		Mode:         models.ModeHybrid,
		SearchMethod: models.MethodHybridSuccess,
		QueryTime:    42,
		Total:        1,
		FilteredOut:  2,
		Results: []*models.ScoredCandidate{
			{
				UserID:                 "u2",
				Name:                   "Ben",
				Tags:                   []string{"cricket", "painting"},
				Categories:             []string{"Entertainment", "Sports"},
				SemanticScore:          0.8,
				LocationScore:          0.6,
				CombinedScore:          0.74,
				DiversityFactor:        1,
				DiversityAdjustedScore: 0.84,
				DistanceKm:             &d,
				Location:               models.LocationView{City: "Plano", State: "Texas", PrivacyLevel: models.PrivacyExact},
				Rank:                   1,
			},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.SearchMethod != models.MethodHybridSuccess || len(decoded.Results) != 1 || decoded.Results[0].UserID != "u2" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 1 users", "42ms", "hybrid_success", "2 candidates dropped", "#1 Ben (u2)", "Plano, Texas (5.0 km)", "cricket, painting", "Entertainment, Sports"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_textFailure(t *testing.T) {
	resp := &models.SearchResponse{
		SearchMethod: models.MethodFailed,
		Error:        &models.Failure{Kind: models.FailureNoCoordinates, Reason: "requester location unknown"},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, resp, OutputFormat("unknown")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Search failed (no_coordinates)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteSimilarity(t *testing.T) {
	s := &search.Similarity{UserA: "u1", UserB: "u2", Score: 0.91, Level: "Very High", SharedTags: []string{"cricket"}}
	var buf bytes.Buffer
	if err := WriteSimilarity(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "u1 ~ u2: 0.9100 (Very High)") || !strings.Contains(out, "Shared tags: cricket") {
		t.Errorf("got %q", out)
	}
}

func TestWriteStatistics(t *testing.T) {
	st := &search.Statistics{StoreDriver: "sqlite", StoredEmbeddings: 3, StorageBytes: 2048}
	var buf bytes.Buffer
	if err := WriteStatistics(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "sqlite") || !strings.Contains(out, "2.0 KiB") {
		t.Errorf("got %q", out)
	}
}

func TestWriteBulkResult(t *testing.T) {
	r := &vectorizer.BulkResult{Vectorized: 2, Failed: map[string]string{"u9": "boom", "u3": "bad"}}
	var buf bytes.Buffer
	if err := WriteBulkResult(&buf, r, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Vectorized 2 profiles, 2 failed") {
		t.Errorf("got %q", out)
	}
	if strings.Index(out, "u3") > strings.Index(out, "u9") {
		t.Errorf("failures should be sorted by user id:\n%s", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
