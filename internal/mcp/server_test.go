package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/search"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

func newTestServer(t *testing.T, emb embedding.Embedder) *Server {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewMemoryStore(8)
	require.NoError(t, err)
	for _, p := range []*models.UserProfile{
		{UserID: "u1", Name: "Asha", Tags: []string{"cricket", "cooking"}, Location: models.Location{
			City: "Frisco", State: "Texas", Country: "USA",
			Coordinates: &models.Coordinates{Lat: 33.1507, Lng: -96.8236}, PrivacyLevel: models.PrivacyExact,
		}},
		{UserID: "u2", Name: "Ben", Tags: []string{"cricket"}, Location: models.Location{
			City: "Plano", State: "Texas", Country: "USA",
			Coordinates: &models.Coordinates{Lat: 33.0198, Lng: -96.6989}, PrivacyLevel: models.PrivacyExact,
		}},
		{UserID: "u3", Name: "Chen", Tags: []string{"hiking"}},
	} {
		require.NoError(t, store.UpsertProfile(ctx, p))
	}
	cache, err := vectorizer.NewCache(16)
	require.NoError(t, err)
	v := vectorizer.New(store, store, emb, nil, cache)
	engine := search.NewEngine(store, store, v, emb, search.DefaultConfig())
	return NewServer(engine, v, nil)
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func decodeResponse(t *testing.T, res *mcp.CallToolResult) models.SearchResponse {
	t.Helper()
	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	return resp
}

func errorCode(t *testing.T, err error) int {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	return mcpErr.Code
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, embedding.NewMockEmbedder(8))
	assert.NotNil(t, s.MCPServer())
	assert.NotNil(t, s.engine)
	assert.NotNil(t, s.vectorizer)
	assert.NotNil(t, s.logger)
}

func TestVectorizeUserProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, embedding.NewMockEmbedder(8))

	res, err := s.handleVectorizeUserProfile(ctx, callRequest("vectorize_user_profile", map[string]interface{}{"user_id": "u1"}))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, float64(8), body["dimensions"])
	assert.Contains(t, body["profile_text"], "User: Asha")

	_, cached := s.vectorizer.Cached("u1")
	assert.True(t, cached)

	_, err = s.handleVectorizeUserProfile(ctx, callRequest("vectorize_user_profile", map[string]interface{}{"user_id": "ghost"}))
	assert.Equal(t, ErrorCodeUserNotFound, errorCode(t, err))

	_, err = s.handleVectorizeUserProfile(ctx, callRequest("vectorize_user_profile", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeInvalidParams, errorCode(t, err))
}

func TestVectorizeWithoutEmbedder(t *testing.T) {
	s := newTestServer(t, embedding.NewUnavailableEmbedder(8))
	_, err := s.handleVectorizeUserProfile(context.Background(), callRequest("vectorize_user_profile", map[string]interface{}{"user_id": "u1"}))
	assert.Equal(t, ErrorCodeEmbeddingUnavailable, errorCode(t, err))
}

func TestUpdateUserVectorProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, embedding.NewMockEmbedder(8))

	res, err := s.handleUpdateUserVectorProfile(ctx, callRequest("update_user_vector_profile", map[string]interface{}{"user_id": "u2"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"status": "updated"`)

	_, err = s.handleUpdateUserVectorProfile(ctx, callRequest("update_user_vector_profile", map[string]interface{}{"user_id": "ghost"}))
	assert.Equal(t, ErrorCodeUserNotFound, errorCode(t, err))
}

func TestFindNearbyUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, embedding.NewMockEmbedder(8))

	res, err := s.handleFindNearbyUsers(ctx, callRequest("find_nearby_users", map[string]interface{}{
		"user_id":     "u1",
		"radius_km":   float64(50),
		"max_results": float64(5),
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	resp := decodeResponse(t, res)
	assert.True(t, resp.Success)
	assert.Equal(t, models.MethodLocationOnly, resp.SearchMethod)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "u2", resp.Results[0].UserID)

	res, err = s.handleFindNearbyUsers(ctx, callRequest("find_nearby_users", map[string]interface{}{"user_id": "u3"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	resp = decodeResponse(t, res)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.FailureNoCoordinates, resp.Error.Kind)
}

func TestSemanticAndHybridSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, embedding.NewMockEmbedder(8))

	res, err := s.handleSemanticSearch(ctx, callRequest("semantic_search_nearby_users", map[string]interface{}{
		"user_id": "u1",
		"query":   "cricket",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	resp := decodeResponse(t, res)
	assert.True(t, resp.Success)
	assert.Equal(t, models.MethodSemanticOnly, resp.SearchMethod)
	for _, c := range resp.Results {
		assert.NotEqual(t, "u1", c.UserID)
	}

	res, err = s.handleHybridSearch(ctx, callRequest("hybrid_location_semantic_search", map[string]interface{}{
		"user_id":            "u1",
		"location_radius_km": float64(40),
		"semantic_query":     "cricket",
		"location_weight":    0.5,
	}))
	require.NoError(t, err)
	resp = decodeResponse(t, res)
	assert.True(t, resp.Success)
	assert.Equal(t, 0.5, resp.LocationWeight)
	assert.Equal(t, 40.0, resp.RadiusKm)

	_, err = s.handleHybridSearch(ctx, callRequest("hybrid_location_semantic_search", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeInvalidParams, errorCode(t, err))
}

func TestUserSimilarityTool(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, embedding.NewMockEmbedder(8))

	res, err := s.handleUserSimilarity(ctx, callRequest("get_user_similarity_score", map[string]interface{}{
		"user_id1": "u1",
		"user_id2": "u2",
	}))
	require.NoError(t, err)
	var sim search.Similarity
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &sim))
	assert.Equal(t, "u1", sim.UserA)
	assert.Equal(t, "u2", sim.UserB)
	assert.Equal(t, []string{"cricket"}, sim.SharedTags)
	assert.NotEmpty(t, sim.Level)

	_, err = s.handleUserSimilarity(ctx, callRequest("get_user_similarity_score", map[string]interface{}{"user_id1": "u1"}))
	assert.Equal(t, ErrorCodeInvalidParams, errorCode(t, err))
}

func TestStatisticsTool(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, embedding.NewMockEmbedder(8))
	_, err := s.vectorizer.Ensure(ctx, "u1")
	require.NoError(t, err)

	res, err := s.handleStatistics(ctx, callRequest("get_rag_statistics", nil))
	require.NoError(t, err)
	var st search.Statistics
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &st))
	assert.Equal(t, 1, st.CachedEmbeddings)
	assert.Equal(t, int64(1), st.StoredEmbeddings)
	assert.Equal(t, "memory", st.StoreDriver)
	assert.Equal(t, 8, st.Dimensions)
	assert.True(t, st.EmbeddingsAvailable)
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{"n": float64(3), "i": 4, "f": 2.5, "s": "x"}
	assert.Equal(t, 3, getIntDefault(args, "n", 0))
	assert.Equal(t, 4, getIntDefault(args, "i", 0))
	assert.Equal(t, 9, getIntDefault(args, "missing", 9))
	assert.Equal(t, 2.5, getFloatDefault(args, "f", 0))
	assert.Equal(t, 4.0, getFloatDefault(args, "i", 0))
	assert.Equal(t, "x", getStringDefault(args, "s", ""))
	assert.Equal(t, "d", getStringDefault(args, "n", "d"))

	_, err := arguments(mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: "bad"}})
	assert.Equal(t, ErrorCodeInvalidParams, errorCode(t, err))
}
