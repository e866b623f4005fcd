package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeUserNotFound         = -32001 // No profile for the given user
	ErrorCodeEmbeddingUnavailable = -32002 // Embedding service not configured
)

func (s *Server) handleVectorizeUserProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	e, err := s.vectorizer.Ensure(ctx, userID)
	if err != nil {
		return nil, s.toolError("vectorization failed", userID, err)
	}
	return mcp.NewToolResultText(formatJSON(embeddingResponse(e, "vectorized"))), nil
}

func (s *Server) handleUpdateUserVectorProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	s.vectorizer.Invalidate(userID)
	e, err := s.vectorizer.Vectorize(ctx, userID)
	if err != nil {
		return nil, s.toolError("vector profile update failed", userID, err)
	}
	return mcp.NewToolResultText(formatJSON(embeddingResponse(e, "updated"))), nil
}

func (s *Server) handleFindNearbyUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	return s.search(ctx, &models.SearchQuery{
		RequesterID: userID,
		Mode:        models.ModeLocation,
		RadiusKm:    getFloatDefault(args, "radius_km", 0),
		MaxResults:  getIntDefault(args, "max_results", 0),
	}), nil
}

func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	return s.search(ctx, &models.SearchQuery{
		RequesterID:   userID,
		Mode:          models.ModeSemantic,
		SemanticQuery: getStringDefault(args, "query", ""),
		MaxResults:    getIntDefault(args, "max_results", 0),
	}), nil
}

func (s *Server) handleHybridSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	userID, err := requireString(args, "user_id")
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{
		RequesterID:   userID,
		Mode:          models.ModeHybrid,
		SemanticQuery: getStringDefault(args, "semantic_query", ""),
		RadiusKm:      getFloatDefault(args, "location_radius_km", 0),
		MaxResults:    getIntDefault(args, "max_results", 0),
	}
	if w, ok := args["location_weight"].(float64); ok {
		q.LocationWeight = &w
	}
	return s.search(ctx, q), nil
}

func (s *Server) handleUserSimilarity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	a, err := requireString(args, "user_id1")
	if err != nil {
		return nil, err
	}
	b, err := requireString(args, "user_id2")
	if err != nil {
		return nil, err
	}
	sim, err := s.engine.UserSimilarity(ctx, a, b)
	if err != nil {
		return nil, s.toolError("similarity failed", a+","+b, err)
	}
	return mcp.NewToolResultText(formatJSON(sim)), nil
}

func (s *Server) handleStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.engine.Statistics(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(st)), nil
}

// search runs q and returns the response as JSON. Failed searches are flagged
// as tool errors so the caller sees the failure kind.
func (s *Server) search(ctx context.Context, q *models.SearchQuery) *mcp.CallToolResult {
	resp := s.engine.Search(ctx, q)
	result := mcp.NewToolResultText(formatJSON(resp))
	if !resp.Success {
		s.logger.Debug("search tool failed",
			zap.String("requester_id", q.RequesterID),
			zap.String("mode", string(q.Mode)),
		)
		result.IsError = true
	}
	return result
}

func (s *Server) toolError(message, subject string, err error) error {
	s.logger.Warn(message, zap.String("subject", subject), zap.Error(err))
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeUserNotFound, "user not found", data)
	case errors.Is(err, embedding.ErrEmbeddingUnavailable), errors.Is(err, vectorizer.ErrNotVectorized):
		return newMCPError(ErrorCodeEmbeddingUnavailable, "embeddings not available", data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

func embeddingResponse(e *models.ProfileEmbedding, status string) map[string]interface{} {
	return map[string]interface{}{
		"success":      true,
		"status":       status,
		"user_id":      e.UserID,
		"profile_text": e.ProfileText,
		"dimensions":   len(e.Vector),
		"updated_at":   e.UpdatedAt,
	}
}

// Helper functions

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return v, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
