package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func userIDProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func maxResultsProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of users to return (1-50)",
		"default":     10,
		"minimum":     1,
		"maximum":     50,
	}
}

func radiusProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":             "number",
		"description":      "Search radius in kilometers",
		"default":          50,
		"exclusiveMinimum": 0,
	}
}

// vectorizeUserProfileTool returns the tool definition for vectorize_user_profile
func vectorizeUserProfileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "vectorize_user_profile",
		Description: "Build the profile text of a user, embed it and store the embedding for semantic search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty("User whose profile is vectorized"),
			},
			Required: []string{"user_id"},
		},
	}
}

// updateUserVectorProfileTool returns the tool definition for update_user_vector_profile
func updateUserVectorProfileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_user_vector_profile",
		Description: "Drop the cached embedding of a user and rebuild it from the current profile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty("User whose profile changed"),
			},
			Required: []string{"user_id"},
		},
	}
}

// findNearbyUsersTool returns the tool definition for find_nearby_users
func findNearbyUsersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_nearby_users",
		Description: "Find users within a radius of the requester, closest first; falls back to the requester's city without coordinates",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":     userIDProperty("Requesting user"),
				"radius_km":   radiusProperty(),
				"max_results": maxResultsProperty(),
			},
			Required: []string{"user_id"},
		},
	}
}

// semanticSearchTool returns the tool definition for semantic_search_nearby_users
func semanticSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "semantic_search_nearby_users",
		Description: "Search users by interest similarity to a natural language query, with keyword relevance filtering and diversity re-ranking",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty("Requesting user, excluded from results"),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Interests to look for (e.g. 'cricket', 'indian food'); empty uses the requester's own profile",
				},
				"max_results": maxResultsProperty(),
			},
			Required: []string{"user_id"},
		},
	}
}

// hybridSearchTool returns the tool definition for hybrid_location_semantic_search
func hybridSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "hybrid_location_semantic_search",
		Description: "Rank nearby users by a weighted blend of proximity and interest similarity, degrading to a single channel when one is unavailable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":            userIDProperty("Requesting user"),
				"location_radius_km": radiusProperty(),
				"semantic_query": map[string]interface{}{
					"type":        "string",
					"description": "Interests to look for; empty uses the requester's own profile",
					"default":     "",
				},
				"max_results": maxResultsProperty(),
				"location_weight": map[string]interface{}{
					"type":        "number",
					"description": "Weight of the location score in the blend, 0 to 1",
					"minimum":     0,
					"maximum":     1,
				},
			},
			Required: []string{"user_id"},
		},
	}
}

// userSimilarityTool returns the tool definition for get_user_similarity_score
func userSimilarityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_user_similarity_score",
		Description: "Cosine similarity between the profile embeddings of two users, with a level label",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id1": userIDProperty("First user"),
				"user_id2": userIDProperty("Second user"),
			},
			Required: []string{"user_id1", "user_id2"},
		},
	}
}

// statisticsTool returns the tool definition for get_rag_statistics
func statisticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_rag_statistics",
		Description: "Embedding cache and store counts with the configured thresholds",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
