// Package mcp exposes the nearby-user engine as Model Context Protocol tools.
//
// The server speaks JSON-RPC over stdio and registers these tools:
//   - vectorize_user_profile
//   - update_user_vector_profile
//   - find_nearby_users
//   - semantic_search_nearby_users
//   - hybrid_location_semantic_search
//   - get_user_similarity_score
//   - get_rag_statistics
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/search"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

const (
	// ServerName is the MCP server name
	ServerName = "nearby"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the engine and vectorizer it calls into.
type Server struct {
	mcp        *server.MCPServer
	engine     *search.Engine
	vectorizer *vectorizer.Vectorizer
	logger     *zap.Logger
}

// NewServer creates an MCP server with all tools registered.
func NewServer(engine *search.Engine, v *vectorizer.Vectorizer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		engine:     engine,
		vectorizer: v,
		logger:     logger,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve runs the server on stdio and blocks until stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(vectorizeUserProfileTool(), s.handleVectorizeUserProfile)
	s.mcp.AddTool(updateUserVectorProfileTool(), s.handleUpdateUserVectorProfile)
	s.mcp.AddTool(findNearbyUsersTool(), s.handleFindNearbyUsers)
	s.mcp.AddTool(semanticSearchTool(), s.handleSemanticSearch)
	s.mcp.AddTool(hybridSearchTool(), s.handleHybridSearch)
	s.mcp.AddTool(userSimilarityTool(), s.handleUserSimilarity)
	s.mcp.AddTool(statisticsTool(), s.handleStatistics)
}
