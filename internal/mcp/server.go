// ABOUTME: MCP server setup for the routines store.
// ABOUTME: Wraps the MCP server around the sync engine and the media cache.
package mcp

import (
	"context"

	"github.com/harperreed/routines/internal/media"
	syncengine "github.com/harperreed/routines/internal/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options carries the media eviction limits used by cleanup_media when the
// caller passes none.
type Options struct {
	MediaMaxAgeDays int
	MediaMaxSizeMB  int
}

// Server wraps the MCP server with engine and cache access.
type Server struct {
	mcpServer *mcp.Server
	engine    *syncengine.Engine
	cache     *media.Cache
	opts      Options
}

// NewServer creates a new MCP server. cache may be nil, in which case the
// media tools are not registered.
func NewServer(engine *syncengine.Engine, cache *media.Cache, opts Options) (*Server, error) {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "routines",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		engine:    engine,
		cache:     cache,
		opts:      opts,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
