// ABOUTME: MCP resource implementations for routines.
// ABOUTME: Provides routines://all, routines://unsynced, and routines://sync-status resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "routines://all",
		Name:        "All Routines",
		Description: "Every routine in the local store, most recently modified first",
		MIMEType:    "application/json",
	}, s.handleAllResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "routines://unsynced",
		Name:        "Unsynced Routines",
		Description: "Routines with local changes the remote has not confirmed",
		MIMEType:    "application/json",
	}, s.handleUnsyncedResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "routines://sync-status",
		Name:        "Sync Status",
		Description: "Pending change count, sync state, and dropped mutations",
		MIMEType:    "application/json",
	}, s.handleSyncStatusResource)
}

// Resource handlers

func (s *Server) handleAllResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	routines, err := s.engine.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	return jsonResource("routines://all", map[string]any{
		"routines": routines,
		"count":    len(routines),
	})
}

func (s *Server) handleUnsyncedResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	routines, err := s.engine.Unsynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced routines: %w", err)
	}
	return jsonResource("routines://unsynced", map[string]any{
		"routines": routines,
		"count":    len(routines),
	})
}

func (s *Server) handleSyncStatusResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	payload := s.statusPayload()
	payload["generated_at"] = time.Now().UTC().Format(time.RFC3339)
	return jsonResource("routines://sync-status", payload)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
