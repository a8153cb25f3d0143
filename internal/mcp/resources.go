package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"langextract://stats",
		"Store Statistics",
		mcp.WithResourceDescription("Counts of stored runs, chat sessions and turns, and the database size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, _ := json.MarshalIndent(map[string]int64{
			"runs":          stats.RunCount,
			"extract_runs":  stats.ExtractRunCount,
			"analyze_runs":  stats.AnalyzeRunCount,
			"sessions":      stats.SessionCount,
			"turns":         stats.TurnCount,
			"db_size_bytes": stats.DBSizeBytes,
		}, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerDomainsResource(s *server.MCPServer) {
	resource := mcp.NewResource(
		"langextract://domains",
		"Analysis Domains",
		mcp.WithResourceDescription("The analysis domains and extraction schemas the tools accept."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, _ := json.MarshalIndent(map[string][]string{
			"domains": analysis.Domains(),
			"schemas": analysis.Schemas(),
		}, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
