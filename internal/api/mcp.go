package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/emmi-yeo/vendor-intelligence/internal/agent"
	"github.com/emmi-yeo/vendor-intelligence/internal/guardrail"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
)

const recentRunsLimit = 10

// MCPDeps holds dependencies for the MCP server. Runs may be nil.
type MCPDeps struct {
	Agent   Searcher
	Schemas SchemaSource
	Runs    RunStore
	Version string
}

// NewMCPServer creates an MCP server exposing vendor search and SQL
// validation as tools, and the schema and recent runs as resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"vendorintel",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vendorintel: search the vendor database and rank vendors against requirement documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("vendor_search",
			mcp.WithDescription("Answer a vendor-search question from the vendor database, an attached requirement document, or both."),
			mcp.WithString("query", mcp.Description("Natural-language vendor search query"), mcp.Required()),
			mcp.WithString("document_text", mcp.Description("Plain text of a requirement document to match against")),
		),
		mcpVendorSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("validate_sql",
			mcp.WithDescription("Check a SQL query against the read-only guardrail without running it."),
			mcp.WithString("sql", mcp.Description("SQL text to validate"), mcp.Required()),
			mcp.WithArray("allowed_tables", mcp.Description("Tables the query may reference"), mcp.WithStringItems()),
			mcp.WithBoolean("enforce_row_cap", mcp.Description("Require a TOP, LIMIT or FETCH clause (default true)")),
		),
		mcpValidateSQL(),
	)

	s.AddResource(
		mcp.NewResource(
			"vendor://schema",
			"Database Schema",
			mcp.WithResourceDescription("Table summaries of the vendor database"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSchema(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"vendor://runs/recent",
			"Recent Searches",
			mcp.WithResourceDescription("Last 10 vendor searches (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentRuns(deps),
	)

	return s
}

func mcpVendorSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		areq := agent.Request{Query: strings.TrimSpace(query)}
		if text := req.GetString("document_text", ""); text != "" {
			areq.Document = &agent.Document{Name: "mcp", Text: text}
		}

		resp, err := deps.Agent.Run(ctx, areq)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpValidateSQL() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcpError("sql is required"), nil
		}
		tables := req.GetStringSlice("allowed_tables", nil)
		verdict := guardrail.Validate(sql, tables, req.GetBool("enforce_row_cap", true))

		b, err := json.Marshal(verdict)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode verdict: %v", err)), nil
		}
		if !verdict.Valid {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(b)}},
				IsError: true,
			}, nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSchema(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s, err := deps.Schemas.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("schema unavailable: %w", err)
		}

		b, err := json.Marshal(map[string]any{
			"database": s.Database,
			"tables":   s.Summaries(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecentRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Runs == nil {
			return nil, errors.New("run history is disabled")
		}
		runs, err := deps.Runs.ListRuns(storage.RunFilter{Limit: recentRunsLimit})
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Query     string `json:"query"`
			Mode      string `json:"mode"`
			Stage     string `json:"stage,omitempty"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			query := r.Query
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = runSummary{
				ID:        r.ID,
				CreatedAt: r.CreatedAt.Format(time.RFC3339),
				Query:     query,
				Mode:      r.Mode,
				Stage:     r.Stage,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
