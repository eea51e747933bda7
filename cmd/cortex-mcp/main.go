// cortex-mcp exposes the associative memory store as an MCP stdio server.
//
// Environment variables:
//
//	CLAUDE_CORTEX_HOME    — data directory for the SQLite database (default: ~/.claude-cortex)
//	CLAUDE_MEMORY_PROJECT — project override; "*" means global
//
// Usage:
//
//	go install github.com/claude-cortex/cortex/cmd/cortex-mcp
//	cortex-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	cortex "github.com/claude-cortex/cortex"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	home := os.Getenv("CLAUDE_CORTEX_HOME")
	if home == "" {
		if hd, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(hd, ".claude-cortex")
		}
	}

	cfg := cortex.Config{DBDir: home}

	engine, err := cortex.NewEngine(cfg)
	if err != nil {
		log.Fatalf("cortex init: %v", err)
	}
	defer engine.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "cortex-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a new memory with auto-categorization and auto-salience scoring.",
	}, rememberHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Search stored memories by query, recency, or importance.",
	}, recallHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_context",
		Description: "Build a summary of recent activity, key decisions, active patterns, and pending items.",
	}, getContextHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_session",
		Description: "Begin a new work session.",
	}, startSessionHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "end_session",
		Description: "Close a work session and run consolidation.",
	}, endSessionHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "consolidate",
		Description: "Run a consolidation pass: promote, decay, and prune memories.",
	}, consolidateHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Report aggregate memory counts and average salience.",
	}, statsHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export",
		Description: "Export memories and their links as a JSON document.",
	}, exportHandler(engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "import",
		Description: "Import memories and links from a JSON document produced by export.",
	}, importHandler(engine))

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("cortex-mcp: %v", err)
	}
}

// --- Input types ---

type rememberInput struct {
	Title      string   `json:"title"                jsonschema:"Short memory title"`
	Content    string   `json:"content"               jsonschema:"Memory body; truncated past 10KB"`
	Category   string   `json:"category,omitempty"    jsonschema:"architecture, pattern, preference, error, context, learning, todo, note, relationship, custom"`
	Type       string   `json:"type,omitempty"        jsonschema:"short_term, long_term, or episodic (default short_term)"`
	Project    string   `json:"project,omitempty"     jsonschema:"Project tag; '*' for global, empty to auto-detect"`
	Tags       []string `json:"tags,omitempty"        jsonschema:"Free-form tags"`
	Importance string   `json:"importance,omitempty"  jsonschema:"low, normal, high, or critical; overrides derived salience"`
}

type recallInput struct {
	Query          string   `json:"query,omitempty"           jsonschema:"Search text"`
	Category       string   `json:"category,omitempty"        jsonschema:"Filter to a single category"`
	Type           string   `json:"type,omitempty"            jsonschema:"Filter to short_term, long_term, or episodic"`
	Project        string   `json:"project,omitempty"         jsonschema:"Project tag; '*' for all projects, empty to auto-detect"`
	Tags           []string `json:"tags,omitempty"            jsonschema:"Filter to memories containing any of these tags"`
	Limit          *int     `json:"limit,omitempty"           jsonschema:"Max results (default 10)"`
	IncludeDecayed bool     `json:"include_decayed,omitempty" jsonschema:"Include memories that have decayed below their deletion floor"`
	Mode           string   `json:"mode,omitempty"            jsonschema:"search, recent, or important (default search)"`
}

type getContextInput struct {
	Project string `json:"project,omitempty" jsonschema:"Project tag; '*' for global, empty to auto-detect"`
	Format  string `json:"format,omitempty"  jsonschema:"summary, detailed, or raw (default summary)"`
}

type startSessionInput struct {
	Project string `json:"project,omitempty" jsonschema:"Project tag for this session"`
}

type endSessionInput struct {
	SessionID string `json:"session_id"       jsonschema:"Session ID returned by start_session"`
	Summary   string `json:"summary,omitempty" jsonschema:"Optional closing summary"`
}

type statsInput struct {
	Project string `json:"project,omitempty" jsonschema:"Project tag; '*' for global totals, empty to auto-detect"`
}

type exportInput struct {
	Project string `json:"project,omitempty" jsonschema:"Project tag to scope the export; '*' for everything"`
}

type importInput struct {
	Data string `json:"data" jsonschema:"JSON document produced by export"`
}

// --- Handlers ---

func rememberHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, rememberInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input rememberInput) (*mcp.CallToolResult, any, error) {
		var project *string
		if input.Project != "" {
			project = &input.Project
		}
		result, err := e.Remember(cortex.AddInput{
			Title:      input.Title,
			Content:    input.Content,
			Category:   cortex.Category(input.Category),
			Type:       cortex.MemoryType(input.Type),
			Project:    project,
			Tags:       input.Tags,
			Importance: cortex.Importance(input.Importance),
		})
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"id":            result.Memory.ID,
			"category":      result.Memory.Category,
			"type":          result.Memory.Type,
			"salience":      result.Memory.Salience,
			"reason":        result.Reason,
			"links_created": result.LinksCreated,
			"truncated":     result.Truncation.WasTruncated,
		})), nil, nil
	}
}

func recallHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, recallInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input recallInput) (*mcp.CallToolResult, any, error) {
		limit := 10
		if input.Limit != nil {
			limit = *input.Limit
		}
		results, err := e.Recall(cortex.SearchOptions{
			Query:          input.Query,
			Category:       cortex.Category(input.Category),
			Type:           cortex.MemoryType(input.Type),
			Project:        input.Project,
			Tags:           input.Tags,
			Limit:          limit,
			IncludeDecayed: input.IncludeDecayed,
			Mode:           cortex.RecallMode(input.Mode),
		})
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}

		out := make([]map[string]any, len(results))
		for i, r := range results {
			out[i] = memoryToMap(r.Memory)
			out[i]["relevance"] = r.Relevance
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func getContextHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, getContextInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input getContextInput) (*mcp.CallToolResult, any, error) {
		text, err := e.GetContext(input.Project, cortex.ContextFormat(input.Format))
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(text), nil, nil
	}
}

func startSessionHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, startSessionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input startSessionInput) (*mcp.CallToolResult, any, error) {
		id, err := e.StartSession(input.Project)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{"session_id": id})), nil, nil
	}
}

func endSessionHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, endSessionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input endSessionInput) (*mcp.CallToolResult, any, error) {
		result, err := e.EndSession(input.SessionID, input.Summary)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(result)), nil, nil
	}
}

func consolidateHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		result, err := e.Consolidate()
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(result)), nil, nil
	}
}

func statsHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, statsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input statsInput) (*mcp.CallToolResult, any, error) {
		stats, err := e.Stats(input.Project)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(stats)), nil, nil
	}
}

func exportHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, exportInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input exportInput) (*mcp.CallToolResult, any, error) {
		data, err := e.Export(input.Project)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(string(data)), nil, nil
	}
}

func importHandler(e *cortex.Engine) func(context.Context, *mcp.CallToolRequest, importInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input importInput) (*mcp.CallToolResult, any, error) {
		memories, links, err := e.Import([]byte(input.Data))
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"memories_imported": memories,
			"links_imported":    links,
		})), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func memoryToMap(m cortex.Memory) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"title":         m.Title,
		"content":       m.Content,
		"category":      m.Category,
		"type":          m.Type,
		"salience":      m.Salience,
		"decayed_score": m.DecayedScore,
		"tags":          m.Tags,
		"created_at":    m.CreatedAt,
	}
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}
