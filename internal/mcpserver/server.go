// Package mcpserver exposes the engine as a line-oriented tool protocol
// over stdio: index, search, analyze, diagnostics, spill, warm and close,
// each atomic. Errors cross the wire as {code, message} so callers can
// branch on the stable code.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scooter-lacroix/leindex/internal/debug"
	"github.com/scooter-lacroix/leindex/internal/engine"
	"github.com/scooter-lacroix/leindex/internal/search"
	"github.com/scooter-lacroix/leindex/internal/version"
)

// Server wires one engine behind the MCP stdio transport.
type Server struct {
	eng    *engine.Engine
	server *mcp.Server
}

// NewServer registers the tool set over eng.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{eng: eng}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "leindex",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves the protocol on stdin/stdout until the context ends.
func (s *Server) Run(ctx context.Context) error {
	debug.SetRPCMode(true)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

// coded extracts the stable machine-readable code every engine error
// carries.
type coded interface{ Code() string }

func errorResult(err error) (*mcp.CallToolResult, error) {
	payload := map[string]string{"message": err.Error()}
	if c, ok := err.(coded); ok {
		payload["code"] = c.Code()
	} else {
		payload["code"] = "internal"
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "index",
		Description: "Index (or re-index) the project tree and report statistics.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"force": {Type: "boolean", Description: "Re-parse every file, ignoring the incremental snapshot"},
			},
		},
	}, s.handleIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Hybrid search over indexed symbols: text, vector and structural signals combined.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":     {Type: "string", Description: "Query text"},
				"top_k":     {Type: "integer", Description: "Maximum results (default 10)"},
				"threshold": {Type: "number", Description: "Drop results scoring below this"},
				"language":  {Type: "string", Description: "Restrict to one language tag"},
				"file_glob": {Type: "string", Description: "Restrict to files matching this glob"},
			},
			Required: []string{"query"},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "analyze",
		Description: "Answer a natural-language question: classify intent, search, and expand context under a token budget.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"question":     {Type: "string", Description: "The question"},
				"token_budget": {Type: "integer", Description: "Context token budget (default 4000)"},
			},
			Required: []string{"question"},
		},
	}, s.handleAnalyze)

	s.server.AddTool(&mcp.Tool{
		Name:        "diagnostics",
		Description: "Report memory, cache and graph state.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleDiagnostics)

	s.server.AddTool(&mcp.Tool{
		Name:        "spill",
		Description: "Spill in-memory caches to durable storage.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"scope": {Type: "string", Description: "Owner scope to spill; empty spills everything eligible"},
			},
		},
	}, s.handleSpill)

	s.server.AddTool(&mcp.Tool{
		Name:        "warm",
		Description: "Restore previously spilled caches into memory.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"strategy": {Type: "string", Description: "Owner-defined warm strategy"},
			},
		},
	}, s.handleWarm)

	s.server.AddTool(&mcp.Tool{
		Name:        "close",
		Description: "Checkpoint and close the engine.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleClose)
}

func (s *Server) handleIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Force bool `json:"force"`
	}
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(err)
		}
	}
	stats, err := s.eng.Index(ctx, args.Force)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(stats)
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Query     string  `json:"query"`
		TopK      int     `json:"top_k"`
		Threshold float64 `json:"threshold"`
		Language  string  `json:"language"`
		FileGlob  string  `json:"file_glob"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult(err)
	}
	results, err := s.eng.Search(ctx, search.Query{
		Text:      args.Query,
		TopK:      args.TopK,
		Threshold: args.Threshold,
		Language:  args.Language,
		FileGlob:  args.FileGlob,
	})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"results": results})
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Question    string `json:"question"`
		TokenBudget int    `json:"token_budget"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult(err)
	}
	out, err := s.eng.Analyze(ctx, args.Question, args.TokenBudget)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(out)
}

func (s *Server) handleDiagnostics(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Diagnostics())
}

func (s *Server) handleSpill(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Scope string `json:"scope"`
	}
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(err)
		}
	}
	s.eng.Spill(ctx, args.Scope)
	return jsonResult(map[string]string{"status": "spilled", "scope": args.Scope})
}

func (s *Server) handleWarm(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Strategy string `json:"strategy"`
	}
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(err)
		}
	}
	if err := s.eng.Warm(ctx, args.Strategy); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"status": "warmed"})
}

func (s *Server) handleClose(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.eng.Close(); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"status": "closed"})
}
