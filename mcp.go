package pagebeacon

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagebeacon/idgen"
	"github.com/hazyhaar/pagebeacon/kit"
	"github.com/hazyhaar/pagebeacon/metadata"
)

// RegisterMCP registers beacon tools on an MCP server.
func (r *Runner) RegisterMCP(srv *mcp.Server) {
	r.registerResolveTool(srv)
	r.registerSignalTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type pageReq struct {
	URL         string `json:"url"`
	Source      string `json:"source"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (q *pageReq) overrides() metadata.Overrides {
	return metadata.Overrides{Name: q.Name, Description: q.Description}
}

func decodePageReq(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var q pageReq
	if err := json.Unmarshal(req.Params.Arguments, &q); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{
		Request: &q,
		EnrichCtx: func(ctx context.Context) context.Context {
			ctx = kit.WithTransport(ctx, "mcp")
			return kit.WithRequestID(ctx, idgen.New())
		},
	}, nil
}

var pageProperties = map[string]any{
	"url":         map[string]any{"type": "string", "description": "Page URL"},
	"source":      map[string]any{"type": "string", "description": "Document source: static, browser or auto (default)"},
	"name":        map[string]any{"type": "string", "description": "Name override"},
	"description": map[string]any{"type": "string", "description": "Description override"},
}

// --- resolve ---

func (r *Runner) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "beacon_resolve",
		Description: "Resolve a page's presence metadata (url, name, description, image) without signaling the relay.",
		InputSchema: inputSchema(pageProperties, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		q := req.(*pageReq)
		md, err := r.ResolveOnce(ctx, q.URL, q.Source, q.overrides())
		if err != nil {
			return nil, err
		}
		return struct {
			metadata.Resolved
			Missing []string `json:"missing,omitempty"`
		}{md, md.Missing()}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageReq)
}

// --- signal ---

func (r *Runner) registerSignalTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "beacon_signal",
		Description: "Run one full presence signal for a page: resolve, validate and PUT to the relay.",
		InputSchema: inputSchema(pageProperties, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		q := req.(*pageReq)
		res, err := r.SignalOnce(ctx, q.URL, q.Source, q.overrides())
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageReq)
}
