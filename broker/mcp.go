package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/credkeeper/bridge"
)

// RegisterMCP registers credkeeper tools on an MCP server. Passwords are
// deliberately not reachable from here; the password endpoint exists only
// for the autofill path.
func (b *Broker) RegisterMCP(srv *mcp.Server) {
	b.registerListTool(srv)
	b.registerByHostTool(srv)
	b.registerCapturesTool(srv)
	b.registerSettingsTool(srv)
}

// endpoint is a typed MCP tool body: decoded request in, response out.
type endpoint func(ctx context.Context, req any) (any, error)

// registerTool wires decode → endpoint → JSON text content on the server.
func registerTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := ep(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// inputSchema builds a JSON Schema object with type "object".
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

func decodeInto[T any](req *mcp.CallToolRequest) (any, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// --- list_registrations ---

func (b *Broker) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "credkeeper_list_registrations",
		Description: "List every stored platform registration. Passwords are never included.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		client, err := b.vaultClient()
		if err != nil {
			return nil, err
		}
		return client.List(ctx)
	}, decodeInto[struct{}])
}

// --- registrations_by_host ---

type byHostRequest struct {
	Host string `json:"host"`
}

func (b *Broker) registerByHostTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "credkeeper_registrations_by_host",
		Description: "List stored registrations matching a hostname. www/m/mobile prefixes are ignored.",
		InputSchema: inputSchema(map[string]any{
			"host": map[string]any{"type": "string", "description": "Hostname, e.g. www.example.com"},
		}, []string{"host"}),
	}

	registerTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*byHostRequest)
		resp, err := b.handleListByDomain(ctx, bridge.GetRegistrationsByDomain{Host: r.Host})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, errors.New(resp.Error)
		}
		return resp.Data, nil
	}, decodeInto[byHostRequest])
}

// --- recent_captures ---

type capturesRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (b *Broker) registerCapturesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "credkeeper_recent_captures",
		Description: "Show the most recent credential capture decisions (saved, updated, declined, kept).",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max rows (default 50)"},
		}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*capturesRequest)
		return b.RecentCaptures(ctx, r.Limit)
	}, decodeInto[capturesRequest])
}

// --- settings ---

func (b *Broker) registerSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "credkeeper_settings",
		Description: "Show current broker settings: auto-save flag and excluded sites.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return b.Settings(), nil
	}, decodeInto[struct{}])
}
