// CLAUDE:SUMMARY Registers the public operations as MCP tools: scrape_url, detect_forms, fill_form, project_chat, latest_scrape, list_scrapes.
package scrapeall

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/scrapeall/kit"
)

type projectArgs struct {
	ProjectID string `json:"project_id"`
}

type chatArgs struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

type urlArgs struct {
	URL string `json:"url"`
}

// RegisterMCP exposes s as MCP tools on srv.
func RegisterMCP(srv *mcp.Server, s *Service) {
	mw := kit.Chain(s.logCalls)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "scrape_url",
		Description: "Fetch a URL (escalating to a headless browser when needed), extract its text and analyze it. Pass project_name to create a project, project_id to add to one.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":            map[string]any{"type": "string", "description": "absolute http(s) URL"},
			"project_name":   map[string]any{"type": "string"},
			"project_id":     map[string]any{"type": "string"},
			"create_project": map[string]any{"type": "boolean"},
			"selector":       map[string]any{"type": "string", "description": "CSS selector restricting extraction"},
		}, "url"),
	}, mw(func(ctx context.Context, req any) (any, error) {
		res, err := s.Scrape(ctx, req.(ScrapeRequest))
		if err != nil {
			return nil, err
		}
		return res, nil
	}), decodeArgs[ScrapeRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "detect_forms",
		Description: "List the forms of a page with their fields.",
		InputSchema: kit.InputSchema(map[string]any{
			"url": map[string]any{"type": "string"},
		}, "url"),
	}, mw(func(ctx context.Context, req any) (any, error) {
		return s.DetectForms(ctx, req.(urlArgs).URL)
	}), decodeArgs[urlArgs])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "fill_form",
		Description: "Fill a form of a page in a browser, optionally submit it, and record the attempt in a project.",
		InputSchema: kit.InputSchema(map[string]any{
			"project_id": map[string]any{"type": "string"},
			"url":        map[string]any{"type": "string"},
			"form_index": map[string]any{"type": "integer", "description": "position of the form in the page, from detect_forms"},
			"form_data":  map[string]any{"type": "object", "description": "field name to value", "additionalProperties": map[string]any{"type": "string"}},
			"submit":     map[string]any{"type": "boolean"},
		}, "project_id", "url", "form_data"),
	}, mw(func(ctx context.Context, req any) (any, error) {
		return s.FillForm(ctx, req.(FillFormRequest))
	}), decodeArgs[FillFormRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "project_chat",
		Description: "Ask a question about the content scraped into a project.",
		InputSchema: kit.InputSchema(map[string]any{
			"project_id": map[string]any{"type": "string"},
			"message":    map[string]any{"type": "string"},
		}, "project_id", "message"),
	}, mw(func(ctx context.Context, req any) (any, error) {
		a := req.(chatArgs)
		return s.Chat(ctx, a.ProjectID, a.Message)
	}), decodeArgs[chatArgs])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "latest_scrape",
		Description: "Return the most recent scrape result of a project, or null.",
		InputSchema: kit.InputSchema(map[string]any{
			"project_id": map[string]any{"type": "string"},
		}, "project_id"),
	}, mw(func(ctx context.Context, req any) (any, error) {
		return s.LatestScrape(ctx, req.(projectArgs).ProjectID)
	}), decodeArgs[projectArgs])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "list_scrapes",
		Description: "List the scrape results of a project, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"project_id": map[string]any{"type": "string"},
		}, "project_id"),
	}, mw(func(ctx context.Context, req any) (any, error) {
		return s.ListScrapes(ctx, req.(projectArgs).ProjectID)
	}), decodeArgs[projectArgs])
}

func decodeArgs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var v T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	return &kit.MCPDecodeResult{Request: v}, nil
}

// logCalls logs every tool call with its outcome kind.
func (s *Service) logCalls(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		s.log(ctx).Debug("scrapeall: tool call",
			"transport", kit.GetTransport(ctx), "request", fmt.Sprintf("%T", req),
			"kind", KindOf(err), "duration", time.Since(start))
		return resp, err
	}
}
