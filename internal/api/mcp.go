package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tablevoice/internal/dialogue"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Bookings Bookings
	Weather  Weather
	Sessions *dialogue.Registry
	Now      func() time.Time
}

func (d MCPDeps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// NewMCPServer creates an MCP server with the booking tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tablevoice",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tablevoice books restaurant tables through a guided conversation. Start a conversation, then relay each thing the guest says."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_conversation",
			mcp.WithDescription("Start a new booking conversation and return its id and the assistant's greeting."),
		),
		mcpStartConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("say",
			mcp.WithDescription("Pass one guest utterance to a booking conversation and return the assistant's reply."),
			mcp.WithString("session_id", mcp.Description("Conversation id from start_conversation"), mcp.Required()),
			mcp.WithString("text", mcp.Description("What the guest said"), mcp.Required()),
		),
		mcpSay(deps),
	)

	s.AddTool(
		mcp.NewTool("list_bookings",
			mcp.WithDescription("List saved bookings, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of bookings (default 10)")),
		),
		mcpListBookings(deps),
	)

	s.AddTool(
		mcp.NewTool("weather_preview",
			mcp.WithDescription("Show the expected weather and seating recommendation for a date."),
			mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("time", mcp.Description("Optional time, e.g. 7pm or 19:30")),
			mcp.WithString("city", mcp.Description("City (defaults to the configured city)")),
		),
		mcpWeatherPreview(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tablevoice://bookings/recent",
			"Recent Bookings",
			mcp.WithResourceDescription("Last 10 saved bookings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

type sayResult struct {
	SessionID string        `json:"session_id"`
	Reply     string        `json:"reply"`
	Step      dialogue.Step `json:"step"`
}

func mcpStartConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s := deps.Sessions.Create()
		return mcpJSON(sayResult{SessionID: s.ID(), Reply: s.AgentMessage(), Step: s.Step()})
	}
}

func mcpSay(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		s, err := deps.Sessions.Get(id)
		if err != nil {
			return mcpError(fmt.Sprintf("unknown conversation %s", id)), nil
		}
		reply, err := s.Handle(ctx, text)
		if errors.Is(err, dialogue.ErrBusy) {
			return mcpError("the previous utterance is still being handled"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("say failed: %v", err)), nil
		}
		return mcpJSON(sayResult{SessionID: id, Reply: reply, Step: s.Step()})
	}
}

func mcpListBookings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}
		bookings, err := deps.Bookings.List(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("list failed: %v", err)), nil
		}
		return mcpJSON(bookings)
	}
}

func mcpWeatherPreview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := req.RequireString("date")
		if err != nil {
			return mcpError("date is required"), nil
		}
		target, ok := previewTarget(date, req.GetString("time", ""), deps.now().Location())
		if !ok {
			return mcpError("date must be a valid date"), nil
		}
		city := req.GetString("city", "")
		if city == "" {
			city = deps.Weather.DefaultCity()
		}
		insight, err := deps.Weather.Lookup(ctx, target, city)
		if err != nil {
			return mcpError(fmt.Sprintf("weather lookup failed: %v", err)), nil
		}
		return mcpJSON(struct {
			Weather any    `json:"weather"`
			Seating string `json:"seating"`
		}{insight, string(insight.Seating())})
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		bookings, err := deps.Bookings.List(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list bookings: %w", err)
		}

		type bookingSummary struct {
			ID      string `json:"id"`
			Name    string `json:"customer_name"`
			Guests  int    `json:"guests"`
			Date    string `json:"date"`
			Time    string `json:"time"`
			Seating string `json:"seating"`
		}
		summaries := make([]bookingSummary, len(bookings))
		for i, b := range bookings {
			summaries[i] = bookingSummary{
				ID:      b.ID,
				Name:    b.CustomerName,
				Guests:  b.NumberOfGuests,
				Date:    b.Date.Format(time.DateOnly),
				Time:    b.Time,
				Seating: string(b.Seating),
			}
		}

		out, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bookings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(out),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
