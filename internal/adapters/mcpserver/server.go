// Package mcpserver exposes the retrieval and chat operations as MCP tools
// so editors and agent runtimes can call them over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
)

type Server struct {
	search ports.SearchService
	chat   ports.ChatService
	mcp    *server.MCPServer
}

func New(search ports.SearchService, chat ports.ChatService, version string) *Server {
	s := &Server{search: search, chat: chat}

	srv := server.NewMCPServer("docqa", version, server.WithToolCapabilities(false))

	searchTool := mcp.NewTool("search_documents",
		mcp.WithDescription("Rank indexed document passages for a query. A query containing a section number such as 4.2.1 returns that section directly."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, 1-500 characters."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results, 1-50. Defaults to 10."),
			mcp.Min(1),
			mcp.Max(50),
		),
	)
	srv.AddTool(searchTool, s.handleSearch)

	askTool := mcp.NewTool("ask_documents",
		mcp.WithDescription("Ask a question answered strictly from the indexed documents, with numbered source citations. Pass session_id to continue a conversation."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer."),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to continue. Omit to start a new one; the response reports the assigned id."),
		),
	)
	srv.AddTool(askTool, s.handleAsk)

	s.mcp = srv
	return s
}

// ServeStdio blocks until the client closes the stream or the process is
// signalled.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 0)

	result, err := s.search.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode search result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessionID := req.GetString("session_id", "")

	result, err := s.chat.Chat(ctx, sessionID, question)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return mcp.NewToolResultText(renderAnswer(result)), nil
}

// renderAnswer lays the turn out as plain text: the answer, the session id
// for follow-ups, and the numbered sources the bracketed markers refer to.
func renderAnswer(result *domain.ChatResult) string {
	var b strings.Builder
	b.WriteString(result.Answer)
	b.WriteString("\n\nsession_id: ")
	b.WriteString(result.SessionID)
	if len(result.Citations) > 0 {
		b.WriteString("\n\nSources:")
		for i, c := range result.Citations {
			fmt.Fprintf(&b, "\n[%d] %s", i+1, citationLabel(c))
		}
	}
	return b.String()
}

func citationLabel(c domain.Citation) string {
	label := c.DocID
	if c.SectionID != "" {
		label += " §" + c.SectionID
	}
	switch {
	case c.PageFrom != nil && c.PageTo != nil && *c.PageTo != *c.PageFrom:
		label += fmt.Sprintf(" (pages %d-%d)", *c.PageFrom, *c.PageTo)
	case c.PageFrom != nil:
		label += fmt.Sprintf(" (page %d)", *c.PageFrom)
	}
	return label
}

// toolErrorMessage keeps provider detail out of tool results the same way
// the HTTP surface keeps it out of response bodies.
func toolErrorMessage(err error) string {
	if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrNotFound) {
		return err.Error()
	}
	return "the document service is unavailable, try again later"
}
