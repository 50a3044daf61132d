package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"flowmetrics-mcp/internal/engine"
)

// Server exposes the metrics engine as MCP tools over stdio.
type Server struct {
	engine *engine.Engine
	srv    *mcp.Server
}

// NewServer creates the MCP server and registers all tools.
func NewServer(e *engine.Engine, version string) *Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "flowmetrics-mcp",
		Version: version,
	}, nil)

	s := &Server{engine: e, srv: srv}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("MCP server listening on stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}
