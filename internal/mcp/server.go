package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/session"
)

// GrantSource resolves an agent's grant. *grants.Registry implements it.
type GrantSource interface {
	Get(agentID string) (*session.Grant, error)
}

// Server is the governance MCP server.
type Server struct {
	mcp    *mcp.Server
	store  *audit.Store
	grants GrantSource
	logger *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "designgov")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "designgov",
		Version: "0.1.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates the server over store. grants is optional; without it
// plans are verified as if no agent had a grant.
func NewServer(cfg *Config, store *audit.Store, grants GrantSource) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		store:  store,
		grants: grants,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session over transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
