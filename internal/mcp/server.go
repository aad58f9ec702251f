// Package mcp exposes the knowledge store over the Model Context
// Protocol on stdio, calling the internal services directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/gateway"
	"github.com/fyrsmithlabs/dreamerd/internal/incident"
	"github.com/fyrsmithlabs/dreamerd/internal/retrieval"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "dreamerd").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "dreamerd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Server serves the ingestion and retrieval tools over stdio.
type Server struct {
	mcp         *mcp.Server
	gateway     *gateway.Gateway
	retrieval   *retrieval.Service
	incidentSvc *incident.Service
	logger      *zap.Logger
}

// NewServer creates an MCP server over the given services.
func NewServer(cfg *Config, gw *gateway.Gateway, ret *retrieval.Service, inc *incident.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if ret == nil {
		return nil, fmt.Errorf("retrieval service is required")
	}
	if inc == nil {
		return nil, fmt.Errorf("incident service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:         mcpServer,
		gateway:     gw,
		retrieval:   ret,
		incidentSvc: inc,
		logger:      cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until
// the context is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
