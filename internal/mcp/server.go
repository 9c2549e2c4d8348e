package mcp

import (
	"context"

	"github.com/charmbracelet/log"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lazypower/amplifier/internal/logging"
	"github.com/lazypower/amplifier/internal/store"
)

// Server exposes amplification and tenant memory as read-only MCP tools.
type Server struct {
	db  store.Store
	mcp *sdk.Server
	log *log.Logger
}

func NewServer(db store.Store, version string) *Server {
	s := &Server{
		db: db,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "amplifier",
			Version: version,
		}, nil),
		log: logging.New("mcp"),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
