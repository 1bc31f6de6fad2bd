package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/nenv/internal/checkpoint"
	"github.com/nvandessel/nenv/internal/config"
	"github.com/nvandessel/nenv/internal/ratelimit"
	"github.com/nvandessel/nenv/internal/store"
)

// Server wraps the MCP SDK server and exposes nenv experiments and run
// history as tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	ownsStore    bool
	settings     *config.NenvConfig
	logger       *slog.Logger
	auditLogger  *AuditLogger
	checkpoints  string
	toolLimiters ratelimit.ToolLimiters
	now          func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "nenv")
	Version string // Server version

	// Store receives recorded runs. Nil opens the SQLite store at the
	// configured path; the server then closes it on shutdown.
	Store store.RunStore

	// Settings supply network construction defaults. Nil uses config.Default().
	Settings *config.NenvConfig

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	// CheckpointDir holds the checkpoints tools may save and resume.
	// Empty uses ~/.nenv/checkpoints.
	CheckpointDir string
}

// NewServer creates a new MCP server with nenv tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	checkpointDir := cfg.CheckpointDir
	if checkpointDir == "" {
		dir, err := checkpoint.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve checkpoint directory: %w", err)
		}
		checkpointDir = dir
	}

	runStore := cfg.Store
	ownsStore := false
	if runStore == nil {
		path, err := settings.StorePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve store path: %w", err)
		}
		sqliteStore, err := store.NewSQLiteRunStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		runStore = sqliteStore
		ownsStore = true
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		ownsStore:    ownsStore,
		settings:     settings,
		logger:       logger,
		checkpoints:  checkpointDir,
		toolLimiters: ratelimit.NewToolLimiters(),
		now:          time.Now,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "transport", "stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close closes the audit log and, if the server opened it, the run store.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.auditLogger.Close()
		if s.ownsStore {
			if err := s.store.Close(); err != nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}
