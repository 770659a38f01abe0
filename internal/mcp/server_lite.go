// Package mcp exposes the notation tools to AI agents over the Model Context
// Protocol. The lite server needs no external services; results are kept in
// a local SQLite file.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/nccn-uat-mcp-server/internal/config"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
)

// Server identity reported during initialization.
const (
	ServerName    = "nccn-uat-notation"
	ServerVersion = "v1.0.0"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config    *litecfg.LiteConfig
	mcpServer *mcp.Server
	notation  *service.NotationService
	store     store.Store
	ownsStore bool
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithStore sets a custom result store. The caller keeps ownership.
func WithStore(s store.Store) LiteServerOption {
	return func(srv *LiteServer) error {
		srv.store = s
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(srv *LiteServer) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		srv.logger = logger
		return nil
	}
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg *litecfg.LiteConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: NewLogger(cfg),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	svc, err := service.NewNotationService(service.ServiceConfig{
		MemoryMaxItems: cfg.CacheMaxItems,
		Workers:        cfg.BatchWorkers,
	}, nil, server.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notation service: %w", err)
	}
	server.notation = svc

	if server.store == nil {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		resultStore, err := store.NewSQLiteStore(cfg.ResultsDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create result store: %w", err)
		}
		server.store = resultStore
		server.ownsStore = true
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	NewTools(server.notation, server.store, server.logger).Register(server.mcpServer)

	server.logger.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"data_dir":  cfg.DataDir,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start runs the server on the configured transport until ctx is done.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport", s.config.Transport).Info("Starting NCCN UAT MCP Server (Lite)")

	switch s.config.Transport {
	case "", "stdio":
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", s.config.Transport)
	}
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithField("port", s.config.HTTPPort).Info("MCP HTTP transport listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close result store")
			return err
		}
	}
	return nil
}

// Store returns the result store.
func (s *LiteServer) Store() store.Store {
	return s.store
}

// Notation returns the notation service.
func (s *LiteServer) Notation() *service.NotationService {
	return s.notation
}
