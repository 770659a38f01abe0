// Package main provides the standalone entry point for the NCCN UAT notation
// MCP server. It needs no external services: results go to a local SQLite file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nccn-uat-mcp-server/internal/config"
	"github.com/nccn-uat-mcp-server/internal/mcp"
	"github.com/nccn-uat-mcp-server/internal/setup"
)

func main() {
	cfg := config.LoadLiteConfig()

	// "setup" registers this binary with Claude Desktop and exits
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		binary, err := os.Executable()
		if err != nil {
			log.Fatalf("Could not resolve executable path: %v", err)
		}
		path, err := setup.Register(setup.Options{BinaryPath: binary, DataDir: cfg.DataDir})
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		log.Printf("Registered %s in %s; restart Claude Desktop to load it", setup.ServerKey, path)
		return
	}

	log.Printf("Starting NCCN UAT notation MCP server with transport: %s", cfg.Transport)
	log.Printf("Data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		server.Close()
		os.Exit(1)
	}

	log.Println("NCCN UAT notation MCP server stopped")
}
