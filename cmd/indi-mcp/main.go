// Command indi-mcp exposes an INDI server to MCP clients over stdio.
//
// Usage:
//
//	indi-mcp [-host localhost:7624] [-wait 5s]
//
// Stdout carries the MCP protocol, so logs go to stderr.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/mcptools"
	"github.com/indi-protocol/indi-go/pkg/version"
)

func main() {
	host := flag.String("host", "localhost:7624", "Server address")
	wait := flag.Duration("wait", mcptools.DefaultWaitTimeout, "How long tools wait for a property to be defined")
	connectTimeout := flag.Duration("connect-timeout", 5*time.Second, "Dial timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := client.DefaultConfig()
	config.Logger = logger
	config.Transport.ConnectTimeout = *connectTimeout

	ctx, cancel := context.WithTimeout(context.Background(), *connectTimeout)
	c, err := client.Dial(ctx, *host, config)
	cancel()
	if err != nil {
		logger.Error("connect failed", "host", *host, "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.GetProperties("", ""); err != nil {
		logger.Error("getProperties failed", "error", err)
		os.Exit(1)
	}

	s := server.NewMCPServer("indi-mcp", version.Current)
	tools := mcptools.New(c)
	tools.SetWaitTimeout(*wait)
	tools.Register(s)

	logger.Info("serving MCP on stdio", "host", *host)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
