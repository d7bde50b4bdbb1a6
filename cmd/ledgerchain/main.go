// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/marcelocantos/ledgerchain/internal/cli"
	"github.com/marcelocantos/ledgerchain/internal/config"
	"github.com/marcelocantos/ledgerchain/internal/mcpserver"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		cli.RunHelp(os.Stderr)
		return cli.ExitError
	}

	// Load config.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerchain: config: %v\n", err)
		return cli.ExitError
	}
	logger := cli.NewLogger(os.Stderr, cfg.Log.Level)

	// Set up context with cancellation on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "verify":
		return cli.RunVerify(ctx, os.Stdout, logger, cfg, args)
	case "show":
		return cli.RunShow(ctx, os.Stdout, cfg, args)
	case "append":
		return cli.RunAppend(ctx, os.Stdout, logger, cfg, args)
	case "hash":
		return cli.RunHash(os.Stdin, os.Stdout, args)
	case "serve":
		s := mcpserver.New(mcpserver.Options{
			Name:    cfg.MCP.Name,
			Version: version,
			Source:  cfg.SourceOptions(),
			Mode:    cfg.Mode(),
			Logger:  logger,
		})
		if err := s.Serve(); err != nil {
			logger.Error("mcp server stopped", "error", err)
			return cli.ExitError
		}
		return cli.ExitOK
	case "help", "--help", "-h":
		return cli.RunHelp(os.Stdout)
	case "version", "--version":
		fmt.Printf("ledgerchain %s\n", version)
		return cli.ExitOK
	default:
		fmt.Fprintf(os.Stderr, "ledgerchain: unknown command %q\n", os.Args[1])
		cli.RunHelp(os.Stderr)
		return cli.ExitError
	}
}
