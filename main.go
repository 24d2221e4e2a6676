// quill - a terminal chat client with durable conversations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/jeranaias/quill-tui/internal/config"
	"github.com/jeranaias/quill-tui/internal/engine"
	"github.com/jeranaias/quill-tui/internal/relay"
	"github.com/jeranaias/quill-tui/internal/server"
	"github.com/jeranaias/quill-tui/internal/storage"
	"github.com/jeranaias/quill-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cmd := "tui"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "tui":
		exitOnError(runTUI())
	case "serve":
		exitOnError(runServe())
	case "version", "--version", "-v":
		fmt.Printf("quill %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Print(`quill - terminal chat client

Usage:
  quill            Start the chat TUI
  quill serve      Start the relay HTTP server
  quill version    Print version information

Configuration lives at ~/.quill/config.toml. Set QUILL_API_KEY to
provide the upstream API key without writing it to disk.
`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// SETUP
// =============================================================================

func setup() (*config.Manager, *engine.Engine, func(), error) {
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}

	dbPath := cfg.Get().StoragePath
	if dbPath == "" {
		dbPath = storage.DefaultPath()
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}

	upstream := cfg.Get().Upstream
	client := relay.New(upstream.BaseURL, upstream.APIKey, cfg.Get().Chat.Model)

	owner := "local"
	if u := os.Getenv("USER"); u != "" {
		owner = u
	}

	eng := engine.New(store, client, owner, cfg.Params)
	cleanup := func() { store.Close() }
	return cfg, eng, cleanup, nil
}

// =============================================================================
// TUI
// =============================================================================

type app struct {
	chat chat.Model
}

func (a app) Init() tea.Cmd {
	return a.chat.Init()
}

func (a app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)
	return a, cmd
}

func (a app) View() string {
	return a.chat.View()
}

func runTUI() error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("quill needs an interactive terminal; did you mean 'quill serve'?")
	}

	cfg, eng, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.Boot(context.Background()); err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	// Pick up external config edits while the TUI runs. Hot reload is
	// best effort; the TUI stays usable without it.
	watcher, err := config.NewWatcher(cfg, 250*time.Millisecond, nil)
	if err == nil {
		if werr := watcher.Watch(); werr != nil {
			watcher.Close()
		} else {
			defer watcher.Close()
		}
	}

	program := tea.NewProgram(app{chat: chat.New(eng, cfg)}, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// =============================================================================
// SERVE
// =============================================================================

func runServe() error {
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	upstream := cfg.Get().Upstream
	client := relay.New(upstream.BaseURL, upstream.APIKey, cfg.Get().Chat.Model)
	srv := server.New(client, log)

	port := cfg.Get().Server.Port
	if port <= 0 {
		port = server.DefaultPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, port)
}
