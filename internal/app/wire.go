package app

import (
	"log/slog"
	"path/filepath"

	"parley/internal/discovery"
	"parley/internal/logging"
	"parley/internal/node"
	"parley/internal/peer"
)

// Wire bundles the running services the UI drives.
type Wire struct {
	Registry  *peer.Registry
	Discovery *discovery.Service
	Node      *node.Node
	Log       *slog.Logger
	Port      int
}

// NewWire constructs the dependency graph from cfg and starts the
// background workers: discovery's broadcaster, listener and janitor, plus
// the TCP accept loop.
func NewWire(cfg Config) (*Wire, error) {
	logger, err := logging.Setup(filepath.Join(cfg.Home, "parley.log"), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	registry := peer.NewRegistry()
	disc := discovery.New(discovery.Config{Port: cfg.Port}, registry, logger)
	if err := disc.Start(); err != nil {
		return nil, err
	}

	nd := node.New(logger)
	if err := nd.Start(cfg.Port); err != nil {
		disc.Close()
		return nil, err
	}

	logger.Info("parley up", "port", cfg.Port)
	return &Wire{
		Registry:  registry,
		Discovery: disc,
		Node:      nd,
		Log:       logger,
		Port:      cfg.Port,
	}, nil
}

// Close releases the sockets. Background goroutines otherwise run for the
// life of the process.
func (w *Wire) Close() {
	w.Node.Close()
	w.Discovery.Close()
}
