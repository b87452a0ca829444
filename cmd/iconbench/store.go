package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/ethpandaops/iconbench/pkg/kvstore"
	"github.com/ethpandaops/iconbench/pkg/runstate"
)

// openStore starts the configured kvstore and wraps it in a run state
// store. The returned function releases both.
func openStore(ctx context.Context, cfg *config.Config) (*runstate.Store, func(), error) {
	kv, err := kvstore.New(log, &cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("creating storage: %w", err)
	}

	if err := kv.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting storage: %w", err)
	}

	store := runstate.New(log, kv)

	return store, func() {
		store.Close()

		if err := kv.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop storage")
		}
	}, nil
}
