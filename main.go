package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	blockchain "go-ledger/src"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/common/log"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		// The parser has already reported its own errors.
		var e *flags.Error
		if !errors.As(err, &e) {
			log.Errorf("Invalid configuration: %s", err)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := blockchain.Run(ctx, cfg.nodeConfig()); err != nil {
		log.Fatalf("Node stopped: %s", err)
	}
	log.Info("Node shut down")
}
