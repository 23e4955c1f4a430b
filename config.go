package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	blockchain "go-ledger/src"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/common/log"
)

const (
	defaultPort            = "8000"
	defaultPeerTimeout     = 10 * time.Second
	defaultResolveInterval = 30 * time.Second
	defaultLogLevel        = "info"
)

// config defines the configuration options for the node.
type config struct {
	Port            string        `short:"p" long:"port" description:"Port to listen on; a positional port argument overrides it"`
	Advertise       string        `long:"advertise" description:"Base URL other nodes reach this node at (default: http://localhost:<port>)"`
	Peers           []string      `long:"peer" description:"Peer node to register at startup; may be specified multiple times"`
	PeerTimeout     time.Duration `long:"peertimeout" description:"Timeout for requests to other nodes"`
	ResolveInterval time.Duration `long:"resolveinterval" description:"How often to reconcile with peers; 0 disables periodic reconciliation"`
	LogLevel        string        `long:"loglevel" description:"Logging level {debug, info, warn, error, fatal}"`
}

// loadConfig parses the command line into a config, applying defaults for
// anything left unset.
func loadConfig(args []string) (*config, error) {
	cfg := config{
		Port:            defaultPort,
		PeerTimeout:     defaultPeerTimeout,
		ResolveInterval: defaultResolveInterval,
		LogLevel:        defaultLogLevel,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] [port]"
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	switch len(remaining) {
	case 0:
	case 1:
		cfg.Port = remaining[0]
	default:
		return nil, fmt.Errorf("too many arguments: %v", remaining)
	}

	if cfg.Advertise == "" {
		cfg.Advertise = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}
	if cfg.PeerTimeout <= 0 {
		return nil, fmt.Errorf("peertimeout must be positive, got %s", cfg.PeerTimeout)
	}
	if cfg.ResolveInterval < 0 {
		return nil, fmt.Errorf("resolveinterval must not be negative, got %s", cfg.ResolveInterval)
	}
	if err := log.Base().SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid loglevel %q: %w", cfg.LogLevel, err)
	}

	return &cfg, nil
}

// nodeConfig converts the command line configuration into the node's settings.
func (c *config) nodeConfig() blockchain.Config {
	return blockchain.Config{
		Listen:          fmt.Sprintf(":%s", c.Port),
		Advertise:       c.Advertise,
		Peers:           c.Peers,
		PeerTimeout:     c.PeerTimeout,
		ResolveInterval: c.ResolveInterval,
	}
}
