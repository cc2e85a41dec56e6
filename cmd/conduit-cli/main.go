// conduit-cli is an interactive console for exercising the pub/sub bridge
// against an in-process broker.
//
// Usage:
//
//	# Start with defaults
//	conduit-cli
//
//	# Load bridge settings from a file and record an event log
//	conduit-cli -config /etc/conduit/bridge.yaml -event-log events.cbor
//
//	# Additionally mirror bridge events to the console via slog
//	conduit-cli -event-log events.cbor -verbose
//
// Recorded event logs can be inspected later with conduit-log.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	conduitlog "github.com/conduit-mq/conduit-go/pkg/log"

	"github.com/conduit-mq/conduit-go/cmd/conduit-cli/interactive"
	"github.com/conduit-mq/conduit-go/pkg/bridge"
	"github.com/conduit-mq/conduit-go/pkg/transport"
)

// Config holds the CLI configuration.
type Config struct {
	ConfigFile string
	EventLog   string
	Verbose    bool
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Bridge configuration file path (YAML)")
	flag.StringVar(&config.EventLog, "event-log", "", "Write a CBOR event log to this file")
	flag.BoolVar(&config.Verbose, "verbose", false, "Mirror bridge events to the console via slog")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg := bridge.DefaultConfig()
	if config.ConfigFile != "" {
		loaded, err := bridge.LoadConfig(config.ConfigFile)
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		cfg = loaded
	}

	var loggers []conduitlog.Logger
	if config.EventLog != "" {
		fileLogger, err := conduitlog.NewFileLogger(config.EventLog)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		defer fileLogger.Close()
		loggers = append(loggers, fileLogger)
	}
	if config.Verbose {
		slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		loggers = append(loggers, conduitlog.NewSlogAdapter(slogger))
	}

	var logger conduitlog.Logger = conduitlog.NoopLogger{}
	switch len(loggers) {
	case 0:
	case 1:
		logger = loggers[0]
	default:
		logger = conduitlog.NewMultiLogger(loggers...)
	}

	// The hub serves as both the subscriber and the publisher backend, so
	// messages published from the prompt loop straight back to the console.
	hub := transport.NewHub()
	defer hub.Close()

	b, err := bridge.New(cfg, hub, hub, logger)
	if err != nil {
		log.Fatalf("Failed to create bridge: %v", err)
	}

	console, err := interactive.New(b)
	if err != nil {
		log.Fatalf("Failed to create console: %v", err)
	}
	log.SetOutput(console.Stdout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	console.Run(ctx, cancel)

	if err := b.Close(context.Background()); err != nil {
		log.Printf("Error closing bridge: %v", err)
	}
}
