// Command potatomesh-ingestd is the long-running ingestion daemon: it
// connects to a Meshtastic radio, normalises its decoded packet stream, and
// forwards the result to a remote dashboard API via a priority HTTP queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rabarar/potatomesh-ingestd/internal/config"
	"github.com/rabarar/potatomesh-ingestd/internal/iface"
	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
	"github.com/rabarar/potatomesh-ingestd/internal/normalize"
	"github.com/rabarar/potatomesh-ingestd/internal/queue"
	"github.com/rabarar/potatomesh-ingestd/internal/supervisor"
)

const ignoredLogPath = "ignored.txt"

func main() {
	cfg := config.Load()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	target, err := resolveTarget(cfg.Connection)
	if err != nil {
		log.Fatal("no mesh interface available", "err", err)
	}
	log.Info("starting ingestor", "target", target, "channel", cfg.ChannelIndex)

	ignored, err := normalize.NewIgnoredLog(ignoredLogPath, cfg.Debug)
	if err != nil {
		log.Fatal("opening ignored-packet log failed", "err", err)
	}
	defer func() { _ = ignored.Close() }()

	deps := normalize.Dependencies{
		Channels: meshmeta.NewTable(cfg.ChannelName),
		Radio:    meshmeta.NewRadioMetadata(),
		Ingestor: ingestor.New(time.Now()),
	}

	poster := queue.NewHTTPPoster(cfg.Instance, cfg.APIToken)
	q := queue.New(poster)

	sup, err := supervisor.New(cfg, target, deps, q, ignored)
	if err != nil {
		log.Fatal("building supervisor failed", "err", err)
	}

	ctx := installSignalHandling(sup)

	if err := sup.Run(ctx); err != nil {
		log.Fatal("supervisor exited with error", "err", err)
	}
}

// resolveTarget implements the CONNECTION/MESH_SERIAL default of
// "autodiscover" (§6): an unset/empty value triggers §4.5 auto-discovery
// rather than being parsed as a mock alias. Anything else (including the
// literal "mock"/"none"/"null"/"disabled" aliases) goes straight to
// ParseTarget.
func resolveTarget(connection string) (iface.Target, error) {
	if connection != "" {
		return iface.ParseTarget(connection)
	}

	discoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	target, opened, err := iface.Discover(discoverCtx)
	if err != nil {
		return iface.Target{}, err
	}
	_ = opened.Close(5 * time.Second)
	return target, nil
}

// installSignalHandling wires SIGINT/SIGTERM to the supervisor's stop event:
// the first signal requests a graceful shutdown; a second SIGINT restores
// the default handler and lets the process die immediately, for operators
// stuck behind a hung close.
func installSignalHandling(sup *supervisor.Supervisor) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		first := <-sigCh
		log.Warn("received signal, shutting down", "signal", first)
		sup.Stop()
		cancel()

		second := <-sigCh
		log.Warn("received second signal, forcing exit", "signal", second)
		signal.Stop(sigCh)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGINT)
	}()

	return ctx
}
