// Command sodavd is the detection daemon: it loads configuration, opens the
// database, wires the capture/match/recognize/tracker pipeline and runs the
// station orchestrator until interrupted, grounded on the teacher's
// cmd/server/main.go wiring style.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sodav/detection-core/internal/capture"
	"github.com/sodav/detection-core/internal/config"
	"github.com/sodav/detection-core/internal/logger"
	"github.com/sodav/detection-core/internal/match"
	"github.com/sodav/detection-core/internal/orchestrator"
	"github.com/sodav/detection-core/internal/recognize"
	"github.com/sodav/detection-core/internal/store"
	"github.com/sodav/detection-core/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", "", "override DATABASE_URL from the environment/.env")
	flag.Parse()

	log := logger.New(logger.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *dbPath != "" {
		cfg.DatabaseURL = *dbPath
	}

	st, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	matcher := match.New(st, match.DefaultApproximateThreshold)
	trk := tracker.New(log)
	capturer := capture.New(os.TempDir(), log)

	chain := buildRecognizerChain(cfg, log)

	pipeline := orchestrator.NewPipeline(capturer, matcher, chain, trk, st, st, st, os.TempDir(), log)
	orch := orchestrator.New(st, pipeline, trk, cfg.MaxConcurrent, cfg.PollInterval(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Infof("shutdown signal received")
		cancel()
	}()

	if err := orch.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("orchestrator stopped: %w", err)
	}
	return nil
}

func buildRecognizerChain(cfg *config.Config, log *logger.Logger) *recognize.Chain {
	if !cfg.ExternalDetectionEnabled {
		return recognize.NewChain(log)
	}

	var recognizers []recognize.Recognizer
	if cfg.AcoustIDEnabled && cfg.AcoustIDAPIKey != "" {
		recognizers = append(recognizers, recognize.NewAcoustID(cfg.AcoustIDAPIKey, cfg.FpcalcPath))
		recognizers = append(recognizers, recognize.NewMusicBrainz())
	}
	if cfg.AuddEnabled && cfg.AuddAPIKey != "" {
		recognizers = append(recognizers, recognize.NewAudd(cfg.AuddAPIKey))
	}
	return recognize.NewChain(log, recognizers...)
}
