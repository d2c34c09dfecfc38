package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/services"
	"paircall/internal/infrastructure/capture"
	signalws "paircall/internal/infrastructure/signal"
	"paircall/internal/infrastructure/storage"
	webrtcinfra "paircall/internal/infrastructure/webrtc"
	"paircall/pkg/config"
	"paircall/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		room       = flag.String("room", "", "room to join")
		name       = flag.String("name", "guest", "display name")
		record     = flag.Bool("record", false, "record the local media while connected")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *room == "" {
		log.Fatal("-room is required")
	}

	channel, err := signalws.Dial(cfg.Signal.URL, cfg.Signal.WriteTimeout, log)
	if err != nil {
		log.Fatalw("failed to connect to coordinator", "url", cfg.Signal.URL, "error", err)
	}
	defer channel.Close()

	media, err := capture.NewTickerSource(log)
	if err != nil {
		log.Fatalw("failed to create media source", "error", err)
	}

	var recorder *services.Recorder
	if *record {
		store := storage.NewHTTPStore(cfg, log)
		recorder = services.NewRecorder(store, media, services.RecorderConfig{
			SegmentInterval: cfg.Capture.SegmentInterval,
			SettleDelay:     cfg.Capture.SettleDelay,
			Extension:       cfg.Capture.Extension,
			ContentType:     cfg.Capture.ContentType,
			SignedURLTTL:    cfg.Storage.SignedURLTTL,
		}, nil, log)
	}

	links := webrtcinfra.NewLinkFactory(cfg, log)
	session := services.NewSession(channel, links, media, recorder, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session.OnStateChange(func(state domain.SessionState) {
		log.Infow("state", "state", state)
		if state == domain.StateConnected && recorder != nil && !recorder.Recording() {
			if err := recorder.Start(ctx, *name, *name); err != nil {
				log.Errorw("failed to start recording", "error", err)
			}
		}
	})

	runDone := make(chan error, 1)
	go func() {
		runDone <- session.Run(ctx)
	}()

	if err := session.Join(*room, *name); err != nil {
		log.Fatalw("failed to join room", "room", *room, "error", err)
	}
	log.Infow("joined", "room", *room, "name", *name)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	case err := <-runDone:
		if err != nil && err != context.Canceled {
			log.Warnw("session ended", "error", err)
		}
	}

	if err := session.Leave(context.Background()); err != nil {
		log.Warnw("error leaving room", "error", err)
	}

	// Give the finalization a chance to publish the combined artifact.
	if recorder != nil {
		if done := recorder.Done(); done != nil {
			select {
			case <-done:
			case <-time.After(time.Minute):
				log.Warn("timed out waiting for recording finalization")
			}
		}
	}

	cancel()
	log.Info("client stopped")
}
