// SPDX-License-Identifier: MIT

// Command enrolld runs the face-enrollment edge agent: it publishes the
// local camera to the recognition service, keeps the processed overlay feed
// alive, drives the guided enrollment session and forwards attendance
// notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evisio/enrolld/internal/api"
	"github.com/evisio/enrolld/internal/config"
	"github.com/evisio/enrolld/internal/enroll"
	"github.com/evisio/enrolld/internal/events"
	"github.com/evisio/enrolld/internal/feed"
	"github.com/evisio/enrolld/internal/log"
	"github.com/evisio/enrolld/internal/publisher"
	"github.com/evisio/enrolld/internal/recog"
	"github.com/evisio/enrolld/internal/stability"
	"github.com/evisio/enrolld/internal/voice"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "enrolld: %v\n", err)
		os.Exit(1)
	}
}

// localCamera adapts the publisher to the controller's Camera port.
type localCamera struct {
	pub       *publisher.Publisher
	newSource func() publisher.FrameSource
	identity  publisher.Identity
}

func (l *localCamera) Start(ctx context.Context) error {
	return l.pub.Start(ctx, l.newSource(), l.identity)
}

func (l *localCamera) Stop() error { return l.pub.Stop() }

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// A .env alongside the binary is a convenience for kiosk deployments.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "enrolld"})
	logger := log.WithComponent("main")

	instanceID := uuid.NewString()
	logger.Info().
		Str("instance_id", instanceID).
		Str("version", version).
		Str(log.FieldCameraID, cfg.CameraID).
		Str(log.FieldCompanyID, cfg.CompanyID).
		Msg("starting enrolld")

	client := recog.New(cfg.RecognitionURL)
	// Long-polls are held up to 25s server-side; give that client headroom.
	pollClient := recog.NewWithHTTPClient(cfg.RecognitionURL, &http.Client{
		Timeout: 40 * time.Second,
	})

	feedCtl := feed.New(feed.StreamURL(cfg.FeedURL, cfg.CameraID, cfg.CameraName, cfg.CompanyID))

	var port voice.StatusPort = voice.NopAnnouncer{}
	if cfg.TTSCommand != "" {
		port = voice.NewCommandAnnouncer(cfg.TTSCommand)
	}
	announcer := voice.New(port, cfg.VoiceEnabled)
	notifyQueue := voice.NewQueue(port)
	defer notifyQueue.Close()

	pub := publisher.New(publisher.Config{
		Purpose: "enroll",
		NewPeer: func() (publisher.Peer, error) {
			return publisher.NewPeer(cfg.STUNServers)
		},
		NewSignaler: func() publisher.Signaler {
			return publisher.NewWebsocketSignaler(cfg.SignalingURL)
		},
		OnDown: func(err error) {
			logger.Warn().Err(err).Msg("camera transport lost")
		},
	})

	var camera enroll.Camera
	if cfg.CapturePath != "" && cfg.SignalingURL != "" {
		camera = &localCamera{
			pub: pub,
			newSource: func() publisher.FrameSource {
				return publisher.NewH264Source(cfg.CapturePath, cfg.CaptureFPS)
			},
			identity: publisher.Identity{
				CameraID:  cfg.CameraID,
				CompanyID: cfg.CompanyID,
			},
		}
	}

	controller := enroll.NewController(enroll.Options{
		API:         client,
		Camera:      camera,
		Feed:        feedCtl,
		Stability:   stability.New(),
		Voice:       announcer,
		CompanyID:   cfg.CompanyID,
		KYCEnabled:  cfg.KYCEnabled,
		AutoScan:    cfg.AutoScan,
		NoScan:      cfg.NoScan,
		PollActive:  cfg.PollActive,
		PollIdle:    cfg.PollIdle,
		TickCadence: cfg.TickCadence,
		TickMinGap:  cfg.TickMinGap,
	})

	notifier := events.New(pollClient)

	server := api.New(api.Options{
		Controller: controller,
		Feed:       feedCtl,
		Events:     notifier,
		Checkers: []api.Checker{
			api.RecognitionChecker{Client: client},
			api.PublisherChecker{Publisher: pub},
		},
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx, cfg.ListenAddr)
	})

	g.Go(func() error {
		err := notifier.Run(gctx, func(evs []recog.Event) {
			logger.Info().Int("count", len(evs)).Msg("attendance events received")
			notifyQueue.Enqueue("New attendance recorded")
		})
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()

	// Deterministic teardown regardless of which goroutine exited first.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := controller.Stop(shutdownCtx); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("controller stop failed")
	}
	_ = pub.Stop()
	feedCtl.Close()

	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("enrolld stopped")
	return nil
}
