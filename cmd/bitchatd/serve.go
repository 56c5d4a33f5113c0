// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitchat-mesh/core/config"
	"github.com/bitchat-mesh/core/crypto"
	"github.com/bitchat-mesh/core/dedup"
	"github.com/bitchat-mesh/core/delivery"
	"github.com/bitchat-mesh/core/fragmentation"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/internal/metrics"
	"github.com/bitchat-mesh/core/runtime"
	"github.com/bitchat-mesh/core/session"
	"github.com/bitchat-mesh/core/transport"
	"github.com/bitchat-mesh/core/types"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run two in-memory peers, exchange a handshake and a message, and serve /metrics",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to a bitchatd YAML config file (optional)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfigPath != "" {
		loaded, err := config.LoadFromFile(serveConfigPath)
		if err != nil {
			return fmt.Errorf("bitchatd: %w", err)
		}
		cfg = *loaded
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("bitchatd: %w", err)
	}
	log := logger.NewLogger(os.Stdout, level)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		log.Info("metrics server listening", logger.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", logger.Error(err))
		}
	}()
	defer metricsServer.Shutdown(context.Background())

	network := transport.NewLocalNetwork()
	now := types.SystemTimeSource{}

	alice, err := newPeer("alice", network, cfg, now, log)
	if err != nil {
		return fmt.Errorf("bitchatd: %w", err)
	}
	bob, err := newPeer("bob", network, cfg, now, log)
	if err != nil {
		return fmt.Errorf("bitchatd: %w", err)
	}

	if err := handshake(alice, bob, now); err != nil {
		return fmt.Errorf("bitchatd: handshake: %w", err)
	}
	log.Info("handshake established", logger.String("alice", alice.id.String()), logger.String("bob", bob.id.String()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice.orch.Start(ctx)
	bob.orch.Start(ctx)
	defer alice.orch.Shutdown()
	defer bob.orch.Shutdown()

	go drainEvents("alice", alice.orch, log)
	go drainEvents("bob", bob.orch, log)
	go receiveLoop(ctx, alice, log)
	go receiveLoop(ctx, bob, log)

	if err := alice.orch.SubmitCommand(runtime.SendMessageCommand(bob.id, "hello from alice")); err != nil {
		log.Warn("send failed", logger.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-time.After(5 * time.Second):
	}
	return nil
}

type peer struct {
	id        types.PeerId
	key       *crypto.StaticKeyPair
	sessions  *session.Manager
	local     *transport.Local
	transport *transport.Manager
	orch      *runtime.Orchestrator
}

func newPeer(name string, network *transport.LocalNetwork, cfg config.Config, now types.TimeSource, log logger.Logger) (*peer, error) {
	key, err := crypto.GenerateStaticKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", name, err)
	}
	id := key.PeerId()

	sessions := session.NewManager(session.Config{
		Local: key,
		Timeouts: session.Timeouts{
			Handshake: cfg.Session.HandshakeTimeout,
			Idle:      cfg.Session.IdleTimeout,
			Failed:    cfg.Session.FailedTimeout,
		},
		TimeSource:      now,
		Logger:          log,
		CleanupInterval: cfg.Session.CleanupInterval,
	})

	local := transport.NewLocal(id, network, 64)
	if err := local.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start local transport for %s: %w", name, err)
	}

	fragMode := fragmentation.ModePlain
	if cfg.Fragmentation.Mode == "crc32" {
		fragMode = fragmentation.ModeCRC32
	}

	transportMgr := transport.NewManager(transport.Policy{Kind: transport.FirstAvailable}, now, log)
	transportMgr.Register(local)

	orch := runtime.New(runtime.Config{
		Sessions:        sessions,
		Dedup:           dedup.NewManager(dedup.Config{BitSize: cfg.Dedup.BitSize, HashFunctions: cfg.Dedup.HashFunctions, TTL: cfg.Dedup.TTL}, now, log),
		Delivery: delivery.NewTracker(delivery.Config{
			MaxRetries:          cfg.Delivery.MaxRetries,
			InitialRetryDelay:   cfg.Delivery.InitialRetryDelay,
			MaxRetryDelay:       cfg.Delivery.MaxRetryDelay,
			BackoffMultiplier:   cfg.Delivery.BackoffMultiplier,
			ConfirmationTimeout: cfg.Delivery.ConfirmationTimeout,
		}, now, log),
		Reassembler:      fragmentation.NewReassembler(cfg.Dedup.TTL, now, log),
		Fragmenter:       fragmentation.NewFragmenter(fragMode),
		Transports:       transportMgr,
		MaxFragmentSize:  cfg.Fragmentation.MaxFragmentSize,
		CommandBuffer:    cfg.Runtime.CommandBuffer,
		EventBuffer:      cfg.Runtime.EventBuffer,
		EffectBuffer:     cfg.Runtime.EffectBuffer,
		StaleThreshold:   cfg.Runtime.StaleThreshold,
		ShutdownDeadline: cfg.Runtime.ShutdownDeadline,
		Local:            id,
		Now:              now,
		Log:              log,
	})

	return &peer{id: id, key: key, sessions: sessions, local: local, transport: transportMgr, orch: orch}, nil
}

// handshake drives a Noise-XX exchange directly against the two peers'
// session managers, standing in for the wire round-trip a real
// transport would carry.
func handshake(alice, bob *peer, now types.TimeSource) error {
	if _, err := alice.sessions.GetOrCreateOutbound(bob.id); err != nil {
		return err
	}
	if _, err := bob.sessions.CreateInbound(alice.id); err != nil {
		return err
	}

	msg1, err := alice.sessions.CreateHandshakeMessage(bob.id, nil)
	if err != nil {
		return err
	}
	if _, err := bob.sessions.ProcessHandshakeMessage(alice.id, msg1); err != nil {
		return err
	}
	msg2, err := bob.sessions.CreateHandshakeMessage(alice.id, nil)
	if err != nil {
		return err
	}
	if _, err := alice.sessions.ProcessHandshakeMessage(bob.id, msg2); err != nil {
		return err
	}
	msg3, err := alice.sessions.CreateHandshakeMessage(bob.id, nil)
	if err != nil {
		return err
	}
	if _, err := bob.sessions.ProcessHandshakeMessage(alice.id, msg3); err != nil {
		return err
	}
	return nil
}

func drainEvents(name string, orch *runtime.Orchestrator, log logger.Logger) {
	for ev := range orch.Events() {
		log.Info("app event", logger.String("peer", name), logger.String("kind", ev.Kind.String()))
	}
}

// receiveLoop feeds packets arriving on p's local transport into its
// Orchestrator, the role a real transport adapter goroutine plays.
func receiveLoop(ctx context.Context, p *peer, log logger.Logger) {
	for {
		in, err := p.local.Receive(ctx)
		if err != nil {
			return
		}
		if err := p.orch.IngestInbound(in.From, in.Packet); err != nil {
			log.Warn("ingest inbound failed", logger.String("peer", p.id.String()), logger.Error(err))
		}
	}
}
