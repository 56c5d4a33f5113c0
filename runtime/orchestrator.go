// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bitchat-mesh/core/bcerr"
	"github.com/bitchat-mesh/core/dedup"
	"github.com/bitchat-mesh/core/delivery"
	"github.com/bitchat-mesh/core/fragmentation"
	"github.com/bitchat-mesh/core/handlers"
	"github.com/bitchat-mesh/core/internal/logger"
	"github.com/bitchat-mesh/core/packet"
	"github.com/bitchat-mesh/core/session"
	"github.com/bitchat-mesh/core/transport"
	"github.com/bitchat-mesh/core/types"
)

// DefaultStaleThreshold is how long a task may go without a heartbeat
// before the supervisor considers it unhealthy.
const DefaultStaleThreshold = 60 * time.Second

// DefaultShutdownDeadline bounds how long Shutdown waits for the tasks
// to exit before it returns ErrShutdown.
const DefaultShutdownDeadline = 10 * time.Second

// DefaultCommandBuffer, DefaultEventBuffer and DefaultEffectBuffer are
// the default bounded-channel sizes; back-pressure surfaces as
// SendBufferFull/EventSystemBusy once a buffer fills, per Config's own
// override fields.
const (
	DefaultCommandBuffer = 128
	DefaultEventBuffer   = 256
	DefaultEffectBuffer  = 128
)

// taskName identifies one of the Orchestrator's cooperating goroutines
// for heartbeat and health reporting.
type taskName string

const (
	taskIngress  taskName = "ingress"
	taskSessions taskName = "sessions"
	taskStorage  taskName = "storage_delivery"
)

// Config bundles everything the Orchestrator needs to wire its three
// tasks together.
type Config struct {
	Sessions     *session.Manager
	Dedup        *dedup.Manager
	Delivery     *delivery.Tracker
	Reassembler  *fragmentation.Reassembler
	Fragmenter   *fragmentation.Fragmenter
	Transports   *transport.Manager
	MaxFragmentSize int

	CommandBuffer int
	EventBuffer   int
	EffectBuffer  int

	StaleThreshold   time.Duration
	ShutdownDeadline time.Duration

	Local types.PeerId
	Now   types.TimeSource
	Log   logger.Logger
}

// Orchestrator coordinates three cooperating tasks — Message Ingress,
// Session Manager, and Storage & Delivery. Commands, AppEvents and
// Effects travel over bounded channels, but the components themselves
// are shared: the Ingress task calls the session manager and delivery
// tracker directly, and IngestInbound reaches the dedup manager and
// the reassembler from the caller's goroutine. Each component guards
// its own state with its own lock.
type Orchestrator struct {
	cfg Config
	log logger.Logger
	now types.TimeSource

	local types.PeerId

	cmds    chan Command
	events  chan AppEvent
	dispatcherSink chan handlers.AppEvent

	effectSubsMu sync.RWMutex
	effectSubs   []chan Effect

	sessions    *session.Manager
	dedupMgr    *dedup.Manager
	deliveryTr  *delivery.Tracker
	reassembler *fragmentation.Reassembler
	fragmenter  *fragmentation.Fragmenter
	transports  *transport.Manager
	dispatcher  *handlers.Dispatcher

	maxFragmentSize int

	heartbeats map[taskName]*atomic.Int64

	staleThreshold   time.Duration
	shutdownDeadline time.Duration

	group *errgroup.Group
	stop  chan struct{}
	done  chan struct{}
}

// New creates an Orchestrator wired per cfg but does not start it.
func New(cfg Config) *Orchestrator {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultCommandBuffer
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.EffectBuffer <= 0 {
		cfg.EffectBuffer = DefaultEffectBuffer
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.ShutdownDeadline <= 0 {
		cfg.ShutdownDeadline = DefaultShutdownDeadline
	}
	if cfg.MaxFragmentSize <= 0 {
		cfg.MaxFragmentSize = 512
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	o := &Orchestrator{
		cfg:              cfg,
		log:              cfg.Log,
		now:              cfg.Now,
		local:            cfg.Local,
		cmds:             make(chan Command, cfg.CommandBuffer),
		events:           make(chan AppEvent, cfg.EventBuffer),
		dispatcherSink:   make(chan handlers.AppEvent, cfg.EventBuffer),
		sessions:         cfg.Sessions,
		dedupMgr:         cfg.Dedup,
		deliveryTr:       cfg.Delivery,
		reassembler:      cfg.Reassembler,
		fragmenter:       cfg.Fragmenter,
		transports:       cfg.Transports,
		maxFragmentSize:  cfg.MaxFragmentSize,
		heartbeats:       make(map[taskName]*atomic.Int64),
		staleThreshold:   cfg.StaleThreshold,
		shutdownDeadline: cfg.ShutdownDeadline,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
	o.dispatcher = handlers.NewDispatcher(
		handlers.SinkFunc(func(e handlers.AppEvent) {
			select {
			case o.dispatcherSink <- e:
			default:
				o.emitBusy()
			}
		}),
		o.reassembler, fragmentation.ModePlain, o.log,
	)
	for _, name := range []taskName{taskIngress, taskSessions, taskStorage} {
		var hb atomic.Int64
		o.heartbeats[name] = &hb
	}
	return o
}

// Events returns the channel of AppEvents an embedding application
// should drain.
func (o *Orchestrator) Events() <-chan AppEvent {
	return o.events
}

// SubmitCommand offers cmd to the Ingress task without blocking. If
// the command buffer is full, it emits EventSystemBusy and returns
// SendBufferFull rather than blocking the caller.
func (o *Orchestrator) SubmitCommand(cmd Command) error {
	select {
	case o.cmds <- cmd:
		return nil
	default:
		o.emitBusy()
		return fmt.Errorf("runtime: submit %s: %w", cmd.Kind, bcerr.ErrSendBufferFull)
	}
}

// SubscribeEffects registers a new subscriber for every Effect the
// Orchestrator broadcasts, typically one per transport adapter.
func (o *Orchestrator) SubscribeEffects(buffer int) <-chan Effect {
	if buffer <= 0 {
		buffer = o.cfg.EffectBuffer
	}
	ch := make(chan Effect, buffer)
	o.effectSubsMu.Lock()
	o.effectSubs = append(o.effectSubs, ch)
	o.effectSubsMu.Unlock()
	return ch
}

func (o *Orchestrator) broadcastEffect(e Effect) {
	o.effectSubsMu.RLock()
	defer o.effectSubsMu.RUnlock()
	for _, ch := range o.effectSubs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (o *Orchestrator) emit(e AppEvent) {
	select {
	case o.events <- e:
	default:
		o.log.Warn("app event buffer full, dropping event", logger.String("kind", e.Kind.String()))
	}
}

func (o *Orchestrator) emitBusy() {
	select {
	case o.events <- systemBusyEvent():
	default:
	}
}

func (o *Orchestrator) heartbeat(name taskName) {
	o.heartbeats[name].Store(int64(o.now.Now()))
}

// Start launches the three cooperating tasks and the supervisor.
func (o *Orchestrator) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	o.group = g
	g.Go(func() error { o.runIngress(gctx); return nil })
	g.Go(func() error { o.runSessions(gctx); return nil })
	g.Go(func() error { o.runStorageDelivery(gctx); return nil })
	g.Go(func() error { o.runSupervisor(gctx); return nil })
	go func() {
		_ = g.Wait()
		close(o.done)
	}()
}

// Shutdown closes the stop channel every task selects on and waits up
// to the configured shutdown deadline for them to exit, returning
// ErrShutdown if they have not. Tasks return without processing
// commands still buffered, and SubmitCommand does not check whether
// Shutdown has been called.
func (o *Orchestrator) Shutdown() error {
	close(o.stop)
	select {
	case <-o.done:
		return nil
	case <-time.After(o.shutdownDeadline):
		return fmt.Errorf("runtime: shutdown: %w", bcerr.ErrShutdown)
	}
}

// runIngress is the Message Ingress task: it owns outbound command
// processing (encrypt, fragment, hand to the transport manager via
// Effects) and feeds reassembled/dispatched inbound events onward.
func (o *Orchestrator) runIngress(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.heartbeat(taskIngress)
		case cmd := <-o.cmds:
			o.heartbeat(taskIngress)
			o.handleCommand(ctx, cmd)
		case he := <-o.dispatcherSink:
			o.heartbeat(taskIngress)
			if he.Kind == handlers.EventDeliveryConfirmed {
				if err := o.deliveryTr.ConfirmDelivery(he.ConfirmedID); err != nil {
					o.log.Warn("confirm delivery", logger.String("id", he.ConfirmedID.String()), logger.Error(err))
				}
			}
			if ae, ok := fromHandlerEvent(he); ok {
				o.emit(ae)
			}
		}
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandSendMessage:
		o.sendMessage(ctx, cmd.Recipient, cmd.Content)
	case CommandConnectToPeer:
		o.broadcastEffect(Effect{Kind: EffectInitiateConnection, Peer: cmd.PeerID})
		o.emit(peerStatusChangedEvent(cmd.PeerID, PeerHandshaking))
	case CommandDisconnectFromPeer:
		o.sessions.RemoveSession(cmd.PeerID)
		o.emit(peerStatusChangedEvent(cmd.PeerID, PeerDisconnected))
	case CommandStartDiscovery:
		o.broadcastEffect(Effect{Kind: EffectStartTransportDiscovery})
		o.emit(AppEvent{Kind: EventDiscoveryStateChanged, Discovering: true})
	case CommandStopDiscovery:
		o.broadcastEffect(Effect{Kind: EffectStopTransportDiscovery})
		o.emit(AppEvent{Kind: EventDiscoveryStateChanged, Discovering: false})
	case CommandPauseTransport:
		o.broadcastEffect(Effect{Kind: EffectPauseTransport, TransportType: cmd.TransportType})
	case CommandResumeTransport:
		o.broadcastEffect(Effect{Kind: EffectResumeTransport, TransportType: cmd.TransportType})
	case CommandGetSystemStatus:
		o.emit(systemStatusReportEvent(o.status()))
	case CommandShutdown:
		go o.Shutdown()
	}
}

func (o *Orchestrator) sendMessage(ctx context.Context, recipient types.PeerId, content string) {
	msg := types.BitchatMessage{ID: uuid.New(), Sender: o.local.String(), Content: content, CreatedAt: o.now.Now()}
	payload, err := packet.EncodeBitchatMessage(msg)
	if err != nil {
		o.emit(systemErrorEvent(err))
		return
	}

	ciphertext, err := o.sessions.Encrypt(recipient, payload)
	if err != nil {
		o.emit(systemErrorEvent(err))
		return
	}

	o.deliveryTr.TrackMessage(msg.ID, recipient)
	if err := o.deliveryTr.MarkSent(msg.ID); err != nil {
		o.log.Warn("mark sent failed", logger.Error(err))
	}

	if len(ciphertext)+packet.FragmentHeaderSize <= o.maxFragmentSize {
		pkt := &packet.BitchatPacket{MessageType: types.MessageTypeMessage, SenderID: o.local, RecipientID: &recipient, Timestamp: o.now.Now(), Payload: ciphertext}
		o.sendPacket(ctx, recipient, pkt)
	} else {
		frags, err := o.fragmenter.Fragment(ciphertext, uint8(types.MessageTypeMessage), o.maxFragmentSize)
		if err != nil {
			o.emit(systemErrorEvent(err))
			return
		}
		for i, frag := range frags {
			mt := types.MessageTypeFragmentContinue
			if i == 0 {
				mt = types.MessageTypeFragmentStart
			}
			if i == len(frags)-1 {
				mt = types.MessageTypeFragmentEnd
			}
			pkt := &packet.BitchatPacket{MessageType: mt, SenderID: o.local, RecipientID: &recipient, Timestamp: o.now.Now(), Payload: frag.EncodePayload()}
			o.sendPacket(ctx, recipient, pkt)
		}
	}
	o.emit(messageSentEvent(recipient, msg.ID))
}

func (o *Orchestrator) sendPacket(ctx context.Context, recipient types.PeerId, pkt *packet.BitchatPacket) {
	o.broadcastEffect(Effect{Kind: EffectSendPacket, Peer: recipient, Packet: pkt})
	if o.transports == nil {
		return
	}
	if err := o.transports.SendTo(ctx, recipient, pkt); err != nil {
		o.broadcastEffect(Effect{Kind: EffectScheduleRetry, Peer: recipient, Packet: pkt})
	}
}

// runSessions is the Session Manager task: it periodically evicts
// expired sessions and reports the evicted peers as disconnected.
func (o *Orchestrator) runSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.heartbeat(taskSessions)
			for _, peer := range o.sessions.CleanupExpired() {
				o.emit(peerStatusChangedEvent(peer, PeerDisconnected))
			}
		}
	}
}

// runStorageDelivery is the Storage & Delivery task: it drives retry
// scheduling and the eviction of expired delivery and reassembly
// entries on its own timer.
func (o *Orchestrator) runStorageDelivery(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.heartbeat(taskStorage)
			for _, m := range o.deliveryTr.GetReadyForRetry() {
				o.broadcastEffect(Effect{Kind: EffectScheduleRetry, Peer: m.Recipient})
			}
			if expired := o.deliveryTr.Cleanup(); expired > 0 {
				o.log.Debug("delivery entries expired", logger.Int("count", expired))
			}
			if dropped := o.reassembler.CleanupExpired(); dropped > 0 {
				o.log.Debug("reassembly entries expired", logger.Int("count", dropped))
			}
		}
	}
}

// runSupervisor monitors each task's heartbeat and logs a warning for
// any task stale beyond staleThreshold.
func (o *Orchestrator) runSupervisor(ctx context.Context) {
	ticker := time.NewTicker(o.staleThreshold / 4)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := o.now.Now()
			for name, hb := range o.heartbeats {
				last := types.Timestamp(hb.Load())
				if last == 0 {
					continue
				}
				if time.Duration(now.Sub(last))*time.Millisecond > o.staleThreshold {
					o.log.Warn("task heartbeat stale", logger.String("task", string(name)))
				}
			}
		}
	}
}

func (o *Orchestrator) status() Status {
	handshaking, established, _ := o.sessions.SessionCounts()
	return Status{
		ActiveSessions:     handshaking + established,
		DiscoveredPeers:    len(o.transports.AllDiscoveredPeers()),
		InFlightDeliveries: o.deliveryTr.Stats().InFlight,
		PendingReassembly:  o.reassembler.PendingCount(),
	}
}

// IngestInbound feeds a packet received off a transport through dedup,
// reassembly and dispatch. It is called by a transport adapter rather
// than by the Ingress task directly, since the transport owns the
// blocking Receive loop.
func (o *Orchestrator) IngestInbound(from types.PeerId, pkt *packet.BitchatPacket) error {
	id := dedup.NewPacketId(from, pkt.Timestamp, pkt.Payload)
	if o.dedupMgr.CheckAndAdd(id) {
		return nil
	}
	return o.dispatcher.Dispatch(pkt)
}
