// Package broker implements Box's three-stage wire protocol runtime
// (spec.md §4.3): NetworkInput decrypts and decodes inbound datagrams onto
// a bounded queue, Main dispatches commands against the Queue Store and
// Location Index, and NetworkOutput encrypts and writes replies. The
// composition root (NewServer, Run, HandleSIGHUP) is grounded in the
// teacher's pkg/atlas.Server; the bounded, non-blocking multi-producer
// queues generalize pkg/nspkt.Listener.mon's broadcast-with-select/default
// pattern from "one channel per subscriber" to "one queue per stage, with
// targeted eviction instead of a blind drop".
package broker

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/boxnet/boxd/pkg/boxid"
	"github.com/boxnet/boxd/pkg/presence"
	"github.com/boxnet/boxd/pkg/queuestore"
	"github.com/boxnet/boxd/pkg/transport"
)

// Config configures a Server. A zero-value QueueCapacity falls back to
// 1024; a zero-value MaxPayload leaves PUT payload size unlimited.
type Config struct {
	ListenAddr    netip.AddrPort
	Mode          transport.Mode
	PSK           []byte
	NodeID        boxid.ID
	UserID        boxid.ID
	MaxPayload    int
	QueueCapacity int

	// MinVersion, if nonzero, excludes wire protocol versions below it from
	// HELLO negotiation (wire.ParseMinVersion parses the operator-facing
	// semver config form into this).
	MinVersion uint16
}

// Server is the composition root for the broker runtime: it owns the UDP
// socket, the per-peer session table, the two inter-stage queues, and the
// collaborators the Main stage dispatches into.
type Server struct {
	log zerolog.Logger

	nodeID     boxid.ID
	userID     boxid.ID
	maxPayload int
	listenAddr netip.AddrPort

	sessions    *sessionTable
	mainQueue   *boundedQueue
	outputQueue *boundedQueue

	store    *queuestore.Store
	location *presence.LocationIndex

	supportedVersions []uint16

	metrics *brokerMetrics

	mu         sync.Mutex
	localAddr  netip.AddrPort
	reloadHooks []func() error

	clock func() time.Time // overridden in tests
}

// NewServer constructs a Server. location may be nil for a non-resolver
// node, since only root resolvers need LOCATE/whoswho indexing
// (spec.md §4.5).
func NewServer(log zerolog.Logger, cfg Config, store *queuestore.Store, location *presence.LocationIndex) *Server {
	s := &Server{
		log:         log,
		nodeID:      cfg.NodeID,
		userID:      cfg.UserID,
		maxPayload:  cfg.MaxPayload,
		listenAddr:  cfg.ListenAddr,
		sessions:    newSessionTable(cfg.Mode, cfg.PSK),
		mainQueue:   newBoundedQueue(cfg.QueueCapacity),
		outputQueue: newBoundedQueue(cfg.QueueCapacity),
		store:       store,
		location:    location,
	}
	for _, v := range supportedVersions {
		if v >= cfg.MinVersion {
			s.supportedVersions = append(s.supportedVersions, v)
		}
	}
	s.metrics = newBrokerMetrics(func() float64 { return float64(s.sessions.count()) })
	return s
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// LocalAddr returns the bound UDP address once Run has started listening,
// or the zero value beforehand.
func (s *Server) LocalAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localAddr
}

// OnReload registers fn to run when HandleSIGHUP fires, the same
// reload-closure pattern as pkg/atlas.Server.reload.
func (s *Server) OnReload(fn func() error) {
	s.mu.Lock()
	s.reloadHooks = append(s.reloadHooks, fn)
	s.mu.Unlock()
}

// HandleSIGHUP runs every registered reload hook, logging but not aborting
// on individual failures (pkg/atlas.Server.HandleSIGHUP's shape).
func (s *Server) HandleSIGHUP() {
	s.mu.Lock()
	hooks := append([]func() error(nil), s.reloadHooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		if err := fn(); err != nil {
			s.log.Error().Err(err).Msg("broker: reload hook failed")
		}
	}
}

// Run binds the UDP socket and runs all three stages until ctx is
// canceled, then shuts down in the bounded order spec.md §5 requires:
// NetworkInput returns within one poll tick (closing the socket unblocks
// its read), Main drains its queue and returns, then NetworkOutput drains
// its queue and returns. It must only be called once.
func (s *Server) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(s.listenAddr))
	if err != nil {
		return fmt.Errorf("broker: listen: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.localAddr = conn.LocalAddr().(*net.UDPAddr).AddrPort()
	s.mu.Unlock()

	s.log.Info().Stringer("addr", s.LocalAddr()).Msg("broker: listening")

	inputDone := make(chan struct{})
	mainDone := make(chan struct{})
	outputDone := make(chan struct{})

	go func() { defer close(inputDone); s.runNetworkInput(ctx, conn) }()
	// Main and NetworkOutput stop on their queue's Close, not on ctx, so
	// each drains what the previous stage handed it before returning.
	go func() { defer close(mainDone); s.runMain(context.Background()) }()
	go func() { defer close(outputDone); s.runNetworkOutput(context.Background(), conn) }()

	<-ctx.Done()

	conn.Close()
	<-inputDone

	s.mainQueue.Close()
	<-mainDone

	s.outputQueue.Close()
	<-outputDone

	return nil
}
