// Command boxd is Box's broker daemon: it listens for framed UDP
// datagrams, runs the three-stage wire protocol pipeline, serves the
// filesystem queue store and (for root resolvers) the presence location
// index, and exposes an admin channel over a Unix-domain socket.
//
// Its shape mirrors the teacher's cmd/atlas/main.go: parse flags, load an
// optional env file, build a Config, build the server, and run it under
// signal.NotifyContext until SIGINT/SIGTERM, with a separate SIGHUP
// channel driving a reload.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/boxnet/boxd/pkg/adminapi"
	"github.com/boxnet/boxd/pkg/boxclient"
	"github.com/boxnet/boxd/pkg/boxlog"
	"github.com/boxnet/boxd/pkg/broker"
	"github.com/boxnet/boxd/pkg/identity"
	"github.com/boxnet/boxd/pkg/nat"
	"github.com/boxnet/boxd/pkg/presence"
	"github.com/boxnet/boxd/pkg/presencedb"
	"github.com/boxnet/boxd/pkg/queuestore"
	"github.com/boxnet/boxd/pkg/transport"
	"github.com/boxnet/boxd/pkg/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	help := pflag.BoolP("help", "h", false, "show this help")
	pflag.Parse()
	if *help {
		fmt.Fprintln(os.Stderr, "usage: boxd [env-file]")
		pflag.PrintDefaults()
		return 0
	}

	var envFile string
	if pflag.NArg() > 0 {
		envFile = pflag.Arg(0)
	}

	env, err := readEnvSource(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxd: %v\n", err)
		return 1
	}

	var cfg Config
	if err := cfg.UnmarshalEnv(env); err != nil {
		fmt.Fprintf(os.Stderr, "boxd: %v\n", err)
		return 1
	}

	logger, err := boxlog.New(cfg.LogLevel, consoleSpec(cfg), cfg.LogFile, cfg.LogStdoutPretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxd: build logger: %v\n", err)
		return 1
	}
	log := logger.Logger()

	if err := os.MkdirAll(cfg.Home, 0700); err != nil {
		log.Error().Err(err).Msg("boxd: create home directory")
		return 1
	}

	nodeIdentity, err := identity.LoadOrCreate(identity.Path(cfg.Home, identity.RoleNode))
	if err != nil {
		log.Error().Err(err).Msg("boxd: load node identity")
		return 1
	}

	nodeID, userID, err := loadOrCreateIDs(idsPath(cfg.Home))
	if err != nil {
		log.Error().Err(err).Msg("boxd: load node/user ids")
		return 1
	}
	log.Info().Str("nodeId", nodeID.String()).Str("userId", userID.String()).
		Str("publicKey", fmt.Sprintf("%x", nodeIdentity.PublicKey)).
		Msg("boxd: identity loaded")

	mode, psk, err := resolveMode(cfg)
	if err != nil {
		log.Error().Err(err).Msg("boxd: resolve transport mode")
		return 1
	}

	minVersion, err := wire.ParseMinVersion(cfg.MinProtocolVersion)
	if err != nil {
		log.Error().Err(err).Msg("boxd: parse minimum protocol version")
		return 1
	}

	store, err := queuestore.NewStore(filepath.Join(cfg.Home, "queues"), cfg.PermanentQueues, cfg.QueueStoreCompress)
	if err != nil {
		log.Error().Err(err).Msg("boxd: open queue store")
		return 1
	}

	var location *presence.LocationIndex
	var presenceDB *presencedb.DB
	if cfg.RootResolver {
		location = presence.NewLocationIndex(cfg.StaleThreshold)
		if cfg.PresenceDB != "" {
			presenceDB, err = presencedb.Open(cfg.PresenceDB)
			if err != nil {
				log.Error().Err(err).Msg("boxd: open presence database")
				return 1
			}
			defer presenceDB.Close()

			records, err := presenceDB.AllRecords()
			if err != nil {
				log.Error().Err(err).Msg("boxd: load persisted presence records")
				return 1
			}
			for _, rec := range records {
				location.Update(rec)
			}
			location.SetPersistHook(func(rec presence.LocationRecord) {
				if err := presenceDB.SaveRecord(rec); err != nil {
					log.Warn().Err(err).Str("nodeId", rec.NodeID.String()).
						Msg("boxd: persist presence record")
				}
			})
			log.Info().Int("records", len(records)).Msg("boxd: presence database loaded")
		}
	}

	server := broker.NewServer(log, broker.Config{
		ListenAddr:    cfg.Addr,
		Mode:          mode,
		PSK:           psk,
		NodeID:        nodeID,
		UserID:        userID,
		MaxPayload:    cfg.MaxPayload,
		QueueCapacity: cfg.QueueCapacity,
		MinVersion:    minVersion,
	}, store, location)

	var geo presence.Geolocator
	if cfg.IP2LocationDB != "" {
		if err := geo.Load(cfg.IP2LocationDB); err != nil {
			log.Warn().Err(err).Msg("boxd: load ip2location database")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var coordinator *nat.Coordinator
	var mappingCh chan presence.MappingSnapshot
	if cfg.NATEnabled {
		localIP, ok := firstGlobalIPv4()
		if !ok {
			log.Warn().Msg("boxd: no global IPv4 address found, disabling NAT traversal")
		} else {
			var gatewayOverride netip.Addr
			if cfg.NATGatewayOverride != "" {
				gatewayOverride, err = netip.ParseAddr(cfg.NATGatewayOverride)
				if err != nil {
					log.Error().Err(err).Msg("boxd: parse NAT gateway override")
					return 1
				}
			}
			mappingCh = make(chan presence.MappingSnapshot, 1)
			coordinator = nat.NewCoordinator(log, localIP, cfg.Addr.Port(), gatewayOverride, mappingCh)
			go coordinator.Run(ctx)
		}
	}

	var publisherSink chan presence.MappingSnapshot
	var publisher *presence.Publisher
	if len(cfg.Resolvers) > 0 {
		resolvers, err := parseResolverAddrs(cfg.Resolvers)
		if err != nil {
			log.Error().Err(err).Msg("boxd: parse resolver addresses")
			return 1
		}

		source := func() ([]presence.Address, presence.Connectivity, map[string]string) {
			addrs := localAddresses(cfg.Addr.Port())
			conn := presence.Connectivity{
				HasGlobalIPv6: hasGlobalIPv6(),
				GlobalIPv6:    globalIPv6Addresses(),
			}
			tags := map[string]string{}
			if cfg.IP2LocationDB != "" {
				if localIP, ok := firstGlobalIPv4(); ok {
					if region, ok := geo.Region(localIP); ok {
						tags["region"] = region
					}
				}
			}
			return addrs, conn, tags
		}

		sender := &boxclient.Sender{Mode: mode, PSK: psk, NodeID: nodeID, UserID: userID}

		if coordinator != nil {
			// forward the coordinator's snapshot channel to the publisher's
			// own sink until ctx is done
			publisherSink = make(chan presence.MappingSnapshot, 1)
			go forwardMappingSnapshots(ctx, mappingCh, publisherSink)
		}

		publisher = presence.NewPublisher(log, nodeID, userID, resolvers, cfg.PresenceInterval, source, sender, publisherSink)
		go publisher.Run(ctx)
	}

	reloader := newReloader(cfg, func(next Config) {
		if spec := consoleSpec(next); spec != "" {
			if err := logger.SetTarget(spec); err != nil {
				log.Warn().Err(err).Msg("boxd: apply reloaded log target")
			}
		}
	})
	server.OnReload(func() error {
		_, err := reloader.Reload("")
		return err
	})

	if cfg.AdminSocket != "" {
		adminHandler := adminapi.NewHandler(adminapi.Deps{
			NodeID:        nodeID,
			UserID:        userID,
			Port:          cfg.Addr.Port(),
			StartedAt:     time.Now(),
			Queue:         store,
			Location:      location,
			HasGlobalIPv6: hasGlobalIPv6,
			CurrentMapping: func() (presence.PortMapping, bool) {
				if coordinator == nil {
					return presence.PortMapping{}, false
				}
				return coordinator.Current()
			},
			LastPresenceUpdate: func() time.Time {
				if publisher == nil {
					return time.Time{}
				}
				return publisher.LastPublish()
			},
			Reload: reloader.Reload,
			NatProbe: func(ctx context.Context, gatewayOverride netip.Addr) []nat.ProbeReport {
				localIP, ok := firstGlobalIPv4()
				if !ok {
					return nil
				}
				return nat.Probe(ctx, localIP, cfg.Addr.Port(), gatewayOverride)
			},
			SetLogTarget: logger.SetTarget,
		})

		go func() {
			if err := serveAdminSocket(ctx, log, cfg.AdminSocket, adminHandler); err != nil {
				log.Error().Err(err).Msg("boxd: admin socket stopped")
			}
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info().Msg("boxd: SIGHUP received, reloading")
				server.HandleSIGHUP()
				if err := logger.Reopen(); err != nil {
					log.Warn().Err(err).Msg("boxd: reopen log file")
				}
			}
		}
	}()

	log.Info().Stringer("addr", cfg.Addr).Str("mode", mode.String()).Msg("boxd: starting")
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("boxd: server exited with error")
		return 1
	}
	return 0
}

func consoleSpec(cfg Config) string {
	if !cfg.LogStdout {
		return ""
	}
	return "stdout"
}

func resolveMode(cfg Config) (transport.Mode, []byte, error) {
	switch cfg.Mode {
	case "clear":
		return transport.Clear, nil, nil
	case "aead-psk", "":
		if cfg.PSK == "" {
			return 0, nil, fmt.Errorf("BOX_MODE=aead-psk requires BOX_PSK")
		}
		return transport.AeadPsk, []byte(cfg.PSK), nil
	default:
		return 0, nil, fmt.Errorf("unrecognized BOX_MODE %q", cfg.Mode)
	}
}

func parseResolverAddrs(hosts []string) ([]netip.AddrPort, error) {
	out := make([]netip.AddrPort, 0, len(hosts))
	for _, h := range hosts {
		addr, err := parseListenAddrPort(h)
		if err != nil {
			return nil, fmt.Errorf("resolver %q: %w", h, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func forwardMappingSnapshots(ctx context.Context, in <-chan presence.MappingSnapshot, out chan<- presence.MappingSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}
}
