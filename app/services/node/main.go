package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/ledger/app/services/node/handlers"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/p2p"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/engine"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ardanlabs/ledger/foundation/blockchain/worker"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/logger"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vrecan/death/v3"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			CorsOrigin      string        `conf:"default:*"`
		}
		P2P struct {
			Host          string        `conf:"default:0.0.0.0:3000"`
			AdvertiseHost string        `conf:"default:localhost:3000"`
			KnownPeers    []string      `conf:"default:localhost:3000"`
			DialTimeout   time.Duration `conf:"default:5s"`
			Proxy         string
			ProxyUser     string
			ProxyPass     string `conf:"mask"`
		}
		State struct {
			DBEngine      string        `conf:"default:badger"`
			DBPath        string        `conf:"default:zblock/blocks.db"`
			GenesisPath   string        `conf:"default:zblock/genesis.json"`
			MinerKeyFile  string        `conf:"default:zblock/accounts/miner1.ecdsa"`
			MineThreshold int           `conf:"default:1"`
			PeerInterval  time.Duration `conf:"default:1m"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
		Log struct {
			File        string
			ThresholdKB int64 `conf:"default:10240"`
			MaxRolls    int   `conf:"default:3"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work utxo ledger node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// Switch to a rotating log file when one is configured.
	if cfg.Log.File != "" {
		var closer io.Closer
		log, closer, err = logger.NewWithRotation(prefix, cfg.Log.File, cfg.Log.ThresholdKB, cfg.Log.MaxRolls)
		if err != nil {
			return fmt.Errorf("constructing rotating logger: %w", err)
		}
		defer closer.Close()
		defer log.Sync()
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel so a signal is never lost.
	shutdown := make(chan os.Signal, 1)
	signalShutdown := func(sig os.Signal) {
		select {
		case shutdown <- sig:
		default:
		}
	}

	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM)
	go d.WaitForDeathWithFunc(func() {
		signalShutdown(syscall.SIGTERM)
	})

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 3)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for addresses. The
	// names come from the key file names in the accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for address, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "address", address)
	}

	// =========================================================================
	// Blockchain Support

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// The miner key is optional. A node without one relays but never mines.
	var minerAddress string
	if cfg.State.MinerKeyFile != "" {
		privateKey, err := crypto.LoadECDSA(cfg.State.MinerKeyFile)
		if err != nil {
			return fmt.Errorf("unable to load private key for node: %w", err)
		}
		minerAddress = wallet.FromPrivateKey(privateKey).Address()
		log.Infow("startup", "status", "mining enabled", "address", minerAddress)
	}

	// A peer set is a collection of known nodes in the network so transactions
	// and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.P2P.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	store, err := engine.Open(engine.Config{
		Engine: cfg.State.DBEngine,
		Path:   cfg.State.DBPath,
		Log:    log,
	})
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}
	defer store.Close()

	chain, err := database.Open(database.Config{
		Store:     store,
		Genesis:   gen,
		EvHandler: ev,
	})
	if err != nil {
		return fmt.Errorf("unable to open blockchain: %w", err)
	}

	// The state value represents the blockchain node and manages the
	// mempool, the known peers and the blocks being downloaded.
	st, err := state.New(state.Config{
		Host:          cfg.P2P.AdvertiseHost,
		MinerAddress:  minerAddress,
		MineThreshold: cfg.State.MineThreshold,
		Blockchain:    chain,
		KnownPeers:    peerSet,
		Transport:     p2p.NewDialer(cfg.P2P.DialTimeout, cfg.P2P.Proxy, cfg.P2P.ProxyUser, cfg.P2P.ProxyPass),
		EvHandler:     ev,
		Halt: func(err error) {
			log.Errorw("shutdown", "status", "chain corruption", "ERROR", err)
			signalShutdown(syscall.SIGTERM)
		},
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// =========================================================================
	// Start P2P Service

	srv, err := p2p.Listen(cfg.P2P.Host, st, ev)
	if err != nil {
		return fmt.Errorf("unable to listen for peers: %w", err)
	}

	go func() {
		log.Infow("startup", "status", "p2p listener started", "host", cfg.P2P.Host, "advertise", cfg.P2P.AdvertiseHost)
		serverErrors <- srv.Serve()
	}()

	// The worker package implements the different workflows such as mining,
	// transaction peer sharing, and peer updates. The worker will register
	// itself with the state.
	worker.Run(st, cfg.State.PeerInterval, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		State:      st,
		NS:         ns,
		Evts:       evts,
		CorsOrigin: cfg.Web.CorsOrigin,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		srv.Shutdown()
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Stop taking messages from peers before the worker is stopped.
		log.Infow("shutdown", "status", "shutdown p2p listener")
		if err := srv.Shutdown(); err != nil {
			log.Errorw("shutdown", "status", "p2p listener", "ERROR", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
