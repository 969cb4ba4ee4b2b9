package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/membercoin/membercoin/app/services/node/handlers"
	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/database/storage"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/interest"
	"github.com/membercoin/membercoin/foundation/blockchain/sigcache"
	"github.com/membercoin/membercoin/foundation/blockchain/worker"
	"github.com/membercoin/membercoin/foundation/events"
	"github.com/membercoin/membercoin/foundation/logger"
)

// build is the git version of this program. It is set using build flags
// in the makefile.
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

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		State struct {
			Network       string `conf:"default:mainnet"`
			DataDir       string `conf:"default:zblock/data"`
			UseBlockDB    bool   `conf:"default:false"`
			TxIndex       bool   `conf:"default:false"`
			Prune         bool   `conf:"default:false"`
			Workers       int    `conf:"default:0"`
			ScriptWorkers int    `conf:"default:4"`
			CoinCacheMB   int    `conf:"default:128"`
			SigCacheMB    int    `conf:"default:32"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Startup Sanity

	// Every node must agree bit for bit on the interest accrual table. A
	// digest mismatch means this build would diverge from the network.
	if err := interest.VerifyTable(); err != nil {
		return fmt.Errorf("interest table: %w", err)
	}
	log.Infow("startup", "status", "rate table verified", "digest", interest.TableDigest)

	params, err := genesis.Network(cfg.State.Network)
	if err != nil {
		return err
	}

	// =========================================================================
	// Blockchain Support

	evts := events.New()
	defer evts.Shutdown()

	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Info(s)
		evts.Send(s)
	}

	var store database.Store
	switch cfg.State.UseBlockDB {
	case true:
		store, err = storage.NewBlockDB(filepath.Join(cfg.State.DataDir, "blockdb"))
	default:
		store, err = storage.NewDisk(filepath.Join(cfg.State.DataDir, "blocks"))
	}
	if err != nil {
		return fmt.Errorf("opening block store: %w", err)
	}

	chainDB, err := storage.OpenChainDB(filepath.Join(cfg.State.DataDir, "chainstate"))
	if err != nil {
		return fmt.Errorf("opening chainstate: %w", err)
	}
	defer chainDB.Close()

	state, err := chain.New(chain.Config{
		Params:         params,
		Store:          store,
		Coins:          chainDB,
		Meta:           chainDB,
		SigCache:       sigcache.New(cfg.State.SigCacheMB << 20),
		CoinCacheBytes: cfg.State.CoinCacheMB << 20,
		TxIndex:        cfg.State.TxIndex,
		Prune:          cfg.State.Prune,
		EvHandler:      ev,
		Abort: func() {
			log.Errorw("shutdown", "status", "corrupted block database detected")
			log.Sync()
			os.Exit(1)
		},
	})
	if err != nil {
		return fmt.Errorf("starting chain: %w", err)
	}
	defer state.Shutdown()

	w := worker.Run(state, worker.Config{
		Workers:       cfg.State.Workers,
		ScriptWorkers: cfg.State.ScriptWorkers,
	})
	defer w.Shutdown()

	tip := state.Tip()
	log.Infow("startup", "status", "chain active", "network", params.Name, "height", tip.Height, "tip", tip.Hash)

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	mux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    state,
		Worker:   w,
		Evts:     evts,
	})

	server := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      mux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public RPC router started", "host", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
