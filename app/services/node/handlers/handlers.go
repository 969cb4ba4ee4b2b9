// Package handlers manages the different versions of the RPC API.
package handlers

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/membercoin/membercoin/app/services/node/handlers/v1/public"
	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/worker"
	"github.com/membercoin/membercoin/foundation/events"
	"github.com/membercoin/membercoin/foundation/web"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	State    *chain.State
	Worker   *worker.Worker
	Evts     *events.Events
}

// PublicMux constructs a http.Handler with all application routes defined.
func PublicMux(cfg MuxConfig) http.Handler {
	app := web.NewApp(
		cfg.Shutdown,
		logger(cfg.Log),
		errorHandler(cfg.Log),
		panics(cfg.Log),
	)

	public.Routes(app, public.Config{
		Log:    cfg.Log,
		State:  cfg.State,
		Worker: cfg.Worker,
		Evts:   cfg.Evts,
	})

	return app
}
