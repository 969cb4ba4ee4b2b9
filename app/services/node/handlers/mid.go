package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/validate"
	"github.com/membercoin/membercoin/foundation/web"
)

// logger writes one line of information about each request to the logs.
func logger(log *zap.SugaredLogger) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v, err := web.GetValues(ctx)
			if err != nil {
				return err
			}

			log.Infow("request started", "traceid", v.TraceID, "method", r.Method, "path", r.URL.Path, "remoteaddr", r.RemoteAddr)

			err = handler(ctx, w, r)

			log.Infow("request completed", "traceid", v.TraceID, "method", r.Method, "path", r.URL.Path,
				"statuscode", v.StatusCode, "since", time.Since(v.Now))

			return err
		}
	}
}

// errResponse is the form used for API responses from failures.
type errResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Fields any    `json:"fields,omitempty"`
}

// errorHandler turns handler errors into proper API responses instead of
// letting them shut the service down.
func errorHandler(log *zap.SugaredLogger) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			v, _ := web.GetValues(ctx)
			if v != nil {
				log.Errorw("request error", "traceid", v.TraceID, "ERROR", err)
			}

			var (
				status = http.StatusBadRequest
				resp   = errResponse{Error: err.Error()}
				fe     validate.FieldErrors
			)

			switch {
			case chain.KindOf(err) != 0:
				resp.Kind = chain.KindOf(err).String()
				if chain.IsKind(err, chain.IoFailure) {
					status = http.StatusInternalServerError
				}

			case errors.As(err, &fe):
				resp = errResponse{Error: "data validation error", Fields: fe}
			}

			if err := web.Respond(ctx, w, resp, status); err != nil {
				return err
			}

			// Shutdown errors still propagate so the service can stop.
			if web.IsShutdown(err) {
				return err
			}
			return nil
		}
	}
}

// panics recovers from panics and converts the panic to an error.
func panics(log *zap.SugaredLogger) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorw("PANIC", "message", rec)
					err = web.Respond(ctx, w, errResponse{Error: "internal error"}, http.StatusInternalServerError)
				}
			}()

			return handler(ctx, w, r)
		}
	}
}
