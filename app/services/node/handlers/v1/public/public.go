// Package public maintains the group of handlers for the node's RPC
// surface.
package public

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/worker"
	"github.com/membercoin/membercoin/foundation/events"
	"github.com/membercoin/membercoin/foundation/web"
)

// Handlers manages the set of node RPC endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	State  *chain.State
	Worker *worker.Worker
	WS     websocket.Upgrader
	Evts   *events.Events
}

// SubmitBlock accepts a hex encoded block, schedules it for validation,
// and reports the outcome.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req SubmitBlockRequest
	if err := web.Decode(r, &req); err != nil {
		return err
	}

	raw, err := req.Block()
	if err != nil {
		return err
	}

	var block database.Block
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return chain.Errorf(chain.BadStructure, "decoding block: %s", err)
	}

	if err := h.Worker.SubmitBlock(&block); err != nil {
		return err
	}

	resp := SubmitBlockResponse{
		Hash: block.Hash().String(),
		Tip:  h.State.Tip(),
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitTx accepts a hex encoded transaction for the mempool.
func (h Handlers) SubmitTx(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req SubmitTxRequest
	if err := web.Decode(r, &req); err != nil {
		return err
	}

	raw, err := req.Tx()
	if err != nil {
		return err
	}

	var tx database.Tx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chain.Errorf(chain.BadStructure, "decoding transaction: %s", err)
	}

	count, err := h.State.SubmitTx(&tx)
	if err != nil {
		return err
	}

	resp := SubmitTxResponse{
		TxID:      tx.TxID().String(),
		PoolCount: count,
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Tip returns the active chain tip.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Tip(), http.StatusOK)
}

// Block returns a block by hash, hex armored with its index status.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := database.ToHash(web.Param(r, "hash"))
	if err != nil {
		return err
	}

	block, err := h.State.GetBlock(hash)
	if err != nil {
		return chain.Errorf(chain.IoFailure, "reading block: %s", err)
	}

	resp := NewBlockResponse(block, h.State.LookupNode(hash), h.State.Contains(hash))
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Coin returns one unspent output valued at the current tip.
func (h Handlers) Coin(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	op, err := parseOutPoint(web.Param(r, "txid"), web.Param(r, "index"))
	if err != nil {
		return err
	}

	info, ok, err := h.State.GetCoin(op)
	if err != nil {
		return err
	}
	if !ok {
		return web.Respond(ctx, w, errNotFound{Error: "coin is spent or missing"}, http.StatusNotFound)
	}

	return web.Respond(ctx, w, NewCoinResponse(op, info), http.StatusOK)
}

// Mempool returns the transactions currently in the pool.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, NewMempoolResponse(h.State.Mempool().Copy()), http.StatusOK)
}

// Genesis returns the consensus parameters the node runs with.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Params(), http.StatusOK)
}

// InvalidateBlock manually marks a block invalid and moves the chain off
// of it.
func (h Handlers) InvalidateBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := database.ToHash(web.Param(r, "hash"))
	if err != nil {
		return err
	}

	if err := h.State.InvalidateBlock(hash); err != nil {
		return err
	}
	return web.Respond(ctx, w, h.State.Tip(), http.StatusOK)
}

// ReconsiderBlock clears failure flags from a block and re-runs the chain
// activation.
func (h Handlers) ReconsiderBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := database.ToHash(web.Param(r, "hash"))
	if err != nil {
		return err
	}

	if err := h.State.ReconsiderBlock(hash); err != nil {
		return err
	}
	return web.Respond(ctx, w, h.State.Tip(), http.StatusOK)
}

// Health returns liveness and sync information.
func (h Handlers) Health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := HealthResponse{
		Status: "up",
		Synced: h.State.Synced(),
		Height: h.State.Height(),
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}
