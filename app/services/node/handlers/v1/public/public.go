// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ardanlabs/ledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
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
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a signed wallet transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.Transaction
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("submit tx", "traceid", v.TraceID, "id", tx.IDHex(), "inputs", len(tx.Inputs), "value", tx.Value())

	if err := h.State.UpsertWalletTransaction(tx); err != nil {
		return errs.FromLedger(err)
	}

	resp := submitted{
		Status: "transaction added to mempool",
		ID:     tx.IDHex(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SignalMining asks the worker to mine the pending transactions.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if !h.State.IsMiner() {
		return errs.NewTrusted(state.ErrNotMiner, http.StatusBadRequest)
	}

	h.State.Worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signalled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Status returns the height and peers of this node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st, err := h.State.QueryStatus()
	if err != nil {
		return err
	}

	peers := make([]string, len(st.KnownPeers))
	for i, pr := range st.KnownPeers {
		peers[i] = pr.Host
	}

	resp := status{
		Host:       h.State.RetrieveHost(),
		TipHash:    st.TipHash,
		BestHeight: st.BestHeight,
		KnownPeers: peers,
		Mempool:    h.State.QueryMempoolLength(),
		InTransit:  len(h.State.RetrieveBlocksInTransit()),
		Miner:      h.State.IsMiner(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the confirmed balance of an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	value, err := h.State.QueryBalance(address)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := balance{
		Address: address,
		Name:    h.NS.Lookup(address),
		Balance: value,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Unspent returns the outputs of an address a wallet can spend. Outputs
// already spent by pending transactions are left out.
func (h Handlers) Unspent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	unspent, err := h.State.QueryUnspent(web.Param(r, "address"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, unspent, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toTxs(h.State.RetrieveMempool(), h.NS.Lookup), http.StatusOK)
}

// Blocks returns every block from the tip to genesis.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBlocks, err := h.State.QueryBlocks()
	if err != nil {
		return err
	}

	blocks := make([]block, len(dbBlocks))
	for i, dbBlock := range dbBlocks {
		blocks[i] = toBlock(dbBlock, h.NS.Lookup)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByHash returns the block with the hex encoded hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBlock, err := h.State.QueryBlock(web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, toBlock(dbBlock, h.NS.Lookup), http.StatusOK)
}

// BlockProof returns the merkle proof that a transaction is part of a block.
func (h Handlers) BlockProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proof, err := h.State.QueryProof(web.Param(r, "hash"), web.Param(r, "txid"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}
