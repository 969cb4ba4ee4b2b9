// Package mempool maintains the pool of loose transactions waiting for a
// block. Admission revalidates each transaction against the current UTXO
// view with interest-aware conservation; selection orders by fee rate and
// block templates come out in canonical transaction order.
package mempool

import (
	"bytes"
	"sort"
	"sync"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// PoolTx is a transaction in the pool together with the admission
// valuation that priced it.
type PoolTx struct {
	Tx      *database.Tx
	TxID    database.Hash
	Fee     int64
	Size    int
	FeeRate int64 // satoshi per 1000 bytes
}

// Mempool represents the cache of loose transactions, keyed by txid with a
// second index on the outpoints they spend for conflict detection.
type Mempool struct {
	mu     sync.RWMutex
	pool   map[database.Hash]PoolTx
	spends map[database.OutPoint]database.Hash
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool:   make(map[database.Hash]PoolTx),
		spends: make(map[database.OutPoint]database.Hash),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the pool. A transaction
// spending an outpoint another pooled transaction already spends is a
// conflict and is rejected.
func (mp *Mempool) Upsert(ptx PoolTx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, in := range ptx.Tx.TxIn {
		if owner, exists := mp.spends[in.PrevOut]; exists && owner != ptx.TxID {
			return 0, database.ErrCoinExists
		}
	}

	mp.pool[ptx.TxID] = ptx
	for _, in := range ptx.Tx.TxIn {
		mp.spends[in.PrevOut] = ptx.TxID
	}

	return len(mp.pool), nil
}

// Delete removes a transaction from the pool.
func (mp *Mempool) Delete(txid database.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.deleteLocked(txid)
}

func (mp *Mempool) deleteLocked(txid database.Hash) {
	ptx, exists := mp.pool[txid]
	if !exists {
		return
	}

	for _, in := range ptx.Tx.TxIn {
		if mp.spends[in.PrevOut] == txid {
			delete(mp.spends, in.PrevOut)
		}
	}
	delete(mp.pool, txid)
}

// RemoveForBlock drops every pooled transaction a connected block
// confirmed or conflicted with.
func (mp *Mempool) RemoveForBlock(block *database.Block) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range block.Txs {
		mp.deleteLocked(tx.TxID())

		for _, in := range tx.TxIn {
			if owner, exists := mp.spends[in.PrevOut]; exists {
				mp.deleteLocked(owner)
			}
		}
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[database.Hash]PoolTx)
	mp.spends = make(map[database.OutPoint]database.Hash)
}

// Copy returns a list of the current transactions in the pool.
func (mp *Mempool) Copy() []PoolTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]PoolTx, 0, len(mp.pool))
	for _, ptx := range mp.pool {
		txs = append(txs, ptx)
	}
	return txs
}

// PickBest returns up to max transactions for a block template. Selection
// is by descending fee rate; the returned set is then sorted into
// canonical transaction order, which is the order blocks carry.
func (mp *Mempool) PickBest(max int) []*database.Tx {
	txs := mp.Copy()

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].FeeRate > txs[j].FeeRate
	})
	if max > 0 && len(txs) > max {
		txs = txs[:max]
	}

	sort.Slice(txs, func(i, j int) bool {
		return bytes.Compare(txs[i].TxID[:], txs[j].TxID[:]) < 0
	})

	picked := make([]*database.Tx, len(txs))
	for i, ptx := range txs {
		picked[i] = ptx.Tx
	}
	return picked
}
