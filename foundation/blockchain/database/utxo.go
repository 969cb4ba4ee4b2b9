package database

import (
	"errors"
	"fmt"
	"sync"
)

// CoinView represents read access to a set of unspent coins.
type CoinView interface {
	GetCoin(op OutPoint) (Coin, bool, error)
}

// CoinWriter represents a store that can apply a batch of coin mutations
// atomically. A nil coin pointer in the batch deletes the entry.
type CoinWriter interface {
	CoinView
	BatchWriteCoins(coins map[OutPoint]*Coin) error
}

// ErrCoinExists is returned by AddCoin when an unspent coin already exists
// at the outpoint and overwriting was not allowed.
var ErrCoinExists = errors.New("coin already exists")

// ErrCoinMissing is returned by SpendCoin when no unspent coin exists at
// the outpoint.
var ErrCoinMissing = errors.New("coin is spent or missing")

// =============================================================================

// coinEntry is one cache slot. fresh means the coin was created inside this
// cache and the backing view has never seen it, so a spend can simply drop
// the slot. dirty means the slot differs from the backing view and must be
// written on flush. A spent entry with dirty set becomes a delete.
type coinEntry struct {
	coin  Coin
	spent bool
	dirty bool
	fresh bool
}

// CoinsCache is the in-memory layer of the UTXO view. Validation workers
// fork one cache per task. A fork is used by a single worker, but its
// reads fall through to the shared parent, so each cache guards its own
// slot map; child locks never nest inside parent locks.
type CoinsCache struct {
	base CoinView

	mu      sync.Mutex
	entries map[OutPoint]*coinEntry
}

// NewCoinsCache constructs a cache over the specified backing view. The
// backing view may be another cache (a fork) or the chainstate database.
func NewCoinsCache(base CoinView) *CoinsCache {
	return &CoinsCache{
		base:    base,
		entries: make(map[OutPoint]*coinEntry),
	}
}

// Fork constructs a child cache whose reads fall through to this cache.
// Writes stay private to the child until Commit folds them back.
func (cc *CoinsCache) Fork() *CoinsCache {
	return NewCoinsCache(cc)
}

// GetCoin returns the unspent coin at the outpoint if one exists.
func (cc *CoinsCache) GetCoin(op OutPoint) (Coin, bool, error) {
	cc.mu.Lock()
	if entry, exists := cc.entries[op]; exists {
		coin, spent := entry.coin, entry.spent
		cc.mu.Unlock()

		if spent {
			return Coin{}, false, nil
		}
		return coin, true, nil
	}
	cc.mu.Unlock()

	// The base read happens outside our lock so a fork's fall-through
	// never holds two cache locks at once.
	coin, ok, err := cc.base.GetCoin(op)
	if err != nil {
		return Coin{}, false, err
	}
	if !ok {
		return Coin{}, false, nil
	}

	// Cache the miss-through so repeated lookups stay in memory.
	cc.mu.Lock()
	if _, exists := cc.entries[op]; !exists {
		cc.entries[op] = &coinEntry{coin: coin}
	}
	cc.mu.Unlock()

	return coin, true, nil
}

// HaveCoin reports whether an unspent coin exists at the outpoint.
func (cc *CoinsCache) HaveCoin(op OutPoint) (bool, error) {
	_, ok, err := cc.GetCoin(op)
	return ok, err
}

// AddCoin records a newly created coin. Unless possibleOverwrite is set,
// adding on top of an existing unspent coin is an error.
func (cc *CoinsCache) AddCoin(op OutPoint, coin Coin, possibleOverwrite bool) error {
	fresh := true

	if !possibleOverwrite {
		have, err := cc.HaveCoin(op)
		if err != nil {
			return err
		}
		if have {
			return fmt.Errorf("outpoint %s: %w", op, ErrCoinExists)
		}

		// If a spent slot for this outpoint is cached, the base may still
		// hold the old coin, so the new one is not fresh.
		cc.mu.Lock()
		if entry, exists := cc.entries[op]; exists && entry.spent && !entry.fresh {
			fresh = false
		}
		cc.mu.Unlock()
	} else {
		fresh = false
	}

	cc.mu.Lock()
	cc.entries[op] = &coinEntry{coin: coin, dirty: true, fresh: fresh}
	cc.mu.Unlock()
	return nil
}

// SpendCoin removes the coin at the outpoint and returns it so the caller
// can record undo data.
func (cc *CoinsCache) SpendCoin(op OutPoint) (Coin, error) {
	coin, ok, err := cc.GetCoin(op)
	if err != nil {
		return Coin{}, err
	}
	if !ok {
		return Coin{}, fmt.Errorf("outpoint %s: %w", op, ErrCoinMissing)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	entry, exists := cc.entries[op]
	if !exists || entry.spent {
		return Coin{}, fmt.Errorf("outpoint %s: %w", op, ErrCoinMissing)
	}

	if entry.fresh {
		// Created and destroyed entirely inside this cache. The backing
		// view never needs to hear about it.
		delete(cc.entries, op)
	} else {
		entry.spent = true
		entry.dirty = true
	}

	return coin, nil
}

// Count returns the number of live cache slots, spent markers included.
func (cc *CoinsCache) Count() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	return len(cc.entries)
}

// SizeBytes estimates the memory held by the cache, used to decide when an
// opportunistic flush is due.
func (cc *CoinsCache) SizeBytes() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	var size int
	for op, entry := range cc.entries {
		size += len(op.TxID) + 4 + len(entry.coin.Out.ScriptPubKey) + 16
	}
	return size
}

// Commit folds this cache's pending mutations into its parent cache. It is
// how a validation worker's private fork becomes visible after the commit
// race is won. The receiver must not be used afterward.
func (cc *CoinsCache) Commit(parent *CoinsCache) error {
	if parent != cc.base {
		return errors.New("commit target is not the fork parent")
	}

	cc.mu.Lock()
	entries := cc.entries
	cc.entries = make(map[OutPoint]*coinEntry)
	cc.mu.Unlock()

	for op, entry := range entries {
		if !entry.dirty {
			continue
		}

		switch {
		case entry.spent:
			if _, err := parent.SpendCoin(op); err != nil {
				return err
			}
		default:
			if err := parent.AddCoin(op, entry.coin, true); err != nil {
				return err
			}
		}
	}

	return nil
}

// Flush applies every pending mutation to the backing store in one batched
// write and clears the cache. The backing view must reach the chainstate
// database for a flush to make sense.
func (cc *CoinsCache) Flush() error {
	writer, ok := cc.base.(CoinWriter)
	if !ok {
		return errors.New("backing view does not support batched writes")
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	batch := make(map[OutPoint]*Coin)
	for op, entry := range cc.entries {
		if !entry.dirty {
			continue
		}
		if entry.spent {
			batch[op] = nil
			continue
		}
		coin := entry.coin
		batch[op] = &coin
	}

	if err := writer.BatchWriteCoins(batch); err != nil {
		return err
	}

	cc.entries = make(map[OutPoint]*coinEntry)
	return nil
}
