// Package memory implements in-memory versions of the block store and the
// UTXO base store. Tests use these so they don't touch the disk.
package memory

import (
	"sync"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// Store represents an in-memory block store. This implements the
// database.Store interface.
type Store struct {
	mu     sync.RWMutex
	blocks map[database.Hash]*database.Block
	undos  map[database.Hash]database.BlockUndo
}

// NewStore constructs an in-memory block store.
func NewStore() *Store {
	return &Store{
		blocks: make(map[database.Hash]*database.Block),
		undos:  make(map[database.Hash]database.BlockUndo),
	}
}

// Close in this implementation has nothing to do.
func (s *Store) Close() error {
	return nil
}

// WriteBlock stores a block under its hash.
func (s *Store) WriteBlock(b *database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[b.Hash()] = b
	return nil
}

// ReadBlock returns the specified block by hash.
func (s *Store) ReadBlock(hash database.Hash) (*database.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, exists := s.blocks[hash]
	if !exists {
		return nil, database.ErrBlockNotFound
	}
	return block, nil
}

// HasBlock reports whether the block exists in the store.
func (s *Store) HasBlock(hash database.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.blocks[hash]
	return exists
}

// WriteUndo stores the undo data for a block.
func (s *Store) WriteUndo(hash database.Hash, undo database.BlockUndo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.undos[hash] = undo
	return nil
}

// ReadUndo returns the undo data for a block.
func (s *Store) ReadUndo(hash database.Hash) (database.BlockUndo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	undo, exists := s.undos[hash]
	if !exists {
		return database.BlockUndo{}, database.ErrBlockNotFound
	}
	return undo, nil
}

// PruneBlock removes a block and its undo data.
func (s *Store) PruneBlock(hash database.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, hash)
	delete(s.undos, hash)
	return nil
}

// =============================================================================

// CoinStore represents an in-memory UTXO base store. This implements the
// database.CoinWriter interface.
type CoinStore struct {
	mu    sync.RWMutex
	coins map[database.OutPoint]database.Coin
}

// NewCoinStore constructs an in-memory UTXO base store.
func NewCoinStore() *CoinStore {
	return &CoinStore{
		coins: make(map[database.OutPoint]database.Coin),
	}
}

// GetCoin returns the unspent coin at the outpoint if one exists.
func (cs *CoinStore) GetCoin(op database.OutPoint) (database.Coin, bool, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	coin, exists := cs.coins[op]
	return coin, exists, nil
}

// BatchWriteCoins applies a batch of coin mutations atomically. A nil coin
// deletes the entry.
func (cs *CoinStore) BatchWriteCoins(coins map[database.OutPoint]*database.Coin) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for op, coin := range coins {
		if coin == nil {
			delete(cs.coins, op)
			continue
		}
		cs.coins[op] = *coin
	}
	return nil
}

// Snapshot copies the current UTXO set, used by tests to compare state.
func (cs *CoinStore) Snapshot() map[database.OutPoint]database.Coin {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	snap := make(map[database.OutPoint]database.Coin, len(cs.coins))
	for op, coin := range cs.coins {
		snap[op] = coin
	}
	return snap
}
