package chain

import (
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/interest"
	"github.com/membercoin/membercoin/foundation/blockchain/sigcache"
)

// TipInfo describes the active chain tip.
type TipInfo struct {
	Hash      database.Hash `json:"hash"`
	Height    int32         `json:"height"`
	ChainWork string        `json:"chain_work"`
	Time      uint32        `json:"time"`
}

// Tip returns the active chain tip.
func (s *State) Tip() TipInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.tipNodeLocked()
	return TipInfo{
		Hash:      node.Hash,
		Height:    node.Height,
		ChainWork: node.ChainWork.String(),
		Time:      node.Header.Time,
	}
}

// Height returns the active chain height.
func (s *State) Height() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tipNodeLocked().Height
}

// GetBlock returns a block from the store by hash.
func (s *State) GetBlock(hash database.Hash) (*database.Block, error) {
	return s.store.ReadBlock(hash)
}

// LookupNode returns the index node for a block hash, nil when unknown.
func (s *State) LookupNode(hash database.Hash) *BlockNode {
	return s.index.Lookup(hash)
}

// Contains reports whether the block is on the active chain.
func (s *State) Contains(hash database.Hash) bool {
	node := s.index.Lookup(hash)
	if node == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.active {
		if id == node.ID {
			return true
		}
	}
	return false
}

// CoinInfo describes one unspent output, valued at the active tip.
type CoinInfo struct {
	Coin           database.Coin `json:"coin"`
	EffectiveValue int64         `json:"effective_value"`
	TipHeight      int32         `json:"tip_height"`
}

// GetCoin returns the unspent coin at the outpoint together with its
// effective value at the current tip height.
func (s *State) GetCoin(op database.OutPoint) (CoinInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coin, ok, err := s.coinsTip.GetCoin(op)
	if err != nil || !ok {
		return CoinInfo{}, ok, err
	}

	height := s.tipNodeLocked().Height
	return CoinInfo{
		Coin:           coin,
		EffectiveValue: interest.ValueWithInterest(coin.Out, coin.CreationHeight, height),
		TipHeight:      height,
	}, true, nil
}

// FindTx consults the optional transaction index for the block containing
// the transaction.
func (s *State) FindTx(txid database.Hash) (database.Hash, bool, error) {
	if !s.txIndex || s.meta == nil {
		return database.Hash{}, false, nil
	}
	return s.meta.GetTxIndex(txid)
}

// Synced reports whether the node considers itself caught up: the tip
// timestamp is within a day of our clock. With no peers in scope this is
// the health probe's best signal.
func (s *State) Synced() bool {
	const oneDaySeconds = 24 * 60 * 60

	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.tipNodeLocked()
	if node.Height == 0 {
		return true
	}
	return int64(node.Header.Time) >= s.now()-oneDaySeconds
}

// FlushCoins writes the pending coins mutations through to the base store.
func (s *State) FlushCoins() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked()
}

// MempoolView returns a private fork of the tip coins cache, used by the
// mempool to judge loose transactions, and the height the next block will
// connect at.
func (s *State) MempoolView() (*database.CoinsCache, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coinsTip.Fork(), s.tipNodeLocked().Height + 1
}

// EvHandler exposes the event handler so collaborating packages log the
// same way.
func (s *State) EvHandler() EventHandler {
	return s.ev
}

// SigCache exposes the signature cache for transaction admission checks.
func (s *State) SigCache() *sigcache.Cache {
	return s.sigCache
}
