package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/mempool"
	"github.com/membercoin/membercoin/foundation/blockchain/sigcache"
)

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// MetaStore represents the persistence the chain needs beyond blocks and
// coins: the block index, the active tip marker, and the optional
// transaction index. A nil MetaStore keeps everything in memory.
type MetaStore interface {
	PutIndexEntry(hash database.Hash, data []byte) error
	IndexEntries(fn func(hash database.Hash, data []byte) error) error
	PutTip(hash database.Hash) error
	GetTip() (database.Hash, bool, error)
	PutTxIndex(txid database.Hash, blockHash database.Hash) error
	GetTxIndex(txid database.Hash) (database.Hash, bool, error)
}

// CheckRunner executes a batch of script checks and returns the first
// failure. The serial runner executes inline; the worker package supplies
// one that fans out across the script-check pool.
type CheckRunner func(checks []func() error) error

// Config represents the configuration required to build a State value.
type Config struct {
	Params         genesis.Params
	Store          database.Store
	Coins          database.CoinWriter
	Meta           MetaStore
	SigCache       *sigcache.Cache
	CoinCacheBytes int
	TxIndex        bool
	Prune          bool
	EvHandler      EventHandler

	// Now reports the current unix time. Tests pin it; production leaves
	// it nil for the wall clock.
	Now func() int64

	// Abort runs when the UTXO base reports a read failure. Production
	// wires process termination.
	Abort func()
}

// State manages the block index, the active chain, and the UTXO view. All
// commits are totally ordered by the committer mutex.
type State struct {
	params   genesis.Params
	store    database.Store
	meta     MetaStore
	sigCache *sigcache.Cache
	ev       EventHandler
	now      func() int64

	coinCacheBytes int
	txIndex        bool
	prune          bool

	mempool *mempool.Mempool

	// mu is the committer mutex. It serializes every mutation of the
	// active chain and the shared coins cache.
	mu       sync.Mutex
	index    *BlockIndex
	active   []BlockIndexID
	coinsTip *database.CoinsCache
}

// New constructs the chain state: loads the persisted block index, plants
// or verifies the genesis block, heals prior context-dependent failures,
// and reactivates the most-work chain.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	now := cfg.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	abort := cfg.Abort
	if abort == nil {
		abort = func() { panic("corrupted block database detected") }
	}

	base := database.NewErrorCatchingView(cfg.Coins, ev, abort)

	s := State{
		params:         cfg.Params,
		store:          cfg.Store,
		meta:           cfg.Meta,
		sigCache:       cfg.SigCache,
		ev:             ev,
		now:            now,
		coinCacheBytes: cfg.CoinCacheBytes,
		txIndex:        cfg.TxIndex,
		prune:          cfg.Prune,
		mempool:        mempool.New(),
		index:          NewBlockIndex(),
		coinsTip:       database.NewCoinsCache(base),
	}

	if s.sigCache == nil {
		s.sigCache = sigcache.New(sigcache.DefaultMaxBytes)
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}

	if err := s.initGenesis(); err != nil {
		return nil, err
	}

	if err := s.restoreActive(); err != nil {
		return nil, err
	}

	if err := s.verifyStore(); err != nil {
		return nil, err
	}

	// Startup reconsideration: failures recorded by a prior run may have
	// come from a divergent client. Clear them and let validation decide
	// again.
	if cleared := s.index.ClearFailureFlags(); cleared > 0 {
		ev("chain: startup: cleared failure flags on %d blocks", cleared)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activateBestChainLocked(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Shutdown flushes the coins cache, writes the tip marker, and closes the
// block store.
func (s *State) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(); err != nil {
		return err
	}
	return s.store.Close()
}

// Params returns the consensus parameters the state was built with.
func (s *State) Params() genesis.Params {
	return s.params
}

// =============================================================================

// loadIndex restores the persisted block index, rebuilding parent links
// and chain work from the stored headers.
func (s *State) loadIndex() error {
	if s.meta == nil {
		return nil
	}

	type entry struct {
		hash   database.Hash
		header database.BlockHeader
		height int32
		status BlockStatus
		seq    int64
	}

	var entries []entry
	err := s.meta.IndexEntries(func(hash database.Hash, data []byte) error {
		header, height, status, seq, err := unmarshalNode(data)
		if err != nil {
			return fmt.Errorf("corrupted block database detected: %w", err)
		}
		entries = append(entries, entry{hash, header, height, status, seq})
		return nil
	})
	if err != nil {
		return err
	}

	// Insert parents before children so Add can link them. Height gives
	// that order; receipt sequence keeps tie-breaks stable.
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].height < entries[i].height ||
				(entries[j].height == entries[i].height && entries[j].seq < entries[i].seq) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	horizon := s.now() + genesis.MaxFutureBlockTime
	for _, e := range entries {
		if int64(e.header.Time) > horizon {
			return errors.New("block database contains a block from the future")
		}

		node := s.index.Add(e.header, e.hash)
		s.index.SetStatus(node.ID, e.status)
	}

	return nil
}

// initGenesis plants the genesis block on first start and verifies a
// restarted node is pointed at a datadir of the same network.
func (s *State) initGenesis() error {
	gen := s.params.GenesisBlock()
	genHash := gen.Hash()

	if s.index.Len() == 0 {
		node := s.index.Add(gen.Header, genHash)
		if err := s.store.WriteBlock(gen); err != nil {
			return err
		}
		s.index.SetStatus(node.ID, StatusHasData|StatusValid)
		return s.persistNode(node)
	}

	if node := s.index.Lookup(genHash); node == nil || node.Height != 0 {
		return errors.New("incorrect or no genesis block found")
	}
	return nil
}

// restoreActive rebuilds the active chain from the persisted tip marker so
// the in-memory chain matches the state the UTXO base was flushed at.
func (s *State) restoreActive() error {
	gen := s.index.Lookup(s.params.GenesisBlock().Hash())
	s.active = []BlockIndexID{gen.ID}

	if s.meta == nil {
		return nil
	}

	tipHash, ok, err := s.meta.GetTip()
	if err != nil {
		return Errorf(IoFailure, "reading tip marker: %s", err)
	}
	if !ok {
		return nil
	}

	node := s.index.Lookup(tipHash)
	if node == nil {
		return errors.New("corrupted block database detected")
	}

	var path []BlockIndexID
	for n := node; n != nil; n = s.index.Node(n.Parent) {
		path = append(path, n.ID)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	s.active = path
	return nil
}

// verifyStore spot checks the most recent stored blocks decode cleanly.
func (s *State) verifyStore() error {
	const verifyDepth = 6

	node := s.bestCandidate()
	for i := 0; node != nil && i < verifyDepth; i++ {
		if node.Status&(StatusHasData) == 0 || node.Status&StatusPruned != 0 {
			break
		}

		block, err := s.store.ReadBlock(node.Hash)
		if err != nil {
			return fmt.Errorf("corrupted block database detected: %w", err)
		}
		if block.Hash() != node.Hash {
			return errors.New("corrupted block database detected")
		}

		node = s.index.Node(node.Parent)
	}

	return nil
}

// bestCandidate returns the most-work candidate tip, if any.
func (s *State) bestCandidate() *BlockNode {
	candidates := s.index.Candidates()
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// persistNode writes one index node through the meta store. The status is
// re-read under the index lock so concurrent flag updates never tear.
func (s *State) persistNode(node *BlockNode) error {
	if s.meta == nil {
		return nil
	}

	snapshot := *node
	snapshot.Status = s.index.Status(node.ID)
	return s.meta.PutIndexEntry(node.Hash, marshalNode(&snapshot))
}

// flushLocked writes the pending coins mutations and the tip marker. The
// committer mutex must be held.
func (s *State) flushLocked() error {
	if err := s.coinsTip.Flush(); err != nil {
		return Errorf(IoFailure, "flushing coins: %s", err)
	}

	if s.meta != nil {
		if tip := s.tipNodeLocked(); tip != nil {
			if err := s.meta.PutTip(tip.Hash); err != nil {
				return Errorf(IoFailure, "writing tip marker: %s", err)
			}
		}
	}
	return nil
}

// tipNodeLocked returns the active tip node. The committer mutex must be
// held.
func (s *State) tipNodeLocked() *BlockNode {
	if len(s.active) == 0 {
		return nil
	}
	return s.index.Node(s.active[len(s.active)-1])
}
