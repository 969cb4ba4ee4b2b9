package chain

import (
	"errors"
	"fmt"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
)

// ErrStaleTip is returned by CommitValidated when another block committed
// first and the validated fork no longer extends the active tip.
var ErrStaleTip = errors.New("tip moved during validation")

// ErrUnknownParent is returned when a block's parent is not in the index.
var ErrUnknownParent = errors.New("unknown previous block")

// ProcessBlock runs a block through the serial validation path: context
// free checks, index and store admission, then chain activation. The
// worker package uses the finer grained methods instead so validation can
// race outside the committer lock.
func (s *State) ProcessBlock(block *database.Block) error {
	node, err := s.PrepareBlock(block)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activateBestChainLocked(); err != nil {
		return err
	}

	// The block may have lost the activation race without being invalid.
	// It stays in the index either way; only report failures.
	if s.index.Status(node.ID)&(StatusFailed|StatusFailedChild) != 0 {
		return Errorf(BadConservation, "block %s rejected during activation", node.Hash)
	}

	return nil
}

// PrepareBlock runs the context-free checks and admits the block into the
// index and the store. The header's parent must already be known.
func (s *State) PrepareBlock(block *database.Block) (*BlockNode, error) {
	hash := block.Hash()

	if existing := s.index.Lookup(hash); existing != nil && s.index.Status(existing.ID)&StatusHasData != 0 {
		return existing, nil
	}

	if err := s.CheckBlock(block); err != nil {
		if kind := KindOf(err); kind.ContextFree() {
			// Permanently invalid; remember that if the header is known.
			if node := s.index.Lookup(hash); node != nil {
				s.index.MarkSubtreeFailed(node.ID, true)
				s.persistNode(node)
			}
		}
		return nil, err
	}

	parent := s.index.Lookup(block.Header.PrevHash)
	if parent == nil {
		return nil, fmt.Errorf("block %s: %w", hash, ErrUnknownParent)
	}

	if err := s.checkHeaderContext(parent, block.Header); err != nil {
		return nil, err
	}

	node := s.index.Add(block.Header, hash)

	if err := s.store.WriteBlock(block); err != nil {
		return nil, Errorf(IoFailure, "storing block %s: %s", hash, err)
	}
	s.index.SetStatus(node.ID, StatusHasData)

	if err := s.persistNode(node); err != nil {
		return nil, Errorf(IoFailure, "persisting index node %s: %s", hash, err)
	}

	s.ev("chain: PrepareBlock: accepted block[%s] height[%d] work[%s]", hash, node.Height, node.ChainWork)
	return node, nil
}

// =============================================================================

// ForkForValidation snapshots the current tip and returns a private fork
// of the shared coins cache for a validation worker to run against.
func (s *State) ForkForValidation() (*BlockNode, *database.CoinsCache) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tipNodeLocked(), s.coinsTip.Fork()
}

// ValidateAtTip connects the block against a private fork taken at the
// specified tip. No shared state is touched; the caller either commits
// the fork or discards it.
func (s *State) ValidateAtTip(block *database.Block, tip *BlockNode, fork *database.CoinsCache, cancel func() bool, runChecks CheckRunner) (database.BlockUndo, error) {
	if block.Header.PrevHash != tip.Hash {
		return database.BlockUndo{}, ErrStaleTip
	}

	return s.connectBlock(block, tip.Height+1, fork, cancel, runChecks)
}

// CommitValidated publishes a successfully validated fork. The commit
// succeeds only if the fork still extends the active tip; otherwise the
// caller lost the race and the fork is discarded.
func (s *State) CommitValidated(node *BlockNode, fork *database.CoinsCache, undo database.BlockUndo, block *database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip := s.tipNodeLocked()
	if tip == nil || node.Header.PrevHash != tip.Hash {
		return ErrStaleTip
	}

	if err := s.store.WriteUndo(node.Hash, undo); err != nil {
		return Errorf(IoFailure, "writing undo for %s: %s", node.Hash, err)
	}

	if err := fork.Commit(s.coinsTip); err != nil {
		return Errorf(IoFailure, "committing fork for %s: %s", node.Hash, err)
	}

	s.active = append(s.active, node.ID)
	s.index.SetStatus(node.ID, StatusValid)
	if err := s.persistNode(node); err != nil {
		return Errorf(IoFailure, "persisting index node %s: %s", node.Hash, err)
	}

	s.afterCommitLocked(node, block)
	s.ev("chain: CommitValidated: new tip block[%s] height[%d]", node.Hash, node.Height)
	return nil
}

// MarkValid records that a block validated successfully even if it never
// became the tip, so a race loser is retained as a known-valid candidate.
func (s *State) MarkValid(node *BlockNode) {
	s.index.SetStatus(node.ID, StatusValid)
	s.persistNode(node)
}

// MarkInvalid records a validation failure for the block and its
// descendants.
func (s *State) MarkInvalid(node *BlockNode, err error) {
	kind := KindOf(err)
	if kind == Canceled || kind == IoFailure || kind == 0 {
		return
	}

	s.index.MarkSubtreeFailed(node.ID, kind.ContextFree())
	s.persistNode(node)
	s.ev("chain: MarkInvalid: block[%s]: %s", node.Hash, err)
}

// =============================================================================

// activateBestChainLocked moves the active chain to the most-work valid
// candidate, disconnecting and connecting as needed. The committer mutex
// must be held.
func (s *State) activateBestChainLocked() error {
	for {
		tip := s.tipNodeLocked()

		best := s.bestCandidate()
		if best == nil || best.ID == tip.ID {
			return nil
		}
		// Equal work never displaces an established tip: the first block
		// to commit wins its race and a loser with the same work stays a
		// valid candidate in the index.
		if best.ChainWork.Cmp(tip.ChainWork) <= 0 {
			return nil
		}

		if err := s.reorgToLocked(best); err != nil {
			if IsKind(err, IoFailure) {
				return err
			}
			// The offending block was marked; search again.
			continue
		}

		s.ev("chain: activate: new tip block[%s] height[%d] work[%s]", best.Hash, best.Height, best.ChainWork)

		if s.prune {
			s.pruneLocked()
		}
		if s.coinCacheBytes > 0 && s.coinsTip.SizeBytes() > s.coinCacheBytes {
			if err := s.flushLocked(); err != nil {
				return err
			}
		}
		return nil
	}
}

// reorgToLocked moves the active chain from its current tip to the target
// node. The whole move runs on a private fork; the shared cache only
// changes if every step succeeds.
func (s *State) reorgToLocked(target *BlockNode) error {
	forkPoint, attach := s.pathToLocked(target)
	if forkPoint == nil {
		return Errorf(IoFailure, "no path from active chain to %s", target.Hash)
	}

	view := s.coinsTip.Fork()

	// Disconnect back to the fork point.
	detached := 0
	for i := len(s.active) - 1; i >= 0; i-- {
		node := s.index.Node(s.active[i])
		if node.ID == forkPoint.ID {
			break
		}

		block, err := s.store.ReadBlock(node.Hash)
		if err != nil {
			return Errorf(IoFailure, "reading block %s: %s", node.Hash, err)
		}
		undo, err := s.store.ReadUndo(node.Hash)
		if err != nil {
			return Errorf(IoFailure, "reading undo %s: %s", node.Hash, err)
		}

		if err := s.disconnectBlock(block, view, undo); err != nil {
			return err
		}
		detached++
	}

	// Connect forward to the target.
	type connected struct {
		node  *BlockNode
		block *database.Block
		undo  database.BlockUndo
	}
	var attached []connected

	for _, node := range attach {
		block, err := s.store.ReadBlock(node.Hash)
		if err != nil {
			return Errorf(IoFailure, "reading block %s: %s", node.Hash, err)
		}

		undo, err := s.connectBlock(block, node.Height, view, nil, nil)
		if err != nil {
			if IsKind(err, IoFailure) {
				return err
			}
			s.MarkInvalid(node, err)
			return err
		}

		attached = append(attached, connected{node: node, block: block, undo: undo})
	}

	// Every step validated; publish.
	for _, c := range attached {
		if err := s.store.WriteUndo(c.node.Hash, c.undo); err != nil {
			return Errorf(IoFailure, "writing undo for %s: %s", c.node.Hash, err)
		}
	}

	if err := view.Commit(s.coinsTip); err != nil {
		return Errorf(IoFailure, "committing reorg: %s", err)
	}

	s.active = s.active[:len(s.active)-detached]
	for _, c := range attached {
		s.active = append(s.active, c.node.ID)
		s.index.SetStatus(c.node.ID, StatusValid)
		s.persistNode(c.node)

		s.mempool.RemoveForBlock(c.block)
		if s.txIndex && s.meta != nil {
			for _, tx := range c.block.Txs {
				if err := s.meta.PutTxIndex(tx.TxID(), c.node.Hash); err != nil {
					s.ev("chain: txindex: WARNING: %s", err)
				}
			}
		}
	}

	if detached > 0 {
		s.ev("chain: reorg: detached %d blocks, attached %d, fork point[%s]", detached, len(attached), forkPoint.Hash)
	}
	return nil
}

// pathToLocked finds the most recent active ancestor of the target and
// the nodes to attach above it, oldest first.
func (s *State) pathToLocked(target *BlockNode) (*BlockNode, []*BlockNode) {
	activeSet := make(map[BlockIndexID]bool, len(s.active))
	for _, id := range s.active {
		activeSet[id] = true
	}

	var attach []*BlockNode
	node := target
	for node != nil && !activeSet[node.ID] {
		attach = append(attach, node)
		node = s.index.Node(node.Parent)
	}
	if node == nil {
		return nil, nil
	}

	// Reverse into oldest-first order.
	for i, j := 0, len(attach)-1; i < j; i, j = i+1, j-1 {
		attach[i], attach[j] = attach[j], attach[i]
	}
	return node, attach
}

// afterCommitLocked performs the bookkeeping every successful commit
// shares: the optional transaction index, pruning, and the opportunistic
// flush.
func (s *State) afterCommitLocked(node *BlockNode, block *database.Block) {
	if block != nil {
		s.mempool.RemoveForBlock(block)
	}

	if s.txIndex && s.meta != nil && block != nil {
		for _, tx := range block.Txs {
			if err := s.meta.PutTxIndex(tx.TxID(), node.Hash); err != nil {
				s.ev("chain: txindex: WARNING: %s", err)
			}
		}
	}

	if s.prune {
		s.pruneLocked()
	}

	if s.coinCacheBytes > 0 && s.coinsTip.SizeBytes() > s.coinCacheBytes {
		if err := s.flushLocked(); err != nil {
			s.ev("chain: flush: WARNING: %s", err)
		}
	}
}

// pruneLocked removes block data beyond the retention window. Undo data
// inside the window stays so the node can still disconnect back to the
// last flushed snapshot. Pruning never alters consensus state.
func (s *State) pruneLocked() {
	tip := s.tipNodeLocked()
	if tip == nil {
		return
	}

	keepFrom := tip.Height - genesis.MinBlocksToKeep
	if keepFrom <= 0 {
		return
	}

	for _, id := range s.active {
		node := s.index.Node(id)
		if node.Height == 0 || node.Height >= keepFrom {
			continue
		}
		if node.Status&StatusPruned != 0 {
			continue
		}

		if err := s.store.PruneBlock(node.Hash); err != nil {
			s.ev("chain: prune: WARNING: %s", err)
			continue
		}
		s.index.SetStatus(node.ID, StatusPruned)
		s.persistNode(node)
	}
}

// =============================================================================

// InvalidateBlock manually marks a block invalid, as if it had failed
// validation, and moves the active chain off it.
func (s *State) InvalidateBlock(hash database.Hash) error {
	node := s.index.Lookup(hash)
	if node == nil {
		return fmt.Errorf("block %s not found", hash)
	}
	if node.Height == 0 {
		return errors.New("cannot invalidate the genesis block")
	}

	s.index.MarkSubtreeFailed(node.ID, false)
	s.persistNode(node)

	s.mu.Lock()
	defer s.mu.Unlock()

	// If the invalidated block is on the active chain, rewind to its
	// parent before searching for a new best chain.
	for _, id := range s.active {
		if id != node.ID {
			continue
		}

		parent := s.index.Node(node.Parent)
		if err := s.reorgToLocked(parent); err != nil {
			return err
		}
		break
	}

	return s.activateBestChainLocked()
}

// ReconsiderBlock clears failure flags on a block and its descendants and
// re-runs chain activation.
func (s *State) ReconsiderBlock(hash database.Hash) error {
	node := s.index.Lookup(hash)
	if node == nil {
		return fmt.Errorf("block %s not found", hash)
	}

	s.index.ClearSubtreeFailureFlags(node.ID)
	s.persistNode(node)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activateBestChainLocked()
}
