package chain

import (
	"bytes"
	"errors"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/pow"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
)

// ErrTimeTooNew reports a block whose timestamp runs too far ahead of our
// clock. It is a rejection, not an invalidity: the same block may be
// acceptable later, so the index is never marked.
var ErrTimeTooNew = errors.New("block timestamp too far in the future")

// coinbaseScriptSig length bounds, in bytes.
const (
	minCoinbaseScriptSig = 2
	maxCoinbaseScriptSig = 100
)

// CheckBlock runs every context-free check: proof of work, structural
// sanity, size and sigops limits, and the merkle commitment. A failure
// here is permanent for this block.
func (s *State) CheckBlock(block *database.Block) error {
	// The genesis block is baked into consensus and exempt.
	if block.Hash() == s.params.GenesisBlock().Hash() {
		return nil
	}

	if err := pow.Check(block.Header); err != nil {
		return Errorf(BadPow, "%s", err)
	}

	if len(block.Txs) == 0 {
		return Errorf(BadStructure, "block has no transactions")
	}

	blockSize := uint64(block.SerializeSize())
	if blockSize > s.params.ExcessiveBlockSize {
		return Errorf(BadStructure, "block size %d exceeds excessive limit %d", blockSize, s.params.ExcessiveBlockSize)
	}

	if !block.Txs[0].IsCoinbase() {
		return Errorf(BadStructure, "first transaction is not a coinbase")
	}
	for _, tx := range block.Txs[1:] {
		if tx.IsCoinbase() {
			return Errorf(BadStructure, "more than one coinbase")
		}
	}

	seen := make(map[database.Hash]bool, len(block.Txs))
	var sigOps int
	for _, tx := range block.Txs {
		if err := checkTransaction(tx); err != nil {
			return err
		}

		txid := tx.TxID()
		if seen[txid] {
			return Errorf(BadStructure, "duplicate transaction %s", txid)
		}
		seen[txid] = true

		txSigOps := countTxSigOps(tx)
		if txSigOps > genesis.MaxTxSigOpsCount {
			return Errorf(BadStructure, "transaction %s has %d sigops", txid, txSigOps)
		}
		sigOps += txSigOps
	}

	if uint64(sigOps) > genesis.MaxBlockSigOpsCount(blockSize) {
		return Errorf(BadStructure, "block has %d sigops", sigOps)
	}

	root, err := block.ComputeMerkleRoot()
	if err != nil {
		return Errorf(BadStructure, "computing merkle root: %s", err)
	}
	if root != block.Header.MerkleRoot {
		return Errorf(BadStructure, "merkle root mismatch, got %s, exp %s", root, block.Header.MerkleRoot)
	}

	return nil
}

// checkTransaction runs the context-free transaction checks.
func checkTransaction(tx *database.Tx) error {
	txid := tx.TxID()

	if len(tx.TxIn) == 0 {
		return Errorf(BadStructure, "transaction %s has no inputs", txid)
	}
	if len(tx.TxOut) == 0 {
		return Errorf(BadStructure, "transaction %s has no outputs", txid)
	}

	if _, err := tx.ValueOut(); err != nil {
		return Errorf(BadStructure, "transaction %s: %s", txid, err)
	}

	seen := make(map[database.OutPoint]bool, len(tx.TxIn))
	for _, in := range tx.TxIn {
		if seen[in.PrevOut] {
			return Errorf(BadStructure, "transaction %s spends %s twice", txid, in.PrevOut)
		}
		seen[in.PrevOut] = true
	}

	if tx.IsCoinbase() {
		ssLen := len(tx.TxIn[0].ScriptSig)
		if ssLen < minCoinbaseScriptSig || ssLen > maxCoinbaseScriptSig {
			return Errorf(BadStructure, "coinbase scriptSig length %d", ssLen)
		}
		return nil
	}

	for _, in := range tx.TxIn {
		if in.PrevOut.IsNull() {
			return Errorf(BadStructure, "transaction %s has a null prevout", txid)
		}
	}
	if tx.SerializeSize() < database.MinTxSize {
		return Errorf(BadStructure, "transaction %s is smaller than %d bytes", txid, database.MinTxSize)
	}

	return nil
}

// countTxSigOps counts the legacy sigops of one transaction.
func countTxSigOps(tx *database.Tx) int {
	var count int
	for _, in := range tx.TxIn {
		count += script.CountSigOps(in.ScriptSig)
	}
	for _, out := range tx.TxOut {
		count += script.CountSigOps(out.ScriptPubKey)
	}
	return count
}

// =============================================================================

// checkHeaderContext validates the header against its parent: the
// retargeting rule, the median-time-past floor, and the future-time
// ceiling.
func (s *State) checkHeaderContext(parent *BlockNode, header database.BlockHeader) error {
	if header.Bits != s.nextWorkRequired(parent) {
		return Errorf(BadPow, "bits %08x, exp %08x", header.Bits, s.nextWorkRequired(parent))
	}

	if int64(header.Time) <= s.medianTimePast(parent) {
		return Errorf(BadStructure, "timestamp %d not past median time", header.Time)
	}

	if int64(header.Time) > s.now()+genesis.MaxFutureBlockTime {
		return ErrTimeTooNew
	}

	return nil
}

// nextWorkRequired returns the bits the child of the specified parent must
// carry. The difficulty adjustment algorithm itself is inherited and out
// of scope, so outside of minimum-difficulty networks the target simply
// carries forward.
func (s *State) nextWorkRequired(parent *BlockNode) uint32 {
	const minimumDifficultyBits = 0x207fffff

	if s.params.PowLimitBits == minimumDifficultyBits {
		return s.params.PowLimitBits
	}
	return parent.Header.Bits
}

// medianTimePast computes the median timestamp of the last eleven blocks
// ending at the specified node.
func (s *State) medianTimePast(node *BlockNode) int64 {
	var times []int64
	for i := 0; node != nil && i < genesis.MedianTimeSpan; i++ {
		times = append(times, int64(node.Header.Time))
		node = s.index.Node(node.Parent)
	}

	// Insertion sort; the window is eleven entries.
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j] < times[j-1]; j-- {
			times[j], times[j-1] = times[j-1], times[j]
		}
	}

	return times[len(times)/2]
}

// checkTxOrdering enforces the block's transaction ordering rule: the
// canonical lexicographic order after CTOR activation, nothing extra
// before it (the sequential connect pass enforces topological order on
// its own).
func (s *State) checkTxOrdering(block *database.Block, height int32) error {
	if height < s.params.CTORActivationHeight {
		return nil
	}

	var prev database.Hash
	for i, tx := range block.Txs[1:] {
		txid := tx.TxID()
		if i > 0 && bytes.Compare(txid[:], prev[:]) <= 0 {
			return Errorf(BadStructure, "transactions not in canonical order at %s", txid)
		}
		prev = txid
	}

	return nil
}
