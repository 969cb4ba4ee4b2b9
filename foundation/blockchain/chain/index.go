package chain

import (
	"bytes"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/membercoin/membercoin/foundation/blockchain/arith"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// BlockIndexID identifies one node in the block index arena. The zero id
// means no node; the genesis node is always id 1.
type BlockIndexID int32

// BlockStatus flags record what is known about a block.
type BlockStatus uint32

// The block status flags.
const (
	// StatusHasData means the full block is in the store, making the node
	// a candidate tip.
	StatusHasData BlockStatus = 1 << iota

	// StatusValid means the block connected successfully at some point.
	StatusValid

	// StatusFailed means the block failed validation. Context-dependent
	// failures are cleared on startup reconsideration.
	StatusFailed

	// StatusFailedChild means an ancestor of the block failed validation.
	StatusFailedChild

	// StatusContextFreeInvalid means the block failed a check no chain
	// context can repair; the failure flag is never cleared.
	StatusContextFreeInvalid

	// StatusPruned means the block's data was removed by pruning.
	StatusPruned
)

// BlockNode is one entry in the block index arena. Parent links are arena
// ids, never pointers, so reverse iteration and persistence stay simple.
type BlockNode struct {
	ID        BlockIndexID
	Hash      database.Hash
	Header    database.BlockHeader
	Height    int32
	ChainWork *uint256.Int
	Status    BlockStatus
	Parent    BlockIndexID

	// Seq is the receipt order of the node, breaking chain-work ties in
	// favor of the block seen first.
	Seq int64
}

// =============================================================================

// BlockIndex is the arena of every header that passed context-free
// validation. Lookups take the read lock; insert and status updates take
// the write lock.
type BlockIndex struct {
	mu     sync.RWMutex
	nodes  []*BlockNode
	byHash map[database.Hash]BlockIndexID
	seq    int64
}

// NewBlockIndex constructs an empty block index.
func NewBlockIndex() *BlockIndex {
	return &BlockIndex{
		byHash: make(map[database.Hash]BlockIndexID),
	}
}

// Add inserts a header into the index and returns its node. The parent
// must already be present unless the header is the genesis block.
func (bi *BlockIndex) Add(header database.BlockHeader, hash database.Hash) *BlockNode {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	if id, exists := bi.byHash[hash]; exists {
		return bi.nodes[id-1]
	}

	node := BlockNode{
		ID:        BlockIndexID(len(bi.nodes) + 1),
		Hash:      hash,
		Header:    header,
		ChainWork: arith.WorkForBits(header.Bits),
	}

	if parentID, exists := bi.byHash[header.PrevHash]; exists {
		parent := bi.nodes[parentID-1]
		node.Parent = parentID
		node.Height = parent.Height + 1
		node.ChainWork = new(uint256.Int).Add(parent.ChainWork, node.ChainWork)

		// Invalid ancestry taints the whole subtree.
		if parent.Status&(StatusFailed|StatusFailedChild) != 0 {
			node.Status |= StatusFailedChild
		}
	}

	bi.seq++
	node.Seq = bi.seq

	bi.nodes = append(bi.nodes, &node)
	bi.byHash[hash] = node.ID
	return &node
}

// Lookup returns the node for a block hash.
func (bi *BlockIndex) Lookup(hash database.Hash) *BlockNode {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	id, exists := bi.byHash[hash]
	if !exists {
		return nil
	}
	return bi.nodes[id-1]
}

// Node returns the node for an arena id.
func (bi *BlockIndex) Node(id BlockIndexID) *BlockNode {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	if id < 1 || int(id) > len(bi.nodes) {
		return nil
	}
	return bi.nodes[id-1]
}

// Status returns the node's current status flags.
func (bi *BlockIndex) Status(id BlockIndexID) BlockStatus {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	return bi.nodes[id-1].Status
}

// SetStatus ors the specified flags into the node's status.
func (bi *BlockIndex) SetStatus(id BlockIndexID, flags BlockStatus) {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	bi.nodes[id-1].Status |= flags
}

// ClearStatus removes the specified flags from the node's status.
func (bi *BlockIndex) ClearStatus(id BlockIndexID, flags BlockStatus) {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	bi.nodes[id-1].Status &^= flags
}

// MarkSubtreeFailed marks the node failed and all its descendants as
// having a failed ancestor.
func (bi *BlockIndex) MarkSubtreeFailed(id BlockIndexID, contextFree bool) {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	bi.nodes[id-1].Status |= StatusFailed
	if contextFree {
		bi.nodes[id-1].Status |= StatusContextFreeInvalid
	}

	// The arena is append-only and parents precede children, so one
	// forward sweep reaches every descendant.
	tainted := map[BlockIndexID]bool{id: true}
	for _, node := range bi.nodes {
		if tainted[node.Parent] {
			node.Status |= StatusFailedChild
			tainted[node.ID] = true
		}
	}
}

// ClearFailureFlags removes the Failed and FailedChild flags from every
// node that did not fail a context-free check. This is the startup
// reconsideration pass, healing rejections a prior divergent client may
// have recorded.
func (bi *BlockIndex) ClearFailureFlags() int {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	var cleared int
	for _, node := range bi.nodes {
		if node.Status&StatusContextFreeInvalid != 0 {
			continue
		}
		if node.Status&(StatusFailed|StatusFailedChild) != 0 {
			node.Status &^= StatusFailed | StatusFailedChild
			cleared++
		}
	}
	return cleared
}

// ClearSubtreeFailureFlags clears failure flags on the node and every
// descendant, used by the reconsider-block operation.
func (bi *BlockIndex) ClearSubtreeFailureFlags(id BlockIndexID) {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	cleared := map[BlockIndexID]bool{id: true}
	bi.nodes[id-1].Status &^= StatusFailed | StatusFailedChild | StatusContextFreeInvalid
	for _, node := range bi.nodes {
		if cleared[node.Parent] {
			node.Status &^= StatusFailed | StatusFailedChild
			cleared[node.ID] = true
		}
	}
}

// Candidates returns every node with block data and no failure taint,
// ordered by descending chain work with receipt order breaking ties.
func (bi *BlockIndex) Candidates() []*BlockNode {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	var candidates []*BlockNode
	for _, node := range bi.nodes {
		if node.Status&StatusHasData == 0 {
			continue
		}
		if node.Status&(StatusFailed|StatusFailedChild) != 0 {
			continue
		}
		candidates = append(candidates, node)
	}

	sort.Slice(candidates, func(i, j int) bool {
		switch candidates[i].ChainWork.Cmp(candidates[j].ChainWork) {
		case 1:
			return true
		case -1:
			return false
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	return candidates
}

// Walk calls fn for every node in arena order.
func (bi *BlockIndex) Walk(fn func(node *BlockNode)) {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	for _, node := range bi.nodes {
		fn(node)
	}
}

// Len returns the number of nodes in the index.
func (bi *BlockIndex) Len() int {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	return len(bi.nodes)
}

// =============================================================================

// marshalNode encodes the persisted form of one block index node.
func marshalNode(node *BlockNode) []byte {
	var buf bytes.Buffer
	node.Header.Serialize(&buf)

	var meta [12]byte
	putUint32(meta[0:4], uint32(node.Height))
	putUint32(meta[4:8], uint32(node.Status))
	putUint32(meta[8:12], uint32(node.Seq))
	buf.Write(meta[:])

	return buf.Bytes()
}

// unmarshalNode decodes the persisted form. Parent links and chain work
// are rebuilt from the headers after every entry is loaded.
func unmarshalNode(data []byte) (database.BlockHeader, int32, BlockStatus, int64, error) {
	var header database.BlockHeader
	r := bytes.NewReader(data)
	if err := header.Deserialize(r); err != nil {
		return database.BlockHeader{}, 0, 0, 0, err
	}

	var meta [12]byte
	if _, err := r.Read(meta[:]); err != nil {
		return database.BlockHeader{}, 0, 0, 0, err
	}

	height := int32(getUint32(meta[0:4]))
	status := BlockStatus(getUint32(meta[4:8]))
	seq := int64(getUint32(meta[8:12]))

	return header, height, status, seq, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
