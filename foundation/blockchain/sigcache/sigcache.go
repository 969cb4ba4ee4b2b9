// Package sigcache maintains a bounded set of signature triples that have
// already been verified, so a signature seen in the mempool isn't verified
// again when its transaction shows up in a block. Reads far outnumber
// writes, so the set is sharded with read locks on the hot path, and
// eviction drops one arbitrary entry from a full shard rather than
// maintaining strict recency. The design tolerates a rare redundant verification instead of
// serializing every validation thread through one lock.
package sigcache

import (
	"sync"

	"github.com/membercoin/membercoin/foundation/blockchain/signature"
)

// shardCount must be a power of two.
const shardCount = 64

// entryBytes approximates the memory cost of one cache entry.
const entryBytes = 32 + 16

// DefaultMaxBytes is the default byte budget for the cache.
const DefaultMaxBytes = 32 << 20

type shard struct {
	mu      sync.RWMutex
	entries map[[32]byte]struct{}
}

// Cache is a bounded set of verified (sighash, pubkey, sig) triples.
type Cache struct {
	shards      [shardCount]shard
	maxPerShard int
}

// New constructs a signature cache bounded by the specified byte budget.
func New(maxBytes int) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	c := Cache{
		maxPerShard: maxBytes / entryBytes / shardCount,
	}
	if c.maxPerShard < 1 {
		c.maxPerShard = 1
	}

	for i := range c.shards {
		c.shards[i].entries = make(map[[32]byte]struct{})
	}
	return &c
}

// key folds the triple into the cache key.
func key(sighash [32]byte, pubKey []byte, sig []byte) [32]byte {
	data := make([]byte, 0, 32+len(pubKey)+len(sig))
	data = append(data, sighash[:]...)
	data = append(data, pubKey...)
	data = append(data, sig...)
	return signature.Hash256d(data)
}

// Contains reports whether the triple has been verified before.
func (c *Cache) Contains(sighash [32]byte, pubKey []byte, sig []byte) bool {
	k := key(sighash, pubKey, sig)
	s := &c.shards[k[0]&(shardCount-1)]

	s.mu.RLock()
	_, ok := s.entries[k]
	s.mu.RUnlock()
	return ok
}

// Add records a verified triple, evicting sampled entries once the shard
// is over budget.
func (c *Cache) Add(sighash [32]byte, pubKey []byte, sig []byte) {
	k := key(sighash, pubKey, sig)
	s := &c.shards[k[0]&(shardCount-1)]

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= c.maxPerShard {
		// Map iteration order is effectively a random sample.
		for victim := range s.entries {
			delete(s.entries, victim)
			break
		}
	}

	s.entries[k] = struct{}{}
}

// Len returns the number of cached triples, for tests and stats.
func (c *Cache) Len() int {
	var n int
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
