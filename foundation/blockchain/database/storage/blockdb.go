package storage

import (
	"bytes"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// Key prefixes inside the block database.
var (
	prefixBlock = []byte("B")
	prefixUndo  = []byte("U")
)

// blockCacheEntries bounds the decoded-block LRU in front of the database.
const blockCacheEntries = 64

// BlockDB represents the block_db storage mode: blocks and undo data in a
// single key-value database. This implements the database.Store interface.
type BlockDB struct {
	db    *leveldb.DB
	cache *lru.Cache[database.Hash, *database.Block]
}

// NewBlockDB opens, or creates, the block database at the specified path.
func NewBlockDB(dbPath string) (*BlockDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[database.Hash, *database.Block](blockCacheEntries)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BlockDB{db: db, cache: cache}, nil
}

// Close closes the underlying database.
func (bdb *BlockDB) Close() error {
	return bdb.db.Close()
}

// WriteBlock stores a block under its hash.
func (bdb *BlockDB) WriteBlock(b *database.Block) error {
	hash := b.Hash()
	if err := bdb.db.Put(blockKey(hash), b.Bytes(), nil); err != nil {
		return err
	}

	bdb.cache.Add(hash, b)
	return nil
}

// ReadBlock locates and returns the specified block by hash.
func (bdb *BlockDB) ReadBlock(hash database.Hash) (*database.Block, error) {
	if block, ok := bdb.cache.Get(hash); ok {
		return block, nil
	}

	data, err := bdb.db.Get(blockKey(hash), nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return nil, database.ErrBlockNotFound
		}
		return nil, err
	}

	var block database.Block
	if err := block.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	bdb.cache.Add(hash, &block)
	return &block, nil
}

// HasBlock reports whether the block exists in the store.
func (bdb *BlockDB) HasBlock(hash database.Hash) bool {
	if bdb.cache.Contains(hash) {
		return true
	}

	ok, err := bdb.db.Has(blockKey(hash), nil)
	return err == nil && ok
}

// WriteUndo stores the undo data for a block.
func (bdb *BlockDB) WriteUndo(hash database.Hash, undo database.BlockUndo) error {
	return bdb.db.Put(undoKey(hash), undo.Bytes(), nil)
}

// ReadUndo returns the undo data for a block.
func (bdb *BlockDB) ReadUndo(hash database.Hash) (database.BlockUndo, error) {
	data, err := bdb.db.Get(undoKey(hash), nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return database.BlockUndo{}, database.ErrBlockNotFound
		}
		return database.BlockUndo{}, err
	}

	return database.ToBlockUndo(data)
}

// PruneBlock removes a block and its undo data from the database.
func (bdb *BlockDB) PruneBlock(hash database.Hash) error {
	batch := new(leveldb.Batch)
	batch.Delete(blockKey(hash))
	batch.Delete(undoKey(hash))

	bdb.cache.Remove(hash)
	return bdb.db.Write(batch, nil)
}

func blockKey(hash database.Hash) []byte {
	return append(prefixBlock, hash[:]...)
}

func undoKey(hash database.Hash) []byte {
	return append(prefixUndo, hash[:]...)
}
