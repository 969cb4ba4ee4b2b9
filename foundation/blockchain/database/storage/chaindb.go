package storage

import (
	"bytes"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// Key prefixes inside the chainstate database.
var (
	prefixCoin    = []byte("C")
	prefixIndex   = []byte("b")
	prefixTxIndex = []byte("t")
	keyTip        = []byte("T")
)

// ChainDB is the chainstate database: the UTXO base store the coins cache
// flushes into, the persisted block index, and the optional transaction
// index. It implements database.CoinWriter.
type ChainDB struct {
	db *leveldb.DB
}

// OpenChainDB opens, or creates, the chainstate database at the specified
// path.
func OpenChainDB(dbPath string) (*ChainDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}

	return &ChainDB{db: db}, nil
}

// Close closes the underlying database.
func (cdb *ChainDB) Close() error {
	return cdb.db.Close()
}

// =============================================================================
// UTXO base store

// GetCoin returns the unspent coin at the outpoint if one exists.
func (cdb *ChainDB) GetCoin(op database.OutPoint) (database.Coin, bool, error) {
	data, err := cdb.db.Get(coinKey(op), nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return database.Coin{}, false, nil
		}
		return database.Coin{}, false, err
	}

	coin, err := database.ToCoin(data)
	if err != nil {
		return database.Coin{}, false, err
	}
	return coin, true, nil
}

// BatchWriteCoins applies a batch of coin mutations atomically. A nil coin
// deletes the entry.
func (cdb *ChainDB) BatchWriteCoins(coins map[database.OutPoint]*database.Coin) error {
	batch := new(leveldb.Batch)
	for op, coin := range coins {
		if coin == nil {
			batch.Delete(coinKey(op))
			continue
		}
		batch.Put(coinKey(op), coin.Bytes())
	}

	return cdb.db.Write(batch, nil)
}

// =============================================================================
// Block index

// PutIndexEntry persists one serialized block-index record keyed by block
// hash.
func (cdb *ChainDB) PutIndexEntry(hash database.Hash, data []byte) error {
	return cdb.db.Put(indexKey(hash), data, nil)
}

// IndexEntries walks every persisted block-index record.
func (cdb *ChainDB) IndexEntries(fn func(hash database.Hash, data []byte) error) error {
	iter := cdb.db.NewIterator(util.BytesPrefix(prefixIndex), nil)
	defer iter.Release()

	for iter.Next() {
		var hash database.Hash
		copy(hash[:], iter.Key()[len(prefixIndex):])

		data := make([]byte, len(iter.Value()))
		copy(data, iter.Value())

		if err := fn(hash, data); err != nil {
			return err
		}
	}

	return iter.Error()
}

// =============================================================================
// Tip marker

// PutTip records the hash of the active chain tip.
func (cdb *ChainDB) PutTip(hash database.Hash) error {
	return cdb.db.Put(keyTip, hash[:], nil)
}

// GetTip returns the recorded active chain tip, if any.
func (cdb *ChainDB) GetTip() (database.Hash, bool, error) {
	data, err := cdb.db.Get(keyTip, nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return database.Hash{}, false, nil
		}
		return database.Hash{}, false, err
	}

	var hash database.Hash
	copy(hash[:], data)
	return hash, true, nil
}

// =============================================================================
// Transaction index

// PutTxIndex records which block contains the specified transaction.
func (cdb *ChainDB) PutTxIndex(txid database.Hash, blockHash database.Hash) error {
	return cdb.db.Put(txIndexKey(txid), blockHash[:], nil)
}

// GetTxIndex returns the hash of the block containing the transaction.
func (cdb *ChainDB) GetTxIndex(txid database.Hash) (database.Hash, bool, error) {
	data, err := cdb.db.Get(txIndexKey(txid), nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return database.Hash{}, false, nil
		}
		return database.Hash{}, false, err
	}

	var hash database.Hash
	copy(hash[:], data)
	return hash, true, nil
}

// =============================================================================

func coinKey(op database.OutPoint) []byte {
	var buf bytes.Buffer
	buf.Write(prefixCoin)
	buf.Write(op.Bytes())
	return buf.Bytes()
}

func indexKey(hash database.Hash) []byte {
	return append(append([]byte{}, prefixIndex...), hash[:]...)
}

func txIndexKey(txid database.Hash) []byte {
	return append(append([]byte{}, prefixTxIndex...), txid[:]...)
}
