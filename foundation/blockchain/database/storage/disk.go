// Package storage implements the persistence backends for the blockchain:
// a file-per-block store, a key-value block database, and the chainstate
// database holding the UTXO set and block index.
package storage

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// Disk represents the sequential-files storage mode: every block is written
// to its own file, named by block hash. This implements the database.Store
// interface.
type Disk struct {
	dbPath string
}

// NewDisk constructs a Disk store rooted at the specified path.
func NewDisk(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// blockFile is the on-disk form: the wire bytes hex armored inside a small
// JSON document so the files remain inspectable.
type blockFile struct {
	Hash string `json:"hash"`
	Data string `json:"data"`
}

// WriteBlock stores a block in its own file named by its hash.
func (d *Disk) WriteBlock(b *database.Block) error {
	doc := blockFile{
		Hash: b.Hash().String(),
		Data: hex.EncodeToString(b.Bytes()),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(d.blockPath(b.Hash()), os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	return nil
}

// ReadBlock locates and returns the specified block by hash.
func (d *Disk) ReadBlock(hash database.Hash) (*database.Block, error) {
	f, err := os.Open(d.blockPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, database.ErrBlockNotFound
		}
		return nil, err
	}
	defer f.Close()

	var doc blockFile
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(doc.Data)
	if err != nil {
		return nil, err
	}

	var block database.Block
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	if block.Hash() != hash {
		return nil, fmt.Errorf("block file %s holds block %s", hash, block.Hash())
	}

	return &block, nil
}

// HasBlock reports whether the block exists in the store.
func (d *Disk) HasBlock(hash database.Hash) bool {
	_, err := os.Stat(d.blockPath(hash))
	return err == nil
}

// WriteUndo stores the undo data for a block alongside the block file.
func (d *Disk) WriteUndo(hash database.Hash, undo database.BlockUndo) error {
	return os.WriteFile(d.undoPath(hash), []byte(hex.EncodeToString(undo.Bytes())), 0600)
}

// ReadUndo returns the undo data for a block.
func (d *Disk) ReadUndo(hash database.Hash) (database.BlockUndo, error) {
	data, err := os.ReadFile(d.undoPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.BlockUndo{}, database.ErrBlockNotFound
		}
		return database.BlockUndo{}, err
	}

	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return database.BlockUndo{}, err
	}

	return database.ToBlockUndo(raw)
}

// PruneBlock removes a block's files from disk. Undo data needed to
// disconnect back to the last UTXO snapshot is the caller's accounting.
func (d *Disk) PruneBlock(hash database.Hash) error {
	if err := os.Remove(d.blockPath(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(d.undoPath(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// blockPath forms the path to the specified block file.
func (d *Disk) blockPath(hash database.Hash) string {
	return filepath.Join(d.dbPath, fmt.Sprintf("%s.json", hash))
}

// undoPath forms the path to the specified undo file.
func (d *Disk) undoPath(hash database.Hash) string {
	return filepath.Join(d.dbPath, fmt.Sprintf("%s.undo", hash))
}
