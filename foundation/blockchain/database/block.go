package database

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/membercoin/membercoin/foundation/blockchain/merkle"
	"github.com/membercoin/membercoin/foundation/blockchain/signature"
)

// HeaderSize is the size of the canonical block header serialization.
const HeaderSize = 80

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Version    int32  `json:"version"`
	PrevHash   Hash   `json:"prev_hash"`
	MerkleRoot Hash   `json:"merkle_root"`
	Time       uint32 `json:"time"`
	Bits       uint32 `json:"bits"`
	Nonce      uint32 `json:"nonce"`
}

// Serialize writes the 80 byte canonical header encoding.
func (bh BlockHeader) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(bh.Version)); err != nil {
		return err
	}
	if err := writeHash(w, bh.PrevHash); err != nil {
		return err
	}
	if err := writeHash(w, bh.MerkleRoot); err != nil {
		return err
	}
	if err := writeUint32(w, bh.Time); err != nil {
		return err
	}
	if err := writeUint32(w, bh.Bits); err != nil {
		return err
	}
	return writeUint32(w, bh.Nonce)
}

// Deserialize reads the 80 byte canonical header encoding.
func (bh *BlockHeader) Deserialize(r io.Reader) error {
	v, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.Version = int32(v)

	if bh.PrevHash, err = readHash(r); err != nil {
		return err
	}
	if bh.MerkleRoot, err = readHash(r); err != nil {
		return err
	}
	if bh.Time, err = readUint32(r); err != nil {
		return err
	}
	if bh.Bits, err = readUint32(r); err != nil {
		return err
	}
	bh.Nonce, err = readUint32(r)
	return err
}

// Bytes returns the 80 byte canonical header serialization.
func (bh BlockHeader) Bytes() []byte {
	var buf bytes.Buffer
	bh.Serialize(&buf)
	return buf.Bytes()
}

// Hash returns the consensus block hash: Blake3 over the 80 canonical
// header bytes.
func (bh BlockHeader) Hash() Hash {
	return Hash(signature.HashBlake3(bh.Bytes()))
}

// MidHash returns the double SHA-256 over the 80 canonical header bytes.
// The mining side uses it to seed the pattern search.
func (bh BlockHeader) MidHash() Hash {
	return Hash(signature.Hash256d(bh.Bytes()))
}

// String implements the fmt.Stringer interface.
func (bh BlockHeader) String() string {
	return fmt.Sprintf("block(hash=%s, ver=%d, prev=%s, merkle=%s, time=%d, bits=%08x, nonce=%d)",
		bh.Hash(), bh.Version, bh.PrevHash, bh.MerkleRoot, bh.Time, bh.Bits, bh.Nonce)
}

// =============================================================================

// Block represents a group of transactions batched together. The first
// transaction is the coinbase.
type Block struct {
	Header BlockHeader `json:"header"`
	Txs    []*Tx       `json:"txs"`
}

// Serialize writes the block in wire format.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(b.Txs))); err != nil {
		return err
	}
	for _, tx := range b.Txs {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the block in wire format.
func (b *Block) Deserialize(r io.Reader) error {
	if err := b.Header.Deserialize(r); err != nil {
		return err
	}

	n, err := readVarInt(r)
	if err != nil {
		return err
	}
	if n > maxTxInputs {
		return errors.New("too many transactions")
	}

	b.Txs = make([]*Tx, n)
	for i := range b.Txs {
		b.Txs[i] = new(Tx)
		if err := b.Txs[i].Deserialize(r); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the canonical block serialization.
func (b *Block) Bytes() []byte {
	var buf bytes.Buffer
	b.Serialize(&buf)
	return buf.Bytes()
}

// SerializeSize returns the serialized block size in bytes.
func (b *Block) SerializeSize() int {
	return len(b.Bytes())
}

// Hash returns the consensus hash of the block's header.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// ComputeMerkleRoot constructs a merkle tree from the block's transactions
// and returns its root.
func (b *Block) ComputeMerkleRoot() (Hash, error) {
	if len(b.Txs) == 0 {
		return Hash{}, errors.New("cannot compute merkle root of an empty block")
	}

	tree, err := merkle.NewTree(b.Txs)
	if err != nil {
		return Hash{}, err
	}

	var root Hash
	copy(root[:], tree.MerkleRoot)
	return root, nil
}

// Height returns the block's height as encoded in its coinbase scriptSig.
func (b *Block) Height() (int32, error) {
	if len(b.Txs) == 0 || !b.Txs[0].IsCoinbase() {
		return 0, errors.New("block has no coinbase")
	}

	h, err := ParseScriptNum(b.Txs[0].TxIn[0].ScriptSig)
	if err != nil {
		return 0, fmt.Errorf("invalid coinbase height: %w", err)
	}
	if h < 0 {
		return 0, errors.New("negative coinbase height")
	}
	return int32(h), nil
}
