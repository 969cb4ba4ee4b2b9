package database

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/membercoin/membercoin/foundation/blockchain/signature"
)

// Limits applied while decoding so corrupt data can't blow up memory. The
// script limit matches the largest script the consensus rules will accept.
const (
	maxScriptLen = 10_000
	maxTxInputs  = 1 << 20
)

// MinTxSize is the smallest serialized transaction, in bytes, the consensus
// rules accept for a non-coinbase transaction.
const MinTxSize = 100

// SighashAll is the only signature hash type the consensus subset supports.
const SighashAll = 0x01

// =============================================================================

// OutPoint uniquely names one output of one transaction.
type OutPoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsNull reports whether this is the null outpoint only coinbase inputs
// carry.
func (op OutPoint) IsNull() bool {
	return op.TxID.IsZero() && op.Index == 0xffffffff
}

// NullOutPoint returns the outpoint a coinbase input carries.
func NullOutPoint() OutPoint {
	return OutPoint{Index: 0xffffffff}
}

// String implements the fmt.Stringer interface.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// Serialize writes the txid:32 | index:u32le encoding.
func (op OutPoint) Serialize(w io.Writer) error {
	if err := writeHash(w, op.TxID); err != nil {
		return err
	}
	return writeUint32(w, op.Index)
}

// Deserialize reads the txid:32 | index:u32le encoding.
func (op *OutPoint) Deserialize(r io.Reader) error {
	var err error
	if op.TxID, err = readHash(r); err != nil {
		return err
	}
	op.Index, err = readUint32(r)
	return err
}

// Bytes returns the serialized outpoint, used as the UTXO database key.
func (op OutPoint) Bytes() []byte {
	var buf bytes.Buffer
	op.Serialize(&buf)
	return buf.Bytes()
}

// =============================================================================

// TxIn references an output of a prior transaction for spending.
type TxIn struct {
	PrevOut   OutPoint `json:"prev_out"`
	ScriptSig []byte   `json:"script_sig"`
	Sequence  uint32   `json:"sequence"`
}

// Serialize writes the input in wire format.
func (in TxIn) Serialize(w io.Writer) error {
	if err := in.PrevOut.Serialize(w); err != nil {
		return err
	}
	if err := writeVarBytes(w, in.ScriptSig); err != nil {
		return err
	}
	return writeUint32(w, in.Sequence)
}

// Deserialize reads the input in wire format.
func (in *TxIn) Deserialize(r io.Reader) error {
	if err := in.PrevOut.Deserialize(r); err != nil {
		return err
	}
	var err error
	if in.ScriptSig, err = readVarBytes(r, maxScriptLen); err != nil {
		return err
	}
	in.Sequence, err = readUint32(r)
	return err
}

// =============================================================================

// TxOut carries a face value in satoshi and the locking script. The
// effective value of an output at a later height is derived from the face
// value by the interest engine, never stored.
type TxOut struct {
	Value        int64  `json:"value"`
	ScriptPubKey []byte `json:"script_pub_key"`
}

// Serialize writes the output in wire format.
func (out TxOut) Serialize(w io.Writer) error {
	if err := writeUint64(w, uint64(out.Value)); err != nil {
		return err
	}
	return writeVarBytes(w, out.ScriptPubKey)
}

// Deserialize reads the output in wire format.
func (out *TxOut) Deserialize(r io.Reader) error {
	v, err := readUint64(r)
	if err != nil {
		return err
	}
	out.Value = int64(v)
	out.ScriptPubKey, err = readVarBytes(r, maxScriptLen)
	return err
}

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	Version  int32   `json:"version"`
	TxIn     []TxIn  `json:"vin"`
	TxOut    []TxOut `json:"vout"`
	LockTime uint32  `json:"lock_time"`
}

// IsCoinbase reports whether the transaction is a coinbase: exactly one
// input whose outpoint is null.
func (tx *Tx) IsCoinbase() bool {
	return len(tx.TxIn) == 1 && tx.TxIn[0].PrevOut.IsNull()
}

// Serialize writes the transaction in the classic non-witness wire format.
func (tx *Tx) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(tx.Version)); err != nil {
		return err
	}

	if err := writeVarInt(w, uint64(len(tx.TxIn))); err != nil {
		return err
	}
	for _, in := range tx.TxIn {
		if err := in.Serialize(w); err != nil {
			return err
		}
	}

	if err := writeVarInt(w, uint64(len(tx.TxOut))); err != nil {
		return err
	}
	for _, out := range tx.TxOut {
		if err := out.Serialize(w); err != nil {
			return err
		}
	}

	return writeUint32(w, tx.LockTime)
}

// Deserialize reads the transaction in the classic non-witness wire format.
func (tx *Tx) Deserialize(r io.Reader) error {
	v, err := readUint32(r)
	if err != nil {
		return err
	}
	tx.Version = int32(v)

	nIn, err := readVarInt(r)
	if err != nil {
		return err
	}
	if nIn > maxTxInputs {
		return errors.New("too many transaction inputs")
	}
	tx.TxIn = make([]TxIn, nIn)
	for i := range tx.TxIn {
		if err := tx.TxIn[i].Deserialize(r); err != nil {
			return err
		}
	}

	nOut, err := readVarInt(r)
	if err != nil {
		return err
	}
	if nOut > maxTxInputs {
		return errors.New("too many transaction outputs")
	}
	tx.TxOut = make([]TxOut, nOut)
	for i := range tx.TxOut {
		if err := tx.TxOut[i].Deserialize(r); err != nil {
			return err
		}
	}

	tx.LockTime, err = readUint32(r)
	return err
}

// Bytes returns the canonical serialization of the transaction.
func (tx *Tx) Bytes() []byte {
	var buf bytes.Buffer
	tx.Serialize(&buf)
	return buf.Bytes()
}

// SerializeSize returns the size of the canonical serialization in bytes.
func (tx *Tx) SerializeSize() int {
	return len(tx.Bytes())
}

// TxID returns the double SHA-256 of the canonical serialization.
func (tx *Tx) TxID() Hash {
	return Hash(signature.Hash256d(tx.Bytes()))
}

// Hash implements the merkle Hashable interface, providing the leaf bytes
// for the block merkle tree.
func (tx *Tx) Hash() ([]byte, error) {
	id := tx.TxID()
	return id[:], nil
}

// Equals implements the merkle Hashable interface.
func (tx *Tx) Equals(other *Tx) bool {
	return tx.TxID() == other.TxID()
}

// ValueOut returns the sum of the face values of all outputs, with
// range checking.
func (tx *Tx) ValueOut() (int64, error) {
	var total int64
	for _, out := range tx.TxOut {
		if !MoneyRange(out.Value) {
			return 0, errors.New("output value out of range")
		}
		total += out.Value
		if !MoneyRange(total) {
			return 0, errors.New("total output value out of range")
		}
	}
	return total, nil
}

// =============================================================================

// SignatureHash computes the digest an input's signature commits to: the
// transaction with every scriptSig emptied, the signed input's script
// replaced by the previous output's scriptPubKey, and the hash type
// appended.
func (tx *Tx) SignatureHash(inputIdx int, prevScript []byte, hashType uint32) ([32]byte, error) {
	if inputIdx >= len(tx.TxIn) {
		return [32]byte{}, errors.New("input index out of range")
	}

	cp := Tx{
		Version:  tx.Version,
		TxIn:     make([]TxIn, len(tx.TxIn)),
		TxOut:    tx.TxOut,
		LockTime: tx.LockTime,
	}
	for i, in := range tx.TxIn {
		cp.TxIn[i] = TxIn{PrevOut: in.PrevOut, Sequence: in.Sequence}
	}
	cp.TxIn[inputIdx].ScriptSig = prevScript

	var buf bytes.Buffer
	if err := cp.Serialize(&buf); err != nil {
		return [32]byte{}, err
	}
	var ht [4]byte
	binary.LittleEndian.PutUint32(ht[:], hashType)
	buf.Write(ht[:])

	return signature.Hash256d(buf.Bytes()), nil
}

// =============================================================================

// ScriptNum encodes a small integer as a minimally encoded script number,
// used to place the block height in the coinbase scriptSig.
func ScriptNum(v int64) []byte {
	if v == 0 {
		return []byte{0x00}
	}

	neg := v < 0
	if neg {
		v = -v
	}

	var num []byte
	for v > 0 {
		num = append(num, byte(v&0xff))
		v >>= 8
	}

	// If the most significant byte has its high bit set, an extra byte is
	// required to hold the sign.
	if num[len(num)-1]&0x80 != 0 {
		extra := byte(0x00)
		if neg {
			extra = 0x80
		}
		num = append(num, extra)
	} else if neg {
		num[len(num)-1] |= 0x80
	}

	return append([]byte{byte(len(num))}, num...)
}

// ParseScriptNum decodes a minimally encoded script number from the front of
// the coinbase scriptSig and returns its value.
func ParseScriptNum(script []byte) (int64, error) {
	if len(script) == 0 {
		return 0, errors.New("empty script")
	}

	numLen := int(script[0])
	if numLen == 0 {
		return 0, nil
	}
	if numLen > 8 || len(script)-1 < numLen {
		return 0, errors.New("invalid script number")
	}

	num := script[1 : 1+numLen]
	var v int64
	for i := 0; i < numLen; i++ {
		b := num[i]
		if i == numLen-1 {
			b &= 0x7f
		}
		v |= int64(b) << (8 * i)
	}
	if num[numLen-1]&0x80 != 0 {
		v = -v
	}

	return v, nil
}
