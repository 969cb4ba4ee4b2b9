package database

import (
	"bytes"
	"io"
)

// Coin is the persisted UTXO record: one unspent output together with the
// height of the block that created it and whether that block's coinbase
// produced it. The creation height anchors interest accrual for the
// output's entire lifetime.
type Coin struct {
	Out            TxOut `json:"out"`
	CreationHeight int32 `json:"creation_height"`
	IsCoinbase     bool  `json:"is_coinbase"`
}

// Serialize writes the coin in its database encoding.
func (c Coin) Serialize(w io.Writer) error {
	if err := c.Out.Serialize(w); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(c.CreationHeight)); err != nil {
		return err
	}

	flag := []byte{0x00}
	if c.IsCoinbase {
		flag[0] = 0x01
	}
	_, err := w.Write(flag)
	return err
}

// Deserialize reads the coin in its database encoding.
func (c *Coin) Deserialize(r io.Reader) error {
	if err := c.Out.Deserialize(r); err != nil {
		return err
	}

	h, err := readUint32(r)
	if err != nil {
		return err
	}
	c.CreationHeight = int32(h)

	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return err
	}
	c.IsCoinbase = flag[0] != 0
	return nil
}

// Bytes returns the serialized coin.
func (c Coin) Bytes() []byte {
	var buf bytes.Buffer
	c.Serialize(&buf)
	return buf.Bytes()
}

// ToCoin decodes a coin from its database encoding.
func ToCoin(data []byte) (Coin, error) {
	var c Coin
	err := c.Deserialize(bytes.NewReader(data))
	return c, err
}
