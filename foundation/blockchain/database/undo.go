package database

import (
	"bytes"
	"errors"
	"io"
)

// TxUndo holds the coins a single transaction spent, in input order, so a
// disconnect can resurrect them.
type TxUndo struct {
	Spent []Coin `json:"spent"`
}

// BlockUndo holds the undo records for every non-coinbase transaction of a
// block, in block order.
type BlockUndo struct {
	Txs []TxUndo `json:"txs"`
}

// Serialize writes the undo data in its database encoding.
func (bu BlockUndo) Serialize(w io.Writer) error {
	if err := writeVarInt(w, uint64(len(bu.Txs))); err != nil {
		return err
	}
	for _, txu := range bu.Txs {
		if err := writeVarInt(w, uint64(len(txu.Spent))); err != nil {
			return err
		}
		for _, coin := range txu.Spent {
			if err := coin.Serialize(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize reads the undo data in its database encoding.
func (bu *BlockUndo) Deserialize(r io.Reader) error {
	n, err := readVarInt(r)
	if err != nil {
		return err
	}
	if n > maxTxInputs {
		return errors.New("too many undo records")
	}

	bu.Txs = make([]TxUndo, n)
	for i := range bu.Txs {
		m, err := readVarInt(r)
		if err != nil {
			return err
		}
		if m > maxTxInputs {
			return errors.New("too many spent coins in undo record")
		}

		bu.Txs[i].Spent = make([]Coin, m)
		for j := range bu.Txs[i].Spent {
			if err := bu.Txs[i].Spent[j].Deserialize(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Bytes returns the serialized undo data.
func (bu BlockUndo) Bytes() []byte {
	var buf bytes.Buffer
	bu.Serialize(&buf)
	return buf.Bytes()
}

// ToBlockUndo decodes undo data from its database encoding.
func ToBlockUndo(data []byte) (BlockUndo, error) {
	var bu BlockUndo
	err := bu.Deserialize(bytes.NewReader(data))
	return bu, err
}
