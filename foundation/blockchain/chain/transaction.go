package chain

import (
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/interest"
	"github.com/membercoin/membercoin/foundation/blockchain/mempool"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
)

// SubmitTx validates a loose transaction against the current tip and, if
// it passes, admits it to the mempool. The returned count is the pool
// size after admission.
func (s *State) SubmitTx(tx *database.Tx) (int, error) {
	if tx.IsCoinbase() {
		return 0, Errorf(BadStructure, "coinbase cannot be submitted")
	}
	if err := checkTransaction(tx); err != nil {
		return 0, err
	}

	view, height := s.MempoolView()
	txid := tx.TxID()

	var effectiveIn int64
	checks := make([]func() error, 0, len(tx.TxIn))

	for i, in := range tx.TxIn {
		coin, ok, err := view.GetCoin(in.PrevOut)
		if err != nil {
			return 0, Errorf(IoFailure, "reading coin %s: %s", in.PrevOut, err)
		}
		if !ok {
			return 0, Errorf(MissingInputs, "transaction %s input %s", txid, in.PrevOut)
		}
		if coin.IsCoinbase && height-coin.CreationHeight < database.CoinbaseMaturity {
			return 0, Errorf(BadConservation, "premature spend of coinbase %s", in.PrevOut)
		}

		effectiveIn += interest.ValueWithInterest(coin.Out, coin.CreationHeight, height)
		if !database.MoneyRange(effectiveIn) {
			return 0, Errorf(BadConservation, "input value out of range")
		}

		inputIdx := i
		prevScript := coin.Out.ScriptPubKey
		checks = append(checks, func() error {
			checker := script.Checker{
				Tx:       tx,
				InputIdx: inputIdx,
				SigCache: s.sigCache,
			}
			return checker.VerifyInput(prevScript)
		})
	}

	faceOut, err := tx.ValueOut()
	if err != nil {
		return 0, Errorf(BadStructure, "%s", err)
	}
	if effectiveIn < faceOut {
		return 0, Errorf(BadConservation, "transaction %s spends %d with only %d effective in", txid, faceOut, effectiveIn)
	}

	if err := runChecksSerial(checks); err != nil {
		return 0, Errorf(BadScript, "transaction %s: %s", txid, err)
	}

	fee := effectiveIn - faceOut
	size := tx.SerializeSize()

	count, err := s.mempool.Upsert(mempool.PoolTx{
		Tx:      tx,
		TxID:    txid,
		Fee:     fee,
		Size:    size,
		FeeRate: fee * 1000 / int64(size),
	})
	if err != nil {
		return 0, Errorf(MissingInputs, "conflicts with pooled transaction")
	}

	s.ev("chain: SubmitTx: accepted tx[%s] fee[%d]", txid, fee)
	return count, nil
}

// Mempool exposes the pool of loose transactions.
func (s *State) Mempool() *mempool.Mempool {
	return s.mempool
}
