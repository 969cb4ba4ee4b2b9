package chain

import (
	"sync/atomic"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/interest"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
)

// connectBlock applies a block's transactions to the specified coins view
// at the specified height. It enforces conservation of effective value,
// coinbase maturity, the sigchecks limit, and script validity, and
// returns the undo data needed to reverse the block. The view is only
// mutated on the success path the caller will commit; on error the caller
// discards the view.
//
// The cancel function is polled between transactions, per input, and at
// every signature check. The runChecks function executes a transaction's
// script checks; the serial runner executes inline and the validation
// workers substitute the script-check pool.
func (s *State) connectBlock(block *database.Block, height int32, view *database.CoinsCache, cancel func() bool, runChecks CheckRunner) (database.BlockUndo, error) {
	if cancel == nil {
		cancel = func() bool { return false }
	}
	if runChecks == nil {
		runChecks = runChecksSerial
	}

	blockHeight, err := block.Height()
	if err != nil {
		return database.BlockUndo{}, Errorf(BadStructure, "%s", err)
	}
	if blockHeight != height {
		return database.BlockUndo{}, Errorf(BadStructure, "coinbase height %d, exp %d", blockHeight, height)
	}

	if err := s.checkTxOrdering(block, height); err != nil {
		return database.BlockUndo{}, err
	}

	ctor := height >= s.params.CTORActivationHeight

	// Under canonical ordering every output exists before any input is
	// looked up, so within-block forward references are legal. Before
	// activation the block must be topological and outputs appear as
	// their transaction is processed.
	if ctor {
		for i, tx := range block.Txs {
			if err := addOutputs(view, tx, height, i == 0); err != nil {
				return database.BlockUndo{}, err
			}
		}
	} else {
		if err := addOutputs(view, block.Txs[0], height, true); err != nil {
			return database.BlockUndo{}, err
		}
	}

	var sigChecks int64
	var feeTotal int64

	undo := database.BlockUndo{Txs: make([]database.TxUndo, 0, len(block.Txs)-1)}

	for _, tx := range block.Txs[1:] {
		if cancel() {
			return database.BlockUndo{}, Errorf(Canceled, "connect canceled")
		}

		txUndo, fee, err := s.connectTransaction(tx, height, view, cancel, runChecks, &sigChecks)
		if err != nil {
			return database.BlockUndo{}, err
		}

		feeTotal += fee
		if !database.MoneyRange(feeTotal) {
			return database.BlockUndo{}, Errorf(BadConservation, "accumulated fees out of range")
		}

		undo.Txs = append(undo.Txs, txUndo)

		if !ctor {
			if err := addOutputs(view, tx, height, false); err != nil {
				return database.BlockUndo{}, err
			}
		}
	}

	maxSigChecks := int64(genesis.MaxBlockSigChecksCount(s.params.ExcessiveBlockSize))
	if sigChecks > maxSigChecks {
		return database.BlockUndo{}, Errorf(BadStructure, "block executed %d sigchecks, limit %d", sigChecks, maxSigChecks)
	}

	// The coinbase may claim the height's subsidy plus the fees the block
	// collects. Any deficit is burned.
	coinbaseOut, err := block.Txs[0].ValueOut()
	if err != nil {
		return database.BlockUndo{}, Errorf(BadStructure, "%s", err)
	}
	if coinbaseOut > s.params.AllowedSubsidy(height)+feeTotal {
		return database.BlockUndo{}, Errorf(BadConservation, "coinbase claims %d, allowed %d", coinbaseOut, s.params.AllowedSubsidy(height)+feeTotal)
	}

	return undo, nil
}

// connectTransaction spends one transaction's inputs from the view and
// returns its undo record and fee.
func (s *State) connectTransaction(tx *database.Tx, height int32, view *database.CoinsCache, cancel func() bool, runChecks CheckRunner, sigChecks *int64) (database.TxUndo, int64, error) {
	txid := tx.TxID()

	var effectiveIn int64
	txUndo := database.TxUndo{Spent: make([]database.Coin, 0, len(tx.TxIn))}
	checks := make([]func() error, 0, len(tx.TxIn))

	for i, in := range tx.TxIn {
		if cancel() {
			return database.TxUndo{}, 0, Errorf(Canceled, "connect canceled")
		}

		coin, ok, err := view.GetCoin(in.PrevOut)
		if err != nil {
			return database.TxUndo{}, 0, Errorf(IoFailure, "reading coin %s: %s", in.PrevOut, err)
		}
		if !ok {
			return database.TxUndo{}, 0, Errorf(MissingInputs, "transaction %s input %s", txid, in.PrevOut)
		}

		if coin.IsCoinbase && height-coin.CreationHeight < database.CoinbaseMaturity {
			return database.TxUndo{}, 0, Errorf(BadConservation, "premature spend of coinbase %s at depth %d", in.PrevOut, height-coin.CreationHeight)
		}

		value := interest.ValueWithInterest(coin.Out, coin.CreationHeight, height)
		effectiveIn += value
		if !database.MoneyRange(effectiveIn) {
			return database.TxUndo{}, 0, Errorf(BadConservation, "input value out of range in %s", txid)
		}

		inputIdx := i
		prevScript := coin.Out.ScriptPubKey
		checks = append(checks, func() error {
			checker := script.Checker{
				Tx:       tx,
				InputIdx: inputIdx,
				SigCache: s.sigCache,
				Cancel:   cancel,
			}
			if err := checker.VerifyInput(prevScript); err != nil {
				return err
			}
			atomic.AddInt64(sigChecks, int64(checker.SigChecks))
			return nil
		})

		spent, err := view.SpendCoin(in.PrevOut)
		if err != nil {
			return database.TxUndo{}, 0, Errorf(MissingInputs, "spending %s: %s", in.PrevOut, err)
		}
		txUndo.Spent = append(txUndo.Spent, spent)
	}

	faceOut, err := tx.ValueOut()
	if err != nil {
		return database.TxUndo{}, 0, Errorf(BadStructure, "transaction %s: %s", txid, err)
	}
	if effectiveIn < faceOut {
		return database.TxUndo{}, 0, Errorf(BadConservation, "transaction %s spends %d with only %d effective in", txid, faceOut, effectiveIn)
	}

	// Script checks fan out, but the transaction is not valid until every
	// check has joined.
	if err := runChecks(checks); err != nil {
		if script.IsCanceled(err) {
			return database.TxUndo{}, 0, Errorf(Canceled, "connect canceled")
		}
		return database.TxUndo{}, 0, Errorf(BadScript, "transaction %s: %s", txid, err)
	}

	return txUndo, effectiveIn - faceOut, nil
}

// addOutputs adds one transaction's outputs to the view with the block's
// height as the coins' creation height.
func addOutputs(view *database.CoinsCache, tx *database.Tx, height int32, isCoinbase bool) error {
	txid := tx.TxID()
	for i, out := range tx.TxOut {
		if script.IsUnspendable(out.ScriptPubKey) {
			continue
		}

		op := database.OutPoint{TxID: txid, Index: uint32(i)}
		coin := database.Coin{
			Out:            out,
			CreationHeight: height,
			IsCoinbase:     isCoinbase,
		}
		if err := view.AddCoin(op, coin, false); err != nil {
			return Errorf(MissingInputs, "adding %s: %s", op, err)
		}
	}
	return nil
}

// runChecksSerial is the inline script check runner.
func runChecksSerial(checks []func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================

// disconnectBlock reverses a block against the view using its undo data:
// the outputs it created are removed and the coins it spent come back.
func (s *State) disconnectBlock(block *database.Block, view *database.CoinsCache, undo database.BlockUndo) error {
	if len(undo.Txs) != len(block.Txs)-1 {
		return Errorf(IoFailure, "undo data has %d records for %d transactions", len(undo.Txs), len(block.Txs)-1)
	}

	for i := len(block.Txs) - 1; i >= 0; i-- {
		tx := block.Txs[i]
		txid := tx.TxID()

		for j := range tx.TxOut {
			if script.IsUnspendable(tx.TxOut[j].ScriptPubKey) {
				continue
			}

			op := database.OutPoint{TxID: txid, Index: uint32(j)}
			if _, err := view.SpendCoin(op); err != nil {
				return Errorf(IoFailure, "removing created coin %s: %s", op, err)
			}
		}

		if i == 0 {
			break
		}

		for j := len(tx.TxIn) - 1; j >= 0; j-- {
			coin := undo.Txs[i-1].Spent[j]
			if err := view.AddCoin(tx.TxIn[j].PrevOut, coin, true); err != nil {
				return Errorf(IoFailure, "resurrecting coin %s: %s", tx.TxIn[j].PrevOut, err)
			}
		}
	}

	return nil
}
