package worker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/database/storage/memory"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/pow"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
	"github.com/membercoin/membercoin/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func noopEv(v string, args ...any) {}

// newTestState builds a fresh regtest chain over in-memory stores.
func newTestState(t *testing.T) (*chain.State, genesis.Params) {
	t.Helper()

	params, err := genesis.Network("regtest")
	if err != nil {
		t.Fatalf("loading network params: %s", err)
	}

	state, err := chain.New(chain.Config{
		Params:    params,
		Store:     memory.NewStore(),
		Coins:     memory.NewCoinStore(),
		EvHandler: noopEv,
		Now: func() int64 {
			return int64(params.GenesisTime) + 100*24*60*60
		},
	})
	if err != nil {
		t.Fatalf("building chain state: %s", err)
	}
	return state, params
}

// mineChild mines one block on the specified parent with a tagged
// coinbase so sibling blocks differ.
func mineChild(t *testing.T, params genesis.Params, prevHash database.Hash, prevTime uint32, height int32, tag byte) *database.Block {
	t.Helper()

	coinbase := database.Tx{
		Version: 1,
		TxIn: []database.TxIn{{
			PrevOut:   database.NullOutPoint(),
			ScriptSig: append(database.ScriptNum(int64(height)), tag),
			Sequence:  0xffffffff,
		}},
		TxOut: []database.TxOut{{Value: 0, ScriptPubKey: script.NullData([]byte{tag})}},
	}

	block := database.Block{
		Header: database.BlockHeader{
			Version:  genesis.BaseVersion,
			PrevHash: prevHash,
			Time:     prevTime + 1,
			Bits:     params.PowLimitBits,
		},
		Txs: []*database.Tx{&coinbase},
	}

	root, err := block.ComputeMerkleRoot()
	if err != nil {
		t.Fatalf("computing merkle root: %s", err)
	}
	block.Header.MerkleRoot = root

	if err := pow.Mine(context.Background(), &block.Header, noopEv); err != nil {
		t.Fatalf("mining block: %s", err)
	}
	return &block
}

// =============================================================================

func Test_SubmitThroughWorkers(t *testing.T) {
	t.Log("Given the need to validate block submission through the worker pool.")
	{
		t.Logf("\tTest 0:\tWhen submitting a chain of blocks.")
		{
			state, params := newTestState(t)
			w := worker.Run(state, worker.Config{Workers: 2, ScriptWorkers: 2})
			defer w.Shutdown()

			prevHash := state.Tip().Hash
			prevTime := state.Tip().Time

			for height := int32(1); height <= 5; height++ {
				block := mineChild(t, params, prevHash, prevTime, height, 0x01)
				if err := w.SubmitBlock(block); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould connect block %d: %v.", failed, height, err)
				}
				prevHash, prevTime = block.Hash(), block.Header.Time
			}

			if got := state.Height(); got != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould reach height 5: got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould reach height 5.", success)
		}
	}
}

func Test_ParallelRace(t *testing.T) {
	t.Log("Given the need to validate the commit-wins race between siblings.")
	{
		t.Logf("\tTest 0:\tWhen two children of the tip race from two threads.")
		{
			state, params := newTestState(t)
			w := worker.Run(state, worker.Config{Workers: 4, ScriptWorkers: 2})
			defer w.Shutdown()

			tip := state.Tip()
			left := mineChild(t, params, tip.Hash, tip.Time, 1, 0xaa)
			right := mineChild(t, params, tip.Hash, tip.Time, 1, 0xbb)

			var wg sync.WaitGroup
			errs := make([]error, 2)

			wg.Add(2)
			go func() {
				defer wg.Done()
				errs[0] = w.SubmitBlock(left)
			}()
			go func() {
				defer wg.Done()
				errs[1] = w.SubmitBlock(right)
			}()
			wg.Wait()

			if errs[0] != nil || errs[1] != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept both submissions: %v, %v.", failed, errs[0], errs[1])
			}
			t.Logf("\t%s\tTest 0:\tShould accept both submissions.", success)

			tipHash := state.Tip().Hash
			if tipHash != left.Hash() && tipHash != right.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould activate one of the two children.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould activate exactly one child.", success)

			winner, loser := left, right
			if tipHash == right.Hash() {
				winner, loser = right, left
			}

			// The loser is retained as an untainted candidate.
			loserNode := state.LookupNode(loser.Hash())
			if loserNode == nil {
				t.Fatalf("\t%s\tTest 0:\tShould retain the loser in the index.", failed)
			}
			if loserNode.Status&(chain.StatusFailed|chain.StatusFailedChild) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not mark the loser failed.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould retain the loser as a valid candidate.", success)

			// Invalidating the winner promotes the loser.
			if err := state.InvalidateBlock(winner.Hash()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould invalidate the winner: %v.", failed, err)
			}
			if state.Tip().Hash != loser.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould promote the loser, tip is %s.", failed, state.Tip().Hash)
			}
			t.Logf("\t%s\tTest 0:\tShould promote the loser after invalidation.", success)
		}
	}
}

func Test_ShutdownQuiescence(t *testing.T) {
	t.Log("Given the need to validate shutdown joins all workers.")
	{
		t.Logf("\tTest 0:\tWhen shutting down with no work in flight.")
		{
			state, params := newTestState(t)
			w := worker.Run(state, worker.Config{Workers: 2, ScriptWorkers: 1})

			tip := state.Tip()
			block := mineChild(t, params, tip.Hash, tip.Time, 1, 0x01)
			if err := w.SubmitBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould connect the block: %v.", failed, err)
			}

			w.Shutdown()
			t.Logf("\t%s\tTest 0:\tShould shut down cleanly.", success)

			if err := w.SubmitBlock(block); !chain.IsKind(err, chain.Canceled) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse submissions after shutdown: %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse submissions after shutdown.", success)
		}
	}
}
