package chain_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/database/storage"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/pow"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
)

// openPersistent builds a chain state over on-disk stores rooted at dir.
func openPersistent(t *testing.T, dir string, network string) (*chain.State, *storage.ChainDB, error) {
	t.Helper()

	params, err := genesis.Network(network)
	if err != nil {
		t.Fatalf("loading network params: %s", err)
	}

	store, err := storage.NewBlockDB(filepath.Join(dir, "blockdb"))
	if err != nil {
		t.Fatalf("opening block store: %s", err)
	}

	chainDB, err := storage.OpenChainDB(filepath.Join(dir, "chainstate"))
	if err != nil {
		t.Fatalf("opening chainstate: %s", err)
	}

	state, err := chain.New(chain.Config{
		Params:    params,
		Store:     store,
		Coins:     chainDB,
		Meta:      chainDB,
		EvHandler: noopEv,
		Now:       testClock(params),
	})
	if err != nil {
		chainDB.Close()
		store.Close()
		return nil, nil, err
	}

	return state, chainDB, nil
}

// =============================================================================

func Test_StartupReconsideration(t *testing.T) {
	t.Log("Given the need to validate failure flags heal across restarts.")
	{
		t.Logf("\tTest 0:\tWhen the best tip was marked failed before shutdown.")
		{
			dir := t.TempDir()

			state, chainDB, err := openPersistent(t, dir, "regtest")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould open a fresh chain: %v.", failed, err)
			}

			params := state.Params()
			gen := params.GenesisBlock()

			// Build three blocks and remember the honest tip.
			prevHash, prevTime := gen.Hash(), gen.Header.Time
			var blocks []*database.Block
			for height := int32(1); height <= 3; height++ {
				outs := []database.TxOut{{Value: 0, ScriptPubKey: script.PayToPubKeyHash([20]byte{0x01})}}
				block := mineBlock(t, params, prevHash, prevTime, height, outs, nil)
				if err := state.ProcessBlock(block); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould connect block %d: %v.", failed, height, err)
				}
				blocks = append(blocks, block)
				prevHash, prevTime = block.Hash(), block.Header.Time
			}

			bestTip := blocks[2].Hash()
			if state.Tip().Hash != bestTip {
				t.Fatalf("\t%s\tTest 0:\tShould sit on the best tip before the restart.", failed)
			}

			// Mark the honest tip invalid, as a divergent prior client
			// might have, and shut down.
			if err := state.InvalidateBlock(bestTip); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould invalidate the tip: %v.", failed, err)
			}
			if state.Tip().Hash == bestTip {
				t.Fatalf("\t%s\tTest 0:\tShould have moved off the invalidated tip.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have moved off the invalidated tip.", success)

			if err := state.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould shut down cleanly: %v.", failed, err)
			}
			chainDB.Close()

			// On restart the failure flag clears and the best-work chain
			// is restored.
			state2, chainDB2, err := openPersistent(t, dir, "regtest")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould reopen the chain: %v.", failed, err)
			}
			defer chainDB2.Close()
			defer state2.Shutdown()

			if state2.Tip().Hash != bestTip {
				t.Fatalf("\t%s\tTest 0:\tShould restore the best tip, got %s.", failed, state2.Tip().Hash)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the best tip after restart.", success)
		}
	}
}

func Test_WrongNetworkDatadir(t *testing.T) {
	t.Log("Given the need to validate the genesis check on a reused datadir.")
	{
		t.Logf("\tTest 0:\tWhen reopening a regtest datadir as another network.")
		{
			dir := t.TempDir()

			state, chainDB, err := openPersistent(t, dir, "regtest")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould open a fresh chain: %v.", failed, err)
			}
			if err := state.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould shut down cleanly: %v.", failed, err)
			}
			chainDB.Close()

			if _, _, err := openPersistent(t, dir, "nol"); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse the mismatched datadir.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse the mismatched datadir.", success)
		}
	}
}

func Test_ProcessBlockEdges(t *testing.T) {
	t.Log("Given the need to validate context-free rejection classes.")
	{
		h := newHarness(t)
		tip := h.state.Tip()

		t.Logf("\tTest 0:\tWhen submitting a block with an unknown parent.")
		{
			var bogus database.Hash
			bogus[5] = 0x99
			block := mineBlock(t, h.params, bogus, tip.Time, 5, nil, nil)

			err := h.state.ProcessBlock(block)
			if err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject the orphan.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the orphan.", success)
		}

		t.Logf("\tTest 1:\tWhen submitting a block without proof of work.")
		{
			block := database.Block{
				Header: database.BlockHeader{
					Version:  genesis.BaseVersion,
					PrevHash: tip.Hash,
					Time:     tip.Time + 1,
					Bits:     0x03000001,
				},
				Txs: []*database.Tx{coinbaseTx(1, nil)},
			}
			root, _ := block.ComputeMerkleRoot()
			block.Header.MerkleRoot = root

			err := h.state.ProcessBlock(&block)
			if !chain.IsKind(err, chain.BadPow) {
				t.Fatalf("\t%s\tTest 1:\tShould classify the failure as bad pow: %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould classify the failure as bad pow.", success)
		}

		t.Logf("\tTest 2:\tWhen submitting a block with a wrong merkle root.")
		{
			block := mineBlock(t, h.params, tip.Hash, tip.Time, 1, nil, nil)
			block.Header.MerkleRoot = database.Hash{0x01}
			if err := pow.Mine(context.Background(), &block.Header, noopEv); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould re-mine the tampered header: %v.", failed, err)
			}

			err := h.state.ProcessBlock(block)
			if !chain.IsKind(err, chain.BadStructure) {
				t.Fatalf("\t%s\tTest 2:\tShould classify the failure as bad structure: %v.", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould classify the failure as bad structure.", success)
		}
	}
}
