package database_test

import (
	"errors"
	"testing"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/database/storage/memory"
)

func testOutPoint(b byte, index uint32) database.OutPoint {
	var txid database.Hash
	txid[0] = b
	return database.OutPoint{TxID: txid, Index: index}
}

func testCoin(value int64, height int32) database.Coin {
	return database.Coin{
		Out:            database.TxOut{Value: value, ScriptPubKey: []byte{0x51}},
		CreationHeight: height,
	}
}

// =============================================================================

func Test_CacheSemantics(t *testing.T) {
	t.Log("Given the need to validate the coins cache layering.")
	{
		t.Logf("\tTest 0:\tWhen adding and spending inside the cache.")
		{
			base := memory.NewCoinStore()
			cache := database.NewCoinsCache(base)

			op := testOutPoint(0x01, 0)
			if err := cache.AddCoin(op, testCoin(database.COIN, 5), false); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould add a new coin: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould add a new coin.", success)

			if err := cache.AddCoin(op, testCoin(database.COIN, 6), false); !errors.Is(err, database.ErrCoinExists) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse to overwrite an unspent coin: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse to overwrite an unspent coin.", success)

			coin, err := cache.SpendCoin(op)
			if err != nil || coin.Out.Value != database.COIN {
				t.Fatalf("\t%s\tTest 0:\tShould return the spent coin: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould return the spent coin.", success)

			if _, err := cache.SpendCoin(op); !errors.Is(err, database.ErrCoinMissing) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse a double spend: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse a double spend.", success)

			// A fresh coin created and destroyed in the cache must never
			// reach the base.
			if err := cache.Flush(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould flush cleanly: %v", failed, err)
			}
			if len(base.Snapshot()) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the base untouched by a fresh spend.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the base untouched by a fresh spend.", success)
		}

		t.Logf("\tTest 1:\tWhen flushing a surviving coin.")
		{
			base := memory.NewCoinStore()
			cache := database.NewCoinsCache(base)

			op := testOutPoint(0x02, 1)
			cache.AddCoin(op, testCoin(3*database.COIN, 9), false)

			if err := cache.Flush(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould flush cleanly: %v", failed, err)
			}

			coin, ok, _ := base.GetCoin(op)
			if !ok || coin.CreationHeight != 9 {
				t.Fatalf("\t%s\tTest 1:\tShould persist the coin to the base.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould persist the coin to the base.", success)

			// Spending after the flush must delete from the base on the
			// next flush.
			if _, err := cache.SpendCoin(op); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould spend the flushed coin: %v", failed, err)
			}
			cache.Flush()

			if _, ok, _ := base.GetCoin(op); ok {
				t.Fatalf("\t%s\tTest 1:\tShould delete the spent coin from the base.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould delete the spent coin from the base.", success)
		}
	}
}

func Test_ForkCommit(t *testing.T) {
	t.Log("Given the need to validate worker forks commit atomically.")
	{
		t.Logf("\tTest 0:\tWhen a fork spends and creates coins.")
		{
			base := memory.NewCoinStore()
			parent := database.NewCoinsCache(base)

			opA := testOutPoint(0x0a, 0)
			parent.AddCoin(opA, testCoin(database.COIN, 1), false)

			fork := parent.Fork()

			if _, err := fork.SpendCoin(opA); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould read the parent's coin through the fork: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould read the parent's coin through the fork.", success)

			opB := testOutPoint(0x0b, 0)
			fork.AddCoin(opB, testCoin(2*database.COIN, 2), false)

			// The parent must not see fork-private state before commit.
			if _, ok, _ := parent.GetCoin(opB); ok {
				t.Fatalf("\t%s\tTest 0:\tShould keep fork writes private.", failed)
			}
			if _, ok, _ := parent.GetCoin(opA); !ok {
				t.Fatalf("\t%s\tTest 0:\tShould keep the parent's coin unspent before commit.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep fork writes private.", success)

			if err := fork.Commit(parent); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould commit the fork: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould commit the fork.", success)

			if _, ok, _ := parent.GetCoin(opA); ok {
				t.Fatalf("\t%s\tTest 0:\tShould apply the fork's spend.", failed)
			}
			if _, ok, _ := parent.GetCoin(opB); !ok {
				t.Fatalf("\t%s\tTest 0:\tShould apply the fork's create.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould apply the fork's mutations.", success)
		}
	}
}

func Test_ErrorCatchingView(t *testing.T) {
	t.Log("Given the need to validate read failures abort instead of lying.")
	{
		t.Logf("\tTest 0:\tWhen the base read fails.")
		{
			var aborted bool
			view := database.NewErrorCatchingView(failingView{}, func(string, ...any) {}, func() { aborted = true })

			_, _, err := view.GetCoin(testOutPoint(0x01, 0))
			if !aborted {
				t.Fatalf("\t%s\tTest 0:\tShould invoke the abort hook.", failed)
			}
			if err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould surface the error to the test override.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould invoke the abort hook.", success)
		}
	}
}

type failingView struct{}

func (failingView) GetCoin(database.OutPoint) (database.Coin, bool, error) {
	return database.Coin{}, false, errors.New("disk read failed")
}
