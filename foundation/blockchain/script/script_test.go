package script_test

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
	"github.com/membercoin/membercoin/foundation/blockchain/sigcache"
	"github.com/membercoin/membercoin/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// derSignature is the ASN.1 layout of a transaction signature.
type derSignature struct {
	R, S *big.Int
}

// signInput produces the P2PKH scriptSig for one input.
func signInput(t *testing.T, priv *ecdsa.PrivateKey, tx *database.Tx, idx int, prevScript []byte) []byte {
	t.Helper()

	digest, err := tx.SignatureHash(idx, prevScript, database.SighashAll)
	if err != nil {
		t.Fatalf("computing signature hash: %s", err)
	}

	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("signing: %s", err)
	}

	der, err := asn1.Marshal(derSignature{
		R: new(big.Int).SetBytes(sig[:32]),
		S: new(big.Int).SetBytes(sig[32:64]),
	})
	if err != nil {
		t.Fatalf("encoding signature: %s", err)
	}

	return script.UnlockP2PKH(der, database.SighashAll, crypto.CompressPubkey(&priv.PublicKey))
}

// spendingTx builds a transaction spending one outpoint to a throwaway
// output large enough to satisfy the minimum size rule.
func spendingTx(prevOut database.OutPoint, value int64) *database.Tx {
	return &database.Tx{
		Version: 1,
		TxIn: []database.TxIn{{
			PrevOut:  prevOut,
			Sequence: 0xffffffff,
		}},
		TxOut: []database.TxOut{{
			Value:        value,
			ScriptPubKey: script.PayToPubKeyHash([20]byte{0x01}),
		}},
	}
}

// =============================================================================

func Test_P2PKH(t *testing.T) {
	t.Log("Given the need to validate pay-to-pubkey-hash spends.")
	{
		t.Logf("\tTest 0:\tWhen spending with the right key.")
		{
			priv, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould generate a key: %v", failed, err)
			}

			pub := crypto.CompressPubkey(&priv.PublicKey)
			lock := script.PayToPubKeyHash(signature.Hash160(pub))

			tx := spendingTx(database.OutPoint{TxID: database.Hash{0x01}, Index: 0}, database.COIN)
			tx.TxIn[0].ScriptSig = signInput(t, priv, tx, 0, lock)

			checker := script.Checker{Tx: tx, InputIdx: 0}
			if err := checker.VerifyInput(lock); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould authorize the spend: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould authorize the spend.", success)

			if checker.SigChecks != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould count one executed sigcheck: got %d.", failed, checker.SigChecks)
			}
			t.Logf("\t%s\tTest 0:\tShould count one executed sigcheck.", success)
		}

		t.Logf("\tTest 1:\tWhen spending with the wrong key.")
		{
			priv, _ := crypto.GenerateKey()
			wrong, _ := crypto.GenerateKey()

			pub := crypto.CompressPubkey(&priv.PublicKey)
			lock := script.PayToPubKeyHash(signature.Hash160(pub))

			tx := spendingTx(database.OutPoint{TxID: database.Hash{0x02}, Index: 0}, database.COIN)
			tx.TxIn[0].ScriptSig = signInput(t, wrong, tx, 0, lock)

			checker := script.Checker{Tx: tx, InputIdx: 0}
			if err := checker.VerifyInput(lock); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject the spend.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the spend.", success)
		}

		t.Logf("\tTest 2:\tWhen the signed content changes.")
		{
			priv, _ := crypto.GenerateKey()
			pub := crypto.CompressPubkey(&priv.PublicKey)
			lock := script.PayToPubKeyHash(signature.Hash160(pub))

			tx := spendingTx(database.OutPoint{TxID: database.Hash{0x03}, Index: 0}, database.COIN)
			tx.TxIn[0].ScriptSig = signInput(t, priv, tx, 0, lock)

			// Tamper after signing.
			tx.TxOut[0].Value++

			checker := script.Checker{Tx: tx, InputIdx: 0}
			if err := checker.VerifyInput(lock); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject the tampered transaction.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the tampered transaction.", success)
		}
	}
}

func Test_SigCacheHit(t *testing.T) {
	t.Log("Given the need to validate the signature cache skips re-verification.")
	{
		t.Logf("\tTest 0:\tWhen verifying the same input twice.")
		{
			priv, _ := crypto.GenerateKey()
			pub := crypto.CompressPubkey(&priv.PublicKey)
			lock := script.PayToPubKeyHash(signature.Hash160(pub))

			tx := spendingTx(database.OutPoint{TxID: database.Hash{0x04}, Index: 0}, database.COIN)
			tx.TxIn[0].ScriptSig = signInput(t, priv, tx, 0, lock)

			cache := sigcache.New(1 << 20)

			first := script.Checker{Tx: tx, InputIdx: 0, SigCache: cache}
			if err := first.VerifyInput(lock); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould authorize the spend: %v", failed, err)
			}
			if first.SigChecks != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould execute the first verification.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould execute the first verification.", success)

			second := script.Checker{Tx: tx, InputIdx: 0, SigCache: cache}
			if err := second.VerifyInput(lock); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould authorize from the cache: %v", failed, err)
			}
			if second.SigChecks != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould skip the cached verification: got %d.", failed, second.SigChecks)
			}
			t.Logf("\t%s\tTest 0:\tShould skip the cached verification.", success)
		}
	}
}

func Test_Cancellation(t *testing.T) {
	t.Log("Given the need to validate the cancellation poll inside verification.")
	{
		t.Logf("\tTest 0:\tWhen the cancel flag is set.")
		{
			priv, _ := crypto.GenerateKey()
			pub := crypto.CompressPubkey(&priv.PublicKey)
			lock := script.PayToPubKeyHash(signature.Hash160(pub))

			tx := spendingTx(database.OutPoint{TxID: database.Hash{0x05}, Index: 0}, database.COIN)
			tx.TxIn[0].ScriptSig = signInput(t, priv, tx, 0, lock)

			checker := script.Checker{Tx: tx, InputIdx: 0, Cancel: func() bool { return true }}
			err := checker.VerifyInput(lock)
			if !script.IsCanceled(err) {
				t.Fatalf("\t%s\tTest 0:\tShould report cancellation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report cancellation.", success)
		}
	}
}

func Test_SigOpsCounting(t *testing.T) {
	t.Log("Given the need to validate sigops accounting.")
	{
		t.Logf("\tTest 0:\tWhen counting standard scripts.")
		{
			if got := script.CountSigOps(script.PayToPubKeyHash([20]byte{})); got != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould count one sigop in P2PKH: got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould count one sigop in P2PKH.", success)

			if got := script.CountSigOps([]byte{script.OpCheckMultiSig}); got != 20 {
				t.Fatalf("\t%s\tTest 0:\tShould count twenty for checkmultisig: got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould count twenty for checkmultisig.", success)

			if got := script.CountSigOps(script.NullData([]byte("hi"))); got != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould count none in a data carrier: got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould count none in a data carrier.", success)
		}

		t.Logf("\tTest 1:\tWhen classifying unspendable scripts.")
		{
			if !script.IsUnspendable(script.NullData([]byte("x"))) {
				t.Fatalf("\t%s\tTest 1:\tShould classify OP_RETURN as unspendable.", failed)
			}
			if script.IsUnspendable(script.PayToPubKeyHash([20]byte{})) {
				t.Fatalf("\t%s\tTest 1:\tShould classify P2PKH as spendable.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould classify correctly.", success)
		}
	}
}
