// Package script implements the consensus subset of the output script
// language: pay-to-pubkey, pay-to-pubkey-hash, and provably unspendable
// data carriers, together with the sigops and sigchecks accounting the
// block limits are defined over.
package script

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/sigcache"
	"github.com/membercoin/membercoin/foundation/blockchain/signature"
)

// Opcodes the consensus subset interprets.
const (
	Op0             = 0x00
	OpPushData1     = 0x4c
	OpPushData2     = 0x4d
	OpPushData4     = 0x4e
	Op1Negate       = 0x4f
	Op1             = 0x51
	Op16            = 0x60
	OpReturn        = 0x6a
	OpDup           = 0x76
	OpEqual         = 0x87
	OpEqualVerify   = 0x88
	OpHash160       = 0xa9
	OpCheckSig      = 0xac
	OpCheckSigVf    = 0xad
	OpCheckMultiSig = 0xae
	OpCheckMultiVf  = 0xaf
)

// maxStackElems bounds the evaluation stack.
const maxStackElems = 1000

// ErrEvalFalse is returned when script execution leaves a false value on
// top of the stack.
var ErrEvalFalse = errors.New("script evaluated to false")

// ErrCanceled is returned when the caller's cancel poll fires inside the
// verification loop.
var ErrCanceled = errors.New("script verification canceled")

// IsCanceled reports whether the error came from a cancellation poll.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// =============================================================================

// Checker carries everything one input's script verification needs.
type Checker struct {
	Tx       *database.Tx
	InputIdx int
	SigCache *sigcache.Cache

	// Cancel is polled before each signature check. A nil function never
	// cancels.
	Cancel func() bool

	// SigChecks counts the signature verifications actually executed,
	// which is what the per-block sigchecks limit is defined over.
	SigChecks int

	// prevScript is the scriptPubKey being satisfied, held for the
	// signature hash computation.
	prevScript []byte
}

// VerifyInput runs the input's scriptSig followed by the previous output's
// scriptPubKey and reports whether the spend is authorized.
func (c *Checker) VerifyInput(prevScript []byte) error {
	c.prevScript = prevScript

	var stack [][]byte
	var err error
	if stack, err = c.eval(c.Tx.TxIn[c.InputIdx].ScriptSig, stack); err != nil {
		return err
	}
	if stack, err = c.eval(prevScript, stack); err != nil {
		return err
	}

	if len(stack) == 0 || !castToBool(stack[len(stack)-1]) {
		return ErrEvalFalse
	}

	return nil
}

// eval interprets one script against the running stack.
func (c *Checker) eval(script []byte, stack [][]byte) ([][]byte, error) {
	pc := 0
	for pc < len(script) {
		op := script[pc]
		pc++

		// Push operations.
		if op <= OpPushData4 {
			var n int
			switch {
			case op < OpPushData1:
				n = int(op)
			case op == OpPushData1:
				if pc >= len(script) {
					return nil, errors.New("pushdata length missing")
				}
				n = int(script[pc])
				pc++
			case op == OpPushData2:
				if pc+1 >= len(script) {
					return nil, errors.New("pushdata length missing")
				}
				n = int(script[pc]) | int(script[pc+1])<<8
				pc += 2
			default:
				if pc+3 >= len(script) {
					return nil, errors.New("pushdata length missing")
				}
				n = int(script[pc]) | int(script[pc+1])<<8 | int(script[pc+2])<<16 | int(script[pc+3])<<24
				pc += 4
			}

			if pc+n > len(script) {
				return nil, errors.New("push past end of script")
			}
			stack = append(stack, script[pc:pc+n])
			pc += n

			if len(stack) > maxStackElems {
				return nil, errors.New("stack overflow")
			}
			continue
		}

		switch {
		case op >= Op1 && op <= Op16:
			stack = append(stack, []byte{op - Op1 + 1})

		case op == Op1Negate:
			stack = append(stack, []byte{0x81})

		case op == OpReturn:
			return nil, errors.New("script contains OP_RETURN")

		case op == OpDup:
			if len(stack) == 0 {
				return nil, errors.New("stack underflow")
			}
			stack = append(stack, stack[len(stack)-1])

		case op == OpHash160:
			if len(stack) == 0 {
				return nil, errors.New("stack underflow")
			}
			h := signature.Hash160(stack[len(stack)-1])
			stack[len(stack)-1] = h[:]

		case op == OpEqual, op == OpEqualVerify:
			if len(stack) < 2 {
				return nil, errors.New("stack underflow")
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]

			equal := bytes.Equal(a, b)
			if op == OpEqualVerify {
				if !equal {
					return nil, errors.New("equalverify failed")
				}
			} else {
				stack = append(stack, boolBytes(equal))
			}

		case op == OpCheckSig, op == OpCheckSigVf:
			if len(stack) < 2 {
				return nil, errors.New("stack underflow")
			}
			pubKey := stack[len(stack)-1]
			sigBytes := stack[len(stack)-2]
			stack = stack[:len(stack)-2]

			ok, err := c.checkSig(sigBytes, pubKey)
			if err != nil {
				return nil, err
			}
			if op == OpCheckSigVf {
				if !ok {
					return nil, errors.New("checksigverify failed")
				}
			} else {
				stack = append(stack, boolBytes(ok))
			}

		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x", op)
		}
	}

	return stack, nil
}

// checkSig verifies one signature, consulting the signature cache before
// running ECDSA. The trailing byte of the signature encodes the hash type.
func (c *Checker) checkSig(sigBytes []byte, pubKey []byte) (bool, error) {
	if c.Cancel != nil && c.Cancel() {
		return false, ErrCanceled
	}

	if len(sigBytes) < 2 {
		return false, nil
	}

	hashType := uint32(sigBytes[len(sigBytes)-1])
	derSig := sigBytes[:len(sigBytes)-1]

	if hashType&0x1f != database.SighashAll {
		return false, nil
	}

	prevScript := c.prevScript
	digest, err := c.Tx.SignatureHash(c.InputIdx, prevScript, hashType)
	if err != nil {
		return false, err
	}

	if c.SigCache != nil && c.SigCache.Contains(digest, pubKey, derSig) {
		return true, nil
	}

	c.SigChecks++
	if err := signature.VerifyECDSA(pubKey, digest, derSig); err != nil {
		return false, nil
	}

	if c.SigCache != nil {
		c.SigCache.Add(digest, pubKey, derSig)
	}
	return true, nil
}

// =============================================================================

// castToBool applies the script truth rule: empty and zero (including
// negative zero) values are false.
func castToBool(v []byte) bool {
	for i, b := range v {
		if b != 0 {
			// Negative zero is false.
			if i == len(v)-1 && b == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}

func boolBytes(b bool) []byte {
	if b {
		return []byte{0x01}
	}
	return nil
}

// =============================================================================

// CountSigOps returns the legacy signature operation count of a script.
// Bare checksigs count one, checkmultisigs count twenty.
func CountSigOps(script []byte) int {
	var count int

	pc := 0
	for pc < len(script) {
		op := script[pc]
		pc++

		if op <= OpPushData4 {
			var n int
			switch {
			case op < OpPushData1:
				n = int(op)
			case op == OpPushData1:
				if pc >= len(script) {
					return count
				}
				n = int(script[pc])
				pc++
			case op == OpPushData2:
				if pc+1 >= len(script) {
					return count
				}
				n = int(script[pc]) | int(script[pc+1])<<8
				pc += 2
			default:
				if pc+3 >= len(script) {
					return count
				}
				n = int(script[pc]) | int(script[pc+1])<<8 | int(script[pc+2])<<16 | int(script[pc+3])<<24
				pc += 4
			}
			pc += n
			continue
		}

		switch op {
		case OpCheckSig, OpCheckSigVf:
			count++
		case OpCheckMultiSig, OpCheckMultiVf:
			count += 20
		}
	}

	return count
}

// IsUnspendable reports whether a script provably can never be spent.
func IsUnspendable(script []byte) bool {
	return len(script) > 0 && script[0] == OpReturn
}

// =============================================================================
// Standard script construction.

// PayToPubKeyHash builds the canonical P2PKH locking script.
func PayToPubKeyHash(pubKeyHash [20]byte) []byte {
	script := []byte{OpDup, OpHash160, 20}
	script = append(script, pubKeyHash[:]...)
	return append(script, OpEqualVerify, OpCheckSig)
}

// PayToPubKey builds the canonical P2PK locking script.
func PayToPubKey(pubKey []byte) []byte {
	script := []byte{byte(len(pubKey))}
	script = append(script, pubKey...)
	return append(script, OpCheckSig)
}

// NullData builds a provably unspendable data carrier script.
func NullData(data []byte) []byte {
	script := []byte{OpReturn, byte(len(data))}
	return append(script, data...)
}

// UnlockP2PKH builds the scriptSig spending a P2PKH output.
func UnlockP2PKH(derSig []byte, hashType byte, pubKey []byte) []byte {
	sig := append(append([]byte{}, derSig...), hashType)
	script := []byte{byte(len(sig))}
	script = append(script, sig...)
	script = append(script, byte(len(pubKey)))
	return append(script, pubKey...)
}
