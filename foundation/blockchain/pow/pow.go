// Package pow implements the proof of work rules. The consensus check is a
// single inequality: the Blake3 hash of the 80 canonical header bytes,
// read as a little-endian 256-bit integer, must be strictly below the
// target decoded from the header's bits field. The memory-hard pattern
// search only exists on the mining side; its outputs are not serialized
// and never checked by validators.
package pow

import (
	"context"
	"errors"

	"github.com/membercoin/membercoin/foundation/blockchain/arith"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// ErrHighHash is returned when the header hash does not meet the target.
var ErrHighHash = errors.New("hash is above target")

// ErrBadBits is returned when the bits field decodes to a target that can
// never be satisfied.
var ErrBadBits = errors.New("bits encode an invalid target")

// Check verifies the header satisfies the proof of work claimed by its own
// bits field.
func Check(header database.BlockHeader) error {
	return CheckHash(header.Hash(), header.Bits)
}

// CheckHash verifies an already computed header hash against a compact
// target.
func CheckHash(hash database.Hash, bits uint32) error {
	target, negative, overflow := arith.SetCompact(bits)
	if negative || overflow || target.IsZero() {
		return ErrBadBits
	}

	if arith.HashToUint256(hash).Cmp(target) >= 0 {
		return ErrHighHash
	}

	return nil
}

// =============================================================================

// Mine searches nonce values for one that solves the header's proof of
// work. Pointer semantics are being used since a nonce is being discovered.
// The operation can be cancelled through the context, which is how a
// competing block cancels an in-flight search.
func Mine(ctx context.Context, header *database.BlockHeader, ev func(v string, args ...any)) error {
	ev("pow: mine: started")
	defer ev("pow: mine: completed")

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("pow: mine: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("pow: mine: CANCELLED")
			return ctx.Err()
		}

		if err := Check(*header); err != nil {
			if errors.Is(err, ErrBadBits) {
				return err
			}
			header.Nonce++
			continue
		}

		ev("pow: mine: SOLVED: block[%s] attempts[%d]", header.Hash(), attempts)
		return nil
	}
}
