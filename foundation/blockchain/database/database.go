// Package database defines the consensus data model for the blockchain: the
// transaction and block types with their canonical wire encodings, the Coin
// record for unspent outputs, and the layered UTXO view the validation code
// runs against.
package database

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// COIN is the number of satoshi in one coin.
const COIN = 100_000_000

// MaxMoney is the largest amount, in satoshi, any single value in the system
// is allowed to take. It is a sanity bound rather than the money supply, but
// it is consensus critical all the same.
const MaxMoney = 1_000_000_000 * COIN

// CoinbaseMaturity is the number of blocks that must be mined on top of a
// coinbase output before it can be spent.
const CoinbaseMaturity = 20

// MoneyRange reports whether the amount is within the valid money range.
func MoneyRange(value int64) bool {
	return value >= 0 && value <= MaxMoney
}

// =============================================================================

// Hash represents a 32 byte consensus hash such as a txid or block hash.
type Hash [32]byte

// String returns the conventional big-endian hex rendering of the hash. The
// bytes are stored little-endian on the wire, so display reverses them.
func (h Hash) String() string {
	var rev [32]byte
	for i := 0; i < 32; i++ {
		rev[i] = h[31-i]
	}
	return hex.EncodeToString(rev[:])
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ToHash converts the big-endian hex rendering of a hash back into a Hash
// and validates its format.
func ToHash(s string) (Hash, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash encoding: %w", err)
	}
	if len(data) != 32 {
		return Hash{}, errors.New("invalid hash length")
	}

	var h Hash
	for i := 0; i < 32; i++ {
		h[i] = data[31-i]
	}
	return h, nil
}
