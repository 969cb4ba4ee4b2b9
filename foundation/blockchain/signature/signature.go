// Package signature provides the hashing and signature verification
// primitives the consensus layer is built on.
package signature

import (
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
	"lukechampine.com/blake3"
)

// ZeroHash represents a hash code of zeros.
var ZeroHash [32]byte

// MaxHash is the largest possible hash value, used as the worst case
// sentinel by the mining search.
var MaxHash = [32]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Hash256d returns the double SHA-256 of the specified data. Transaction
// ids, merkle nodes, and the header mid-hash all use this function.
func Hash256d(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// HashBlake3 returns the Blake3-256 of the specified data in the default
// hashing mode. The proof of work outer hash uses this function.
func HashBlake3(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Hash160 returns RIPEMD160(SHA256(data)), the hash pay-to-pubkey-hash
// outputs commit to.
func Hash160(data []byte) [20]byte {
	sha := sha256.Sum256(data)

	h := ripemd160.New()
	h.Write(sha[:])

	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// =============================================================================

// ecdsaSignature is the DER layout of a transaction signature.
type ecdsaSignature struct {
	R, S *big.Int
}

// ParseDERSignature decodes a DER encoded ECDSA signature into the 64 byte
// R||S form the verifier operates on.
func ParseDERSignature(sig []byte) ([]byte, error) {
	var der ecdsaSignature
	rest, err := asn1.Unmarshal(sig, &der)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.New("trailing bytes after DER signature")
	}
	if der.R.Sign() <= 0 || der.S.Sign() <= 0 {
		return nil, errors.New("signature values must be positive")
	}
	if der.R.BitLen() > 256 || der.S.BitLen() > 256 {
		return nil, errors.New("signature values out of range")
	}

	rs := make([]byte, 64)
	der.R.FillBytes(rs[:32])
	der.S.FillBytes(rs[32:])
	return rs, nil
}

// VerifyECDSA checks a DER encoded secp256k1 signature over the specified
// 32 byte digest against a serialized (compressed or uncompressed) public
// key.
func VerifyECDSA(pubKey []byte, digest [32]byte, derSig []byte) error {
	rs, err := ParseDERSignature(derSig)
	if err != nil {
		return err
	}

	if !crypto.VerifySignature(pubKey, digest[:], rs) {
		return errors.New("invalid signature")
	}

	return nil
}
