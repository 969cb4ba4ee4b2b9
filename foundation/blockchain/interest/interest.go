// Package interest implements the deterministic interest accrual engine.
// Every unspent output earns compound interest once per block at a rate of
// 1 + 2⁻²², anchored at the output's creation height and saturating after
// one year of blocks. All nodes must agree bit for bit on the accrual
// table, so the package can render the table to its canonical dump and
// check a baked-in digest of it at startup.
package interest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/spaolacci/murmur3"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// OneDay is the target number of blocks per day.
const OneDay = 1108

// MaxPeriod is the number of blocks after which accrual saturates: one
// year of blocks.
const MaxPeriod = OneDay * 365

// rateShift expresses the per-block rate 1 + 2⁻²².
const rateShift = 22

// TableDigest is the expected Murmur3 digest of the canonical table dump.
// A node whose table hashes differently must not come up.
const TableDigest = int32(-753_007_581)

// digestSeed seeds the Murmur3 digest of the table dump.
const digestSeed = 1989

// rateTable[p] is the scale factor for an output that has accrued for p
// blocks, fixed-point with rateTable[0] = 1 << 62.
var rateTable [MaxPeriod + 1]uint64

var tableOnce sync.Once

// initTable fills in the compounding table.
func initTable() {
	rateTable[0] = 1 << 62
	for i := 1; i <= MaxPeriod; i++ {
		rateTable[i] = rateTable[i-1] + (rateTable[i-1] >> rateShift)
	}
}

// RateForAmount returns the interest, in satoshi, earned by the specified
// amount over the specified number of accrual periods.
func RateForAmount(periods int, amount int64) int64 {
	tableOnce.Do(initTable)

	amount256 := uint256.NewInt(uint64(amount))
	rate256 := uint256.NewInt(rateTable[periods])
	rate0256 := uint256.NewInt(rateTable[0])

	product := new(uint256.Int).Mul(amount256, rate256)
	result := product.Div(product, rate0256)

	return int64(result.Uint64()) - amount
}

// GetInterest returns the effective value of an amount created at
// outputHeight when valued at valuationHeight. Malformed height pairs
// return the amount unchanged; the chain invariants keep them from
// occurring.
func GetInterest(value int64, outputHeight int32, valuationHeight int32) int64 {
	if outputHeight < 0 || valuationHeight < 0 || valuationHeight < outputHeight {
		return value
	}

	blocks := int(valuationHeight - outputHeight)
	if blocks > MaxPeriod {
		blocks = MaxPeriod
	}

	return value + RateForAmount(blocks, value)
}

// ValueWithInterest returns the effective value of an output at the
// specified valuation height.
func ValueWithInterest(out database.TxOut, outputHeight int32, valuationHeight int32) int64 {
	return GetInterest(out.Value, outputHeight, valuationHeight)
}

// =============================================================================

// DumpTable renders the canonical textual dump of the accrual table. The
// format is fixed: one "%d %x" row per table entry from 1 to MaxPeriod
// followed by one "rate: %d %d" row per period from 0 to MaxPeriod-1 for
// the interest earned by 100 coins. The
// digest of this exact text is consensus relevant, so the format must never
// change.
func DumpTable() string {
	tableOnce.Do(initTable)

	var sb strings.Builder
	for i := 1; i <= MaxPeriod; i++ {
		fmt.Fprintf(&sb, "%d %x\n", i, rateTable[i])
	}
	for i := 0; i < MaxPeriod; i++ {
		fmt.Fprintf(&sb, "rate: %d %d\n", i, RateForAmount(i, 100*database.COIN))
	}

	return sb.String()
}

// DigestTable hashes the canonical table dump.
func DigestTable() int32 {
	return int32(murmur3.Sum32WithSeed([]byte(DumpTable()), digestSeed))
}

// VerifyTable confirms the accrual table matches the baked-in digest. It is
// called once at process start; a mismatch means this build would diverge
// from the network and the caller must abort.
func VerifyTable() error {
	if digest := DigestTable(); digest != TableDigest {
		return fmt.Errorf("rate table digest mismatch: got %d, exp %d", digest, TableDigest)
	}
	return nil
}
