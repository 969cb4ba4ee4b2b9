// Package genesis maintains the consensus parameters for each supported
// network and constructs the network's genesis block.
package genesis

import (
	"fmt"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/script"
)

// OneMegabyte is the unit block size limits are expressed in.
const OneMegabyte = 1_000_000

// Consensus limits shared by every network.
const (
	// MaxBlockSigOpsPerMB is the allowed number of legacy signature
	// operations in a 1MB block, scaled per rounded-up megabyte above that.
	MaxBlockSigOpsPerMB = 20_000

	// MaxTxSigOpsCount is the allowed number of legacy signature
	// operations in a single transaction.
	MaxTxSigOpsCount = 20_000

	// BlockMaxBytesMaxSigChecksRatio is the ratio between the maximum
	// allowable block size and the maximum allowable executed signature
	// checks in the block.
	BlockMaxBytesMaxSigChecksRatio = 141

	// MinBlocksToKeep is how many recent full blocks a pruning node
	// retains, undo data included.
	MinBlocksToKeep = 288

	// MaxFutureBlockTime is how far into the future a block timestamp may
	// run ahead of our clock.
	MaxFutureBlockTime = 2 * 60 * 60

	// MedianTimeSpan is the number of ancestor blocks the median time past
	// is computed over.
	MedianTimeSpan = 11
)

// BaseVersion is the version new block headers carry.
const BaseVersion = 0x20000000

// MaxBlockSigOpsCount computes the maximum sigops allowed in a block given
// the block size.
func MaxBlockSigOpsCount(blockSize uint64) uint64 {
	mbRoundedUp := 1 + ((blockSize - 1) / OneMegabyte)
	return mbRoundedUp * MaxBlockSigOpsPerMB
}

// MaxBlockSigChecksCount computes the maximum number of executed signature
// checks in a block given the maximum block size. The limit scales with
// the configured maximum, not with the actual block.
func MaxBlockSigChecksCount(maxBlockSize uint64) uint64 {
	return maxBlockSize / BlockMaxBytesMaxSigChecksRatio
}

// =============================================================================

// Params represents the consensus parameters of one network.
type Params struct {
	Name                 string `json:"name"`
	Port                 uint16 `json:"port"`
	ExcessiveBlockSize   uint64 `json:"excessive_block_size"`
	PowLimitBits         uint32 `json:"pow_limit_bits"`
	CTORActivationHeight int32  `json:"ctor_activation_height"`
	PremineValue         int64  `json:"premine_value"`
	PremineHeight        int32  `json:"premine_height"`
	GenesisTime          uint32 `json:"genesis_time"`
	GenesisNonce         uint32 `json:"genesis_nonce"`
}

// AllowedSubsidy returns the face value a coinbase may create out of thin
// air at the specified height, fees excluded. Outside the premine window it
// is zero: miners earn the interest spread and fees.
func (p Params) AllowedSubsidy(height int32) int64 {
	if height <= p.PremineHeight {
		return p.PremineValue
	}
	return 0
}

// GenesisBlock constructs the network's genesis block. The block is baked
// into consensus: its proof of work is never re-checked.
func (p Params) GenesisBlock() *database.Block {
	msg := []byte("on the shoulders of giants")

	scriptSig := database.ScriptNum(0)
	scriptSig = append(scriptSig, byte(len(msg)))
	scriptSig = append(scriptSig, msg...)

	coinbase := database.Tx{
		Version: 1,
		TxIn: []database.TxIn{{
			PrevOut:   database.NullOutPoint(),
			ScriptSig: scriptSig,
			Sequence:  0xffffffff,
		}},
		TxOut: []database.TxOut{{
			Value:        0,
			ScriptPubKey: script.NullData(msg),
		}},
	}

	block := database.Block{
		Header: database.BlockHeader{
			Version: 1,
			Time:    p.GenesisTime,
			Bits:    p.PowLimitBits,
			Nonce:   p.GenesisNonce,
		},
		Txs: []*database.Tx{&coinbase},
	}

	root, err := block.ComputeMerkleRoot()
	if err != nil {
		panic(fmt.Sprintf("building genesis block: %s", err))
	}
	block.Header.MerkleRoot = root

	return &block
}

// =============================================================================

// networks holds the baked-in parameters for each supported network.
var networks = map[string]Params{
	"mainnet": {
		Name:                 "mainnet",
		Port:                 8333,
		ExcessiveBlockSize:   32 * OneMegabyte,
		PowLimitBits:         0x1d00ffff,
		CTORActivationHeight: 0,
		PremineValue:         1_000_000 * database.COIN,
		PremineHeight:        1,
		GenesisTime:          1_623_110_400,
		GenesisNonce:         2_083_236_893,
	},
	"testnet": {
		Name:                 "testnet",
		Port:                 18333,
		ExcessiveBlockSize:   32 * OneMegabyte,
		PowLimitBits:         0x1d00ffff,
		CTORActivationHeight: 0,
		PremineValue:         1_000_000 * database.COIN,
		PremineHeight:        1,
		GenesisTime:          1_623_110_401,
		GenesisNonce:         414_098_458,
	},
	"testnet4": {
		Name:                 "testnet4",
		Port:                 28333,
		ExcessiveBlockSize:   2 * OneMegabyte,
		PowLimitBits:         0x1d00ffff,
		CTORActivationHeight: 0,
		PremineValue:         1_000_000 * database.COIN,
		PremineHeight:        1,
		GenesisTime:          1_623_110_402,
		GenesisNonce:         5_546_345,
	},
	"scalenet": {
		Name:                 "scalenet",
		Port:                 38333,
		ExcessiveBlockSize:   256 * OneMegabyte,
		PowLimitBits:         0x1d00ffff,
		CTORActivationHeight: 0,
		PremineValue:         1_000_000 * database.COIN,
		PremineHeight:        1,
		GenesisTime:          1_623_110_403,
		GenesisNonce:         2_653_964,
	},
	"nol": {
		Name:                 "nol",
		Port:                 9333,
		ExcessiveBlockSize:   32 * OneMegabyte,
		PowLimitBits:         0x207fffff,
		CTORActivationHeight: 0,
		PremineValue:         1_000_000 * database.COIN,
		PremineHeight:        1,
		GenesisTime:          1_623_110_404,
		GenesisNonce:         0,
	},
	"regtest": {
		Name:                 "regtest",
		Port:                 18444,
		ExcessiveBlockSize:   32 * OneMegabyte,
		PowLimitBits:         0x207fffff,
		CTORActivationHeight: 0,
		PremineValue:         1_000_000 * database.COIN,
		PremineHeight:        1,
		GenesisTime:          1_296_688_602,
		GenesisNonce:         0,
	},
}

// Network returns the consensus parameters for the named network.
func Network(name string) (Params, error) {
	params, exists := networks[name]
	if !exists {
		return Params{}, fmt.Errorf("unknown network %q", name)
	}
	return params, nil
}
