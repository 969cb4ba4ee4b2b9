package public

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/mempool"
	"github.com/membercoin/membercoin/foundation/validate"
)

// SubmitBlockRequest carries one hex encoded block.
type SubmitBlockRequest struct {
	Data string `json:"data" validate:"required"`
}

// Validate implements the web framework's request validation hook.
func (req SubmitBlockRequest) Validate() error {
	return validate.Check(req)
}

// Block decodes the hex armor.
func (req SubmitBlockRequest) Block() ([]byte, error) {
	raw, err := hex.DecodeString(req.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid block encoding: %w", err)
	}
	return raw, nil
}

// SubmitBlockResponse reports the submitted block and the resulting tip.
type SubmitBlockResponse struct {
	Hash string        `json:"hash"`
	Tip  chain.TipInfo `json:"tip"`
}

// =============================================================================

// SubmitTxRequest carries one hex encoded transaction.
type SubmitTxRequest struct {
	Data string `json:"data" validate:"required"`
}

// Validate implements the web framework's request validation hook.
func (req SubmitTxRequest) Validate() error {
	return validate.Check(req)
}

// Tx decodes the hex armor.
func (req SubmitTxRequest) Tx() ([]byte, error) {
	raw, err := hex.DecodeString(req.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction encoding: %w", err)
	}
	return raw, nil
}

// SubmitTxResponse reports the admitted transaction and the pool size.
type SubmitTxResponse struct {
	TxID      string `json:"txid"`
	PoolCount int    `json:"pool_count"`
}

// =============================================================================

// BlockResponse is the API representation of one stored block.
type BlockResponse struct {
	Hash     string `json:"hash"`
	Height   int32  `json:"height"`
	Active   bool   `json:"active"`
	Failed   bool   `json:"failed"`
	TxCount  int    `json:"tx_count"`
	Data     string `json:"data"`
	PrevHash string `json:"prev_hash"`
}

// NewBlockResponse constructs the response from the stored block and its
// index node.
func NewBlockResponse(block *database.Block, node *chain.BlockNode, active bool) BlockResponse {
	resp := BlockResponse{
		Hash:     block.Hash().String(),
		Active:   active,
		TxCount:  len(block.Txs),
		Data:     hex.EncodeToString(block.Bytes()),
		PrevHash: block.Header.PrevHash.String(),
	}

	if node != nil {
		resp.Height = node.Height
		resp.Failed = node.Status&(chain.StatusFailed|chain.StatusFailedChild) != 0
	}
	return resp
}

// =============================================================================

// CoinResponse is the API representation of one unspent output.
type CoinResponse struct {
	TxID           string `json:"txid"`
	Index          uint32 `json:"index"`
	FaceValue      int64  `json:"face_value"`
	EffectiveValue int64  `json:"effective_value"`
	CreationHeight int32  `json:"creation_height"`
	TipHeight      int32  `json:"tip_height"`
	IsCoinbase     bool   `json:"is_coinbase"`
}

// NewCoinResponse constructs the response from the chain's coin lookup.
func NewCoinResponse(op database.OutPoint, info chain.CoinInfo) CoinResponse {
	return CoinResponse{
		TxID:           op.TxID.String(),
		Index:          op.Index,
		FaceValue:      info.Coin.Out.Value,
		EffectiveValue: info.EffectiveValue,
		CreationHeight: info.Coin.CreationHeight,
		TipHeight:      info.TipHeight,
		IsCoinbase:     info.Coin.IsCoinbase,
	}
}

// =============================================================================

// MempoolEntry is the API representation of one pooled transaction.
type MempoolEntry struct {
	TxID    string `json:"txid"`
	Fee     int64  `json:"fee"`
	FeeRate int64  `json:"fee_rate"`
	Size    int    `json:"size"`
}

// NewMempoolResponse constructs the pool listing.
func NewMempoolResponse(txs []mempool.PoolTx) []MempoolEntry {
	entries := make([]MempoolEntry, len(txs))
	for i, ptx := range txs {
		entries[i] = MempoolEntry{
			TxID:    ptx.TxID.String(),
			Fee:     ptx.Fee,
			FeeRate: ptx.FeeRate,
			Size:    ptx.Size,
		}
	}
	return entries
}

// =============================================================================

// HealthResponse reports liveness and sync state.
type HealthResponse struct {
	Status string `json:"status"`
	Synced bool   `json:"synced"`
	Height int32  `json:"height"`
}

type errNotFound struct {
	Error string `json:"error"`
}

// parseOutPoint builds an outpoint from path parameters.
func parseOutPoint(txidParam string, indexParam string) (database.OutPoint, error) {
	txid, err := database.ToHash(txidParam)
	if err != nil {
		return database.OutPoint{}, err
	}

	index, err := strconv.ParseUint(indexParam, 10, 32)
	if err != nil {
		return database.OutPoint{}, fmt.Errorf("invalid output index: %w", err)
	}

	return database.OutPoint{TxID: txid, Index: uint32(index)}, nil
}
