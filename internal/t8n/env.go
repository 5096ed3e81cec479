package t8n

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/roach88/ethconform/internal/replay"
	"github.com/roach88/ethconform/internal/types"
)

// blockHashWindow is the number of ancestors whose hashes BLOCKHASH can
// read.
const blockHashWindow = 256

type ommer struct {
	Delta   uint64         `json:"delta"`
	Address common.Address `json:"address"`
}

// env is the block environment read by --input.env.
type env struct {
	Coinbase   common.Address        `json:"currentCoinbase"`
	Difficulty *math.HexOrDecimal256 `json:"currentDifficulty"`
	Random     *common.Hash          `json:"currentRandom,omitempty"`
	GasLimit   math.HexOrDecimal64   `json:"currentGasLimit"`
	Number     math.HexOrDecimal64   `json:"currentNumber"`
	Timestamp  math.HexOrDecimal64   `json:"currentTimestamp"`
	BaseFee    *math.HexOrDecimal256 `json:"currentBaseFee,omitempty"`

	ParentDifficulty *math.HexOrDecimal256 `json:"parentDifficulty"`
	ParentTimestamp  math.HexOrDecimal64   `json:"parentTimestamp"`
	ParentGasUsed    math.HexOrDecimal64   `json:"parentGasUsed"`
	ParentGasLimit   math.HexOrDecimal64   `json:"parentGasLimit"`
	ParentBaseFee    *math.HexOrDecimal256 `json:"parentBaseFee,omitempty"`
	ParentUncleHash  common.Hash           `json:"parentUncleHash"`

	BlockHashes map[string]common.Hash `json:"blockHashes"`
	Ommers      []ommer                `json:"ommers"`
	// Withdrawals is nil before Shanghai so the key is left out; an empty
	// list must still be written afterwards.
	Withdrawals *[]*types.Withdrawal `json:"withdrawals,omitempty"`
}

func hexBig(i *big.Int) *math.HexOrDecimal256 {
	if i == nil {
		i = new(big.Int)
	}
	return (*math.HexOrDecimal256)(i)
}

// newEnv builds the environment for applying block on top of chain.
func newEnv(chain *replay.Chain, block *types.Block, proofOfStake bool) *env {
	h := block.Header
	parent := chain.Head().Header
	e := &env{
		Coinbase:   h.Coinbase,
		Difficulty: hexBig(h.Difficulty),
		GasLimit:   math.HexOrDecimal64(h.GasLimit),
		Number:     math.HexOrDecimal64(h.Number),
		Timestamp:  math.HexOrDecimal64(h.Time),

		ParentDifficulty: hexBig(parent.Difficulty),
		ParentTimestamp:  math.HexOrDecimal64(parent.Time),
		ParentGasUsed:    math.HexOrDecimal64(parent.GasUsed),
		ParentGasLimit:   math.HexOrDecimal64(parent.GasLimit),
		ParentUncleHash:  parent.OmmersHash,

		BlockHashes: make(map[string]common.Hash),
		Ommers:      make([]ommer, 0, len(block.Ommers)),
	}
	if proofOfStake {
		random := h.MixDigest
		e.Random = &random
	}
	if h.Format.HasBaseFee() {
		e.BaseFee = hexBig(h.BaseFee)
	}
	if parent.Format.HasBaseFee() {
		e.ParentBaseFee = hexBig(parent.BaseFee)
	}
	for _, b := range chain.Ancestors(blockHashWindow) {
		e.BlockHashes[strconv.FormatUint(b.Number(), 10)] = b.Hash()
	}
	for _, o := range block.Ommers {
		e.Ommers = append(e.Ommers, ommer{Delta: h.Number - o.Number, Address: o.Coinbase})
	}
	if h.Format.HasWithdrawals() {
		ws := block.Withdrawals
		if ws == nil {
			ws = []*types.Withdrawal{}
		}
		e.Withdrawals = &ws
	}
	return e
}
