// Package testutil builds synthetic blockchain test fixtures and provides
// deterministic helpers for tests.
package testutil

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"

	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sender is the funded account of every synthetic fixture.
var Sender = common.HexToAddress("0xa94f5374fce5edbc8e2a8697c15331677e6ebf0b")

// Fixture describes one synthetic test object. Build produces headers with
// correct hashes and encodings; the Block options break them on purpose.
type Fixture struct {
	Network    string
	SealEngine string
	ChainID    *uint64
	Pre        state.Alloc
	// Post defaults to Pre, the result of an engine that changes nothing.
	Post          state.Alloc
	OmitPostState bool

	format types.HeaderFormat
	blocks []BlockSpec
}

// BlockSpec describes one block of a synthetic fixture.
type BlockSpec struct {
	Transactions    []*types.Transaction
	ExpectException string
	// BadHash declares a header hash that does not match the header.
	BadHash bool
	// BadRLP declares an encoding that differs from the block.
	BadRLP bool
	// RLPOnly omits blockHeader and the body fields, leaving only rlp.
	RLPOnly bool
	// RawRLP replaces the rlp field and implies RLPOnly.
	RawRLP []byte
}

// NewFixture returns a fixture for network with one funded account and no
// blocks. It panics if network is unknown.
func NewFixture(network string) *Fixture {
	f, err := fork.Lookup(network)
	if err != nil {
		panic(err)
	}
	return &Fixture{
		Network:    network,
		SealEngine: "NoProof",
		Pre: state.Alloc{
			Sender: {
				Nonce:   0,
				Balance: uint256.NewInt(1_000_000_000_000_000_000),
				Storage: map[common.Hash]common.Hash{},
			},
		},
		format: f.Format,
	}
}

// AddBlock appends a block and returns f.
func (f *Fixture) AddBlock(spec BlockSpec) *Fixture {
	f.blocks = append(f.blocks, spec)
	return f
}

// AddBlocks appends n default blocks and returns f.
func (f *Fixture) AddBlocks(n int) *Fixture {
	for i := 0; i < n; i++ {
		f.AddBlock(BlockSpec{})
	}
	return f
}

// Genesis returns the genesis header of the fixture.
func (f *Fixture) Genesis() *types.Header {
	h := &types.Header{
		Format:      f.format,
		OmmersHash:  types.EmptyOmmersHash,
		Coinbase:    common.HexToAddress("0x2adc25665018aa1fe0e6bc666dac8fc2697ff9ba"),
		Root:        common.HexToHash("0xf99eb1626cfa6db435c0836235942d7ccaa935f1ae247d3f1c21e495685f903a"),
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Difficulty:  big.NewInt(0x20000),
		GasLimit:    0x016345785d8a0000,
		Extra:       []byte{0x00},
	}
	if f.format.HasBaseFee() {
		h.BaseFee = big.NewInt(10)
	}
	if f.format.HasWithdrawals() {
		root := types.EmptyRootHash
		h.WithdrawalsRoot = &root
		h.Difficulty = new(big.Int)
	}
	return h
}

// Blocks returns the blocks Build encodes, in order.
func (f *Fixture) Blocks() []*types.Block {
	parent := f.Genesis()
	blocks := make([]*types.Block, len(f.blocks))
	for i, spec := range f.blocks {
		h := parent.Copy()
		h.ParentHash = parent.Hash()
		h.Number = parent.Number + 1
		h.Time = parent.Time + 12
		h.Extra = []byte{byte(i)}
		txs := spec.Transactions
		if txs == nil {
			txs = []*types.Transaction{}
		}
		b := &types.Block{Header: h, Transactions: txs, Ommers: []*types.Header{}}
		if f.format.HasWithdrawals() {
			b.Withdrawals = []*types.Withdrawal{}
		}
		blocks[i] = b
		parent = h
	}
	return blocks
}

// Build returns the JSON test object.
func (f *Fixture) Build() map[string]interface{} {
	genesis := f.Genesis()
	genesisJSON := headerObject(genesis)
	if f.ChainID != nil {
		genesisJSON["chainId"] = hexutil.Uint64(*f.ChainID).String()
	}
	genesisRLP, err := types.EncodeBlock(types.NewGenesisBlock(genesis))
	if err != nil {
		panic(err)
	}

	last := genesis.Hash()
	blocks := make([]interface{}, 0, len(f.blocks))
	for i, b := range f.Blocks() {
		spec := f.blocks[i]
		enc, err := types.EncodeBlock(b)
		if err != nil {
			panic(err)
		}
		last = b.Hash()

		obj := map[string]interface{}{}
		if spec.BadRLP {
			enc = append(enc[:len(enc):len(enc)], 0x80)
		}
		if spec.RawRLP != nil {
			enc = spec.RawRLP
		}
		obj["rlp"] = hexutil.Encode(enc)
		if spec.ExpectException != "" {
			obj["expectException"] = spec.ExpectException
		}
		if !spec.RLPOnly && spec.RawRLP == nil {
			header := headerObject(b.Header)
			if spec.BadHash {
				header["hash"] = common.Hash{0xba, 0xd0}.Hex()
			}
			obj["blockHeader"] = header
			obj["transactions"] = b.Transactions
			obj["uncleHeaders"] = []interface{}{}
			if b.Withdrawals != nil {
				obj["withdrawals"] = b.Withdrawals
			}
		}
		blocks = append(blocks, obj)
	}

	test := map[string]interface{}{
		"network":            f.Network,
		"sealEngine":         f.SealEngine,
		"genesisBlockHeader": genesisJSON,
		"genesisRLP":         hexutil.Encode(genesisRLP),
		"pre":                f.Pre,
		"blocks":             blocks,
		"lastblockhash":      last.Hex(),
	}
	if !f.OmitPostState {
		post := f.Post
		if post == nil {
			post = f.Pre
		}
		test["postState"] = post
	}
	return test
}

// LastBlockHash returns the hash Build records as lastblockhash.
func (f *Fixture) LastBlockHash() common.Hash {
	blocks := f.Blocks()
	if len(blocks) == 0 {
		return f.Genesis().Hash()
	}
	return blocks[len(blocks)-1].Hash()
}

func headerObject(h *types.Header) map[string]interface{} {
	data, err := h.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		panic(err)
	}
	return obj
}

// WriteFixtureFile writes tests as a fixture file at dir/name and returns
// its path. Intermediate directories are created.
func WriteFixtureFile(t testing.TB, dir, name string, tests map[string]*Fixture) string {
	t.Helper()
	obj := make(map[string]interface{}, len(tests))
	for key, f := range tests {
		obj[key] = f.Build()
	}
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
