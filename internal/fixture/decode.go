package fixture

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

// NoProof is the sealEngine value of fixtures whose blocks carry no valid
// proof-of-work seal.
const NoProof = "NoProof"

// DefaultCacheSize is the number of parsed fixture files a Decoder keeps.
const DefaultCacheSize = 16

// Test is a decoded test object. It is built once and not modified
// afterwards. Blocks, BlockHashes, BlockRLPs and ExpectExceptions have the
// same length and are in fixture order.
type Test struct {
	Ref     TestCaseRef
	Network string
	Fork    fork.Fork

	GenesisHeader *types.Header
	ChainID       uint64
	GenesisHash   common.Hash
	GenesisRLP    []byte
	LastBlockHash common.Hash

	Pre  state.Alloc
	Post state.Alloc

	Blocks           []*types.Block
	BlockHashes      []common.Hash
	BlockRLPs        [][]byte
	ExpectExceptions []string

	// ConsensusBypass is set when the fixture was sealed by the NoProof
	// engine.
	ConsensusBypass bool
}

// ExpectsFailure returns the index of the first block the fixture expects to
// be rejected, or -1.
func (t *Test) ExpectsFailure() int {
	for i, exc := range t.ExpectExceptions {
		if exc != "" {
			return i
		}
	}
	return -1
}

// Decoder decodes test objects. Parsed files are cached, so decoding every
// case of one file reads and parses it once. A Decoder is safe for
// concurrent use.
type Decoder struct {
	files *lru.Cache[string, map[string]jsoniter.RawMessage]
}

// DecoderOption configures a Decoder.
type DecoderOption func(*decoderOptions)

type decoderOptions struct {
	cacheSize int
}

// WithCacheSize sets the number of parsed files kept in memory.
func WithCacheSize(n int) DecoderOption {
	return func(o *decoderOptions) {
		o.cacheSize = n
	}
}

// NewDecoder returns a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	o := decoderOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize <= 0 {
		o.cacheSize = 1
	}
	files, err := lru.New[string, map[string]jsoniter.RawMessage](o.cacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Decoder{files: files}
}

func (d *Decoder) file(path string) (map[string]jsoniter.RawMessage, error) {
	if tests, ok := d.files.Get(path); ok {
		return tests, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	var tests map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, errors.Wrapf(err, "parse fixture %s", path)
	}
	d.files.Add(path, tests)
	return tests, nil
}

type rawTest map[string]jsoniter.RawMessage

// has reports whether key is present and not null.
func (r rawTest) has(key string) bool {
	v, ok := r[key]
	return ok && string(v) != "null"
}

var requiredFields = []string{
	"genesisBlockHeader", "genesisRLP", "lastblockhash", "pre", "blocks", "sealEngine", "network",
}

// Decode reads and decodes the test object ref points at. A test without
// postState fails with ErrMissingPostState before any other check. Missing
// or ill-typed fields fail with a *DecodeError. A block whose RLP does not
// decode fails with a *BlockDecodingError.
func (d *Decoder) Decode(ref TestCaseRef) (*Test, error) {
	tests, err := d.file(ref.File)
	if err != nil {
		return nil, malformed(ref, "", err)
	}
	data, ok := tests[ref.Key]
	if !ok {
		return nil, malformed(ref, "", errors.New("test key not found"))
	}
	var raw rawTest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed(ref, "", errors.Wrap(err, "test is not an object"))
	}

	if !raw.has("postState") {
		return nil, errors.Wrap(ErrMissingPostState, ref.ID())
	}
	for _, field := range requiredFields {
		if !raw.has(field) {
			return nil, malformed(ref, field, errors.New("missing"))
		}
	}

	t := &Test{Ref: ref}
	if err := json.Unmarshal(raw["network"], &t.Network); err != nil {
		return nil, malformed(ref, "network", err)
	}
	if t.Fork, err = fork.Lookup(t.Network); err != nil {
		return nil, malformed(ref, "network", err)
	}
	format := t.Fork.Format

	if err := t.decodeGenesis(raw["genesisBlockHeader"], format); err != nil {
		return nil, malformed(ref, "genesisBlockHeader", err)
	}
	var genesisRLP hexutil.Bytes
	if err := json.Unmarshal(raw["genesisRLP"], &genesisRLP); err != nil {
		return nil, malformed(ref, "genesisRLP", err)
	}
	t.GenesisRLP = genesisRLP
	if err := json.Unmarshal(raw["lastblockhash"], &t.LastBlockHash); err != nil {
		return nil, malformed(ref, "lastblockhash", err)
	}
	if err := json.Unmarshal(raw["pre"], &t.Pre); err != nil {
		return nil, malformed(ref, "pre", err)
	}
	if err := json.Unmarshal(raw["postState"], &t.Post); err != nil {
		return nil, malformed(ref, "postState", err)
	}
	var sealEngine string
	if err := json.Unmarshal(raw["sealEngine"], &sealEngine); err != nil {
		return nil, malformed(ref, "sealEngine", err)
	}
	t.ConsensusBypass = sealEngine == NoProof

	var blocks []rawTest
	if err := json.Unmarshal(raw["blocks"], &blocks); err != nil {
		return nil, malformed(ref, "blocks", err)
	}
	t.Blocks = make([]*types.Block, 0, len(blocks))
	t.BlockHashes = make([]common.Hash, 0, len(blocks))
	t.BlockRLPs = make([][]byte, 0, len(blocks))
	t.ExpectExceptions = make([]string, 0, len(blocks))
	for i, rb := range blocks {
		if err := t.decodeBlock(i, rb, format); err != nil {
			return nil, err
		}
	}

	log.WithFields(logrus.Fields{
		"test":   ref.Name(),
		"blocks": len(t.Blocks),
		"bypass": t.ConsensusBypass,
	}).Debug("Decoded fixture")
	return t, nil
}

type headerExtras struct {
	Hash    *common.Hash         `json:"hash"`
	ChainID *math.HexOrDecimal64 `json:"chainId"`
}

func (t *Test) decodeGenesis(data []byte, format types.HeaderFormat) error {
	header, err := types.DecodeHeaderJSON(data, format)
	if err != nil {
		return err
	}
	var extras headerExtras
	if err := json.Unmarshal(data, &extras); err != nil {
		return err
	}
	if extras.Hash == nil {
		return errors.New("missing hash")
	}
	t.GenesisHeader = header
	t.GenesisHash = *extras.Hash
	t.ChainID = 1
	if extras.ChainID != nil {
		t.ChainID = uint64(*extras.ChainID)
	}
	return nil
}

func (t *Test) decodeBlock(i int, rb rawTest, format types.HeaderFormat) error {
	field := func(name string) string {
		return fmt.Sprintf("blocks[%d].%s", i, name)
	}

	var expect string
	if rb.has("expectException") {
		if err := json.Unmarshal(rb["expectException"], &expect); err != nil {
			return malformed(t.Ref, field("expectException"), err)
		}
	}
	if !rb.has("rlp") {
		return malformed(t.Ref, field("rlp"), errors.New("missing"))
	}
	var enc hexutil.Bytes
	if err := json.Unmarshal(rb["rlp"], &enc); err != nil {
		return malformed(t.Ref, field("rlp"), err)
	}

	var (
		block *types.Block
		hash  common.Hash
	)
	if rb.has("blockHeader") {
		header, err := types.DecodeHeaderJSON(rb["blockHeader"], format)
		if err != nil {
			return malformed(t.Ref, field("blockHeader"), err)
		}
		var extras headerExtras
		if err := json.Unmarshal(rb["blockHeader"], &extras); err != nil || extras.Hash == nil {
			return malformed(t.Ref, field("blockHeader.hash"), errors.New("missing hash"))
		}
		hash = *extras.Hash

		block = &types.Block{
			Header:       header,
			Transactions: []*types.Transaction{},
			Ommers:       []*types.Header{},
		}
		if rb.has("transactions") {
			if err := json.Unmarshal(rb["transactions"], &block.Transactions); err != nil {
				return malformed(t.Ref, field("transactions"), err)
			}
		}
		if rb.has("uncleHeaders") {
			var uncles []jsoniter.RawMessage
			if err := json.Unmarshal(rb["uncleHeaders"], &uncles); err != nil {
				return malformed(t.Ref, field("uncleHeaders"), err)
			}
			for j, raw := range uncles {
				ommer, err := types.DecodeHeaderJSON(raw, format)
				if err != nil {
					return malformed(t.Ref, field(fmt.Sprintf("uncleHeaders[%d]", j)), err)
				}
				block.Ommers = append(block.Ommers, ommer)
			}
		}
		if format.HasWithdrawals() {
			block.Withdrawals = []*types.Withdrawal{}
			if rb.has("withdrawals") {
				if err := json.Unmarshal(rb["withdrawals"], &block.Withdrawals); err != nil {
					return malformed(t.Ref, field("withdrawals"), err)
				}
			}
		}
	} else {
		decoded, err := types.DecodeBlock(enc, format)
		if err != nil {
			return &BlockDecodingError{Ref: t.Ref, Index: i, ExpectException: expect, Err: err}
		}
		block = decoded
		hash = decoded.Hash()
	}

	t.Blocks = append(t.Blocks, block)
	t.BlockHashes = append(t.BlockHashes, hash)
	t.BlockRLPs = append(t.BlockRLPs, enc)
	t.ExpectExceptions = append(t.ExpectExceptions, expect)
	return nil
}
