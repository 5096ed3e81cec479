package t8n

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ethconform/internal/fixture"
	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/harness"
	"github.com/roach88/ethconform/internal/replay"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/testutil"
	"github.com/roach88/ethconform/internal/types"
)

// fakeTool is a shell script standing in for a transition tool. It saves
// its arguments and inputs to ctl and answers with ctl/result.json. It fails
// with the content of ctl/fail when that file exists, and replaces the
// output state with ctl/alloc.json when that file exists.
const fakeTool = `#!/bin/sh
ctl='%s'
printf '%%s\n' "$@" > "$ctl/args"
while [ $# -gt 0 ]; do
  case "$1" in
    --input.alloc) alloc=$2; shift ;;
    --input.env) env=$2; shift ;;
    --input.txs) txs=$2; shift ;;
    --output.basedir) base=$2; shift ;;
    --output.alloc) outalloc=$2; shift ;;
    --output.result) outresult=$2; shift ;;
  esac
  shift
done
cp "$env" "$ctl/env.json"
cp "$txs" "$ctl/txs.rlp"
if [ -f "$ctl/fail" ]; then
  cat "$ctl/fail" >&2
  exit 3
fi
if [ -f "$ctl/alloc.json" ]; then
  cp "$ctl/alloc.json" "$base/$outalloc"
else
  cp "$alloc" "$base/$outalloc"
fi
cp "$ctl/result.json" "$base/$outresult"
`

type toolHarness struct {
	script string
	ctl    string
}

func newFakeTool(t *testing.T) *toolHarness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake transition tool needs /bin/sh")
	}
	dir := t.TempDir()
	ctl := filepath.Join(dir, "ctl")
	require.NoError(t, os.Mkdir(ctl, 0o755))
	script := filepath.Join(dir, "fake-t8n")
	require.NoError(t, os.WriteFile(script, []byte(fmt.Sprintf(fakeTool, ctl)), 0o755))
	return &toolHarness{script: script, ctl: ctl}
}

// answer makes the tool report res.
func (h *toolHarness) answer(t *testing.T, res result) {
	t.Helper()
	data, err := json.Marshal(&res)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.ctl, "result.json"), data, 0o644))
}

func (h *toolHarness) read(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.ctl, name))
	require.NoError(t, err)
	return data
}

func (h *toolHarness) engine(t *testing.T, network string) *Engine {
	t.Helper()
	f, err := fork.Lookup(network)
	require.NoError(t, err)
	return New(Config{Command: h.script, Args: []string{"t8n"}, Fork: f, WorkDir: t.TempDir()})
}

// matching returns a result that agrees with the header of every block of a
// synthetic fixture.
func matching(f *testutil.Fixture) result {
	return result{
		StateRoot:   f.Genesis().Root,
		TxRoot:      types.EmptyRootHash,
		ReceiptRoot: types.EmptyRootHash,
		LogsHash:    types.EmptyOmmersHash,
	}
}

func newChain(t *testing.T, f *testutil.Fixture) *replay.Chain {
	t.Helper()
	st, err := state.Open(state.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Load(context.Background(), f.Pre))
	return &replay.Chain{
		Blocks:  []*types.Block{types.NewGenesisBlock(f.Genesis())},
		State:   st,
		ChainID: 1,
		PoW:     replay.NewRecordingValidator(nil),
	}
}

func TestStateTransition_ReplacesState(t *testing.T) {
	tool := newFakeTool(t)
	f := testutil.NewFixture("London").AddBlocks(1)
	tool.answer(t, matching(f))

	coinbase := common.HexToAddress("0x2adc25665018aa1fe0e6bc666dac8fc2697ff9ba")
	out := state.Alloc{
		testutil.Sender: {Nonce: 1, Balance: uint256.NewInt(5)},
		coinbase:        {Balance: uint256.NewInt(2_000_000_000_000_000_000)},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tool.ctl, "alloc.json"), data, 0o644))

	chain := newChain(t, f)
	eng := tool.engine(t, "London")
	require.NoError(t, eng.StateTransition(context.Background(), chain, f.Blocks()[0]))

	got, err := chain.State.Dump(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.DiffAllocs(got, out))
	assert.Len(t, chain.Blocks, 1, "the engine must not extend the chain")
}

func TestStateTransition_PassesFlags(t *testing.T) {
	tool := newFakeTool(t)
	f := testutil.NewFixture("Byzantium").AddBlocks(1)
	tool.answer(t, matching(f))

	chain := newChain(t, f)
	chain.ChainID = 5
	require.NoError(t, tool.engine(t, "Byzantium").StateTransition(context.Background(), chain, f.Blocks()[0]))

	args := strings.Split(strings.TrimSpace(string(tool.read(t, "args"))), "\n")
	assert.Equal(t, "t8n", args[0])
	flags := map[string]string{}
	for i := 1; i+1 < len(args); i += 2 {
		flags[args[i]] = args[i+1]
	}
	assert.Equal(t, "Byzantium", flags["--state.fork"])
	assert.Equal(t, "5", flags["--state.chainid"])
	assert.Equal(t, "3000000000000000000", flags["--state.reward"])
	assert.Equal(t, outAllocFile, flags["--output.alloc"])
	assert.Equal(t, resultFile, flags["--output.result"])
	assert.True(t, filepath.IsAbs(flags["--input.alloc"]))
}

func TestStateTransition_ProofOfStakeDisablesReward(t *testing.T) {
	tool := newFakeTool(t)
	f := testutil.NewFixture("Paris").AddBlocks(1)
	tool.answer(t, matching(f))

	eng := tool.engine(t, "Paris")
	assert.True(t, eng.ProofOfStake())
	require.NoError(t, eng.StateTransition(context.Background(), newChain(t, f), f.Blocks()[0]))
	assert.Contains(t, string(tool.read(t, "args")), "--state.reward\n-1\n")

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(tool.read(t, "env.json"), &env))
	assert.Contains(t, env, "currentRandom")
}

func TestStateTransition_WritesEnvironment(t *testing.T) {
	tool := newFakeTool(t)
	f := testutil.NewFixture("London").AddBlocks(1)
	tool.answer(t, matching(f))

	chain := newChain(t, f)
	block := f.Blocks()[0]
	require.NoError(t, tool.engine(t, "London").StateTransition(context.Background(), chain, block))

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(tool.read(t, "env.json"), &env))
	assert.Equal(t, "0x1", env["currentNumber"])
	assert.Equal(t, strings.ToLower(block.Header.Coinbase.Hex()), strings.ToLower(env["currentCoinbase"].(string)))
	assert.Equal(t, "0xa", env["currentBaseFee"])
	assert.Equal(t, map[string]interface{}{"0": chain.Head().Hash().Hex()}, env["blockHashes"])
	assert.Equal(t, []interface{}{}, env["ommers"])
	assert.NotContains(t, env, "withdrawals")
	assert.NotContains(t, env, "currentRandom")

	var txs hexutil.Bytes
	require.NoError(t, json.Unmarshal(tool.read(t, "txs.rlp"), &txs))
	assert.Equal(t, hexutil.Bytes{0xc0}, txs)
}

func TestNewEnv_Shanghai(t *testing.T) {
	f := testutil.NewFixture("Shanghai").AddBlocks(1)
	chain := &replay.Chain{Blocks: []*types.Block{types.NewGenesisBlock(f.Genesis())}}
	block := f.Blocks()[0]
	block.Withdrawals = nil

	e := newEnv(chain, block, true)
	require.NotNil(t, e.Withdrawals)
	assert.Empty(t, *e.Withdrawals)
	require.NotNil(t, e.Random)
	assert.Equal(t, block.Header.MixDigest, *e.Random)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"withdrawals":[]`)
}

func TestNewEnv_Ommers(t *testing.T) {
	f := testutil.NewFixture("Berlin").AddBlocks(3)
	blocks := f.Blocks()
	chain := &replay.Chain{Blocks: []*types.Block{types.NewGenesisBlock(f.Genesis()), blocks[0], blocks[1]}}

	uncle := blocks[0].Header.Copy()
	uncle.Coinbase = common.HexToAddress("0x01")
	block := blocks[2]
	block.Ommers = []*types.Header{uncle}

	e := newEnv(chain, block, false)
	assert.Equal(t, []ommer{{Delta: 2, Address: uncle.Coinbase}}, e.Ommers)
	assert.Len(t, e.BlockHashes, 3)
	assert.Nil(t, e.Random)
	assert.Nil(t, e.BaseFee)
}

func TestStateTransition_RejectedTransaction(t *testing.T) {
	tool := newFakeTool(t)
	f := testutil.NewFixture("London").AddBlocks(1)
	res := matching(f)
	res.Rejected = []rejectedTx{{Index: 0, Error: "intrinsic gas too low"}}
	tool.answer(t, res)

	err := tool.engine(t, "London").StateTransition(context.Background(), newChain(t, f), f.Blocks()[0])
	require.ErrorIs(t, err, ErrTxRejected)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "intrinsic gas too low", rej.Reason)
}

func TestStateTransition_Mismatches(t *testing.T) {
	f := testutil.NewFixture("London").AddBlocks(1)
	tests := []struct {
		field  string
		mutate func(*result)
	}{
		{"stateRoot", func(r *result) { r.StateRoot = common.Hash{1} }},
		{"txRoot", func(r *result) { r.TxRoot = common.Hash{2} }},
		{"receiptsRoot", func(r *result) { r.ReceiptRoot = common.Hash{3} }},
		{"gasUsed", func(r *result) { r.GasUsed = math.HexOrDecimal64(21000) }},
		{"logsBloom", func(r *result) { r.Bloom[0] = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			tool := newFakeTool(t)
			res := matching(f)
			tt.mutate(&res)
			tool.answer(t, res)

			err := tool.engine(t, "London").StateTransition(context.Background(), newChain(t, f), f.Blocks()[0])
			require.ErrorIs(t, err, ErrMismatch)
			var mm *MismatchError
			require.ErrorAs(t, err, &mm)
			assert.Equal(t, tt.field, mm.Field)
		})
	}
}

func TestStateTransition_ToolFailure(t *testing.T) {
	tool := newFakeTool(t)
	f := testutil.NewFixture("London").AddBlocks(1)
	require.NoError(t, os.WriteFile(filepath.Join(tool.ctl, "fail"), []byte("unsupported fork\n"), 0o644))

	err := tool.engine(t, "London").StateTransition(context.Background(), newChain(t, f), f.Blocks()[0])
	require.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "unsupported fork")
}

func TestStateTransition_MissingCommand(t *testing.T) {
	f := testutil.NewFixture("London").AddBlocks(1)
	eng := New(Config{Command: filepath.Join(t.TempDir(), "missing"), Fork: fork.Fork{Name: "London"}})

	err := eng.StateTransition(context.Background(), newChain(t, f), f.Blocks()[0])
	require.ErrorIs(t, err, ErrToolFailed)
}

func TestStateTransition_SealCheckedForProofOfWork(t *testing.T) {
	f := testutil.NewFixture("London").AddBlocks(1)
	chain := newChain(t, f)
	sealErr := errors.New("bad seal")
	chain.PoW = replay.PoWValidatorFunc(func(*types.Header) error { return sealErr })

	eng := New(Config{Command: "unused", Fork: fork.Fork{Name: "London", BlockReward: big.NewInt(2)}})
	err := eng.StateTransition(context.Background(), chain, f.Blocks()[0])
	require.ErrorIs(t, err, sealErr)
	assert.Contains(t, err.Error(), "seal")
}

func TestNew_Defaults(t *testing.T) {
	eng := New(Config{})
	assert.Equal(t, DefaultCommand, eng.cfg.Command)
	assert.NoError(t, eng.PoWValidator().ValidateProofOfWork(&types.Header{}))

	st, err := state.Open(state.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, eng.CloseState(st))
	assert.True(t, st.Closed())
}

func TestEngine_ReplaysThroughDriver(t *testing.T) {
	tool := newFakeTool(t)
	root := t.TempDir()
	tests := map[string]*testutil.Fixture{
		"twoBlocks":   testutil.NewFixture("London").AddBlocks(2),
		"threeBlocks": testutil.NewFixture("London").AddBlocks(3),
	}
	testutil.WriteFixtureFile(t, root, "t8n/cases.json", tests)
	tool.answer(t, matching(tests["twoBlocks"]))

	d, err := harness.New(harness.Config{
		Discover:      fixture.DiscoverConfig{Root: root, Network: "London"},
		EngineFactory: NewFactory(Config{Command: tool.script, WorkDir: t.TempDir()}),
		Parallel:      2,
	})
	require.NoError(t, err)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Passed, "%+v", report.Failures())
}
