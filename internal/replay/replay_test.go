package replay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ethconform/internal/fixture"
	"github.com/roach88/ethconform/internal/replay"
	"github.com/roach88/ethconform/internal/replay/replaytest"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/testutil"
	"github.com/roach88/ethconform/internal/types"
)

func decode(t *testing.T, f *testutil.Fixture) *fixture.Test {
	t.Helper()
	path := testutil.WriteFixtureFile(t, t.TempDir(), "suite/case.json", map[string]*testutil.Fixture{"case": f})
	test, err := fixture.NewDecoder().Decode(fixture.TestCaseRef{File: path, Key: "case"})
	require.NoError(t, err)
	return test
}

func hashes(blocks []*types.Block) []common.Hash {
	out := make([]common.Hash, len(blocks))
	for i, b := range blocks {
		out[i] = b.Hash()
	}
	return out
}

func TestRun_Valid(t *testing.T) {
	for _, network := range []string{"Berlin", "London", "Shanghai"} {
		t.Run(network, func(t *testing.T) {
			f := testutil.NewFixture(network).AddBlocks(3)
			test := decode(t, f)
			eng := &replaytest.Engine{}

			require.NoError(t, replay.Run(context.Background(), test, eng, replay.Options{}))
			assert.Equal(t, hashes(test.Blocks), eng.Applied())
			assert.Equal(t, 1, eng.Closed())
		})
	}
}

func TestRun_NoProofRecordsOneHookCallPerBlock(t *testing.T) {
	f := testutil.NewFixture("London").AddBlocks(3)
	test := decode(t, f)
	require.True(t, test.ConsensusBypass)

	// The engine's own seal check rejects everything; the bypass must hide it.
	eng := &replaytest.Engine{SealErr: errors.New("bad seal")}
	require.NoError(t, replay.Run(context.Background(), test, eng, replay.Options{}))

	rec, ok := eng.Validator().(*replay.RecordingValidator)
	require.True(t, ok)
	assert.True(t, rec.Bypassed())
	assert.Equal(t, hashes(test.Blocks), rec.Calls())
}

func TestRun_ProofOfWorkUsesEngineValidator(t *testing.T) {
	f := testutil.NewFixture("London").AddBlocks(2)
	f.SealEngine = "Ethash"
	test := decode(t, f)
	sealErr := errors.New("bad seal")
	eng := &replaytest.Engine{SealErr: sealErr}

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	require.Error(t, err)
	assert.True(t, replay.IsKind(err, replay.KindStateTransitionFailed))
	assert.Equal(t, 0, replay.IndexOf(err))
	assert.ErrorIs(t, err, sealErr)
}

func TestRun_ProofOfStakeEngineNeedsNoBypass(t *testing.T) {
	test := decode(t, testutil.NewFixture("Shanghai").AddBlocks(2))
	eng := &replaytest.Engine{PoS: true, SealErr: errors.New("never called")}

	require.NoError(t, replay.Run(context.Background(), test, eng, replay.Options{}))
	rec := eng.Validator().(*replay.RecordingValidator)
	assert.False(t, rec.Bypassed())
	assert.Empty(t, rec.Calls())
}

func TestRun_HookMismatchWhenEngineSkipsSealCheck(t *testing.T) {
	test := decode(t, testutil.NewFixture("London").AddBlocks(2))
	eng := &replaytest.Engine{SkipSealCheck: true}

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	assert.True(t, replay.IsKind(err, replay.KindPoWHookMismatch), "got %v", err)
	assert.Equal(t, 1, eng.Closed())
}

func TestRun_InvalidBlockStopsChain(t *testing.T) {
	test := decode(t, testutil.NewFixture("London").AddBlocks(4))
	eng := replaytest.RejectAt(3)

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	require.Error(t, err)
	assert.Equal(t, replay.KindStateTransitionFailed, replay.KindOf(err))
	assert.Equal(t, 2, replay.IndexOf(err))
	assert.ErrorIs(t, err, replaytest.ErrInvalidBlock)
	assert.Equal(t, hashes(test.Blocks[:2]), eng.Applied())
	assert.Equal(t, 3, eng.Calls())
	assert.Equal(t, 1, eng.Closed())
}

func TestRun_SecondBlockHashMismatch(t *testing.T) {
	f := testutil.NewFixture("London").
		AddBlock(testutil.BlockSpec{}).
		AddBlock(testutil.BlockSpec{BadHash: true})
	test := decode(t, f)
	eng := &replaytest.Engine{}

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	require.Error(t, err)
	assert.Equal(t, replay.KindBlockHashMismatch, replay.KindOf(err))
	assert.Equal(t, 1, replay.IndexOf(err))
	assert.Equal(t, "BlockHashMismatch(1)", err.Error()[:len("BlockHashMismatch(1)")])
	// Apply ran for the first block only.
	assert.Equal(t, 1, eng.Calls())
	assert.Equal(t, 1, eng.Closed())
}

func TestRun_BlockEncodingMismatch(t *testing.T) {
	f := testutil.NewFixture("Berlin").
		AddBlock(testutil.BlockSpec{BadRLP: true})
	test := decode(t, f)
	eng := &replaytest.Engine{}

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	assert.Equal(t, replay.KindBlockEncodingMismatch, replay.KindOf(err))
	assert.Equal(t, 0, replay.IndexOf(err))
	assert.Zero(t, eng.Calls())
}

func TestRun_GenesisHashMismatch(t *testing.T) {
	test := decode(t, testutil.NewFixture("London").AddBlocks(1))
	test.GenesisHash = common.Hash{1}
	eng := &replaytest.Engine{}

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	assert.Equal(t, replay.KindGenesisHashMismatch, replay.KindOf(err))
	assert.Equal(t, -1, replay.IndexOf(err))
	assert.Zero(t, eng.Calls())
}

func TestRun_GenesisEncodingModes(t *testing.T) {
	tests := []struct {
		network string
		mode    replay.GenesisRLPMode
		checked bool
	}{
		{"London", replay.GenesisRLPAuto, true},
		{"Shanghai", replay.GenesisRLPAuto, false},
		{"Shanghai", replay.GenesisRLPAlways, true},
		{"London", replay.GenesisRLPNever, false},
	}
	for _, tt := range tests {
		t.Run(tt.network+"/"+string(tt.mode), func(t *testing.T) {
			test := decode(t, testutil.NewFixture(tt.network))
			test.GenesisRLP = append(test.GenesisRLP, 0x00)

			err := replay.Run(context.Background(), test, &replaytest.Engine{}, replay.Options{GenesisRLP: tt.mode})
			if tt.checked {
				assert.Equal(t, replay.KindGenesisEncodingMismatch, replay.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRun_FinalHashMismatch(t *testing.T) {
	test := decode(t, testutil.NewFixture("London").AddBlocks(2))
	test.LastBlockHash = test.BlockHashes[0]

	err := replay.Run(context.Background(), test, &replaytest.Engine{}, replay.Options{})
	assert.Equal(t, replay.KindFinalHashMismatch, replay.KindOf(err))
}

func TestRun_PostStateMismatch(t *testing.T) {
	f := testutil.NewFixture("London").AddBlocks(1)
	f.Post = state.Alloc{
		testutil.Sender: {Balance: uint256.NewInt(1)},
	}
	test := decode(t, f)
	eng := &replaytest.Engine{}

	err := replay.Run(context.Background(), test, eng, replay.Options{})
	require.Error(t, err)
	assert.Equal(t, replay.KindPostStateMismatch, replay.KindOf(err))
	assert.Contains(t, err.Error(), "Balance")
	assert.Equal(t, 1, eng.Closed())

	assert.NoError(t, replay.Run(context.Background(), test, &replaytest.Engine{}, replay.Options{SkipPostState: true}))
}

func TestRun_EngineMutatesState(t *testing.T) {
	recipient := common.HexToAddress("0x1000000000000000000000000000000000000001")
	f := testutil.NewFixture("London").AddBlocks(2)
	f.Post = state.Alloc{
		testutil.Sender: f.Pre[testutil.Sender],
		recipient:       {Balance: uint256.NewInt(2)},
	}
	test := decode(t, f)

	eng := &replaytest.Engine{
		Apply: func(ctx context.Context, chain *replay.Chain, block *types.Block) error {
			return chain.State.PutAccount(ctx, recipient, &state.Account{Balance: uint256.NewInt(block.Number())})
		},
	}
	require.NoError(t, replay.Run(context.Background(), test, eng, replay.Options{}))
}

func TestRun_Idempotent(t *testing.T) {
	test := decode(t, testutil.NewFixture("London").AddBlocks(3))

	var kinds []replay.Kind
	var indexes []int
	for i := 0; i < 2; i++ {
		err := replay.Run(context.Background(), test, replaytest.RejectAt(2), replay.Options{})
		kinds = append(kinds, replay.KindOf(err))
		indexes = append(indexes, replay.IndexOf(err))
	}
	assert.Equal(t, []replay.Kind{replay.KindStateTransitionFailed, replay.KindStateTransitionFailed}, kinds)
	assert.Equal(t, []int{1, 1}, indexes)
}

func TestRun_IdempotentFromDisk(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFixtureFile(t, root, "suite/case.json", map[string]*testutil.Fixture{
		"case": testutil.NewFixture("London").AddBlock(testutil.BlockSpec{}).AddBlock(testutil.BlockSpec{BadHash: true}),
	})

	outcome := func() error {
		d, err := fixture.NewDiscoverer(fixture.DiscoverConfig{Root: root, Network: "London"})
		require.NoError(t, err)
		for c, err := range d.Discover() {
			require.NoError(t, err)
			test, err := fixture.NewDecoder().Decode(c.Ref)
			require.NoError(t, err)
			return replay.Run(context.Background(), test, &replaytest.Engine{}, replay.Options{})
		}
		t.Fatal("no case discovered")
		return nil
	}
	first, second := outcome(), outcome()
	assert.Equal(t, replay.KindOf(first), replay.KindOf(second))
	assert.Equal(t, replay.IndexOf(first), replay.IndexOf(second))
	assert.Equal(t, first.Error(), second.Error())
	_, err := os.Stat(filepath.Join(root, "suite/case.json"))
	assert.NoError(t, err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "StateTransitionFailed", replay.KindStateTransitionFailed.String())
	k, err := replay.ParseKind("BlockHashMismatch")
	require.NoError(t, err)
	assert.Equal(t, replay.KindBlockHashMismatch, k)
	_, err = replay.ParseKind("Unknown")
	assert.Error(t, err)
	assert.Equal(t, replay.KindUnknown, replay.KindOf(errors.New("plain")))
	assert.False(t, replay.IsKind(nil, replay.KindUnknown))
}

func TestParseGenesisRLPMode(t *testing.T) {
	m, err := replay.ParseGenesisRLPMode("")
	require.NoError(t, err)
	assert.Equal(t, replay.GenesisRLPAuto, m)
	m, err = replay.ParseGenesisRLPMode("never")
	require.NoError(t, err)
	assert.Equal(t, replay.GenesisRLPNever, m)
	_, err = replay.ParseGenesisRLPMode("sometimes")
	assert.Error(t, err)
}
