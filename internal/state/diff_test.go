package state

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDiff(t *testing.T) {
	ctx := context.Background()
	a := createTestStore(t)
	b := createTestStore(t)
	require.NoError(t, a.Load(ctx, testAlloc()))
	require.NoError(t, b.Load(ctx, testAlloc()))

	equal, err := a.Equal(ctx, b)
	require.NoError(t, err)
	assert.True(t, equal)

	require.NoError(t, b.SetStorage(ctx, bob, common.HexToHash("0x01"), common.HexToHash("0xfe")))
	diff, err := a.Diff(ctx, b)
	require.NoError(t, err)
	assert.NotEmpty(t, diff)

	equal, err = a.Equal(ctx, b)
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestDiffAllocs_Normalizes(t *testing.T) {
	got := Alloc{alice: {Balance: nil, Code: []byte{}}}
	want := Alloc{alice: {
		Balance: new(uint256.Int),
		Storage: map[common.Hash]common.Hash{common.HexToHash("0x01"): {}},
	}}
	assert.Empty(t, DiffAllocs(got, want))
}

func TestDiffAllocs_MissingAccount(t *testing.T) {
	got := testAlloc()
	want := testAlloc()
	delete(got, alice)
	assert.NotEmpty(t, DiffAllocs(got, want))
}
