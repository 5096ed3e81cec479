package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePre = `{
	"0x095e7baea6a6c7c4c2dfeb977efac326af552d87": {
		"balance": "0x0de0b6b3a7640000",
		"code": "0x600160005500",
		"nonce": "0x00",
		"storage": {"0x00": "0x01", "0x02": "0x00"}
	},
	"a94f5374fce5edbc8e2a8697c15331677e6ebf0b": {
		"balance": "1000000000",
		"code": "",
		"nonce": "0x01",
		"storage": {}
	}
}`

func TestAllocUnmarshalJSON(t *testing.T) {
	var alloc Alloc
	require.NoError(t, json.Unmarshal([]byte(fixturePre), &alloc))
	require.Len(t, alloc, 2)

	b := alloc[bob]
	require.NotNil(t, b)
	assert.Equal(t, uint256.NewInt(1_000_000_000_000_000_000), b.Balance)
	assert.Equal(t, []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00}, b.Code)
	// Zero-valued slots are dropped on decode.
	assert.Equal(t, map[common.Hash]common.Hash{{}: common.HexToHash("0x01")}, b.Storage)

	a := alloc[alice]
	require.NotNil(t, a)
	assert.Equal(t, uint64(1), a.Nonce)
	assert.Equal(t, uint256.NewInt(1_000_000_000), a.Balance)
	assert.Nil(t, a.Code)
}

func TestAllocUnmarshalJSON_Invalid(t *testing.T) {
	tests := map[string]string{
		"address": `{"0x1234": {"balance": "0x00", "nonce": "0x00", "code": "0x", "storage": {}}}`,
		"code":    `{"0x095e7baea6a6c7c4c2dfeb977efac326af552d87": {"balance": "0x00", "nonce": "0x00", "code": "0xzz", "storage": {}}}`,
		"slot":    `{"0x095e7baea6a6c7c4c2dfeb977efac326af552d87": {"balance": "0x00", "nonce": "0x00", "code": "0x", "storage": {"nope": "0x01"}}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			var alloc Alloc
			assert.Error(t, alloc.UnmarshalJSON([]byte(input)))
		})
	}
}

func TestAllocMarshalJSON_DecodesBack(t *testing.T) {
	want := testAlloc()
	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got Alloc
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Empty(t, DiffAllocs(got, want))
}

func TestAlloc_Addresses(t *testing.T) {
	assert.Equal(t, []common.Address{bob, alice}, testAlloc().Addresses())
}
