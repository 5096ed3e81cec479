package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(format HeaderFormat) *Header {
	h := &Header{
		Format:      format,
		ParentHash:  common.HexToHash("0x01"),
		OmmersHash:  EmptyOmmersHash,
		Coinbase:    common.HexToAddress("0x2adc25665018aa1fe0e6bc666dac8fc2697ff9ba"),
		Root:        common.HexToHash("0x02"),
		TxHash:      EmptyRootHash,
		ReceiptHash: EmptyRootHash,
		Difficulty:  big.NewInt(0x20000),
		Number:      1,
		GasLimit:    30_000_000,
		Time:        1000,
		Extra:       []byte{0x42},
	}
	if format.HasBaseFee() {
		h.BaseFee = big.NewInt(7)
	}
	if format.HasWithdrawals() {
		root := EmptyRootHash
		h.WithdrawalsRoot = &root
	}
	return h
}

func TestHeaderRLP_RoundTripPerFormat(t *testing.T) {
	for _, format := range []HeaderFormat{FormatLegacy, FormatLondon, FormatShanghai} {
		t.Run(format.String(), func(t *testing.T) {
			h := testHeader(format)
			enc, err := rlp.EncodeToBytes(h)
			require.NoError(t, err)

			var dec Header
			require.NoError(t, rlp.DecodeBytes(enc, &dec))
			assert.Equal(t, format, dec.Format)
			assert.Equal(t, h.Hash(), dec.Hash())
			assert.Equal(t, h.BaseFee, dec.BaseFee)
			assert.Equal(t, h.WithdrawalsRoot, dec.WithdrawalsRoot)

			reenc, err := rlp.EncodeToBytes(&dec)
			require.NoError(t, err)
			assert.Equal(t, enc, reenc)
		})
	}
}

func TestHeaderRLP_FieldCount(t *testing.T) {
	legacy, err := rlp.EncodeToBytes(testHeader(FormatLegacy))
	require.NoError(t, err)
	london, err := rlp.EncodeToBytes(testHeader(FormatLondon))
	require.NoError(t, err)
	shanghai, err := rlp.EncodeToBytes(testHeader(FormatShanghai))
	require.NoError(t, err)

	count := func(enc []byte) int {
		content, _, err := rlp.SplitList(enc)
		require.NoError(t, err)
		n, err := rlp.CountValues(content)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 15, count(legacy))
	assert.Equal(t, 16, count(london))
	assert.Equal(t, 17, count(shanghai))
}

func TestHeaderValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *Header)
		format HeaderFormat
	}{
		{
			name:   "legacy with base fee",
			format: FormatLegacy,
			mutate: func(h *Header) { h.BaseFee = big.NewInt(1) },
		},
		{
			name:   "london without base fee",
			format: FormatLondon,
			mutate: func(h *Header) { h.BaseFee = nil },
		},
		{
			name:   "london with withdrawals root",
			format: FormatLondon,
			mutate: func(h *Header) { h.WithdrawalsRoot = &EmptyRootHash },
		},
		{
			name:   "shanghai without withdrawals root",
			format: FormatShanghai,
			mutate: func(h *Header) { h.WithdrawalsRoot = nil },
		},
		{
			name:   "unknown format",
			format: FormatLegacy,
			mutate: func(h *Header) { h.Format = 9 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHeader(tt.format)
			tt.mutate(h)
			err := h.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrHeaderFormat)

			_, err = rlp.EncodeToBytes(h)
			assert.ErrorIs(t, err, ErrHeaderFormat)
		})
	}
}

func TestHeaderCopy(t *testing.T) {
	h := testHeader(FormatShanghai)
	cpy := h.Copy()
	require.Equal(t, h.Hash(), cpy.Hash())

	cpy.Difficulty.SetUint64(1)
	cpy.BaseFee.SetUint64(1)
	*cpy.WithdrawalsRoot = common.Hash{}
	cpy.Extra[0] = 0

	assert.Equal(t, big.NewInt(0x20000), h.Difficulty)
	assert.Equal(t, big.NewInt(7), h.BaseFee)
	assert.Equal(t, EmptyRootHash, *h.WithdrawalsRoot)
	assert.Equal(t, []byte{0x42}, h.Extra)
}

func TestHeaderFormat_String(t *testing.T) {
	assert.Equal(t, "legacy", FormatLegacy.String())
	assert.Equal(t, "london", FormatLondon.String())
	assert.Equal(t, "shanghai", FormatShanghai.String())
	assert.Equal(t, "format(7)", HeaderFormat(7).String())
}

func TestEncodeNonce(t *testing.T) {
	assert.Equal(t, BlockNonce{0xa1, 0x3a, 0x5a, 0x8c, 0x8f, 0x2b, 0xb1, 0xc4}, EncodeNonce(0xa13a5a8c8f2bb1c4))
}
