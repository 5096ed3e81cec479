package types

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bcValidBlockTest.json, "SimpleTx".
var simpleTxBlock = common.FromHex("f90260f901f9a083cafc574e1f51ba9dc0568fc617a08ea2429fb384059c972f13b19fa1c8dd55a01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347948888f1f195afa192cfee860698584c030f4c9db1a0ef1552a40b7165c3cd773806b9e0c165b75356e0314bf0706f279c729f51e017a05fe50b260da6308036625b850b5d6ced6d0a9f814c0688bc91ffb7b7a3a54b67a0bc37d79753ad738a6dac4921e57392f145d8887476de3f783dfa7edae9283e52b90100000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000008302000001832fefd8825208845506eb0780a0bd4472abb6659ebe3ee06ee4d7b72a00a9f4d001caca51342001075469aff49888a13a5a8c8f2bb1c4f861f85f800a82c35094095e7baea6a6c7c4c2dfeb977efac326af552d870a801ba09bea4c4daac7c7c52e093e6a4c35dbbcf8856f1af7b059ba20253e70848d094fa08a8fae537ce25ed8cb5af9adac3f141af69bd515bd2ba031522df09b97dd72b1c0")

func TestDecodeBlock_LegacyVector(t *testing.T) {
	block, err := DecodeBlock(simpleTxBlock, FormatLegacy)
	require.NoError(t, err)

	h := block.Header
	assert.Equal(t, FormatLegacy, h.Format)
	assert.Equal(t, big.NewInt(131072), h.Difficulty)
	assert.Equal(t, uint64(3141592), h.GasLimit)
	assert.Equal(t, uint64(21000), h.GasUsed)
	assert.Equal(t, uint64(1426516743), h.Time)
	assert.Equal(t, common.HexToAddress("8888f1f195afa192cfee860698584c030f4c9db1"), h.Coinbase)
	assert.Equal(t, common.HexToHash("ef1552a40b7165c3cd773806b9e0c165b75356e0314bf0706f279c729f51e017"), h.Root)
	assert.Equal(t, common.HexToHash("bd4472abb6659ebe3ee06ee4d7b72a00a9f4d001caca51342001075469aff498"), h.MixDigest)
	assert.Equal(t, EncodeNonce(0xa13a5a8c8f2bb1c4), h.Nonce)
	assert.Equal(t, common.HexToHash("0a5843ac1cb04865017cb35a57b50b07084e5fcee39b5acadade33149f4fff9e"), block.Hash())

	require.Len(t, block.Transactions, 1)
	tx := block.Transactions[0]
	assert.Equal(t, uint8(LegacyTxType), tx.Type)
	assert.Equal(t, uint64(0), tx.Nonce)
	assert.Equal(t, big.NewInt(10), tx.GasPrice)
	assert.Equal(t, uint64(50000), tx.Gas)
	require.NotNil(t, tx.To)
	assert.Equal(t, common.HexToAddress("095e7baea6a6c7c4c2dfeb977efac326af552d87"), *tx.To)
	assert.Equal(t, big.NewInt(10), tx.Value)
	assert.Equal(t, big.NewInt(27), tx.V)
	assert.Empty(t, block.Ommers)
	assert.Nil(t, block.Withdrawals)

	enc, err := EncodeBlock(block)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(simpleTxBlock, enc), "encoded block mismatch:\ngot:  %x\nwant: %x", enc, simpleTxBlock)
}

func TestDecodeBlock_FormatMismatch(t *testing.T) {
	_, err := DecodeBlock(simpleTxBlock, FormatLondon)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeaderFormat)
}

func TestDecodeBlock_TrailingGarbage(t *testing.T) {
	_, err := DecodeBlock(append(common.CopyBytes(simpleTxBlock), 0x80), FormatLegacy)
	require.Error(t, err)
}

func TestBlock_ShanghaiRoundTrip(t *testing.T) {
	to := common.HexToAddress("0x1000000000000000000000000000000000000001")
	block := &Block{
		Header: testHeader(FormatShanghai),
		Transactions: []*Transaction{
			{
				Type:      DynamicFeeTxType,
				ChainID:   big.NewInt(1),
				Nonce:     3,
				GasTipCap: big.NewInt(1),
				GasFeeCap: big.NewInt(1000),
				Gas:       21000,
				To:        &to,
				Value:     big.NewInt(5),
				AccessList: []AccessTuple{
					{Address: to, StorageKeys: []common.Hash{common.HexToHash("0x01")}},
				},
				V: big.NewInt(1),
				R: big.NewInt(2),
				S: big.NewInt(3),
			},
			{
				Nonce:    4,
				GasPrice: big.NewInt(10),
				Gas:      53000,
				Value:    big.NewInt(0),
				Data:     []byte{0x60, 0x00},
				V:        big.NewInt(27),
				R:        big.NewInt(4),
				S:        big.NewInt(5),
			},
		},
		Ommers: []*Header{},
		Withdrawals: []*Withdrawal{
			{Index: 0, Validator: 7, Address: to, Amount: 1_000_000_000},
		},
	}

	enc, err := EncodeBlock(block)
	require.NoError(t, err)

	decoded, err := DecodeBlock(enc, FormatShanghai)
	require.NoError(t, err)
	assert.Equal(t, block.Hash(), decoded.Hash())
	require.Len(t, decoded.Transactions, 2)
	assert.Equal(t, uint8(DynamicFeeTxType), decoded.Transactions[0].Type)
	assert.Nil(t, decoded.Transactions[1].To)
	assert.Equal(t, block.Transactions[0].Hash(), decoded.Transactions[0].Hash())
	require.Len(t, decoded.Withdrawals, 1)
	assert.Equal(t, *block.Withdrawals[0], *decoded.Withdrawals[0])

	reenc, err := EncodeBlock(decoded)
	require.NoError(t, err)
	assert.Equal(t, enc, reenc)
}

func TestBlock_ShanghaiWithoutWithdrawalsList(t *testing.T) {
	header := testHeader(FormatShanghai)
	var buf bytes.Buffer
	w := rlp.NewEncoderBuffer(&buf)
	l := w.List()
	header.encode(w)
	w.ListEnd(w.List())
	w.ListEnd(w.List())
	w.ListEnd(l)
	require.NoError(t, w.Flush())

	_, err := DecodeBlock(buf.Bytes(), FormatShanghai)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeaderFormat)
}

func TestNewGenesisBlock(t *testing.T) {
	legacy := NewGenesisBlock(testHeader(FormatLegacy))
	assert.Nil(t, legacy.Withdrawals)
	assert.NotNil(t, legacy.Transactions)
	assert.NotNil(t, legacy.Ommers)

	shanghai := NewGenesisBlock(testHeader(FormatShanghai))
	assert.NotNil(t, shanghai.Withdrawals)
	assert.Empty(t, shanghai.Withdrawals)
}
