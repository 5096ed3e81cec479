package types

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// HeaderFormat selects the field layout of a block header.
type HeaderFormat uint8

const (
	// FormatLegacy is the 15-field header used up to and including Berlin.
	FormatLegacy HeaderFormat = iota
	// FormatLondon appends the base fee (EIP-1559).
	FormatLondon
	// FormatShanghai appends the withdrawals root (EIP-4895).
	FormatShanghai
)

// String returns the format name.
func (f HeaderFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatLondon:
		return "london"
	case FormatShanghai:
		return "shanghai"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// HasBaseFee reports whether headers of this format carry a base fee.
func (f HeaderFormat) HasBaseFee() bool { return f >= FormatLondon }

// HasWithdrawals reports whether headers of this format carry a withdrawals
// root and blocks carry a withdrawals list.
func (f HeaderFormat) HasWithdrawals() bool { return f >= FormatShanghai }

// ErrHeaderFormat is returned when a header's fields disagree with its format.
var ErrHeaderFormat = errors.New("header fields do not match format")

// BlockNonce is the 64-bit proof-of-work nonce.
type BlockNonce [8]byte

// EncodeNonce converts i to a block nonce.
func EncodeNonce(i uint64) BlockNonce {
	var n BlockNonce
	for j := 7; j >= 0; j-- {
		n[j] = byte(i)
		i >>= 8
	}
	return n
}

// MarshalText encodes n as a hex string with 0x prefix.
func (n BlockNonce) MarshalText() ([]byte, error) {
	return hexutil.Bytes(n[:]).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *BlockNonce) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("BlockNonce", input, n[:])
}

// Bloom is the 2048-bit log bloom filter.
type Bloom [256]byte

// MarshalText encodes b as a hex string with 0x prefix.
func (b Bloom) MarshalText() ([]byte, error) {
	return hexutil.Bytes(b[:]).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bloom) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("Bloom", input, b[:])
}

// Header is a block header. Format decides which of the optional trailing
// fields are part of the encoding.
type Header struct {
	Format          HeaderFormat
	ParentHash      common.Hash
	OmmersHash      common.Hash
	Coinbase        common.Address
	Root            common.Hash
	TxHash          common.Hash
	ReceiptHash     common.Hash
	Bloom           Bloom
	Difficulty      *big.Int
	Number          uint64
	GasLimit        uint64
	GasUsed         uint64
	Time            uint64
	Extra           []byte
	MixDigest       common.Hash
	Nonce           BlockNonce
	BaseFee         *big.Int
	WithdrawalsRoot *common.Hash
}

// Validate checks that the optional fields present match the format tag.
func (h *Header) Validate() error {
	if h.Format > FormatShanghai {
		return errors.Wrapf(ErrHeaderFormat, "unknown %s", h.Format)
	}
	if h.Format.HasBaseFee() != (h.BaseFee != nil) {
		return errors.Wrapf(ErrHeaderFormat, "%s header with base fee set=%t", h.Format, h.BaseFee != nil)
	}
	if h.Format.HasWithdrawals() != (h.WithdrawalsRoot != nil) {
		return errors.Wrapf(ErrHeaderFormat, "%s header with withdrawals root set=%t", h.Format, h.WithdrawalsRoot != nil)
	}
	return nil
}

// Hash returns the keccak256 hash of the header's RLP encoding.
func (h *Header) Hash() common.Hash {
	return rlpHash(h)
}

// Copy returns a deep copy of the header.
func (h *Header) Copy() *Header {
	cpy := *h
	if h.Difficulty != nil {
		cpy.Difficulty = new(big.Int).Set(h.Difficulty)
	}
	if h.BaseFee != nil {
		cpy.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if h.WithdrawalsRoot != nil {
		root := *h.WithdrawalsRoot
		cpy.WithdrawalsRoot = &root
	}
	if len(h.Extra) > 0 {
		cpy.Extra = common.CopyBytes(h.Extra)
	}
	return &cpy
}

// EncodeRLP implements rlp.Encoder.
func (h *Header) EncodeRLP(w io.Writer) error {
	if err := h.Validate(); err != nil {
		return err
	}
	buf := rlp.NewEncoderBuffer(w)
	h.encode(buf)
	return buf.Flush()
}

func (h *Header) encode(buf rlp.EncoderBuffer) {
	l := buf.List()
	buf.WriteBytes(h.ParentHash[:])
	buf.WriteBytes(h.OmmersHash[:])
	buf.WriteBytes(h.Coinbase[:])
	buf.WriteBytes(h.Root[:])
	buf.WriteBytes(h.TxHash[:])
	buf.WriteBytes(h.ReceiptHash[:])
	buf.WriteBytes(h.Bloom[:])
	writeBigInt(buf, h.Difficulty)
	buf.WriteUint64(h.Number)
	buf.WriteUint64(h.GasLimit)
	buf.WriteUint64(h.GasUsed)
	buf.WriteUint64(h.Time)
	buf.WriteBytes(h.Extra)
	buf.WriteBytes(h.MixDigest[:])
	buf.WriteBytes(h.Nonce[:])
	if h.Format.HasBaseFee() {
		writeBigInt(buf, h.BaseFee)
	}
	if h.Format.HasWithdrawals() {
		buf.WriteBytes(h.WithdrawalsRoot[:])
	}
	buf.ListEnd(l)
}

// DecodeRLP implements rlp.Decoder. The format is derived from the number of
// trailing fields; callers that know the expected format must compare it.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}
	h.BaseFee, h.WithdrawalsRoot = nil, nil
	var err error
	fields := []interface{}{
		&h.ParentHash, &h.OmmersHash, &h.Coinbase, &h.Root,
		&h.TxHash, &h.ReceiptHash, &h.Bloom,
	}
	for _, f := range fields {
		if err = s.Decode(f); err != nil {
			return err
		}
	}
	if h.Difficulty, err = s.BigInt(); err != nil {
		return errors.Wrap(err, "difficulty")
	}
	for _, f := range []*uint64{&h.Number, &h.GasLimit, &h.GasUsed, &h.Time} {
		if *f, err = s.Uint64(); err != nil {
			return err
		}
	}
	if h.Extra, err = s.Bytes(); err != nil {
		return errors.Wrap(err, "extraData")
	}
	if err = s.Decode(&h.MixDigest); err != nil {
		return err
	}
	if err = s.Decode(&h.Nonce); err != nil {
		return err
	}
	h.Format = FormatLegacy
	if s.MoreDataInList() {
		if h.BaseFee, err = s.BigInt(); err != nil {
			return errors.Wrap(err, "baseFeePerGas")
		}
		h.Format = FormatLondon
	}
	if s.MoreDataInList() {
		var root common.Hash
		if err = s.Decode(&root); err != nil {
			return errors.Wrap(err, "withdrawalsRoot")
		}
		h.WithdrawalsRoot = &root
		h.Format = FormatShanghai
	}
	return s.ListEnd()
}

func writeBigInt(buf rlp.EncoderBuffer, i *big.Int) {
	if i == nil {
		buf.WriteUint64(0)
		return
	}
	buf.WriteBigInt(i)
}
