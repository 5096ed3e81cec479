package types

import (
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Withdrawal is a validator withdrawal from the consensus layer (EIP-4895).
// Amount is denominated in Gwei.
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   common.Address
	Amount    uint64
}

// Block is a header together with its body.
type Block struct {
	Header       *Header
	Transactions []*Transaction
	Ommers       []*Header
	Withdrawals  []*Withdrawal
}

// NewGenesisBlock returns the body-less block for a genesis header. The
// withdrawals list is present only when the header format carries it.
func NewGenesisBlock(header *Header) *Block {
	b := &Block{
		Header:       header,
		Transactions: []*Transaction{},
		Ommers:       []*Header{},
	}
	if header.Format.HasWithdrawals() {
		b.Withdrawals = []*Withdrawal{}
	}
	return b
}

// Hash returns the hash of the block header.
func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

// Number returns the block number.
func (b *Block) Number() uint64 {
	return b.Header.Number
}

// EncodeRLP implements rlp.Encoder.
func (b *Block) EncodeRLP(w io.Writer) error {
	if b.Header == nil {
		return errors.New("block without header")
	}
	if err := b.Header.Validate(); err != nil {
		return err
	}
	buf := rlp.NewEncoderBuffer(w)
	l := buf.List()
	b.Header.encode(buf)

	txs := buf.List()
	for _, tx := range b.Transactions {
		if err := tx.EncodeRLP(buf); err != nil {
			return err
		}
	}
	buf.ListEnd(txs)

	ommers := buf.List()
	for _, ommer := range b.Ommers {
		if err := ommer.Validate(); err != nil {
			return errors.Wrap(err, "ommer")
		}
		ommer.encode(buf)
	}
	buf.ListEnd(ommers)

	if b.Header.Format.HasWithdrawals() {
		ws := buf.List()
		for _, wd := range b.Withdrawals {
			if err := rlp.Encode(buf, wd); err != nil {
				return err
			}
		}
		buf.ListEnd(ws)
	}
	buf.ListEnd(l)
	return buf.Flush()
}

// DecodeRLP implements rlp.Decoder.
func (b *Block) DecodeRLP(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}
	var header Header
	if err := s.Decode(&header); err != nil {
		return errors.Wrap(err, "header")
	}
	b.Header = &header
	if err := s.Decode(&b.Transactions); err != nil {
		return errors.Wrap(err, "transactions")
	}
	if err := s.Decode(&b.Ommers); err != nil {
		return errors.Wrap(err, "ommers")
	}
	if s.MoreDataInList() {
		if !header.Format.HasWithdrawals() {
			return errors.Wrapf(ErrHeaderFormat, "withdrawals list in %s block", header.Format)
		}
		if err := s.Decode(&b.Withdrawals); err != nil {
			return errors.Wrap(err, "withdrawals")
		}
	} else if header.Format.HasWithdrawals() {
		return errors.Wrapf(ErrHeaderFormat, "%s block without withdrawals list", header.Format)
	}
	return s.ListEnd()
}

// EncodeBlock returns the RLP encoding of b.
func EncodeBlock(b *Block) ([]byte, error) {
	return rlp.EncodeToBytes(b)
}

// DecodeBlock decodes an RLP encoded block and requires its header to have
// the given format.
func DecodeBlock(data []byte, format HeaderFormat) (*Block, error) {
	b := new(Block)
	if err := rlp.DecodeBytes(data, b); err != nil {
		return nil, err
	}
	if b.Header.Format != format {
		return nil, errors.Wrapf(ErrHeaderFormat, "decoded %s header, want %s", b.Header.Format, format)
	}
	for i, ommer := range b.Ommers {
		if ommer.Format != format {
			return nil, errors.Wrapf(ErrHeaderFormat, "ommer %d has %s header, want %s", i, ommer.Format, format)
		}
	}
	return b, nil
}
