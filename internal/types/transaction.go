package types

import (
	"bytes"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Transaction envelope types.
const (
	LegacyTxType     = 0x00
	AccessListTxType = 0x01
	DynamicFeeTxType = 0x02
)

// ErrTxTypeNotSupported is returned for envelope types the harness cannot encode.
var ErrTxTypeNotSupported = errors.New("transaction type not supported")

// AccessTuple is an element of an EIP-2930 access list.
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

// Transaction holds the union of the legacy, access-list and dynamic-fee
// transaction fields. Type selects which of them are encoded.
type Transaction struct {
	Type       uint8
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int // legacy and access-list
	GasTipCap  *big.Int // dynamic-fee
	GasFeeCap  *big.Int // dynamic-fee
	Gas        uint64
	To         *common.Address // nil for contract creation
	Value      *big.Int
	Data       []byte
	AccessList []AccessTuple
	V, R, S    *big.Int
}

// Hash returns the transaction hash, keccak256 of the canonical encoding.
func (tx *Transaction) Hash() common.Hash {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}
	}
	return keccak(enc)
}

// MarshalBinary returns the canonical encoding: an RLP list for legacy
// transactions, type byte followed by the RLP payload otherwise.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	var out bytes.Buffer
	if tx.Type != LegacyTxType {
		out.WriteByte(tx.Type)
	}
	buf := rlp.NewEncoderBuffer(&out)
	if err := tx.encodePayload(buf); err != nil {
		return nil, err
	}
	if err := buf.Flush(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// UnmarshalBinary decodes the canonical encoding produced by MarshalBinary.
func (tx *Transaction) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty transaction encoding")
	}
	if b[0] > 0x7f {
		tx.Type = LegacyTxType
		return rlp.DecodeBytes(b, (*txPayload)(tx))
	}
	tx.Type = b[0]
	if tx.Type != AccessListTxType && tx.Type != DynamicFeeTxType {
		return errors.Wrapf(ErrTxTypeNotSupported, "type %#x", tx.Type)
	}
	return rlp.DecodeBytes(b[1:], (*txPayload)(tx))
}

// EncodeRLP writes the transaction as an element of a block body: legacy
// transactions as a list, typed transactions as a byte string.
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	if tx.Type == LegacyTxType {
		buf := rlp.NewEncoderBuffer(w)
		if err := tx.encodePayload(buf); err != nil {
			return err
		}
		return buf.Flush()
	}
	enc, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	return rlp.Encode(w, enc)
}

// DecodeRLP implements rlp.Decoder for block body elements.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	kind, _, err := s.Kind()
	if err != nil {
		return err
	}
	if kind == rlp.List {
		tx.Type = LegacyTxType
		return s.Decode((*txPayload)(tx))
	}
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	if len(b) > 0 && b[0] > 0x7f {
		return errors.New("typed transaction with list prefix inside byte string")
	}
	return tx.UnmarshalBinary(b)
}

func (tx *Transaction) encodePayload(buf rlp.EncoderBuffer) error {
	l := buf.List()
	switch tx.Type {
	case LegacyTxType:
		buf.WriteUint64(tx.Nonce)
		writeBigInt(buf, tx.GasPrice)
		buf.WriteUint64(tx.Gas)
		writeTo(buf, tx.To)
		writeBigInt(buf, tx.Value)
		buf.WriteBytes(tx.Data)
	case AccessListTxType:
		writeBigInt(buf, tx.ChainID)
		buf.WriteUint64(tx.Nonce)
		writeBigInt(buf, tx.GasPrice)
		buf.WriteUint64(tx.Gas)
		writeTo(buf, tx.To)
		writeBigInt(buf, tx.Value)
		buf.WriteBytes(tx.Data)
		writeAccessList(buf, tx.AccessList)
	case DynamicFeeTxType:
		writeBigInt(buf, tx.ChainID)
		buf.WriteUint64(tx.Nonce)
		writeBigInt(buf, tx.GasTipCap)
		writeBigInt(buf, tx.GasFeeCap)
		buf.WriteUint64(tx.Gas)
		writeTo(buf, tx.To)
		writeBigInt(buf, tx.Value)
		buf.WriteBytes(tx.Data)
		writeAccessList(buf, tx.AccessList)
	default:
		return errors.Wrapf(ErrTxTypeNotSupported, "type %#x", tx.Type)
	}
	writeBigInt(buf, tx.V)
	writeBigInt(buf, tx.R)
	writeBigInt(buf, tx.S)
	buf.ListEnd(l)
	return nil
}

// txPayload decodes the RLP list of a transaction whose Type is already set.
type txPayload Transaction

func (p *txPayload) DecodeRLP(s *rlp.Stream) error {
	tx := (*Transaction)(p)
	if _, err := s.List(); err != nil {
		return err
	}
	var err error
	if tx.Type != LegacyTxType {
		if tx.ChainID, err = s.BigInt(); err != nil {
			return errors.Wrap(err, "chainId")
		}
	}
	if tx.Nonce, err = s.Uint64(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if tx.Type == DynamicFeeTxType {
		if tx.GasTipCap, err = s.BigInt(); err != nil {
			return errors.Wrap(err, "maxPriorityFeePerGas")
		}
		if tx.GasFeeCap, err = s.BigInt(); err != nil {
			return errors.Wrap(err, "maxFeePerGas")
		}
	} else if tx.GasPrice, err = s.BigInt(); err != nil {
		return errors.Wrap(err, "gasPrice")
	}
	if tx.Gas, err = s.Uint64(); err != nil {
		return errors.Wrap(err, "gas")
	}
	to, err := s.Bytes()
	if err != nil {
		return errors.Wrap(err, "to")
	}
	switch len(to) {
	case 0:
		tx.To = nil
	case common.AddressLength:
		addr := common.BytesToAddress(to)
		tx.To = &addr
	default:
		return errors.Errorf("invalid recipient length %d", len(to))
	}
	if tx.Value, err = s.BigInt(); err != nil {
		return errors.Wrap(err, "value")
	}
	if tx.Data, err = s.Bytes(); err != nil {
		return errors.Wrap(err, "data")
	}
	if tx.Type != LegacyTxType {
		if err = s.Decode(&tx.AccessList); err != nil {
			return errors.Wrap(err, "accessList")
		}
	}
	if tx.V, err = s.BigInt(); err != nil {
		return errors.Wrap(err, "v")
	}
	if tx.R, err = s.BigInt(); err != nil {
		return errors.Wrap(err, "r")
	}
	if tx.S, err = s.BigInt(); err != nil {
		return errors.Wrap(err, "s")
	}
	return s.ListEnd()
}

func writeTo(buf rlp.EncoderBuffer, to *common.Address) {
	if to == nil {
		buf.WriteBytes(nil)
		return
	}
	buf.WriteBytes(to[:])
}

func writeAccessList(buf rlp.EncoderBuffer, al []AccessTuple) {
	l := buf.List()
	for _, tuple := range al {
		t := buf.List()
		buf.WriteBytes(tuple.Address[:])
		keys := buf.List()
		for _, key := range tuple.StorageKeys {
			buf.WriteBytes(key[:])
		}
		buf.ListEnd(keys)
		buf.ListEnd(t)
	}
	buf.ListEnd(l)
}
