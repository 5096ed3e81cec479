package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// headerJSON mirrors the header objects found in blockchain test fixtures.
// Numbers may carry leading zeros, so the math.HexOrDecimal types are used
// instead of hexutil.
type headerJSON struct {
	ParentHash       common.Hash           `json:"parentHash"`
	UncleHash        common.Hash           `json:"uncleHash"`
	Coinbase         common.Address        `json:"coinbase"`
	StateRoot        common.Hash           `json:"stateRoot"`
	TransactionsTrie common.Hash           `json:"transactionsTrie"`
	ReceiptTrie      common.Hash           `json:"receiptTrie"`
	Bloom            Bloom                 `json:"bloom"`
	Difficulty       *math.HexOrDecimal256 `json:"difficulty"`
	Number           math.HexOrDecimal64   `json:"number"`
	GasLimit         math.HexOrDecimal64   `json:"gasLimit"`
	GasUsed          math.HexOrDecimal64   `json:"gasUsed"`
	Timestamp        math.HexOrDecimal64   `json:"timestamp"`
	ExtraData        hexutil.Bytes         `json:"extraData"`
	MixHash          common.Hash           `json:"mixHash"`
	Nonce            BlockNonce            `json:"nonce"`
	BaseFee          *math.HexOrDecimal256 `json:"baseFeePerGas,omitempty"`
	WithdrawalsRoot  *common.Hash          `json:"withdrawalsRoot,omitempty"`
	Hash             *common.Hash          `json:"hash,omitempty"`
}

var requiredHeaderFields = []string{
	"parentHash", "uncleHash", "coinbase", "stateRoot", "transactionsTrie",
	"receiptTrie", "bloom", "difficulty", "number", "gasLimit", "gasUsed",
	"timestamp", "extraData", "mixHash", "nonce",
}

// DecodeHeaderJSON decodes a fixture header object into a header of the
// given format. Fields the format does not carry are ignored; missing fields
// that it does carry are an error.
func DecodeHeaderJSON(data []byte, format HeaderFormat) (*Header, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "header is not an object")
	}
	required := requiredHeaderFields
	if format.HasBaseFee() {
		required = append(required[:len(required):len(required)], "baseFeePerGas")
	}
	if format.HasWithdrawals() {
		required = append(required[:len(required):len(required)], "withdrawalsRoot")
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return nil, errors.Errorf("header missing %q", name)
		}
	}
	var dec headerJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, errors.Wrap(err, "invalid header")
	}
	h := &Header{
		Format:      format,
		ParentHash:  dec.ParentHash,
		OmmersHash:  dec.UncleHash,
		Coinbase:    dec.Coinbase,
		Root:        dec.StateRoot,
		TxHash:      dec.TransactionsTrie,
		ReceiptHash: dec.ReceiptTrie,
		Bloom:       dec.Bloom,
		Difficulty:  (*big.Int)(dec.Difficulty),
		Number:      uint64(dec.Number),
		GasLimit:    uint64(dec.GasLimit),
		GasUsed:     uint64(dec.GasUsed),
		Time:        uint64(dec.Timestamp),
		Extra:       dec.ExtraData,
		MixDigest:   dec.MixHash,
		Nonce:       dec.Nonce,
	}
	if format.HasBaseFee() {
		h.BaseFee = (*big.Int)(dec.BaseFee)
	}
	if format.HasWithdrawals() {
		h.WithdrawalsRoot = dec.WithdrawalsRoot
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// MarshalJSON encodes the header in fixture form, including its hash.
func (h *Header) MarshalJSON() ([]byte, error) {
	hash := h.Hash()
	enc := headerJSON{
		ParentHash:       h.ParentHash,
		UncleHash:        h.OmmersHash,
		Coinbase:         h.Coinbase,
		StateRoot:        h.Root,
		TransactionsTrie: h.TxHash,
		ReceiptTrie:      h.ReceiptHash,
		Bloom:            h.Bloom,
		Difficulty:       (*math.HexOrDecimal256)(bigOrZero(h.Difficulty)),
		Number:           math.HexOrDecimal64(h.Number),
		GasLimit:         math.HexOrDecimal64(h.GasLimit),
		GasUsed:          math.HexOrDecimal64(h.GasUsed),
		Timestamp:        math.HexOrDecimal64(h.Time),
		ExtraData:        h.Extra,
		MixHash:          h.MixDigest,
		Nonce:            h.Nonce,
		Hash:             &hash,
	}
	if h.Format.HasBaseFee() {
		enc.BaseFee = (*math.HexOrDecimal256)(bigOrZero(h.BaseFee))
	}
	if h.Format.HasWithdrawals() {
		enc.WithdrawalsRoot = h.WithdrawalsRoot
	}
	return json.Marshal(&enc)
}

type accessTupleJSON struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// txJSON mirrors the transaction objects found in blockchain test fixtures.
type txJSON struct {
	Type                 *math.HexOrDecimal64  `json:"type,omitempty"`
	ChainID              *math.HexOrDecimal256 `json:"chainId,omitempty"`
	Nonce                math.HexOrDecimal64   `json:"nonce"`
	GasPrice             *math.HexOrDecimal256 `json:"gasPrice,omitempty"`
	MaxPriorityFeePerGas *math.HexOrDecimal256 `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         *math.HexOrDecimal256 `json:"maxFeePerGas,omitempty"`
	GasLimit             math.HexOrDecimal64   `json:"gasLimit"`
	To                   string                `json:"to"`
	Value                *math.HexOrDecimal256 `json:"value"`
	Data                 hexutil.Bytes         `json:"data"`
	AccessList           []accessTupleJSON     `json:"accessList,omitempty"`
	V                    *math.HexOrDecimal256 `json:"v"`
	R                    *math.HexOrDecimal256 `json:"r"`
	S                    *math.HexOrDecimal256 `json:"s"`
}

// UnmarshalJSON decodes a fixture transaction object.
func (tx *Transaction) UnmarshalJSON(input []byte) error {
	var dec txJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.Type != nil {
		tx.Type = uint8(*dec.Type)
	} else {
		tx.Type = LegacyTxType
	}
	switch tx.Type {
	case LegacyTxType, AccessListTxType:
		if dec.GasPrice == nil {
			return errors.New("transaction missing gasPrice")
		}
		tx.GasPrice = (*big.Int)(dec.GasPrice)
	case DynamicFeeTxType:
		if dec.MaxPriorityFeePerGas == nil || dec.MaxFeePerGas == nil {
			return errors.New("dynamic fee transaction missing fee caps")
		}
		tx.GasTipCap = (*big.Int)(dec.MaxPriorityFeePerGas)
		tx.GasFeeCap = (*big.Int)(dec.MaxFeePerGas)
	default:
		return errors.Wrapf(ErrTxTypeNotSupported, "type %#x", tx.Type)
	}
	if tx.Type != LegacyTxType {
		if dec.ChainID == nil {
			return errors.New("typed transaction missing chainId")
		}
		tx.ChainID = (*big.Int)(dec.ChainID)
		tx.AccessList = make([]AccessTuple, len(dec.AccessList))
		for i, t := range dec.AccessList {
			tx.AccessList[i] = AccessTuple{Address: t.Address, StorageKeys: t.StorageKeys}
		}
	}
	tx.Nonce = uint64(dec.Nonce)
	tx.Gas = uint64(dec.GasLimit)
	if dec.To != "" {
		if !common.IsHexAddress(dec.To) {
			return errors.Errorf("invalid recipient %q", dec.To)
		}
		to := common.HexToAddress(dec.To)
		tx.To = &to
	}
	if dec.Value == nil || dec.V == nil || dec.R == nil || dec.S == nil {
		return errors.New("transaction missing value or signature")
	}
	tx.Value = (*big.Int)(dec.Value)
	tx.Data = dec.Data
	tx.V = (*big.Int)(dec.V)
	tx.R = (*big.Int)(dec.R)
	tx.S = (*big.Int)(dec.S)
	return nil
}

// MarshalJSON encodes the transaction in fixture form.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	enc := txJSON{
		Nonce:    math.HexOrDecimal64(tx.Nonce),
		GasLimit: math.HexOrDecimal64(tx.Gas),
		Value:    (*math.HexOrDecimal256)(bigOrZero(tx.Value)),
		Data:     tx.Data,
		V:        (*math.HexOrDecimal256)(bigOrZero(tx.V)),
		R:        (*math.HexOrDecimal256)(bigOrZero(tx.R)),
		S:        (*math.HexOrDecimal256)(bigOrZero(tx.S)),
	}
	if tx.To != nil {
		enc.To = tx.To.Hex()
	}
	switch tx.Type {
	case LegacyTxType:
		enc.GasPrice = (*math.HexOrDecimal256)(bigOrZero(tx.GasPrice))
	case AccessListTxType:
		enc.GasPrice = (*math.HexOrDecimal256)(bigOrZero(tx.GasPrice))
	case DynamicFeeTxType:
		enc.MaxPriorityFeePerGas = (*math.HexOrDecimal256)(bigOrZero(tx.GasTipCap))
		enc.MaxFeePerGas = (*math.HexOrDecimal256)(bigOrZero(tx.GasFeeCap))
	default:
		return nil, errors.Wrapf(ErrTxTypeNotSupported, "type %#x", tx.Type)
	}
	if tx.Type != LegacyTxType {
		typ := math.HexOrDecimal64(tx.Type)
		enc.Type = &typ
		enc.ChainID = (*math.HexOrDecimal256)(bigOrZero(tx.ChainID))
		enc.AccessList = make([]accessTupleJSON, len(tx.AccessList))
		for i, t := range tx.AccessList {
			enc.AccessList[i] = accessTupleJSON{Address: t.Address, StorageKeys: t.StorageKeys}
		}
	}
	return json.Marshal(&enc)
}

type withdrawalJSON struct {
	Index          math.HexOrDecimal64 `json:"index"`
	ValidatorIndex math.HexOrDecimal64 `json:"validatorIndex"`
	Address        common.Address      `json:"address"`
	Amount         math.HexOrDecimal64 `json:"amount"`
}

// UnmarshalJSON decodes a fixture withdrawal object.
func (w *Withdrawal) UnmarshalJSON(input []byte) error {
	var dec withdrawalJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	w.Index = uint64(dec.Index)
	w.Validator = uint64(dec.ValidatorIndex)
	w.Address = dec.Address
	w.Amount = uint64(dec.Amount)
	return nil
}

// MarshalJSON encodes the withdrawal in fixture form.
func (w *Withdrawal) MarshalJSON() ([]byte, error) {
	return json.Marshal(&withdrawalJSON{
		Index:          math.HexOrDecimal64(w.Index),
		ValidatorIndex: math.HexOrDecimal64(w.Validator),
		Address:        w.Address,
		Amount:         math.HexOrDecimal64(w.Amount),
	})
}

func bigOrZero(i *big.Int) *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return i
}
