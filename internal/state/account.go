package state

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Account is the state of a single address.
type Account struct {
	Nonce   uint64
	Balance *uint256.Int
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cpy := &Account{
		Nonce:   a.Nonce,
		Balance: new(uint256.Int),
		Code:    common.CopyBytes(a.Code),
		Storage: make(map[common.Hash]common.Hash, len(a.Storage)),
	}
	if a.Balance != nil {
		cpy.Balance.Set(a.Balance)
	}
	for k, v := range a.Storage {
		cpy.Storage[k] = v
	}
	return cpy
}

// normalize makes accounts with the same content compare equal: nil balance
// becomes zero, empty code becomes nil, zero slots are dropped.
func (a *Account) normalize() {
	if a.Balance == nil {
		a.Balance = new(uint256.Int)
	}
	if len(a.Code) == 0 {
		a.Code = nil
	}
	if a.Storage == nil {
		a.Storage = make(map[common.Hash]common.Hash)
	}
	for k, v := range a.Storage {
		if v == (common.Hash{}) {
			delete(a.Storage, k)
		}
	}
}

// Alloc is a full account state keyed by address, in the shape of the pre
// and postState objects of a fixture.
type Alloc map[common.Address]*Account

// Addresses returns the accounts' addresses in ascending byte order.
func (a Alloc) Addresses() []common.Address {
	addrs := make([]common.Address, 0, len(a))
	for addr := range a {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}

type accountJSON struct {
	Balance *math.HexOrDecimal256 `json:"balance"`
	Nonce   math.HexOrDecimal64   `json:"nonce"`
	Code    string                `json:"code"`
	Storage map[string]string     `json:"storage,omitempty"`
}

// UnmarshalJSON decodes an alloc object. Numbers may be hex with leading
// zeros or decimal; storage keys may be shorter than 32 bytes.
func (a *Alloc) UnmarshalJSON(input []byte) error {
	var dec map[string]accountJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	out := make(Alloc, len(dec))
	for key, acc := range dec {
		if !common.IsHexAddress(key) {
			return errors.Errorf("invalid account address %q", key)
		}
		account, err := acc.toAccount()
		if err != nil {
			return errors.Wrapf(err, "account %s", key)
		}
		out[common.HexToAddress(key)] = account
	}
	*a = out
	return nil
}

func (dec *accountJSON) toAccount() (*Account, error) {
	acc := &Account{Nonce: uint64(dec.Nonce), Balance: new(uint256.Int)}
	if dec.Balance != nil {
		b, overflow := uint256.FromBig((*big.Int)(dec.Balance))
		if overflow {
			return nil, errors.New("balance exceeds 256 bits")
		}
		acc.Balance = b
	}
	if dec.Code != "" && dec.Code != "0x" {
		code, err := hexutil.Decode(dec.Code)
		if err != nil {
			return nil, errors.Wrap(err, "code")
		}
		acc.Code = code
	}
	acc.Storage = make(map[common.Hash]common.Hash, len(dec.Storage))
	for k, v := range dec.Storage {
		slot, err := parseWord(k)
		if err != nil {
			return nil, errors.Wrapf(err, "storage key %q", k)
		}
		value, err := parseWord(v)
		if err != nil {
			return nil, errors.Wrapf(err, "storage value %q", v)
		}
		acc.Storage[slot] = value
	}
	acc.normalize()
	return acc, nil
}

func parseWord(s string) (common.Hash, error) {
	v, ok := math.ParseBig256(s)
	if !ok {
		return common.Hash{}, errors.New("not a 256-bit number")
	}
	return common.BigToHash(v), nil
}

// MarshalJSON encodes the alloc with full-width storage keys, the form
// transition tools read.
func (a Alloc) MarshalJSON() ([]byte, error) {
	enc := make(map[string]accountJSON, len(a))
	for addr, acc := range a {
		item := accountJSON{
			Nonce: math.HexOrDecimal64(acc.Nonce),
			Code:  hexutil.Encode(acc.Code),
		}
		if acc.Balance != nil {
			item.Balance = (*math.HexOrDecimal256)(acc.Balance.ToBig())
		} else {
			item.Balance = (*math.HexOrDecimal256)(new(big.Int))
		}
		if len(acc.Storage) > 0 {
			item.Storage = make(map[string]string, len(acc.Storage))
			for k, v := range acc.Storage {
				item.Storage[k.Hex()] = v.Hex()
			}
		}
		enc[addr.Hex()] = item
	}
	return json.Marshal(enc)
}
