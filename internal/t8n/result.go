package t8n

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/roach88/ethconform/internal/types"
)

type rejectedTx struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// result is the execution summary written to --output.result.
type result struct {
	StateRoot       common.Hash         `json:"stateRoot"`
	TxRoot          common.Hash         `json:"txRoot"`
	ReceiptRoot     common.Hash         `json:"receiptsRoot"`
	LogsHash        common.Hash         `json:"logsHash"`
	Bloom           types.Bloom         `json:"logsBloom"`
	Rejected        []rejectedTx        `json:"rejected,omitempty"`
	GasUsed         math.HexOrDecimal64 `json:"gasUsed"`
	WithdrawalsRoot *common.Hash        `json:"withdrawalsRoot,omitempty"`
}

// verify compares the result with the commitments of header. The first
// rejected transaction wins over any root mismatch.
func (r *result) verify(header *types.Header) error {
	if len(r.Rejected) > 0 {
		return &RejectedError{Index: r.Rejected[0].Index, Reason: r.Rejected[0].Error}
	}
	checks := []struct {
		field     string
		got, want common.Hash
	}{
		{"stateRoot", r.StateRoot, header.Root},
		{"txRoot", r.TxRoot, header.TxHash},
		{"receiptsRoot", r.ReceiptRoot, header.ReceiptHash},
	}
	for _, c := range checks {
		if c.got != c.want {
			return &MismatchError{Field: c.field, Got: c.got.Hex(), Want: c.want.Hex()}
		}
	}
	if uint64(r.GasUsed) != header.GasUsed {
		return &MismatchError{
			Field: "gasUsed",
			Got:   hexutil.EncodeUint64(uint64(r.GasUsed)),
			Want:  hexutil.EncodeUint64(header.GasUsed),
		}
	}
	if r.Bloom != header.Bloom {
		got, _ := r.Bloom.MarshalText()
		want, _ := header.Bloom.MarshalText()
		return &MismatchError{Field: "logsBloom", Got: string(got), Want: string(want)}
	}
	if header.WithdrawalsRoot != nil && r.WithdrawalsRoot != nil && *r.WithdrawalsRoot != *header.WithdrawalsRoot {
		return &MismatchError{Field: "withdrawalsRoot", Got: r.WithdrawalsRoot.Hex(), Want: header.WithdrawalsRoot.Hex()}
	}
	return nil
}
