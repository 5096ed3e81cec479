package state

import (
	"context"
	"database/sql"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrAccountNotFound is returned by Account for addresses with no account.
var ErrAccountNotFound = errors.New("account not found")

// Account returns the account at addr, including its storage.
func (s *Store) Account(ctx context.Context, addr common.Address) (*Account, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var nonce, balance, code []byte
	err = db.QueryRowContext(ctx,
		`SELECT nonce, balance, code FROM accounts WHERE address = ?`, addr.Bytes(),
	).Scan(&nonce, &balance, &code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", addr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read account %s", addr)
	}
	acc := newAccount(nonce, balance, code)

	rows, err := db.QueryContext(ctx,
		`SELECT slot, value FROM storage WHERE address = ? ORDER BY slot`, addr.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "read storage of %s", addr)
	}
	defer rows.Close()
	for rows.Next() {
		var slot, value []byte
		if err := rows.Scan(&slot, &value); err != nil {
			return nil, errors.Wrap(err, "scan storage")
		}
		acc.Storage[common.BytesToHash(slot)] = common.BytesToHash(value)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate storage")
	}
	return acc, nil
}

// Storage returns a storage slot, zero when either the slot or the account
// does not exist.
func (s *Store) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	db, err := s.conn()
	if err != nil {
		return common.Hash{}, err
	}
	var value []byte
	err = db.QueryRowContext(ctx,
		`SELECT value FROM storage WHERE address = ? AND slot = ?`, addr.Bytes(), slot.Bytes(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "read storage of %s", addr)
	}
	return common.BytesToHash(value), nil
}

// Dump returns the full content of the store. The result is independent of
// the store and may be modified.
func (s *Store) Dump(ctx context.Context) (Alloc, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	alloc := make(Alloc)

	rows, err := db.QueryContext(ctx, `SELECT address, nonce, balance, code FROM accounts`)
	if err != nil {
		return nil, errors.Wrap(err, "dump accounts")
	}
	defer rows.Close()
	for rows.Next() {
		var addr, nonce, balance, code []byte
		if err := rows.Scan(&addr, &nonce, &balance, &code); err != nil {
			return nil, errors.Wrap(err, "scan account")
		}
		alloc[common.BytesToAddress(addr)] = newAccount(nonce, balance, code)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate accounts")
	}

	slots, err := db.QueryContext(ctx, `SELECT address, slot, value FROM storage`)
	if err != nil {
		return nil, errors.Wrap(err, "dump storage")
	}
	defer slots.Close()
	for slots.Next() {
		var addr, slot, value []byte
		if err := slots.Scan(&addr, &slot, &value); err != nil {
			return nil, errors.Wrap(err, "scan storage")
		}
		acc, ok := alloc[common.BytesToAddress(addr)]
		if !ok {
			return nil, errors.Errorf("storage for missing account %x", addr)
		}
		acc.Storage[common.BytesToHash(slot)] = common.BytesToHash(value)
	}
	if err := slots.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate storage")
	}
	return alloc, nil
}

// Len returns the number of accounts.
func (s *Store) Len(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count accounts")
	}
	return n, nil
}

func newAccount(nonce, balance, code []byte) *Account {
	acc := &Account{
		Nonce:   binary.BigEndian.Uint64(nonce),
		Balance: new(uint256.Int).SetBytes(balance),
		Storage: make(map[common.Hash]common.Hash),
	}
	if len(code) > 0 {
		acc.Code = code
	}
	return acc
}
