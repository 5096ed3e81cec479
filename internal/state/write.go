package state

import (
	"context"
	"database/sql"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// PutAccount stores acc at addr, replacing any existing account and all of
// its storage.
func (s *Store) PutAccount(ctx context.Context, addr common.Address, acc *Account) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "put account")
	}
	defer tx.Rollback()

	if err := putAccount(ctx, tx, addr, acc); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "put account")
}

// DeleteAccount removes addr and its storage. Deleting a missing account is
// not an error.
func (s *Store) DeleteAccount(ctx context.Context, addr common.Address) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM accounts WHERE address = ?`, addr.Bytes())
	return errors.Wrap(err, "delete account")
}

// SetStorage writes a storage slot of an existing account. Writing the zero
// value deletes the slot.
func (s *Store) SetStorage(ctx context.Context, addr common.Address, slot, value common.Hash) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if value == (common.Hash{}) {
		_, err = db.ExecContext(ctx, `DELETE FROM storage WHERE address = ? AND slot = ?`, addr.Bytes(), slot.Bytes())
		return errors.Wrap(err, "clear storage")
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO storage (address, slot, value) VALUES (?, ?, ?)
		ON CONFLICT(address, slot) DO UPDATE SET value = excluded.value
	`, addr.Bytes(), slot.Bytes(), value.Bytes())
	if err != nil {
		return errors.Wrapf(err, "set storage of %s", addr)
	}
	return nil
}

// Load replaces the whole content of the store with alloc.
func (s *Store) Load(ctx context.Context, alloc Alloc) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "load alloc")
	}
	defer tx.Rollback()

	if err := reset(ctx, tx); err != nil {
		return err
	}
	for _, addr := range alloc.Addresses() {
		if err := putAccount(ctx, tx, addr, alloc[addr]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "load alloc")
	}
	log.WithField("accounts", len(alloc)).Debug("Loaded alloc")
	return nil
}

// Reset deletes every account.
func (s *Store) Reset(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "reset")
	}
	defer tx.Rollback()
	if err := reset(ctx, tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "reset")
}

func reset(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM storage`); err != nil {
		return errors.Wrap(err, "clear storage")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return errors.Wrap(err, "clear accounts")
	}
	return nil
}

func putAccount(ctx context.Context, tx *sql.Tx, addr common.Address, acc *Account) error {
	if acc == nil {
		return errors.Errorf("nil account for %s", addr)
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], acc.Nonce)
	var balance [32]byte
	if acc.Balance != nil {
		balance = acc.Balance.Bytes32()
	}
	code := acc.Code
	if code == nil {
		code = []byte{}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM storage WHERE address = ?`, addr.Bytes()); err != nil {
		return errors.Wrapf(err, "put account %s", addr)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (address, nonce, balance, code) VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			nonce = excluded.nonce, balance = excluded.balance, code = excluded.code
	`, addr.Bytes(), nonce[:], balance[:], code)
	if err != nil {
		return errors.Wrapf(err, "put account %s", addr)
	}
	for slot, value := range acc.Storage {
		if value == (common.Hash{}) {
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO storage (address, slot, value) VALUES (?, ?, ?)`,
			addr.Bytes(), slot.Bytes(), value.Bytes())
		if err != nil {
			return errors.Wrapf(err, "put storage of %s", addr)
		}
	}
	return nil
}
