// Package inmemdb is an in-memory credential store, used by tests and local runs without PostgreSQL.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/staff"
)

type txKey struct{}

type (
	// DB serializes transactions with one mutex. A failed transaction is rolled back by restoring
	// the tables as they were when it started.
	DB struct {
		mu sync.Mutex

		accounts    map[string]account.Account
		profiles    map[string]account.Profile
		invitations map[string]staff.Invitation
	}

	snapshot struct {
		accounts    map[string]account.Account
		profiles    map[string]account.Profile
		invitations map[string]staff.Invitation
	}
)

func Open() *DB {
	return &DB{
		accounts:    make(map[string]account.Account),
		profiles:    make(map[string]account.Profile),
		invitations: make(map[string]staff.Invitation),
	}
}

func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *DB) Close() error { return nil }

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.restore(snapshot{
		accounts:    make(map[string]account.Account),
		profiles:    make(map[string]account.Profile),
		invitations: make(map[string]staff.Invitation),
	})
}

// lock acquires the store lock unless ctx runs inside a transaction, which holds it already.
func (db *DB) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *DB) snapshot() snapshot {
	snap := snapshot{
		accounts:    make(map[string]account.Account, len(db.accounts)),
		profiles:    make(map[string]account.Profile, len(db.profiles)),
		invitations: make(map[string]staff.Invitation, len(db.invitations)),
	}
	for k, v := range db.accounts {
		snap.accounts[k] = v
	}
	for k, v := range db.profiles {
		snap.profiles[k] = v
	}
	for k, v := range db.invitations {
		snap.invitations[k] = v
	}
	return snap
}

func (db *DB) restore(snap snapshot) {
	db.accounts = snap.accounts
	db.profiles = snap.profiles
	db.invitations = snap.invitations
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}
