package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Record keys live under a prefix so the database can host other
// namespaces later without a migration: "idem:<account>:<client key>".
const keyPrefix = "idem:"

func recordKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// BadgerStore persists idempotency records in an embedded BadgerDB.
// This is the default backend: record expiry rides on badger's native
// entry TTL, so there is no sweeper to run and nothing survives past its
// window even across restarts.
type BadgerStore struct {
	db   *badger.DB
	opts Options
}

// NewBadgerStore opens (or creates) the database at path. An empty path
// opens an in-memory instance, used by tests and throwaway runs.
func NewBadgerStore(path string, opts Options) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open idempotency store: %w", err)
	}
	return &BadgerStore{db: db, opts: opts.withDefaults()}, nil
}

// Check implements Store.
func (s *BadgerStore) Check(ctx context.Context, key string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	var state State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err == badger.ErrKeyNotFound {
			state = State{Status: StatusAbsent}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get idempotency record: %w", err)
		}
		return item.Value(func(val []byte) error {
			st, err := decodeState(val)
			if err != nil {
				return err
			}
			state = st
			return nil
		})
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// SetInFlight implements Store. Two concurrent claims on the same key
// conflict at commit; the loser is told the key is in flight.
func (s *BadgerStore) SetInFlight(ctx context.Context, key string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	var prior State
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err == nil {
			return item.Value(func(val []byte) error {
				st, err := decodeState(val)
				if err != nil {
					return err
				}
				prior = st
				return nil
			})
		}
		if err != badger.ErrKeyNotFound {
			return fmt.Errorf("failed to get idempotency record: %w", err)
		}

		val, err := encodeInFlight(time.Now().UTC())
		if err != nil {
			return err
		}
		prior = State{Status: StatusAbsent}
		entry := badger.NewEntry(recordKey(key), val).WithTTL(s.opts.InFlightTTL)
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrConflict) {
		return State{Status: StatusInFlight}, nil
	}
	if err != nil {
		return State{}, err
	}
	return prior, nil
}

// SetCompleted implements Store.
func (s *BadgerStore) SetCompleted(ctx context.Context, key string, statusCode int, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := encodeCompleted(statusCode, body, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(recordKey(key), val).WithTTL(s.opts.CompletedTTL)
		return txn.SetEntry(entry)
	})
}

// Clear implements Store.
func (s *BadgerStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key))
	})
}

// Ping implements Store.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("idempotency store is closed")
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
