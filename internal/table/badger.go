package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "table/"

// BadgerPersister keeps table state in a Badger database.
type BadgerPersister struct {
	db *badger.DB
}

// OpenBadger opens a persister at dir. An empty dir opens an in-memory
// database.
func OpenBadger(dir string) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening table state db: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

// Close closes the database.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}

func (p *BadgerPersister) Load(_ context.Context, id string) (State, bool, error) {
	var st State
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("loading table %s: %w", id, err)
	}
	return st, true, nil
}

func (p *BadgerPersister) Save(_ context.Context, id string, s State) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding table %s: %w", id, err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), val)
	})
}
