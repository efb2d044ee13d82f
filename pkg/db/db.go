package db

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// Database is the relay's persistent store. It holds the pending transaction slot of every
// local chain and the finalizer quorum state.
type Database struct {
	db *badger.DB
}

// Operation represents a database operation type
type Operation string

const (
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

var (
	ErrMarshal   = errors.New("db: marshal")
	ErrUnmarshal = errors.New("db: unmarshal")
)

type DBError struct {
	Op  Operation
	Key []byte
	Err error
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func (e *DBError) Error() string {
	return fmt.Sprintf("relay database: %s key: %s error: %v", e.Op, e.Key, e.Err)
}

// ErrInputSize is returned when stored bytes are too short or too long for the type they decode to.
type ErrInputSize struct {
	Msg  string
	Want int
	Got  int
}

func (e ErrInputSize) Error() string {
	return fmt.Sprintf("wrong size: %s. expected %d bytes, got %d", e.Msg, e.Want, e.Got)
}

func Open(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return open(opts)
}

// OpenInMemory returns a database that is not backed by disk. Devnets and tests use it.
func OpenInMemory() (*Database, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Database, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Conn returns a pointer to the underlying database connection.
func (d *Database) Conn() *badger.DB {
	return d.db
}

// get returns a copy of the value stored under key, or badger.ErrKeyNotFound.
func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (d *Database) update(key []byte, data []byte) error {
	updateErr := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})

	if updateErr != nil {
		return &DBError{Op: OpUpdate, Key: key, Err: updateErr}
	}

	return nil
}

func (d *Database) deleteEntry(key []byte) error {
	if updateErr := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); updateErr != nil {
		return &DBError{Op: OpDelete, Key: key, Err: updateErr}
	}

	return nil
}
