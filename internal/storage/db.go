package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // Register bdb driver.
)

const dbDriver = "bdb"

// stateBucket is the top level bucket holding all plugin state.
var stateBucket = []byte("plugin-state")

var errNoStateBucket = errors.New("state bucket not found")

// DBStore is a Store persisted in a walletdb (bbolt) database file.
type DBStore struct {
	db walletdb.DB
}

// OpenDBStore opens the database at path, creating it if needed.
func OpenDBStore(path string, timeout time.Duration) (*DBStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	var (
		db  walletdb.DB
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		log.Infof("Creating state database at %s", path)
		db, err = walletdb.Create(dbDriver, path, true, timeout, false)
	} else {
		db, err = walletdb.Open(dbDriver, path, true, timeout, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		if tx.ReadWriteBucket(stateBucket) != nil {
			return nil
		}
		_, err := tx.CreateTopLevelBucket(stateBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state bucket: %w", err)
	}

	return &DBStore{db: db}, nil
}

func (s *DBStore) Get(key string) ([]byte, error) {
	var value []byte
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(stateBucket)
		if bucket == nil {
			return errNoStateBucket
		}
		if v := bucket.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (s *DBStore) Put(key string, value []byte) error {
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(stateBucket)
		if bucket == nil {
			return errNoStateBucket
		}
		return bucket.Put([]byte(key), value)
	})
}

// Close releases the database file.
func (s *DBStore) Close() error {
	return s.db.Close()
}
