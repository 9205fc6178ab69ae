package receipt

import (
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketName = "store"

	// KeyLastChNo holds the voucher number floor as a decimal string
	KeyLastChNo = "last_chno"
	// KeyReceipts holds the JSON encoded receipt list
	KeyReceipts = "receipts"
)

// DB defines the key-value operations the record store needs
type DB interface {
	// Get returns the value for key, or nil if it was never written
	Get(key string) ([]byte, error)

	// Put writes all values in a single transaction
	Put(values map[string][]byte) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Get reads a single key
func (b *BoltDB) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data != nil {
			// bolt values are only valid inside the transaction
			value = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Put writes every key or none of them
func (b *BoltDB) Put(values map[string][]byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for key, value := range values {
			if err := bucket.Put([]byte(key), value); err != nil {
				return fmt.Errorf("writing %s: %w", key, err)
			}
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// MemoryDB keeps values in memory. Nothing survives the process.
type MemoryDB struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryDB creates an empty MemoryDB
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{values: make(map[string][]byte)}
}

func (m *MemoryDB) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryDB) Put(values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range values {
		m.values[key] = append([]byte(nil), value...)
	}
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}
