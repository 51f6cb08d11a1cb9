// Package contentstore provides content-addressed backends for the
// graph store: a Badger-backed store for local persistence and an
// in-memory store for tests and ephemeral use. Both derive every key
// from the stored bytes, so a Get can verify what it fetched.
package contentstore

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/evannetwork/graphstore/pkg/fault"
	"github.com/evannetwork/graphstore/pkg/hash"
)

// StoreConfig configures a BadgerStore.
type StoreConfig struct {
	// Path is the data directory. Created if missing.
	Path string

	// Logger is an optional structured logger. If nil, a default
	// logrus logger is used.
	Logger *logrus.Logger

	// GarbageCollectionInterval enables a periodic Badger value-log
	// GC pass when positive.
	GarbageCollectionInterval time.Duration
}

// BadgerStore is a local content-addressed store on top of Badger.
type BadgerStore struct {
	config       StoreConfig
	badgerDB     *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
	stopGC       chan struct{}
}

func NewBadgerStore(config StoreConfig) (*BadgerStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("contentstore: data path is required")
	}
	if err := os.MkdirAll(config.Path, 0o700); err != nil {
		return nil, fmt.Errorf("contentstore: create data path: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB value log files
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("contentstore: open badger at %s: %w", config.Path, err)
	}

	s := &BadgerStore{
		config:   config,
		badgerDB: db,
		log:      config.Logger,
		stopGC:   make(chan struct{}),
	}

	if err := displayDiskUsage(config.Logger, config.Path); err != nil {
		s.log.WithFields(logrus.Fields{
			"path": config.Path,
		}).Warnf("could not report disk usage: %v", err)
	}

	if config.GarbageCollectionInterval > 0 {
		go s.runGarbageCollection()
	}

	return s, nil
}

// Put stores data under its content address and returns the address.
// Storing bytes that already exist is a no-op with the same result.
func (s *BadgerStore) Put(ctx context.Context, data []byte) (hash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return hash.Hash{}, err
	}
	atomic.AddUint64(&s.writeCounter, 1)

	h := hash.Bytes(data)
	err := s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(h.Bytes(), data)
	})
	if err != nil {
		return hash.Hash{}, fmt.Errorf("write %s: %w", h, err)
	}
	return h, nil
}

// Get fetches the bytes stored under h and verifies them against the
// address. A verification mismatch means local corruption and surfaces
// as a malformed-envelope failure, never silently.
func (s *BadgerStore) Get(ctx context.Context, h hash.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddUint64(&s.readCounter, 1)

	var data []byte
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(h.Bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", h, err)
	}

	if hash.Bytes(data) != h {
		return nil, fault.Malformed(fmt.Errorf("stored bytes for %s fail verification", h))
	}
	return data, nil
}

// Counters returns the number of read and write operations since the
// store was opened.
func (s *BadgerStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&s.readCounter), atomic.LoadUint64(&s.writeCounter)
}

func (s *BadgerStore) Close() error {
	close(s.stopGC)
	return s.badgerDB.Close()
}

func (s *BadgerStore) runGarbageCollection() {
	ticker := time.NewTicker(s.config.GarbageCollectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			err := s.badgerDB.RunValueLogGC(0.5)
			if err != nil && err != badger.ErrNoRewrite {
				s.log.Errorf("badger value log GC: %v", err)
			}
		}
	}
}
