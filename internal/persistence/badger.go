package persistence

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/praetorlabs/praetor/internal/logger"
)

const sequenceBandwidth = 64

// BadgerEngine implements Engine using BadgerDB
type BadgerEngine struct {
	db  *badger.DB
	log logger.Logger

	seqMu     sync.Mutex
	sequences map[string]*badger.Sequence

	stopGC chan struct{}
}

// NewBadgerEngine creates a new BadgerDB persistence engine
func NewBadgerEngine(dataDir string, syncWrites bool, log logger.Logger) (*BadgerEngine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(dataDir)
	opts.SyncWrites = syncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	engine := &BadgerEngine{
		db:        db,
		log:       log,
		sequences: make(map[string]*badger.Sequence),
		stopGC:    make(chan struct{}),
	}

	go engine.runGarbageCollection()

	log.Info("BadgerDB persistence engine initialized",
		logger.String("data_dir", dataDir),
		logger.String("sync_writes", fmt.Sprintf("%t", syncWrites)))

	return engine, nil
}

func (b *BadgerEngine) runGarbageCollection() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.log.Warn("BadgerDB garbage collection failed", logger.Error(err))
			}
		case <-b.stopGC:
			return
		}
	}
}

func (b *BadgerEngine) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (b *BadgerEngine) Set(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerEngine) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerEngine) List(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	return keys, err
}

func (b *BadgerEngine) Scan(prefix string) ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Key: string(item.Key()), Value: value})
		}
		return nil
	})
	return entries, err
}

func (b *BadgerEngine) NextSequence(name string) (uint64, error) {
	b.seqMu.Lock()
	seq, ok := b.sequences[name]
	if !ok {
		var err error
		seq, err = b.db.GetSequence([]byte("seq:"+name), sequenceBandwidth)
		if err != nil {
			b.seqMu.Unlock()
			return 0, fmt.Errorf("failed to open sequence %q: %w", name, err)
		}
		b.sequences[name] = seq
	}
	b.seqMu.Unlock()

	num, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// Badger sequences start at 0; ids start at 1.
	return num + 1, nil
}

func (b *BadgerEngine) Close() error {
	close(b.stopGC)

	b.seqMu.Lock()
	for name, seq := range b.sequences {
		if err := seq.Release(); err != nil {
			b.log.Warn("Failed to release sequence",
				logger.String("name", name),
				logger.Error(err))
		}
	}
	b.sequences = make(map[string]*badger.Sequence)
	b.seqMu.Unlock()

	return b.db.Close()
}
