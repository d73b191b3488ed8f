package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/dgraph-io/badger/v3"
)

// BadgerStore ColdStorage на BadgerDB.
// Хранит сгенерированные меши, поэтому потеря базы безопасна: меши просто перестроятся.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore открывает базу в dbPath. Пустой путь: база в памяти.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	var opts badger.Options
	if dbPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dbPath, 0o755); err != nil {
			return nil, fmt.Errorf("ошибка создания директории %s: %w", dbPath, err)
		}
		opts = badger.DefaultOptions(dbPath)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия BadgerDB: %w", err)
	}

	logging.Info("BadgerDB mesh storage opened: %q", dbPath)
	return &BadgerStore{db: db}, nil
}

// Load возвращает значение или ErrCacheMiss.
func (s *BadgerStore) Load(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("badger load %s: %w", key, err)
	}
	return val, nil
}

// Store сохраняет значение; ttl > 0 задаёт срок жизни записи.
func (s *BadgerStore) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger store %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// RunGC запускает сборку мусора value log, пока есть что собирать
func (s *BadgerStore) RunGC() {
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
