package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
)

// Store is a BlobStore backed by an embedded BadgerDB directory.
// Keys are stored as "<namespace>/<key>".
type Store struct {
	db        *badger.DB
	namespace string
}

// Options configures Open
type Options struct {
	Dir       string
	Namespace string
	InMemory  bool
	Logger    *zap.Logger
}

// Open opens the badger database described by opts
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(newLogger(opts.Logger))

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db, namespace: opts.Namespace}, nil
}

// Close flushes and closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) key(key string) []byte {
	return []byte(s.namespace + "/" + key)
}

// Get returns the value stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger get %q: %w", key, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return value, nil
}

// Put stores value under key
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger put %q: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %q: %w", key, err)
	}
	return nil
}

// zapLogger routes badger's internal logging through zap
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func newLogger(logger *zap.Logger) badger.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapLogger{sugar: logger.Named("badger").Sugar()}
}

func (l *zapLogger) Errorf(format string, args ...interface{})   { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Warningf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})    { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Debugf(format string, args ...interface{})   { l.sugar.Debugf(format, args...) }
