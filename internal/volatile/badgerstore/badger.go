// Package badgerstore implements volatile.Store on an embedded BadgerDB, for single-process
// deployments that do not run Redis. Atomicity comes from Badger's optimistic transactions:
// conflicting writers are retried.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"community-bot/backend/internal/volatile"
)

const (
	// listSep separates a list key from its item sequence number. Keys never contain NUL.
	listSep     = "\x00"
	seqPrefix   = "\x00seq:"
	seqBandwith = 1000
	maxRetries  = 64
)

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory (tests).
	InMemory bool
	// MaxMemoryMB bounds the memtable and caches (0 = 16 MB memtable).
	MaxMemoryMB int64
}

// Store implements volatile.Store using BadgerDB.
type Store struct {
	db *badger.DB

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

var _ volatile.Store = (*Store)(nil)

// New opens a Badger database tuned for small, short-lived counters.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db, seqs: make(map[string]*badger.Sequence)}, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with concurrent writers.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badgerstore: too many conflicts: %w", badger.ErrConflict)
}

// entry builds a write that keeps the previous expiry when ttl is zero.
func entry(key string, value []byte, ttl time.Duration, prevExpires uint64) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	switch {
	case ttl > 0:
		e = e.WithTTL(ttl)
	case prevExpires > 0:
		e.ExpiresAt = prevExpires
	}
	return e
}

// getItem returns (nil, nil) for a missing or expired key.
func getItem(txn *badger.Txn, key string) (*badger.Item, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return item, err
}

func readInt(item *badger.Item) (int64, error) {
	var n int64
	err := item.Value(func(val []byte) error {
		var perr error
		n, perr = strconv.ParseInt(string(val), 10, 64)
		return perr
	})
	return n, err
}

func readHash(item *badger.Item) (map[string]int64, error) {
	h := make(map[string]int64)
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &h)
	})
	return h, err
}

func (s *Store) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var cur int64
		var expires uint64
		item, err := getItem(txn, key)
		if err != nil {
			return err
		}
		if item != nil {
			if cur, err = readInt(item); err != nil {
				return err
			}
			expires = item.ExpiresAt()
		}
		return txn.SetEntry(entry(key, []byte(strconv.FormatInt(cur+delta, 10)), ttl, expires))
	})
}

func (s *Store) GetDel(ctx context.Context, key string) (int64, bool, error) {
	var (
		v  int64
		ok bool
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		v, ok = 0, false
		item, err := getItem(txn, key)
		if err != nil || item == nil {
			return err
		}
		if v, err = readInt(item); err != nil {
			return err
		}
		ok = true
		return txn.Delete([]byte(key))
	})
	return v, ok, err
}

func (s *Store) HIncrBy(ctx context.Context, key string, incr, set map[string]int64, ttl time.Duration) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		h := make(map[string]int64)
		var expires uint64
		item, err := getItem(txn, key)
		if err != nil {
			return err
		}
		if item != nil {
			if h, err = readHash(item); err != nil {
				return err
			}
			expires = item.ExpiresAt()
		}
		for field, delta := range incr {
			h[field] += delta
		}
		for field, v := range set {
			h[field] = v
		}
		raw, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return txn.SetEntry(entry(key, raw, ttl, expires))
	})
}

func (s *Store) HGetAllDel(ctx context.Context, key string) (map[string]int64, error) {
	var out map[string]int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		out = map[string]int64{}
		item, err := getItem(txn, key)
		if err != nil || item == nil {
			return err
		}
		if out, err = readHash(item); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	return out, err
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var created bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		created = false
		item, err := getItem(txn, key)
		if err != nil || item != nil {
			return err
		}
		created = true
		return txn.SetEntry(entry(key, []byte(value), ttl, 0))
	})
	return created, err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := getItem(txn, key)
		if err != nil {
			return err
		}
		if item == nil {
			return volatile.ErrNil
		}
		raw, err := item.ValueCopy(nil)
		v = string(raw)
		return err
	})
	return v, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(entry(key, []byte(value), ttl, 0))
	})
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) sequence(key string) (*badger.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq, ok := s.seqs[key]; ok {
		return seq, nil
	}
	seq, err := s.db.GetSequence([]byte(seqPrefix+key), seqBandwith)
	if err != nil {
		return nil, err
	}
	s.seqs[key] = seq
	return seq, nil
}

func listItemKey(key string, n uint64) []byte {
	buf := make([]byte, 0, len(key)+len(listSep)+8)
	buf = append(buf, key...)
	buf = append(buf, listSep...)
	return binary.BigEndian.AppendUint64(buf, n)
}

// RPush stores each value under key\x00<seq>; big-endian sequence numbers keep prefix
// iteration in push order.
func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	seq, err := s.sequence(key)
	if err != nil {
		return err
	}
	ids := make([]uint64, len(values))
	for i := range values {
		if ids[i], err = seq.Next(); err != nil {
			return err
		}
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for i, v := range values {
			if err := txn.Set(listItemKey(key, ids[i]), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LPopN(ctx context.Context, key string, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	prefix := []byte(key + listSep)
	var out [][]byte
	err := s.update(ctx, func(txn *badger.Txn) error {
		out = out[:0]
		var popped [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = n
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < n; it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			out = append(out, v)
			popped = append(popped, item.KeyCopy(nil))
		}
		it.Close()
		for _, k := range popped {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// ScanPrefix lists plain keys; list items and sequence bookkeeping are skipped.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := it.Item().Key()
			if bytes.Contains(k, []byte(listSep)) {
				continue
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badgerstore: database is closed")
	}
	return nil
}

// RunGC reclaims value-log space; badger.ErrNoRewrite just means nothing was collected.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func (s *Store) Close() error {
	s.mu.Lock()
	var errs []string
	for k, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			errs = append(errs, err.Error())
		}
		delete(s.seqs, k)
	}
	s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("badgerstore: close: %s", strings.Join(errs, "; "))
	}
	return nil
}
