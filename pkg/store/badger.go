package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"relaypool.dev/internal/chk"
	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/wire"
)

const (
	eventPrefix = "ev:"
	indexPrefix = "ix:" // ix:<created_at be64><id> -> id, for time-ordered scans
)

// BadgerStore is a badger/v4-backed EventStore. It keeps each event under
// its id and a secondary time-ordered index so NegentropyItems can start
// its scan at the filter's Since instead of the first stored event.
type BadgerStore struct {
	db      *badger.DB
	dataDir string
	cancel  context.CancelFunc
}

// Open opens (creating if absent) a badger database at dataDir, mirroring
// the teacher's block-cache/compaction tuning and logger wiring.
func Open(ctx context.Context, dataDir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %q: %w", dataDir, err)
	}
	opts := badger.DefaultOptions(dataDir)
	opts.BlockCacheSize = 64 << 20
	opts.CompactL0OnClose = true
	opts.Logger = badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store at %q: %w", dataDir, err)
	}

	storeCtx, cancel := context.WithCancel(ctx)
	s := &BadgerStore{db: db, dataDir: dataDir, cancel: cancel}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-storeCtx.Done():
				_ = db.Close()
				return
			case <-ticker.C:
				_ = db.RunValueLogGC(0.5)
			}
		}
	}()

	return s, nil
}

func (s *BadgerStore) Path() string { return s.dataDir }

func (s *BadgerStore) Close() error {
	s.cancel()
	return nil
}

func indexKey(createdAt wire.Timestamp, id wire.Id) []byte {
	key := make([]byte, 0, len(indexPrefix)+8+len(id))
	key = append(key, indexPrefix...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	key = append(key, ts[:]...)
	key = append(key, id...)
	return key
}

func (s *BadgerStore) SaveEvent(ctx context.Context, ev *wire.Event) error {
	if ev == nil {
		return fmt.Errorf("store: nil event")
	}
	val, err := msgpack.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: encoding event %s: %w", ev.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(eventPrefix+string(ev.ID)), val); err != nil {
			return err
		}
		return txn.Set(indexKey(ev.CreatedAt, ev.ID), []byte(ev.ID))
	})
	if chk.E(err) {
		return fmt.Errorf("store: saving event %s: %w", ev.ID, err)
	}
	return nil
}

// NegentropyItems scans the time-ordered index from Since (or from the start
// if unset) to its end, decoding each candidate event to test it against
// Until and the rest of the filter, and returns the surviving
// (id, timestamp) summaries reconciliation needs.
func (s *BadgerStore) NegentropyItems(ctx context.Context, filter *wire.Filter) ([]wire.NegentropyItem, error) {
	var items []wire.NegentropyItem

	lower := []byte(indexPrefix)
	if filter.Since != nil {
		lower = indexKey(*filter.Since, "")
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(indexPrefix)})
		defer it.Close()

		for it.Seek(lower); it.ValidForPrefix([]byte(indexPrefix)); it.Next() {
			var id wire.Id
			err := it.Item().Value(func(v []byte) error {
				id = wire.Id(v)
				return nil
			})
			if err != nil {
				return err
			}

			evItem, err := txn.Get([]byte(eventPrefix + string(id)))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}

			var ev wire.Event
			err = evItem.Value(func(v []byte) error { return msgpack.Unmarshal(v, &ev) })
			if err != nil {
				return err
			}

			if filter.Until != nil && ev.CreatedAt > *filter.Until {
				continue
			}
			if !filter.Matches(&ev) {
				continue
			}
			items = append(items, wire.NegentropyItem{Id: ev.ID, CreatedAt: ev.CreatedAt})

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scanning for negentropy items: %w", err)
	}
	return items, nil
}

// Get returns a single event by id, or (nil, nil) if absent.
func (s *BadgerStore) Get(ctx context.Context, id wire.Id) (*wire.Event, error) {
	var ev *wire.Event
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(eventPrefix + string(id)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		ev = &wire.Event{}
		return item.Value(func(v []byte) error { return msgpack.Unmarshal(v, ev) })
	})
	return ev, err
}

// Count returns the total number of stored events, used by the `database
// stats` CLI command.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(eventPrefix)})
		defer it.Close()
		for it.Seek([]byte(eventPrefix)); it.ValidForPrefix([]byte(eventPrefix)); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { log.E.F(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { log.W.F(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { log.D.F(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { log.T.F(format, args...) }
