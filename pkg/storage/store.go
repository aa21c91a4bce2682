// Package storage persists pool snapshots and executed trades in Pebble and
// provides the trade journal implementations of clob.TradeSink.
package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/deepdex/deepdex/pkg/clob"
)

type PebbleStore struct {
	db  *pebble.DB
	seq atomic.Uint64 // disambiguates trades sharing a timestamp
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SavePoolState writes a consistent pool snapshot, fsynced: a snapshot that
// is not durable is not worth taking.
func (s *PebbleStore) SavePoolState(st clob.State) error {
	val, err := encodeGob(st)
	if err != nil {
		return fmt.Errorf("encode pool state: %w", err)
	}
	if err := s.db.Set(poolKey(st.ID), val, pebble.Sync); err != nil {
		return fmt.Errorf("save pool state: %w", err)
	}
	return nil
}

// LoadPoolState reads one pool snapshot. found=false when absent.
func (s *PebbleStore) LoadPoolState(id uuid.UUID) (clob.State, bool, error) {
	val, closer, err := s.db.Get(poolKey(id))
	if err == pebble.ErrNotFound {
		return clob.State{}, false, nil
	}
	if err != nil {
		return clob.State{}, false, fmt.Errorf("get pool state: %w", err)
	}
	defer closer.Close()
	var st clob.State
	if err := decodeGob(val, &st); err != nil {
		return clob.State{}, false, fmt.Errorf("decode pool state: %w", err)
	}
	return st, true, nil
}

// ListPoolStates loads every persisted pool snapshot, for boot.
func (s *PebbleStore) ListPoolStates() ([]clob.State, error) {
	prefix := []byte(prefixPool)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var states []clob.State
	for iter.First(); iter.Valid(); iter.Next() {
		var st clob.State
		if err := decodeGob(iter.Value(), &st); err != nil {
			return nil, fmt.Errorf("decode pool state: %w", err)
		}
		states = append(states, st)
	}
	return states, nil
}

// RecordFill appends an executed trade. NoSync: trade history is
// reconstructible and not worth an fsync per fill.
func (s *PebbleStore) RecordFill(poolID uuid.UUID, fill clob.Fill) {
	val, err := encodeGob(fill)
	if err != nil {
		panic(fmt.Errorf("encode fill: %w", err))
	}
	key := tradeKey(poolID, fill.Timestamp, s.seq.Add(1))
	if err := s.db.Set(key, val, pebble.NoSync); err != nil {
		panic(fmt.Errorf("record fill: %w", err))
	}
}

var _ clob.TradeSink = (*PebbleStore)(nil)

// LoadRecentFills returns up to limit of the newest trades for a pool,
// newest first.
func (s *PebbleStore) LoadRecentFills(poolID uuid.UUID, limit int) ([]clob.Fill, error) {
	prefix := tradePrefix(poolID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var fills []clob.Fill
	for iter.Last(); iter.Valid() && len(fills) < limit; iter.Prev() {
		var fill clob.Fill
		if err := decodeGob(iter.Value(), &fill); err != nil {
			return nil, fmt.Errorf("decode fill: %w", err)
		}
		fills = append(fills, fill)
	}
	return fills, nil
}
