package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/deepdex/deepdex/pkg/clob"
)

// NopJournal discards fills. Default sink for tests and benchmarks.
type NopJournal struct{}

func NewNopJournal() *NopJournal                       { return &NopJournal{} }
func (*NopJournal) RecordFill(_ uuid.UUID, _ clob.Fill) {}

// FileJournal appends one JSON line per fill to a flat file, a cheap
// human-greppable trade log alongside the Pebble history.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

type journalLine struct {
	PoolID        string `json:"pool_id"`
	MakerOrderID  uint64 `json:"maker_order_id"`
	MakerOwner    string `json:"maker_owner"`
	TakerClientID uint64 `json:"taker_client_id"`
	TakerIsBid    bool   `json:"taker_is_bid"`
	Price         uint64 `json:"price"`
	Quantity      uint64 `json:"quantity"`
	Notional      uint64 `json:"notional"`
	TakerFee      uint64 `json:"taker_fee"`
	MakerRebate   uint64 `json:"maker_rebate"`
	Timestamp     uint64 `json:"ts"`
}

func (j *FileJournal) RecordFill(poolID uuid.UUID, fill clob.Fill) {
	line, err := json.Marshal(journalLine{
		PoolID:        poolID.String(),
		MakerOrderID:  fill.MakerOrderID,
		MakerOwner:    fill.MakerOwner.Hex(),
		TakerClientID: fill.TakerClientID,
		TakerIsBid:    fill.TakerIsBid,
		Price:         fill.Price,
		Quantity:      fill.Quantity,
		Notional:      fill.Notional,
		TakerFee:      fill.TakerFee,
		MakerRebate:   fill.MakerRebate,
		Timestamp:     fill.Timestamp,
	})
	if err != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.f, string(line))
}

func (j *FileJournal) Close() error { return j.f.Close() }

// MultiJournal fans a fill out to several sinks.
type MultiJournal []clob.TradeSink

func (m MultiJournal) RecordFill(poolID uuid.UUID, fill clob.Fill) {
	for _, sink := range m {
		sink.RecordFill(poolID, fill)
	}
}

var (
	_ clob.TradeSink = (*NopJournal)(nil)
	_ clob.TradeSink = (*FileJournal)(nil)
	_ clob.TradeSink = (MultiJournal)(nil)
)
