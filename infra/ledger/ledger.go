// Package ledger durably records stress run reports in a pebble
// database, together with a publication state used by the broadcaster
// as an outbox.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"treiber/service/stress"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StatePublished:
		return "PUBLISHED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one recorded run.
type Entry struct {
	State  State
	Report stress.Report
}

var ErrNotFound = errors.New("ledger: run not found")

// -------------------- Ledger --------------------

type Ledger struct {
	db *pebble.DB
}

func Open(dir string) (*Ledger, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dir, err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// -------------------- API --------------------

// Append records a new, unpublished report. It overwrites any existing
// entry with the same run ID.
func (l *Ledger) Append(rep stress.Report) error {
	return l.put(Entry{State: StateNew, Report: rep})
}

// MarkPublished flags a run as delivered to the sink.
func (l *Ledger) MarkPublished(runID uint64) error {
	e, err := l.Get(runID)
	if err != nil {
		return err
	}
	if e.State == StatePublished {
		return nil
	}
	e.State = StatePublished
	return l.put(e)
}

func (l *Ledger) Get(runID uint64) (Entry, error) {
	val, closer, err := l.db.Get(keyFor(runID))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, runID)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	return decodeEntry(val)
}

func (l *Ledger) put(e Entry) error {
	val, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return l.db.Set(keyFor(e.Report.RunID), val, pebble.Sync)
}

// -------------------- Scan --------------------

// ScanByState calls fn for every entry in the given state, in run ID
// order. It stops at the first error fn returns.
func (l *Ledger) ScanByState(state State, fn func(Entry) error) error {
	iter, err := l.newIter()
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return fmt.Errorf("key %s: %w", iter.Key(), err)
		}
		if e.State != state {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Latest returns up to n entries, newest first.
func (l *Ledger) Latest(n int) ([]Entry, error) {
	iter, err := l.newIter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for iter.Last(); iter.Valid() && len(out) < n; iter.Prev() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", iter.Key(), err)
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// LastRunID returns the highest recorded run ID, or 0 if the ledger is
// empty.
func (l *Ledger) LastRunID() (uint64, error) {
	iter, err := l.newIter()
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- Helpers --------------------

var (
	keyPrefix = []byte("run/")
	keyUpper  = []byte("run/~")
)

func (l *Ledger) newIter() (*pebble.Iterator, error) {
	return l.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyUpper,
	})
}

func keyFor(runID uint64) []byte {
	return []byte(fmt.Sprintf("run/%020d", runID))
}

func parseKey(b []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(bytes.TrimPrefix(b, keyPrefix)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad key %q", ErrCorruptRecord, b)
	}
	return id, nil
}
