package eventlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"jidchain/core/types"
)

var bucketEntries = []byte("entries")

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("eventlog: journal closed")

// Entry is a committed registry event with its position in the journal.
type Entry struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Journal is an append-only BoltDB log of committed events. It doubles as a
// fan-out point for live subscribers.
type Journal struct {
	db *bolt.DB

	mu     sync.Mutex
	subs   map[int]chan Entry
	nextID int
}

// Open initialises (and migrates) the journal at path.
func Open(path string, options *bolt.Options) (*Journal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, subs: make(map[int]chan Entry)}, nil
}

// Close releases the Bolt handle and ends all subscriptions.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	j.mu.Lock()
	for id, ch := range j.subs {
		close(ch)
		delete(j.subs, id)
	}
	j.mu.Unlock()
	return j.db.Close()
}

// Name identifies the journal as an event sink.
func (j *Journal) Name() string { return "journal" }

// Publish appends a committed batch and forwards it to live subscribers.
func (j *Journal) Publish(_ context.Context, height uint64, evts []types.Event) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	appended := make([]Entry, 0, len(evts))
	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		for i, evt := range evts {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			entry := Entry{
				ID:         EntryID(height, i, evt),
				Seq:        seq,
				Height:     height,
				Type:       evt.Type,
				Attributes: evt.Clone().Attributes,
			}
			encoded, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := bucket.Put(seqKey(seq), encoded); err != nil {
				return err
			}
			appended = append(appended, entry)
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.broadcast(appended)
	return nil
}

// Since returns up to limit entries with a sequence strictly greater than
// after, in order. A non-positive limit returns everything.
func (j *Journal) Since(after uint64, limit int) ([]Entry, error) {
	if after == math.MaxUint64 {
		return nil, nil
	}
	var out []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEntries).Cursor()
		for k, v := cursor.Seek(seqKey(after + 1)); k != nil; k, v = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, entry)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Latest returns the highest sequence number written so far.
func (j *Journal) Latest() (uint64, error) {
	var seq uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		seq = tx.Bucket(bucketEntries).Sequence()
		return nil
	})
	return seq, err
}

// Subscribe returns a channel receiving entries appended after the call.
// Slow subscribers miss entries rather than stall commits; they can catch up
// with Since.
func (j *Journal) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)
	j.mu.Lock()
	id := j.nextID
	j.nextID++
	j.subs[id] = ch
	j.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			j.mu.Lock()
			if existing, ok := j.subs[id]; ok {
				delete(j.subs, id)
				close(existing)
			}
			j.mu.Unlock()
		})
	}
	return ch, cancel
}

func (j *Journal) broadcast(entries []Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, entry := range entries {
		for _, ch := range j.subs {
			select {
			case ch <- entry:
			default:
			}
		}
	}
}

// EntryID derives a stable identifier for the event at position index of the
// batch committed at height.
func EntryID(height uint64, index int, evt types.Event) string {
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(height, 10))
	buf.WriteByte('|')
	buf.WriteString(strconv.Itoa(index))
	buf.WriteByte('|')
	buf.WriteString(evt.Type)
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte('|')
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(evt.Attributes[k])
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func seqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}
