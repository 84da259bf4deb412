package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The registry state trie and the node's head pointers share one backend, so
// every implementation also exposes the trie database layered on top of it.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	backend *memorydb.Database
	trieDB  *triedb.Database
}

func NewMemDB() *MemDB {
	backend := memorydb.New()
	return &MemDB{
		backend: backend,
		trieDB:  triedb.NewDatabase(rawdb.NewDatabase(backend), triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	return db.backend.Put(key, value)
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	ok, err := db.backend.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.backend.Get(key)
}

func (db *MemDB) Has(key []byte) (bool, error) {
	return db.backend.Has(key)
}

// TrieDB exposes the trie database backed by the in-memory store.
func (db *MemDB) TrieDB() *triedb.Database { return db.trieDB }

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.trieDB.Close()
	_ = db.backend.Close()
}

// --- Persistent DB ---

// LevelOptions tunes the LevelDB backend. Zero values select defaults.
type LevelOptions struct {
	CacheMB int
	Handles int
}

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db     *ethleveldb.Database
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database applying the supplied tuning.
func NewLevelDBWithOptions(path string, options LevelOptions) (*LevelDB, error) {
	cache := options.CacheMB
	if cache <= 0 {
		cache = 16
	}
	handles := options.Handles
	if handles <= 0 {
		handles = 64
	}
	kv, err := ethleveldb.NewCustom(path, "", func(o *opt.Options) {
		o.BlockCacheCapacity = cache / 2 * opt.MiB
		o.WriteBuffer = cache / 4 * opt.MiB
		o.OpenFilesCacheCapacity = handles
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{
		db:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key is present.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key)
}

// TrieDB exposes the trie database backed by LevelDB.
func (ldb *LevelDB) TrieDB() *triedb.Database { return ldb.trieDB }

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.db.Close()
}

var (
	_ Database            = (*MemDB)(nil)
	_ Database            = (*LevelDB)(nil)
	_ ethdb.KeyValueStore = (*memorydb.Database)(nil)
)
