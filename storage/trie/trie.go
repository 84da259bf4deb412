package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"jidchain/storage"
)

// Trie is the registry state tree. Keys are Keccak-hashed on the way in, so
// callers work with readable keys. Writes stay in memory until Commit;
// Rollback returns the tree to the last committed root.
//
// Trie is not safe for concurrent use.
type Trie struct {
	trieDB    *triedb.Database
	trie      *gethtrie.Trie
	committed common.Hash
}

// Open loads the tree at root. The zero hash opens the empty tree.
func Open(store storage.Database, root common.Hash) (*Trie, error) {
	if root == (common.Hash{}) {
		root = gethtypes.EmptyRootHash
	}
	t := &Trie{trieDB: store.TrieDB()}
	if err := t.load(root); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trie) load(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.committed = root
	return nil
}

func hashKey(key []byte) []byte { return ethcrypto.Keccak256(key) }

// Get returns the value under key, or nil when absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(hashKey(key))
}

// Put stores value under key.
func (t *Trie) Put(key, value []byte) error {
	return t.trie.Update(hashKey(key), value)
}

// Delete removes key. Deleting a missing key is a no-op.
func (t *Trie) Delete(key []byte) error {
	return t.trie.Delete(hashKey(key))
}

// PendingRoot is the root including uncommitted writes.
func (t *Trie) PendingRoot() common.Hash {
	return t.trie.Hash()
}

// Committed returns the last committed root.
func (t *Trie) Committed() common.Hash {
	return t.committed
}

// Rollback discards uncommitted writes.
func (t *Trie) Rollback() error {
	return t.load(t.committed)
}

// Revert reopens the tree at an earlier committed root, discarding pending
// writes. Nodes already flushed for later roots stay in the database.
func (t *Trie) Revert(root common.Hash) error {
	if root == (common.Hash{}) {
		root = gethtypes.EmptyRootHash
	}
	return t.load(root)
}

// Commit flushes pending writes to the backing database as the state at
// height and returns the new root.
func (t *Trie) Commit(height uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, t.committed, height, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.load(newRoot); err != nil {
		return common.Hash{}, err
	}
	return newRoot, nil
}
