package state

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"jidchain/crypto"
	"jidchain/storage"
	"jidchain/storage/trie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.Open(db, common.Hash{})
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr)
}

type kvRecord struct {
	Owner  crypto.AccountID
	Count  uint64
	Active bool
	Blob   []byte
}

func TestKVRoundTripAndDelete(t *testing.T) {
	mgr := newTestManager(t)
	key := []byte("jid/record/abc")

	var missing kvRecord
	ok, err := mgr.KVGet(key, &missing)
	if err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	in := kvRecord{Owner: crypto.AccountID{1, 2, 3}, Count: 7, Active: true, Blob: []byte("meta")}
	if err := mgr.KVPut(key, &in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out kvRecord
	ok, err = mgr.KVGet(key, &out)
	if err != nil || !ok {
		t.Fatalf("expected key present, ok=%v err=%v", ok, err)
	}
	if out.Owner != in.Owner || out.Count != 7 || !out.Active || string(out.Blob) != "meta" {
		t.Fatalf("unexpected record %+v", out)
	}

	if err := mgr.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = mgr.KVGet(key, nil)
	if err != nil || ok {
		t.Fatalf("expected key deleted, ok=%v err=%v", ok, err)
	}
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := newTestManager(t)
	if err := mgr.KVPut(nil, uint64(1)); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := mgr.KVGet(nil, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := mgr.KVDelete(nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestTransferMovesBalance(t *testing.T) {
	mgr := newTestManager(t)
	alice := crypto.AccountID{0xaa}
	bob := crypto.AccountID{0xbb}

	if err := mgr.Credit(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := mgr.Transfer(alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := mgr.Balance(alice)
	bobBal, _ := mgr.Balance(bob)
	if aliceBal.Uint64() != 60 || bobBal.Uint64() != 40 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal.Dec(), bobBal.Dec())
	}

	err := mgr.Transfer(bob, alice, uint256.NewInt(41))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
