package explorer

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"jidchain/core/types"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open explorer db: %v", err)
	}
	return NewIndexer(db)
}

const hashA = "aa00000000000000000000000000000000000000000000000000000000000001"

func TestIndexerHistoryAndSnapshot(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	batches := []struct {
		height uint64
		evts   []types.Event
	}{
		{1, []types.Event{{Type: "jid.registered", Attributes: map[string]string{"jidHash": hashA, "owner": "jid1alice", "registeredAt": "100"}}}},
		{2, []types.Event{{Type: "jid.transferred", Attributes: map[string]string{"jidHash": hashA, "from": "jid1alice", "to": "jid1bob", "transferredAt": "200"}}}},
		{3, []types.Event{{Type: "jid.adminRevoked", Attributes: map[string]string{"jidHash": hashA, "oldOwner": "jid1bob", "reasonHash": "ff", "timestamp": "300"}}}},
		{4, []types.Event{{Type: "jid.paused", Attributes: map[string]string{"paused": "true"}}}},
	}
	for _, batch := range batches {
		if err := ix.Publish(ctx, batch.height, batch.evts); err != nil {
			t.Fatalf("publish height %d: %v", batch.height, err)
		}
	}
	// Replays are ignored.
	if err := ix.Publish(ctx, batches[0].height, batches[0].evts); err != nil {
		t.Fatalf("replay publish: %v", err)
	}

	history, err := ix.History(ctx, "0x"+hashA, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
	if history[1].Counterparty != "jid1bob" || history[1].Label != "Transferred" {
		t.Fatalf("unexpected transfer entry %+v", history[1])
	}
	if history[2].ReasonHash != "ff" || history[2].Timestamp != 300 {
		t.Fatalf("unexpected admin revoke entry %+v", history[2])
	}

	snapshot, err := ix.Snapshot(ctx, hashA)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Owner != "jid1bob" || snapshot.Status != StatusRevoked || snapshot.UpdatedAt != 300 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	counts, err := ix.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[StatusRevoked] != 1 || counts[StatusActive] != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	if _, err := ix.Snapshot(ctx, "bb"); err != ErrUnknownIdentity {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
}

func TestEventLabel(t *testing.T) {
	if EventLabel("jid.adminRevoked") != "Revoked by administrator" {
		t.Fatalf("unexpected label")
	}
	if EventLabel("custom.thing") != "custom.thing" {
		t.Fatalf("unknown types should pass through")
	}
	if ShortHash("0x"+hashA) != "aa0000…000001" {
		t.Fatalf("unexpected short hash %q", ShortHash(hashA))
	}
}

func TestTablesUseJIDHashColumn(t *testing.T) {
	ix := newTestIndexer(t)
	for _, model := range []interface{}{&HistoryEntry{}, &IdentitySnapshot{}} {
		if !ix.db.Migrator().HasColumn(model, "jid_hash") {
			t.Fatalf("%T is missing the jid_hash column", model)
		}
	}
	ctx := context.Background()
	registered := types.Event{Type: "jid.registered", Attributes: map[string]string{"jidHash": hashA, "owner": "jid1alice", "registeredAt": "100"}}
	updated := types.Event{Type: "jid.updated", Attributes: map[string]string{"jidHash": hashA, "updatedAt": "150"}}
	if err := ix.Publish(ctx, 1, []types.Event{registered}); err != nil {
		t.Fatalf("publish registration: %v", err)
	}
	if err := ix.Publish(ctx, 2, []types.Event{updated}); err != nil {
		t.Fatalf("publish update: %v", err)
	}
}
