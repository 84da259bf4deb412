package explorer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"jidchain/core/types"
	"jidchain/eventlog"
)

// ErrUnknownIdentity is returned when no event has been indexed for a hash.
var ErrUnknownIdentity = errors.New("explorer: identity not indexed")

const defaultHistoryLimit = 100

// Open connects to the explorer database. Supported drivers are "sqlite"
// and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("explorer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Indexer projects committed events into queryable tables.
type Indexer struct {
	db *gorm.DB
}

// NewIndexer wraps an opened, migrated database.
func NewIndexer(db *gorm.DB) *Indexer {
	return &Indexer{db: db}
}

// Name identifies the indexer as an event sink.
func (ix *Indexer) Name() string { return "explorer" }

// Publish indexes a committed batch. Replayed batches are ignored thanks to
// the unique event id.
func (ix *Indexer) Publish(ctx context.Context, height uint64, evts []types.Event) error {
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, evt := range evts {
			entry := historyFromEvent(height, i, evt)
			if entry.JIDHash == "" {
				continue
			}
			result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).Create(entry)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			if err := applySnapshot(tx, entry, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

func historyFromEvent(height uint64, index int, evt types.Event) *HistoryEntry {
	attrs := evt.Attributes
	entry := &HistoryEntry{
		EventID:    eventlog.EntryID(height, index, evt),
		Height:     height,
		Position:   index,
		Type:       evt.Type,
		Label:      EventLabel(evt.Type),
		JIDHash:    attrs["jidHash"],
		ReasonHash: attrs["reasonHash"],
	}
	switch evt.Type {
	case "jid.registered":
		entry.Actor = attrs["owner"]
		entry.Timestamp = parseUint(attrs["registeredAt"])
	case "jid.transferred":
		entry.Actor = attrs["from"]
		entry.Counterparty = attrs["to"]
		entry.Timestamp = parseUint(attrs["transferredAt"])
	case "jid.revoked":
		entry.Timestamp = parseUint(attrs["revokedAt"])
	case "jid.adminRevoked":
		entry.Actor = attrs["oldOwner"]
		entry.Timestamp = parseUint(attrs["timestamp"])
	case "jid.updated":
		entry.Timestamp = parseUint(attrs["updatedAt"])
	}
	return entry
}

func applySnapshot(tx *gorm.DB, entry *HistoryEntry, evt types.Event) error {
	switch evt.Type {
	case "jid.registered":
		snapshot := IdentitySnapshot{
			JIDHash:      entry.JIDHash,
			Owner:        entry.Actor,
			Status:       StatusActive,
			RegisteredAt: entry.Timestamp,
			UpdatedAt:    entry.Timestamp,
			Height:       entry.Height,
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&snapshot).Error
	case "jid.transferred":
		return updateSnapshot(tx, entry, map[string]interface{}{"owner": entry.Counterparty})
	case "jid.updated":
		return updateSnapshot(tx, entry, map[string]interface{}{})
	case "jid.revoked", "jid.adminRevoked":
		return updateSnapshot(tx, entry, map[string]interface{}{"status": StatusRevoked})
	}
	return nil
}

func updateSnapshot(tx *gorm.DB, entry *HistoryEntry, fields map[string]interface{}) error {
	fields["updated_at"] = entry.Timestamp
	fields["height"] = entry.Height
	return tx.Model(&IdentitySnapshot{}).Where("jid_hash = ?", entry.JIDHash).Updates(fields).Error
}

// History returns the events recorded for a JID hash, oldest first.
func (ix *Indexer) History(ctx context.Context, jidHash string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultHistoryLimit
	}
	var entries []HistoryEntry
	err := ix.db.WithContext(ctx).
		Where("jid_hash = ?", normalizeHash(jidHash)).
		Order("height asc").Order("position asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Snapshot returns the indexed status of a JID hash.
func (ix *Indexer) Snapshot(ctx context.Context, jidHash string) (*IdentitySnapshot, error) {
	var snapshot IdentitySnapshot
	err := ix.db.WithContext(ctx).Where("jid_hash = ?", normalizeHash(jidHash)).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownIdentity
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// CountByStatus returns how many identifiers are in each status.
func (ix *Indexer) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := ix.db.WithContext(ctx).Model(&IdentitySnapshot{}).
		Select("status, count(*) as total").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hash), "0x"))
}

func parseUint(raw string) uint64 {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}
