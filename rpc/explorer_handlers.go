package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"jidchain/eventlog"
	"jidchain/native/jid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// resolveHashParam accepts either a 64-hex identifier hash or a plain JID.
func resolveHashParam(raw string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if hash, err := jid.ParseHash32(trimmed); err == nil {
		return hexHash(hash)
	}
	return hashHex(raw)
}

func hexHash(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

func clampLimit(limit uint64) int {
	if limit == 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return int(limit)
}

// handleHistory params: [jidOrHash, limit?].
func (s *Server) handleHistory(ctx context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	if s.explorer == nil {
		return nil, errFeatureDisabled
	}
	raw, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	limit, err := optionalUint(params, 1, "limit")
	if err != nil {
		return nil, err
	}
	rows, err := s.explorer.History(ctx, resolveHashParam(raw), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]HistoryResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, historyResult(row))
	}
	return out, nil
}

func (s *Server) handleSnapshot(ctx context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	if s.explorer == nil {
		return nil, errFeatureDisabled
	}
	raw, err := paramString(params, 0, "jid")
	if err != nil {
		return nil, err
	}
	snapshot, err := s.explorer.Snapshot(ctx, resolveHashParam(raw))
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Server) handleStats(ctx context.Context, _ callerInfo, _ []json.RawMessage) (interface{}, error) {
	if s.explorer == nil {
		return nil, errFeatureDisabled
	}
	return s.explorer.CountByStatus(ctx)
}

// handleEventsSince params: [afterSeq, limit?]. It pages the committed
// journal in sequence order.
func (s *Server) handleEventsSince(_ context.Context, _ callerInfo, params []json.RawMessage) (interface{}, error) {
	if s.journal == nil {
		return nil, errFeatureDisabled
	}
	after, err := optionalUint(params, 0, "after")
	if err != nil {
		return nil, err
	}
	limit, err := optionalUint(params, 1, "limit")
	if err != nil {
		return nil, err
	}
	entries, err := s.journal.Since(after, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	return entries, nil
}
