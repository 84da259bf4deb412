package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"jidchain/eventlog"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBacklogPage  = 256
	wsBuffer       = 64
)

// handleEventsWS streams committed events. The optional "cursor" query
// parameter replays the journal after that sequence before going live, and
// "type" restricts the stream to one event type.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.journal == nil {
		http.Error(w, "event journal unavailable", http.StatusServiceUnavailable)
		return
	}
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64, filter string) error {
	// Subscribe before replaying so nothing committed in between is lost.
	updates, cancel := s.journal.Subscribe(wsBuffer)
	defer cancel()

	last := cursor
	for {
		backlog, err := s.journal.Since(last, wsBacklogPage)
		if err != nil {
			return err
		}
		for _, entry := range backlog {
			if err := writeEntry(ctx, conn, entry, filter); err != nil {
				return err
			}
			last = entry.Seq
		}
		if len(backlog) < wsBacklogPage {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return nil
			}
			if entry.Seq <= last {
				continue
			}
			batch := []eventlog.Entry{entry}
			if entry.Seq > last+1 {
				// The subscriber dropped entries; fill the gap from disk.
				missed, err := s.journal.Since(last, int(entry.Seq-last))
				if err != nil {
					return err
				}
				batch = missed
			}
			for _, e := range batch {
				if err := writeEntry(ctx, conn, e, filter); err != nil {
					return err
				}
				last = e.Seq
			}
		}
	}
}

func writeEntry(ctx context.Context, conn *websocket.Conn, entry eventlog.Entry, filter string) error {
	if filter != "" && entry.Type != filter {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
