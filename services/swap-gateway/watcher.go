package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const (
	eventCursorName  = "htlc"
	eventFetchPrefix = "htlc."
	eventFetchLimit  = 100
)

// EventWatcher mirrors node events into the gateway database so clients can
// read them without hitting the node.
type EventWatcher struct {
	node     NodeClient
	store    *SQLiteStore
	logger   *slog.Logger
	interval time.Duration
}

// NewEventWatcher builds a watcher that polls the node every interval.
func NewEventWatcher(node NodeClient, store *SQLiteStore, interval time.Duration, logger *slog.Logger) *EventWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWatcher{node: node, store: store, logger: logger, interval: interval}
}

// Run polls until ctx is cancelled.
func (w *EventWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("event poll failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *EventWatcher) poll(ctx context.Context) error {
	cursor, err := w.store.LastEventSequence(ctx, eventCursorName)
	if err != nil {
		return err
	}
	entries, err := w.node.ListEvents(ctx, eventFetchPrefix, eventFetchLimit)
	if err != nil {
		return err
	}
	advanced := cursor
	for _, entry := range entries {
		if entry.Sequence <= cursor {
			continue
		}
		attrs, err := json.Marshal(entry.Event.Attributes)
		if err != nil {
			return err
		}
		if err := w.store.InsertEvent(ctx, entry.Sequence, entry.Event.Type, string(attrs)); err != nil {
			return err
		}
		if entry.Sequence > advanced {
			advanced = entry.Sequence
		}
	}
	if advanced > cursor {
		return w.store.UpdateEventSequence(ctx, eventCursorName, advanced)
	}
	return nil
}
