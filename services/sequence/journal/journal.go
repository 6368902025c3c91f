// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists the change events of a sequence in BadgerDB and
// rebuilds the sequence from them.
//
// Each published event is stored under its own key with a CRC32 checksum.
// A checkpoint stores a full snapshot and truncates the events it covers,
// so a restore replays only the events after it.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/storage/badger"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrJournalClosed is returned by every operation after Close.
	ErrJournalClosed = errors.New("journal is closed")

	// ErrJournalCorrupted is returned when an entry fails its checksum or
	// cannot be decoded.
	ErrJournalCorrupted = errors.New("journal entry corrupted")

	// ErrJournalFull is returned when an append would exceed MaxBytes.
	ErrJournalFull = errors.New("journal size limit exceeded")

	// ErrSequenceGap is returned when replay finds a missing entry.
	ErrSequenceGap = errors.New("journal sequence gap")
)

var configValidate = validator.New()

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a journal.
type Config struct {
	// Path is the BadgerDB directory. Required unless InMemory.
	Path string `yaml:"path" validate:"required_without=InMemory"`

	// SessionID scopes keys so several sequences can share a database.
	SessionID string `yaml:"session_id" validate:"required,max=128,excludesall=:"`

	// InMemory keeps the journal in RAM.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every append.
	SyncWrites bool `yaml:"sync_writes"`

	// MaxBytes bounds the stored event bytes. Zero means unbounded.
	MaxBytes int64 `yaml:"max_bytes" validate:"gte=0"`

	// SkipCorrupted makes replay log and skip bad entries instead of
	// failing.
	SkipCorrupted bool `yaml:"skip_corrupted"`

	// Logger defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns an on-disk configuration with synchronous writes.
func DefaultConfig(path, sessionID string) Config {
	return Config{
		Path:       path,
		SessionID:  sessionID,
		SyncWrites: true,
		MaxBytes:   1 << 30,
	}
}

// Validate checks the struct tags of c.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid journal config: %w", err)
	}
	return nil
}

// Stats describes a journal.
type Stats struct {
	SessionID      string
	LastSeq        uint64
	CheckpointSeq  uint64
	TotalBytes     int64
	CorruptedCount int64
	AppendErrors   int64
}

// -----------------------------------------------------------------------------
// BadgerJournal
// -----------------------------------------------------------------------------

// BadgerJournal stores the events of one sequence.
//
// Description:
//
//	Register the journal as a listener of the sequence to record every
//	event it publishes, or call Append directly. Journal sequence numbers
//	are assigned on append and are independent of Event.Seq.
//
//	Key format:   "event:{session_id}:{seq:016d}"
//	Value format: [4-byte CRC32][gob-encoded change.Event]
//
//	Element values are gob-encoded. Interface element types must be
//	registered with gob.Register.
//
// Thread Safety: Safe for concurrent use.
type BadgerJournal[T any] struct {
	db     *badger.DB
	config Config
	logger *slog.Logger

	seq            atomic.Uint64
	checkpointSeq  atomic.Uint64
	totalBytes     atomic.Int64
	corruptedCount atomic.Int64
	appendErrors   atomic.Int64
	closed         atomic.Bool

	// mu orders appends against checkpoints.
	mu       sync.RWMutex
	errMu    sync.Mutex
	firstErr error
}

// Open opens or creates the journal described by config.
//
// Outputs:
//   - *BadgerJournal[T]: The journal, positioned after its last entry.
//   - error: Non-nil if config is invalid or BadgerDB cannot be opened.
func Open[T any](config Config) (*BadgerJournal[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	dbConfig := badger.InMemoryConfig()
	if !config.InMemory {
		dbConfig = badger.DefaultConfig(config.Path)
		dbConfig.SyncWrites = config.SyncWrites
	}
	dbConfig.Logger = config.Logger

	db, err := badger.Open(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &BadgerJournal[T]{
		db:     db,
		config: config,
		logger: config.Logger.With(
			slog.String("component", "journal"),
			slog.String("session_id", config.SessionID),
		),
	}
	if err := j.scan(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	j.logger.Info("journal opened",
		slog.String("path", config.Path),
		slog.Bool("in_memory", config.InMemory),
		slog.Uint64("last_seq", j.seq.Load()),
		slog.Uint64("checkpoint_seq", j.checkpointSeq.Load()))
	return j, nil
}

// scan restores the sequence counter, byte count and checkpoint position.
func (j *BadgerJournal[T]) scan() error {
	prefix := j.eventPrefix()
	return j.db.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var last uint64
		var total int64
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if seq, ok := parseSeq(it.Item().Key(), prefix); ok {
				last = seq
			}
			total += it.Item().ValueSize()
		}

		cp, err := j.loadCheckpoint(txn)
		if err != nil {
			return err
		}
		if cp != nil {
			j.checkpointSeq.Store(cp.Seq)
			last = max(last, cp.Seq)
		}
		j.seq.Store(last)
		j.totalBytes.Store(total)
		return nil
	})
}

func (j *BadgerJournal[T]) eventPrefix() []byte {
	return []byte(fmt.Sprintf("event:%s:", j.config.SessionID))
}

func (j *BadgerJournal[T]) eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("event:%s:%016d", j.config.SessionID, seq))
}

func (j *BadgerJournal[T]) checkpointKey() []byte {
	return []byte(fmt.Sprintf("checkpoint:%s", j.config.SessionID))
}

func parseSeq(key, prefix []byte) (uint64, bool) {
	var seq uint64
	if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &seq); err != nil {
		return 0, false
	}
	return seq, true
}

// ListChanged appends ev. Failures are logged and kept; see Err.
func (j *BadgerJournal[T]) ListChanged(ev *change.Event[T]) {
	if err := j.Append(context.Background(), ev); err != nil {
		j.appendErrors.Add(1)
		j.errMu.Lock()
		if j.firstErr == nil {
			j.firstErr = err
		}
		j.errMu.Unlock()
		j.logger.Error("journal append failed", slog.Uint64("event_seq", ev.Seq), slog.String("error", err.Error()))
	}
}

// Err returns the first error hit while journaling as a listener.
func (j *BadgerJournal[T]) Err() error {
	j.errMu.Lock()
	defer j.errMu.Unlock()
	return j.firstErr
}

// Append stores ev as the next entry.
//
// Outputs:
//   - error: ErrJournalClosed, ErrJournalFull, an encoding error or the
//     BadgerDB write error.
func (j *BadgerJournal[T]) Append(ctx context.Context, ev *change.Event[T]) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", change.ErrIllegalArgument)
	}
	if j.closed.Load() {
		return ErrJournalClosed
	}

	ctx, span := otel.Tracer("sequence.journal").Start(ctx, "journal.Append",
		trace.WithAttributes(
			attribute.String("session_id", j.config.SessionID),
			attribute.Int64("event_seq", int64(ev.Seq)),
			attribute.Int("blocks", len(ev.Blocks)),
		),
	)
	defer span.End()
	start := time.Now()

	data, err := encodeEntry(ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode event: %w", err)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.config.MaxBytes > 0 && j.totalBytes.Load()+int64(len(data)) > j.config.MaxBytes {
		span.SetStatus(codes.Error, "journal full")
		return ErrJournalFull
	}

	seq := j.seq.Add(1)
	err = j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(j.eventKey(seq), data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		recordAppend(ctx, len(data), time.Since(start), false)
		return fmt.Errorf("write event %d: %w", seq, err)
	}
	j.totalBytes.Add(int64(len(data)))

	span.SetAttributes(attribute.Int64("seq", int64(seq)), attribute.Int("entry_bytes", len(data)))
	recordAppend(ctx, len(data), time.Since(start), true)
	j.logger.Debug("event appended",
		slog.Uint64("seq", seq),
		slog.String("event", ev.String()),
		slog.Int("bytes", len(data)))
	return nil
}

// Replay returns the events stored after the last checkpoint, in order.
//
// Outputs:
//   - []*change.Event[T]: The events. Empty for a new journal.
//   - error: ErrJournalClosed, ErrJournalCorrupted or ErrSequenceGap
//     unless SkipCorrupted is set.
func (j *BadgerJournal[T]) Replay(ctx context.Context) ([]*change.Event[T], error) {
	if j.closed.Load() {
		return nil, ErrJournalClosed
	}
	ctx, span := otel.Tracer("sequence.journal").Start(ctx, "journal.Replay",
		trace.WithAttributes(attribute.String("session_id", j.config.SessionID)),
	)
	defer span.End()

	j.mu.RLock()
	defer j.mu.RUnlock()

	var events []*change.Event[T]
	err := j.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		events, err = j.readEvents(ctx, txn)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		return nil, fmt.Errorf("replay: %w", err)
	}

	span.SetAttributes(attribute.Int("event_count", len(events)))
	recordReplay(ctx, len(events))
	j.logger.Info("replay completed", slog.Int("event_count", len(events)))
	return events, nil
}

func (j *BadgerJournal[T]) readEvents(ctx context.Context, txn *dgbadger.Txn) ([]*change.Event[T], error) {
	prefix := j.eventPrefix()
	it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
	defer it.Close()

	var events []*change.Event[T]
	last := j.checkpointSeq.Load()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := it.Item()
		seq, ok := parseSeq(item.Key(), prefix)
		if !ok || seq <= j.checkpointSeq.Load() {
			continue
		}
		if seq != last+1 {
			if !j.config.SkipCorrupted {
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, last+1, seq)
			}
			j.logger.Warn("sequence gap", slog.Uint64("expected", last+1), slog.Uint64("got", seq))
		}
		last = seq

		var ev change.Event[T]
		err := item.Value(func(val []byte) error {
			return decodeEntry(val, &ev)
		})
		if err != nil {
			if errors.Is(err, ErrJournalCorrupted) {
				j.corruptedCount.Add(1)
				recordCorrupted(ctx)
				if j.config.SkipCorrupted {
					j.logger.Warn("skipping corrupted entry", slog.Uint64("seq", seq), slog.String("error", err.Error()))
					continue
				}
			}
			return nil, fmt.Errorf("entry %d: %w", seq, err)
		}
		events = append(events, &ev)
	}
	return events, nil
}

// Restore rebuilds the sequence.
//
// Description:
//
//	Starts from the checkpoint snapshot when one exists, otherwise from
//	base, and replays every later event in order.
//
// Outputs:
//   - *list.BasicList[T]: A fresh list holding the restored elements.
//   - error: A Replay error, or the first event that does not apply.
func (j *BadgerJournal[T]) Restore(ctx context.Context, base []T, opts ...list.Option) (*list.BasicList[T], error) {
	if j.closed.Load() {
		return nil, ErrJournalClosed
	}
	ctx, span := otel.Tracer("sequence.journal").Start(ctx, "journal.Restore")
	defer span.End()

	var cp *checkpoint[T]
	err := j.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		cp, err = j.loadCheckpoint(txn)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	data := base
	if cp != nil {
		data = cp.Elements
	}

	events, err := j.Replay(ctx)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if data, err = ev.Replay(data); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "event does not apply")
			return nil, fmt.Errorf("apply %s: %w", ev, err)
		}
	}
	span.SetAttributes(attribute.Int("events", len(events)), attribute.Int("size", len(data)))
	return list.NewBasicList(data, opts...), nil
}

// Checkpoint stores snapshot as the state after the last appended event
// and deletes the events it covers.
//
// Inputs:
//   - snapshot: The sequence contents, consistent with every event
//     appended so far.
func (j *BadgerJournal[T]) Checkpoint(ctx context.Context, snapshot []T) error {
	if j.closed.Load() {
		return ErrJournalClosed
	}
	ctx, span := otel.Tracer("sequence.journal").Start(ctx, "journal.Checkpoint",
		trace.WithAttributes(attribute.String("session_id", j.config.SessionID)),
	)
	defer span.End()

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq.Load()
	data, err := encodeEntry(&checkpoint[T]{Seq: seq, Elements: snapshot})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(j.checkpointKey(), data)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint failed")
		return fmt.Errorf("write checkpoint: %w", err)
	}
	j.checkpointSeq.Store(seq)

	deleted, err := j.truncate(ctx, seq)
	if err != nil {
		// The marker is written; stale entries are skipped on replay.
		span.RecordError(err)
		j.logger.Warn("checkpoint truncation failed", slog.String("error", err.Error()))
	}
	j.totalBytes.Store(0)

	span.SetAttributes(attribute.Int64("checkpoint_seq", int64(seq)), attribute.Int("deleted", deleted))
	j.logger.Info("checkpoint created", slog.Uint64("seq", seq), slog.Int("deleted", deleted))
	return nil
}

func (j *BadgerJournal[T]) truncate(ctx context.Context, upTo uint64) (int, error) {
	prefix := j.eventPrefix()
	deleted := 0
	err := j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if seq, ok := parseSeq(key, prefix); ok && seq <= upTo {
				if err := txn.Delete(key); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (j *BadgerJournal[T]) loadCheckpoint(txn *dgbadger.Txn) (*checkpoint[T], error) {
	item, err := txn.Get(j.checkpointKey())
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp checkpoint[T]
	if err := item.Value(func(val []byte) error {
		return decodeEntry(val, &cp)
	}); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return &cp, nil
}

// Stats returns counters for the journal.
func (j *BadgerJournal[T]) Stats() Stats {
	return Stats{
		SessionID:      j.config.SessionID,
		LastSeq:        j.seq.Load(),
		CheckpointSeq:  j.checkpointSeq.Load(),
		TotalBytes:     j.totalBytes.Load(),
		CorruptedCount: j.corruptedCount.Load(),
		AppendErrors:   j.appendErrors.Load(),
	}
}

// Sync flushes pending writes.
func (j *BadgerJournal[T]) Sync() error {
	if j.closed.Load() {
		return ErrJournalClosed
	}
	return j.db.Sync()
}

// Close syncs and releases the database. Later calls are no-ops.
func (j *BadgerJournal[T]) Close() error {
	if j.closed.Swap(true) {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.db.Sync(); err != nil {
		j.logger.Warn("sync before close failed", slog.String("error", err.Error()))
	}
	j.logger.Info("journal closed", slog.Uint64("last_seq", j.seq.Load()))
	return j.db.Close()
}
