// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"cmp"
	"context"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
)

func openMemory(t *testing.T, mutate ...func(*Config)) *BadgerJournal[string] {
	t.Helper()
	cfg := Config{SessionID: "test", InMemory: true}
	for _, m := range mutate {
		m(&cfg)
	}
	j, err := Open[string](cfg)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// record drives a list through a few edits with j attached.
func record(t *testing.T, j *BadgerJournal[string]) *list.BasicList[string] {
	t.Helper()
	l := list.NewBasicList([]string{"a", "b", "c"})
	l.AddListener(j)

	require.NoError(t, l.Add(2, "z"))
	_, err := l.Set(0, "A")
	require.NoError(t, err)
	l.BeginEvent(true)
	_, err = l.Remove(1)
	require.NoError(t, err)
	require.NoError(t, l.Append("d"))
	require.NoError(t, l.CommitEvent())
	require.NoError(t, l.Sort(cmp.Compare[string]))
	require.NoError(t, j.Err())
	return l
}

func TestConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"in memory", Config{SessionID: "s", InMemory: true}, true},
		{"on disk", DefaultConfig("/tmp/j", "s"), true},
		{"missing session", Config{InMemory: true}, false},
		{"missing path", Config{SessionID: "s"}, false},
		{"colon in session", Config{SessionID: "a:b", InMemory: true}, false},
		{"negative limit", Config{SessionID: "s", InMemory: true, MaxBytes: -1}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestJournal_ReplayMatchesEvents(t *testing.T) {
	j := openMemory(t)

	var published []*change.Event[string]
	l := list.NewBasicList([]string{"a", "b", "c"})
	l.AddListener(change.ListenerFunc[string](func(ev *change.Event[string]) {
		published = append(published, ev)
	}))
	l.AddListener(j)
	require.NoError(t, l.Add(0, "x"))
	require.NoError(t, l.Reorder([]int{3, 2, 1, 0}))

	events, err := j.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	for i := range published {
		assert.Equal(t, published[i].Seq, events[i].Seq)
		assert.Equal(t, published[i].Blocks, events[i].Blocks)
		assert.Equal(t, published[i].Reorder, events[i].Reorder)
	}
	assert.Equal(t, uint64(2), j.Stats().LastSeq)
}

func TestJournal_Restore(t *testing.T) {
	j := openMemory(t)
	l := record(t, j)

	restored, err := j.Restore(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, l.Snapshot(), restored.Snapshot())
}

func TestJournal_Checkpoint(t *testing.T) {
	j := openMemory(t)
	l := record(t, j)
	ctx := context.Background()

	require.NoError(t, j.Checkpoint(ctx, l.Snapshot()))
	events, err := j.Replay(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, l.Append("e"))
	restored, err := j.Restore(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, l.Snapshot(), restored.Snapshot())

	stats := j.Stats()
	assert.Equal(t, stats.LastSeq-1, stats.CheckpointSeq)
}

func TestJournal_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := Open[string](DefaultConfig(dir, "s1"))
	require.NoError(t, err)
	l := record(t, j)
	last := j.Stats().LastSeq
	require.NoError(t, j.Close())

	j, err = Open[string](DefaultConfig(dir, "s1"))
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, last, j.Stats().LastSeq)

	restored, err := j.Restore(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, l.Snapshot(), restored.Snapshot())

	other, err := Open[string](Config{Path: dir + "-other", SessionID: "s2"})
	require.NoError(t, err)
	defer other.Close()
	events, err := other.Replay(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestJournal_Corruption(t *testing.T) {
	j := openMemory(t)
	record(t, j)
	ctx := context.Background()

	require.NoError(t, j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(j.eventKey(2), []byte{0, 0, 0, 0, 1, 2, 3})
	}))

	_, err := j.Replay(ctx)
	assert.ErrorIs(t, err, ErrJournalCorrupted)
	assert.Equal(t, int64(1), j.Stats().CorruptedCount)

	j.config.SkipCorrupted = true
	events, err := j.Replay(ctx)
	require.NoError(t, err)
	assert.Len(t, events, int(j.Stats().LastSeq)-1)
}

func TestJournal_SequenceGap(t *testing.T) {
	j := openMemory(t)
	record(t, j)
	ctx := context.Background()

	require.NoError(t, j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Delete(j.eventKey(2))
	}))
	_, err := j.Replay(ctx)
	assert.ErrorIs(t, err, ErrSequenceGap)
}

func TestJournal_Full(t *testing.T) {
	j := openMemory(t, func(c *Config) { c.MaxBytes = 1 })
	l := list.NewBasicList([]string{"a"})
	l.AddListener(j)

	require.NoError(t, l.Append("b"))
	assert.ErrorIs(t, j.Err(), ErrJournalFull)
	assert.Equal(t, int64(1), j.Stats().AppendErrors)
	assert.Equal(t, []string{"a", "b"}, l.Snapshot(), "journal failures do not block the list")
}

func TestJournal_Closed(t *testing.T) {
	j := openMemory(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	ctx := context.Background()

	assert.ErrorIs(t, j.Append(ctx, &change.Event[string]{Seq: 1}), ErrJournalClosed)
	_, err := j.Replay(ctx)
	assert.ErrorIs(t, err, ErrJournalClosed)
	_, err = j.Restore(ctx, nil)
	assert.ErrorIs(t, err, ErrJournalClosed)
	assert.ErrorIs(t, j.Checkpoint(ctx, nil), ErrJournalClosed)
	assert.ErrorIs(t, j.Sync(), ErrJournalClosed)
}

func TestCodec(t *testing.T) {
	ev := &change.Event[string]{Seq: 9, Blocks: []change.Block[string]{{Index: 1, Kind: change.Update, Old: "a", New: "b"}}}
	data, err := encodeEntry(ev)
	require.NoError(t, err)

	var out change.Event[string]
	require.NoError(t, decodeEntry(data, &out))
	assert.Equal(t, *ev, out)

	data[len(data)-1] ^= 0xff
	assert.ErrorIs(t, decodeEntry(data, &out), ErrJournalCorrupted)
	assert.ErrorIs(t, decodeEntry([]byte{1}, &out), ErrJournalCorrupted)
}
