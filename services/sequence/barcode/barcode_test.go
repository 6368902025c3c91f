// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package barcode

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	black Color = 0
	white Color = 1
)

// model is a plain slice of colors used as the reference implementation.
type model []Color

func (m model) runs() []Run {
	var out []Run
	for _, c := range m {
		if len(out) > 0 && out[len(out)-1].Color == c {
			out[len(out)-1].Length++
			continue
		}
		out = append(out, Run{Color: c, Length: 1})
	}
	if out == nil {
		out = []Run{}
	}
	return out
}

func requireMatches(t *testing.T, b *Barcode, m model) {
	t.Helper()
	require.NoError(t, b.Validate())
	require.Equal(t, len(m), b.Size())
	require.Equal(t, m.runs(), b.Runs())

	for c := Color(0); int(c) < b.Colors(); c++ {
		rank := 0
		for pos, got := range m {
			if got == c {
				require.Equal(t, rank, b.ToRelative(pos, c), "ToRelative(%d,%d)", pos, c)
				require.Equal(t, pos, b.ToAbsolute(rank, c), "ToAbsolute(%d,%d)", rank, c)
				rank++
			} else {
				require.Equal(t, -1, b.ToRelative(pos, c))
			}
		}
		require.Equal(t, rank, b.Count(c))
		require.Equal(t, -1, b.ToAbsolute(rank, c))
	}
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		b, err := New(2)
		require.NoError(t, err)
		assert.Equal(t, 0, b.Size())
		assert.Equal(t, 0, b.RunCount())
		assert.Equal(t, "[]", b.String())
	})

	t.Run("too many colors", func(t *testing.T) {
		_, err := New(MaxColors + 1)
		assert.ErrorIs(t, err, ErrInvalidColor)
	})

	t.Run("zero colors", func(t *testing.T) {
		_, err := New(0)
		assert.ErrorIs(t, err, ErrInvalidColor)
	})
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

func TestBarcode_SetSplitsRun(t *testing.T) {
	b, err := NewFilled(2, black, 5)
	require.NoError(t, err)

	require.NoError(t, b.Set(2, white))

	assert.Equal(t, []Run{{black, 2}, {white, 1}, {black, 2}}, b.Runs())
	assert.Equal(t, 0, b.ToRelative(2, white))
	assert.Equal(t, 2, b.ToRelative(3, black))
	assert.Equal(t, "[0:2 1:1 0:2]", b.String())
	require.NoError(t, b.Validate())
}

func TestBarcode_SetMergesNeighbours(t *testing.T) {
	b, err := NewFilled(2, black, 5)
	require.NoError(t, err)
	require.NoError(t, b.Set(2, white))

	require.NoError(t, b.Set(2, black))
	assert.Equal(t, []Run{{black, 5}}, b.Runs())

	// Recolor at a boundary never leaves an empty run.
	require.NoError(t, b.Set(0, white))
	assert.Equal(t, []Run{{white, 1}, {black, 4}}, b.Runs())
	require.NoError(t, b.Set(1, white))
	assert.Equal(t, []Run{{white, 2}, {black, 3}}, b.Runs())
	require.NoError(t, b.Set(4, white))
	assert.Equal(t, []Run{{white, 2}, {black, 2}, {white, 1}}, b.Runs())
	require.NoError(t, b.Validate())

	// Same color is a no-op.
	v := b.Version()
	require.NoError(t, b.Set(4, white))
	assert.Equal(t, v, b.Version())
}

func TestBarcode_ZeroInsertIsNoop(t *testing.T) {
	b, err := NewFilled(2, black, 3)
	require.NoError(t, err)
	v := b.Version()

	require.NoError(t, b.Insert(1, white, 0))
	assert.Equal(t, []Run{{black, 3}}, b.Runs())
	assert.Equal(t, v, b.Version())
}

func TestBarcode_RemoveAcrossRuns(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)
	require.NoError(t, b.Insert(0, 0, 3))
	require.NoError(t, b.Insert(3, 1, 2))
	require.NoError(t, b.Insert(5, 2, 2))
	require.NoError(t, b.Insert(7, 0, 3))
	// [0:3 1:2 2:2 0:3]

	require.NoError(t, b.Remove(2, 6))
	// keeps 0:2 on the left and 0:2 on the right, which merge
	assert.Equal(t, []Run{{0, 4}}, b.Runs())
	assert.Equal(t, 4, b.Count(0))
	assert.Equal(t, 0, b.Count(1))
	assert.Equal(t, 0, b.Count(2))
	require.NoError(t, b.Validate())
}

func TestBarcode_Errors(t *testing.T) {
	b, err := NewFilled(2, black, 3)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Insert(4, black, 1), ErrOutOfRange)
	assert.ErrorIs(t, b.Insert(-1, black, 1), ErrOutOfRange)
	assert.ErrorIs(t, b.Insert(0, Color(2), 1), ErrInvalidColor)
	assert.ErrorIs(t, b.Remove(2, 2), ErrOutOfRange)
	assert.ErrorIs(t, b.Set(3, white), ErrOutOfRange)
	assert.ErrorIs(t, b.Set(0, Color(7)), ErrInvalidColor)

	_, err = b.Get(3)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, -1, b.ToRelative(3, black))
	assert.Equal(t, -1, b.ToAbsolute(-1, black))
	assert.Equal(t, -1, b.ToAbsolute(3, black))
	assert.Equal(t, 0, b.Count(Color(9)))
}

func TestBarcode_CountBefore(t *testing.T) {
	b, err := NewFilled(2, black, 5)
	require.NoError(t, err)
	require.NoError(t, b.Set(1, white))
	require.NoError(t, b.Set(3, white))
	// [0 1 0 1 0]

	want := []int{0, 0, 1, 1, 2, 2}
	for pos, n := range want {
		assert.Equal(t, n, b.CountBefore(pos, white), "pos %d", pos)
	}
	assert.Equal(t, 3, b.CountBefore(100, black))
	assert.Equal(t, 0, b.CountBefore(-1, black))
}

// TestBarcode_RandomOperations checks the partition invariant and the index
// round trip against a slice model.
func TestBarcode_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, colors := range []int{1, 2, 3, MaxColors} {
		b, err := New(colors)
		require.NoError(t, err)
		var m model

		for step := 0; step < 400; step++ {
			switch op := rng.Intn(3); {
			case op == 0 || len(m) == 0:
				pos := rng.Intn(len(m) + 1)
				c := Color(rng.Intn(colors))
				n := rng.Intn(4)
				require.NoError(t, b.Insert(pos, c, n))
				ins := make(model, n)
				for i := range ins {
					ins[i] = c
				}
				m = append(m[:pos], append(ins, m[pos:]...)...)
			case op == 1:
				pos := rng.Intn(len(m))
				n := rng.Intn(min(4, len(m)-pos) + 1)
				require.NoError(t, b.Remove(pos, n))
				m = append(m[:pos], m[pos+n:]...)
			default:
				pos := rng.Intn(len(m))
				c := Color(rng.Intn(colors))
				require.NoError(t, b.Set(pos, c))
				m[pos] = c
			}
			if step%20 == 0 {
				requireMatches(t, b, m)
			}
		}
		requireMatches(t, b, m)
	}
}

func TestBarcode_Stats(t *testing.T) {
	b, err := NewFilled(2, black, 1000)
	require.NoError(t, err)
	for i := 0; i < 1000; i += 2 {
		require.NoError(t, b.Set(i, white))
	}

	s := b.Stats()
	assert.Equal(t, 1000, s.Size)
	assert.Equal(t, 1000, s.Runs)
	assert.Equal(t, 500, s.Counts[white])
	assert.True(t, s.Balanced)
	// AVL height bound: 1.44 log2(n+2)
	assert.LessOrEqual(t, s.Height, 15)
}

// -----------------------------------------------------------------------------
// Iterator
// -----------------------------------------------------------------------------

func TestIterator_Next(t *testing.T) {
	b, err := NewFilled(2, black, 4)
	require.NoError(t, err)
	require.NoError(t, b.Set(2, white))

	it := b.Iterator()
	assert.Equal(t, -1, it.Position())

	var got []Color
	for it.Next() {
		got = append(got, it.Color())
	}
	assert.Equal(t, []Color{black, black, white, black}, got)
	assert.False(t, it.Next())

	it.Reset()
	require.True(t, it.Next())
	assert.Equal(t, 0, it.Position())
	assert.Equal(t, 2, it.RunEnd())
}

func TestIterator_NextColor(t *testing.T) {
	b, err := NewFilled(2, black, 10)
	require.NoError(t, err)
	require.NoError(t, b.Set(3, white))
	require.NoError(t, b.Set(7, white))

	it := b.Iterator()
	require.True(t, it.NextColor(white))
	assert.Equal(t, 3, it.Position())
	require.True(t, it.NextColor(white))
	assert.Equal(t, 7, it.Position())
	assert.False(t, it.NextColor(white))
	assert.Equal(t, 7, it.Position(), "failed skip does not move")

	require.True(t, it.NextColor(black))
	assert.Equal(t, 8, it.Position())
}

func TestIterator_SurvivesRecolor(t *testing.T) {
	b, err := NewFilled(2, black, 6)
	require.NoError(t, err)

	it := b.Iterator()
	for it.Next() {
		if it.Position()%2 == 1 {
			require.NoError(t, b.Set(it.Position(), white))
		}
	}
	assert.Equal(t, 3, b.Count(white))
	assert.Equal(t, "[0:1 1:1 0:1 1:1 0:1 1:1]", b.String())
}

func TestBarcode_Permute(t *testing.T) {
	b, err := NewFilled(2, black, 5)
	require.NoError(t, err)
	require.NoError(t, b.Set(0, white))
	require.NoError(t, b.Set(1, white))
	// [1 1 0 0 0]
	v := b.Version()

	require.NoError(t, b.Permute([]int{2, 0, 3, 1, 4}))
	requireMatches(t, b, model{black, white, black, white, black})
	assert.Greater(t, b.Version(), v)

	assert.ErrorIs(t, b.Permute([]int{0}), ErrOutOfRange)
}

func TestIterator_SkipTo(t *testing.T) {
	b, err := NewFilled(2, black, 10)
	require.NoError(t, err)
	require.NoError(t, b.Set(2, white))
	require.NoError(t, b.Set(6, white))

	it := b.Iterator()
	it.SkipTo(3)
	require.True(t, it.NextColor(white))
	assert.Equal(t, 6, it.Position())

	it.SkipTo(2)
	require.True(t, it.Next())
	assert.Equal(t, 2, it.Position())
	assert.Equal(t, white, it.Color())
}
