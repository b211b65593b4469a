// go-lfrfid
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-lfrfid.
//
// go-lfrfid is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-lfrfid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-lfrfid; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/biphase"
)

func merged(e *Encoder, pieces int) []lfrfid.LevelDuration {
	var m lfrfid.EdgeMerger
	var out []lfrfid.LevelDuration
	for i := 0; i < pieces; i++ {
		if ld, ok := m.Push(e.Yield()); ok {
			out = append(out, ld)
		}
	}
	return out
}

func TestManchesterPieces(t *testing.T) {
	t.Parallel()

	e := New(Manchester, 64)
	e.Reset([]byte{0b10000000}, 2)
	want := []lfrfid.LevelDuration{
		{Level: false, Duration: 32},
		{Level: true, Duration: 32},
		{Level: true, Duration: 32},
		{Level: false, Duration: 32},
		// loops back to the first bit
		{Level: false, Duration: 32},
	}
	for i, w := range want {
		assert.Equal(t, w, e.Yield(), "piece %d", i)
	}
}

func TestBiphaseDecodes(t *testing.T) {
	t.Parallel()

	frame := []byte{0b10110010, 0b01110000}
	const count = 12
	for _, kind := range []Kind{Biphase, Diphase} {
		e := New(kind, 32)
		e.Reset(frame, count)
		d := &biphase.Decoder{MidOnOne: kind == Biphase}

		var got []bool
		for _, ld := range merged(e, 3*e.FramePieces()) {
			if bit, ok := d.Feed(biphase.Classify(ld.Duration, 16, 32, 4)); ok {
				got = append(got, bit)
			}
		}
		require.GreaterOrEqual(t, len(got), 2*count, kind.String())

		want := make([]bool, count)
		for i := range want {
			want[i] = frame[i/8]>>(7-uint(i%8))&1 == 1
		}
		// find one full frame in the decoded stream
		found := false
		for off := 0; off+count <= len(got); off++ {
			if assert.ObjectsAreEqual(want, got[off:off+count]) {
				found = true
				break
			}
		}
		assert.True(t, found, kind.String())
	}
}

func TestPSKPiecesPerBit(t *testing.T) {
	t.Parallel()

	e := New(PSK1, 32)
	e.Reset([]byte{0b01000000}, 2)
	assert.Equal(t, 64, e.FramePieces())
	for i := 0; i < 64; i++ {
		ld := e.Yield()
		assert.Equal(t, uint32(1), ld.Duration)
	}
}

func TestTerminatorFollowsFrame(t *testing.T) {
	t.Parallel()

	e := New(Manchester, 32)
	e.SetTerminator(
		lfrfid.LevelDuration{Level: true, Duration: 48},
		lfrfid.LevelDuration{Level: false, Duration: 48},
	)
	e.Reset([]byte{0x00}, 1)
	assert.Equal(t, 4, e.FramePieces())

	e.Yield()
	e.Yield()
	assert.Equal(t, lfrfid.LevelDuration{Level: true, Duration: 48}, e.Yield())
	assert.Equal(t, lfrfid.LevelDuration{Level: false, Duration: 48}, e.Yield())
	assert.Equal(t, lfrfid.LevelDuration{Level: true, Duration: 16}, e.Yield())
}

func TestFSKAdvancesEveryBit(t *testing.T) {
	t.Parallel()

	e := New(FSK2a, 50)
	e.Reset([]byte{0xFF}, 8)
	var total uint32
	// 8 bits of RF/8 cycles take 50 clocks each on average
	for total < 8*50 {
		total += e.Yield().Duration
	}
	assert.InDelta(t, 8*50, int(total), 8)
}
