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

package rawfile

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

func defaultHeader() Header {
	return Header{MaxBufferSize: MaxBufferSize, Frequency: 125000, DutyCycle: 0.5}
}

func syntheticPairs(n int) []lfrfid.Pulse {
	pairs := make([]lfrfid.Pulse, n)
	for i := range pairs {
		high := uint32(100 + 37*i)
		pairs[i] = lfrfid.Pulse{Pulse: high, Duration: high + uint32(60+i*250)}
	}
	return pairs
}

func TestHeaderLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, defaultHeader())
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	raw := buf.Bytes()
	require.Len(t, raw, HeaderSize)
	assert.Equal(t, 20, HeaderSize)
	assert.Equal(t, "RFID RAW", string(raw[:8]))
	assert.Equal(t, uint32(2048), binary.LittleEndian.Uint32(raw[8:]))
	assert.InDelta(t, 125000, math.Float32frombits(binary.LittleEndian.Uint32(raw[12:])), 0)
	assert.InDelta(t, 0.5, math.Float32frombits(binary.LittleEndian.Uint32(raw[16:])), 0)
}

func TestRoundTripLoops(t *testing.T) {
	t.Parallel()

	pairs := syntheticPairs(20)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, defaultHeader())
	require.NoError(t, err)
	require.NoError(t, w.WritePairs(pairs))
	require.NoError(t, w.Flush())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, defaultHeader(), r.Header())

	for loop := 0; loop < 3; loop++ {
		for i, want := range pairs {
			got, err := r.ReadPair()
			require.NoError(t, err)
			assert.Equal(t, want, got, "loop %d pair %d", loop, i)
		}
	}
}

func TestWritePairsSplitsRecords(t *testing.T) {
	t.Parallel()

	h := Header{MaxBufferSize: 16, Frequency: 125000, DutyCycle: 0.5}
	pairs := syntheticPairs(20)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	require.NoError(t, err)
	require.NoError(t, w.WritePairs(pairs))
	require.NoError(t, w.Flush())

	// walk the records by hand
	raw := buf.Bytes()[HeaderSize:]
	records := 0
	for len(raw) > 0 {
		n := binary.LittleEndian.Uint32(raw)
		assert.LessOrEqual(t, n, uint32(16))
		raw = raw[4+n:]
		records++
	}
	assert.Greater(t, records, 1)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	for i, want := range append(pairs, pairs...) {
		got, err := r.ReadPair()
		require.NoError(t, err)
		assert.Equal(t, want, got, "pair %d", i)
	}
}

func TestWriteRecordTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{MaxBufferSize: 4, Frequency: 125000, DutyCycle: 0.5})
	require.NoError(t, err)
	require.ErrorIs(t, w.WriteRecord(make([]byte, 5)), lfrfid.ErrDataSize)
}

func TestHeaderRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(raw []byte)
	}{
		{name: "magic", mutate: func(raw []byte) { copy(raw, "RFID RAX") }},
		{name: "zero buffer", mutate: func(raw []byte) { binary.LittleEndian.PutUint32(raw[8:], 0) }},
		{name: "huge buffer", mutate: func(raw []byte) { binary.LittleEndian.PutUint32(raw[8:], 4096) }},
		{name: "zero frequency", mutate: func(raw []byte) { binary.LittleEndian.PutUint32(raw[12:], math.Float32bits(0)) }},
		{name: "huge frequency", mutate: func(raw []byte) { binary.LittleEndian.PutUint32(raw[12:], math.Float32bits(2e6)) }},
		{name: "nan frequency", mutate: func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[12:], math.Float32bits(float32(math.NaN())))
		}},
		{name: "negative duty", mutate: func(raw []byte) { binary.LittleEndian.PutUint32(raw[16:], math.Float32bits(-0.1)) }},
		{name: "duty above one", mutate: func(raw []byte) { binary.LittleEndian.PutUint32(raw[16:], math.Float32bits(1.5)) }},
		{name: "truncated", mutate: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := defaultHeader().marshal()
			if tt.mutate == nil {
				raw = raw[:10]
			} else {
				tt.mutate(raw)
			}
			_, err := NewReader(bytes.NewReader(raw))
			require.ErrorIs(t, err, lfrfid.ErrRawFileFormat)
		})
	}
}

func TestReaderRejectsBadRecords(t *testing.T) {
	t.Parallel()

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		r, err := NewReader(bytes.NewReader(defaultHeader().marshal()))
		require.NoError(t, err)
		_, err = r.ReadPair()
		require.ErrorIs(t, err, lfrfid.ErrRawFileFormat)
	})

	t.Run("oversized record", func(t *testing.T) {
		t.Parallel()
		raw := defaultHeader().marshal()
		raw = binary.LittleEndian.AppendUint32(raw, 4096)
		r, err := NewReader(bytes.NewReader(raw))
		require.NoError(t, err)
		_, err = r.ReadPair()
		require.ErrorIs(t, err, lfrfid.ErrRawFileFormat)
	})

	t.Run("truncated varint", func(t *testing.T) {
		t.Parallel()
		raw := defaultHeader().marshal()
		raw = binary.LittleEndian.AppendUint32(raw, 1)
		raw = append(raw, 0x80)
		r, err := NewReader(bytes.NewReader(raw))
		require.NoError(t, err)
		_, err = r.ReadPair()
		require.ErrorIs(t, err, lfrfid.ErrRawFileFormat)
	})
}

func TestCreateAndOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture.raw")
	f, w, err := Create(path, defaultHeader())
	require.NoError(t, err)
	require.NoError(t, w.WritePairs(syntheticPairs(5)))
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	f, r, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	got, err := r.ReadPair()
	require.NoError(t, err)
	assert.Equal(t, syntheticPairs(1)[0], got)

	_, _, err = Create(path, Header{})
	require.ErrorIs(t, err, lfrfid.ErrRawFileFormat)
}
