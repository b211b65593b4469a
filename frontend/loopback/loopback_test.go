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

package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/psk"
	"github.com/ZaparooProject/go-lfrfid/protocols"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// edgeLog collects edges delivered by a capture
type edgeLog struct {
	edges []lfrfid.LevelDuration
	mu    sync.Mutex
}

func (l *edgeLog) sink(ld lfrfid.LevelDuration) {
	l.mu.Lock()
	l.edges = append(l.edges, ld)
	l.mu.Unlock()
}

func (l *edgeLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.edges)
}

func (l *edgeLog) snapshot() []lfrfid.LevelDuration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lfrfid.LevelDuration(nil), l.edges...)
}

// captureEdges runs a capture until n edges arrived
func captureEdges(t *testing.T, fe *Frontend, cfg lfrfid.CaptureConfig, n int) []lfrfid.LevelDuration {
	t.Helper()
	var log edgeLog
	require.NoError(t, fe.StartCapture(cfg, log.sink))
	require.Eventually(t, func() bool { return log.len() >= n }, 2*time.Second, time.Millisecond)
	require.NoError(t, fe.StopCapture())
	return log.snapshot()
}

// decodeEdges feeds edges to a fresh dictionary the way a reader would
func decodeEdges(edges []lfrfid.LevelDuration, feature lfrfid.Feature) (*protocols.Dict, protocols.ProtocolID) {
	dict := protocols.NewDict()
	dict.DecodersStart()
	demod := psk.NewDemod(lfrfid.UsPerClock)
	for _, ld := range edges {
		if feature == lfrfid.FeaturePSK {
			level, run, ok := demod.Feed(ld.Duration)
			if !ok {
				continue
			}
			ld = lfrfid.LevelDuration{Level: level, Duration: run}
		}
		if id := dict.DecodersFeedByFeature(feature, ld.Level, ld.Duration); id != protocols.ProtocolNo {
			return dict, id
		}
	}
	return dict, protocols.ProtocolNo
}

func TestVirtualTagTransmitsProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		id      protocols.ProtocolID
		feature lfrfid.Feature
	}{
		{name: "em4100", id: protocols.EM4100, data: []byte{0x12, 0x34, 0x56, 0x78, 0x9A}, feature: lfrfid.FeatureASK},
		{name: "h10301", id: protocols.H10301, data: []byte{0x7B, 0x30, 0x39}, feature: lfrfid.FeatureASK},
		{name: "indala26", id: protocols.Indala26, data: []byte{0x12, 0x34, 0x56, 0x78}, feature: lfrfid.FeaturePSK},
		{
			name:    "fdxb",
			id:      protocols.FDXB,
			data:    []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0, 0x01, 0x02, 0x03},
			feature: lfrfid.FeatureASK,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := protocols.NewDict()
			require.NoError(t, src.SetData(tt.id, tt.data))
			tag, ok := NewVirtualTagFor(src, tt.id)
			require.True(t, ok)

			fe := New(tag)
			defer func() { _ = fe.Close() }()

			cfg := lfrfid.ASKCapture()
			if tt.feature == lfrfid.FeaturePSK {
				cfg = lfrfid.PSKCapture()
			}
			edges := captureEdges(t, fe, cfg, 4000)
			dict, id := decodeEdges(edges, tt.feature)
			require.Equal(t, tt.id, id)
			assert.Equal(t, tt.data, dict.Data(id))
			assert.Equal(t, cfg, fe.CaptureConfig())
		})
	}
}

func TestEveryProtocolProgramsATag(t *testing.T) {
	t.Parallel()

	src := protocols.NewDict()
	for id := protocols.ProtocolID(0); int(id) < src.Count(); id++ {
		tag, ok := NewVirtualTagFor(src, id)
		require.True(t, ok, src.Name(id))
		assert.NotNil(t, tag.transmitter(), src.Name(id))
	}
}

func TestBlankTagIsSilent(t *testing.T) {
	t.Parallel()

	fe := New(NewVirtualTag())
	defer func() { _ = fe.Close() }()

	var log edgeLog
	require.NoError(t, fe.StartCapture(lfrfid.ASKCapture(), log.sink))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, fe.StopCapture())
	assert.Zero(t, log.len())
}

func TestRemovedTagIsSilent(t *testing.T) {
	t.Parallel()

	src := protocols.NewDict()
	require.NoError(t, src.SetData(protocols.EM4100, []byte{1, 2, 3, 4, 5}))
	tag, ok := NewVirtualTagFor(src, protocols.EM4100)
	require.True(t, ok)
	fe := New(tag)
	defer func() { _ = fe.Close() }()

	var log edgeLog
	require.NoError(t, fe.StartCapture(lfrfid.ASKCapture(), log.sink))
	require.Eventually(t, func() bool { return log.len() > 0 }, time.Second, time.Millisecond)

	tag.Remove()
	// let the capture goroutine observe the removal
	time.Sleep(10 * time.Millisecond)
	before := log.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, log.len())

	tag.Insert()
	require.Eventually(t, func() bool { return log.len() > before }, time.Second, time.Millisecond)
	require.NoError(t, fe.StopCapture())
}

func TestNoSinkCallAfterStopCapture(t *testing.T) {
	t.Parallel()

	src := protocols.NewDict()
	tag, _ := NewVirtualTagFor(src, protocols.EM4100)
	fe := New(tag)
	defer func() { _ = fe.Close() }()

	var log edgeLog
	require.NoError(t, fe.StartCapture(lfrfid.ASKCapture(), log.sink))
	require.Eventually(t, func() bool { return log.len() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, fe.StopCapture())
	n := log.len()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, log.len())
}

func TestBusyAndClosed(t *testing.T) {
	t.Parallel()

	fe := New(nil)
	require.NoError(t, fe.StartCapture(lfrfid.ASKCapture(), func(lfrfid.LevelDuration) {}))
	assert.ErrorIs(t, fe.StartCapture(lfrfid.ASKCapture(), func(lfrfid.LevelDuration) {}), lfrfid.ErrFrontendBusy)
	assert.ErrorIs(t, fe.StartEmulate(lfrfid.DefaultEmulateConfig(), make([]lfrfid.Pulse, 4), nil), lfrfid.ErrFrontendBusy)
	assert.ErrorIs(t, fe.WriteT5577(context.Background(), &t5577.Request{}), lfrfid.ErrFrontendBusy)
	require.NoError(t, fe.StopCapture())
	require.NoError(t, fe.StopCapture())

	require.NoError(t, fe.Close())
	assert.ErrorIs(t, fe.StartCapture(lfrfid.ASKCapture(), nil), lfrfid.ErrFrontendClosed)
	assert.ErrorIs(t, fe.StartEmulate(lfrfid.DefaultEmulateConfig(), nil, nil), lfrfid.ErrFrontendClosed)
	assert.ErrorIs(t, fe.WriteT5577(context.Background(), &t5577.Request{}), lfrfid.ErrFrontendClosed)
	assert.Equal(t, lfrfid.FrontendLoopback, fe.Type())
}

func TestEmulateRecordsHalves(t *testing.T) {
	t.Parallel()

	fe := New(nil)
	defer func() { _ = fe.Close() }()

	buf := make([]lfrfid.Pulse, 8)
	for i := range buf {
		buf[i] = lfrfid.Pulse{Duration: uint32(100 + i), Pulse: 50}
	}
	var mu sync.Mutex
	var halves []lfrfid.Half
	onHalf := func(h lfrfid.Half) {
		mu.Lock()
		halves = append(halves, h)
		mu.Unlock()
	}

	require.NoError(t, fe.StartEmulate(lfrfid.DefaultEmulateConfig(), buf, onHalf))
	require.Eventually(t, func() bool { return len(fe.Played()) >= 16 }, time.Second, time.Millisecond)
	require.NoError(t, fe.StopEmulate())

	played := fe.Played()
	assert.Equal(t, buf, played[:8])
	assert.Equal(t, buf, played[8:16])

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(halves), 2)
	assert.Equal(t, lfrfid.HalfTransfer, halves[0])
	assert.Equal(t, lfrfid.TransferComplete, halves[1])
	assert.Equal(t, lfrfid.DefaultEmulateConfig(), fe.EmulateConfig())
}

func TestEmulateRespectsPlayedLimit(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.PlayedLimit = 5
	fe := NewWithOptions(nil, opts)
	defer func() { _ = fe.Close() }()

	buf := make([]lfrfid.Pulse, 4)
	require.NoError(t, fe.StartEmulate(lfrfid.DefaultEmulateConfig(), buf, nil))
	require.Eventually(t, func() bool { return len(fe.Played()) == 5 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, fe.StopEmulate())
	assert.Len(t, fe.Played(), 5)
}

func TestWriteProgramsTag(t *testing.T) {
	t.Parallel()

	tag := NewVirtualTag()
	fe := New(tag)
	defer func() { _ = fe.Close() }()

	src := protocols.NewDict()
	require.NoError(t, src.SetData(protocols.H10301, []byte{0x7B, 0x30, 0x39}))
	req := protocols.WriteRequest{Type: protocols.WriteTypeT5577}
	require.True(t, src.WriteData(protocols.H10301, &req))

	require.NoError(t, fe.WriteT5577(context.Background(), &req.T5577))
	blocks := tag.Blocks()
	for i := 0; i < req.T5577.BlockCount; i++ {
		assert.Equal(t, req.T5577.Blocks[i], blocks[i], "block %d", i)
	}
	assert.Equal(t, req.T5577.BlockCount, tag.Writes())

	edges := captureEdges(t, fe, lfrfid.ASKCapture(), 4000)
	dict, id := decodeEdges(edges, lfrfid.FeatureASK)
	require.Equal(t, protocols.H10301, id)
	assert.Equal(t, []byte{0x7B, 0x30, 0x39}, dict.Data(id))
}

func TestWriteIgnoredByLockedOrAbsentTag(t *testing.T) {
	t.Parallel()

	req := &t5577.Request{BlockCount: 2, Blocks: [t5577.MaxBlocks]uint32{1, 2}}

	locked := NewVirtualTag()
	locked.Lock()
	fe := New(locked)
	require.NoError(t, fe.WriteT5577(context.Background(), req))
	assert.Zero(t, locked.Writes())
	assert.Equal(t, [t5577.MaxBlocks]uint32{}, locked.Blocks())

	absent := NewVirtualTag()
	absent.Remove()
	fe = New(absent)
	require.NoError(t, fe.WriteT5577(context.Background(), req))
	assert.Zero(t, absent.Writes())
}

func TestWriteHonorsContext(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.WriteDelay = time.Second
	tag := NewVirtualTag()
	fe := NewWithOptions(tag, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := fe.WriteT5577(ctx, &t5577.Request{BlockCount: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, tag.Writes())

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.ErrorIs(t, New(tag).WriteT5577(cancelled, &t5577.Request{}), context.Canceled)
}
