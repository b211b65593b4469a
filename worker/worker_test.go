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

package worker

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/frontend/loopback"
	"github.com/ZaparooProject/go-lfrfid/internal/psk"
	"github.com/ZaparooProject/go-lfrfid/protocols"
	"github.com/ZaparooProject/go-lfrfid/rawfile"
)

const waitFor = 5 * time.Second

var em4100Data = []byte{0x12, 0x34, 0x56, 0x78, 0x9A}

// recorder collects callback events from the worker goroutine
type recorder[T any] struct {
	events []T
	mu     sync.Mutex
}

func (r *recorder[T]) add(e T) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.events...)
}

func (r *recorder[T]) has(match func(T) bool) bool {
	for _, e := range r.snapshot() {
		if match(e) {
			return true
		}
	}
	return false
}

type readEvent struct {
	data   []byte
	result ReadResult
	id     protocols.ProtocolID
}

type hookEvent struct {
	mode    Mode
	started bool
}

func tagFor(t *testing.T, id protocols.ProtocolID, data []byte) *loopback.VirtualTag {
	t.Helper()
	src := protocols.NewDict()
	require.NoError(t, src.SetData(id, data))
	tag, ok := loopback.NewVirtualTagFor(src, id)
	require.True(t, ok)
	return tag
}

func startWorker(t *testing.T, fe lfrfid.Frontend, opts ...Option) *Worker {
	t.Helper()
	w, err := New(fe, protocols.NewDict(), opts...)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() {
		_ = w.Close()
		_ = fe.Close()
	})
	return w
}

// readCallback records read events, copying the record of every ReadDone
func readCallback(w **Worker, rec *recorder[readEvent]) ReadCallback {
	return func(result ReadResult, id protocols.ProtocolID) {
		e := readEvent{result: result, id: id}
		if result == ReadDone {
			e.data = (*w).Dict().Data(id)
		}
		rec.add(e)
	}
}

func isDone(e readEvent) bool { return e.result == ReadDone }

func doneEvent(t *testing.T, rec *recorder[readEvent]) readEvent {
	t.Helper()
	for _, e := range rec.snapshot() {
		if isDone(e) {
			return e
		}
	}
	t.Fatal("no ReadDone event")
	return readEvent{}
}

// decodePulses feeds played or recorded pulses back through a fresh dictionary
func decodePulses(pulses []lfrfid.Pulse, feature lfrfid.Feature) (*protocols.Dict, protocols.ProtocolID) {
	dict := protocols.NewDict()
	dict.DecodersStart()
	demod := psk.NewDemod(lfrfid.UsPerClock)
	for _, p := range pulses {
		high, low := p.Edges()
		for _, ld := range []lfrfid.LevelDuration{high, low} {
			if ld.Duration == 0 {
				continue
			}
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
	}
	return dict, protocols.ProtocolNo
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "no write attempts", opt: WithWriteAttempts(0)},
		{name: "odd emulate buffer", opt: WithEmulateBufferSize(3)},
		{name: "empty edge buffer", opt: WithEdgeBufferSize(0)},
		{name: "zero switch interval", opt: WithReadSwitchInterval(0)},
		{name: "nil config", opt: WithConfig(nil)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(loopback.New(nil), protocols.NewDict(), tt.opt)
			assert.Error(t, err)
		})
	}

	cfg := DefaultConfig()
	cfg.WriteAttempts = 7
	w, err := New(loopback.New(nil), protocols.NewDict(), WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 7, w.Config().WriteAttempts)
	assert.Equal(t, ModeIdle, w.Mode())
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	w, err := New(loopback.New(nil), protocols.NewDict())
	require.NoError(t, err)

	assert.ErrorIs(t, w.Stop(), lfrfid.ErrWorkerNotRunning)
	require.NoError(t, w.Start())
	assert.ErrorIs(t, w.Start(), lfrfid.ErrWorkerRunning)
	require.NoError(t, w.Stop())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Start(), lfrfid.ErrWorkerNotRunning)
	assert.ErrorIs(t, w.Read(ReadAuto, nil), lfrfid.ErrWorkerNotRunning)
	assert.ErrorIs(t, w.Emulate(protocols.EM4100), lfrfid.ErrWorkerNotRunning)
}

func TestModeSwitchRunsStopBeforeStart(t *testing.T) {
	t.Parallel()

	var hooks recorder[hookEvent]
	fe := loopback.New(tagFor(t, protocols.EM4100, em4100Data))
	var w *Worker
	w, err := New(fe, protocols.NewDict(),
		WithModeHook(func(m Mode, started bool) { hooks.add(hookEvent{mode: m, started: started}) }),
		WithContinuousRead(true),
		WithWriteAttempts(1),
		WithVerifyTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	// decoder state is only inspected from the worker goroutine
	accumulating := make(chan bool, 1)
	require.NoError(t, w.Read(ReadASKOnly, func(result ReadResult, _ protocols.ProtocolID) {
		if result != ReadSenseCardStart {
			return
		}
		select {
		case accumulating <- !w.Dict().DecodersIdle():
		default:
		}
	}))
	select {
	case busy := <-accumulating:
		require.True(t, busy)
	case <-time.After(waitFor):
		t.Fatal("no card sensed")
	}

	require.NoError(t, w.Write(protocols.EM4100, nil))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Close())
	require.NoError(t, fe.Close())

	want := []hookEvent{
		{ModeIdle, false},
		{ModeRead, true},
		{ModeRead, false},
		{ModeWrite, true},
		{ModeWrite, false},
		{ModeIdle, true},
		{ModeIdle, false},
		{ModeIdle, true},
	}
	assert.Equal(t, want, hooks.snapshot())
	assert.True(t, w.Dict().DecodersIdle())
	assert.Equal(t, int64(4), w.GetMetrics().ModeSwitches)
}

func TestReadValidator(t *testing.T) {
	t.Parallel()

	v := newReadValidator(8)
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 4}

	assert.False(t, v.feed(protocols.EM4100, a, 3))
	assert.False(t, v.feed(protocols.EM4100, a, 3))
	// a different record restarts the count
	assert.False(t, v.feed(protocols.EM4100, b, 3))
	assert.False(t, v.feed(protocols.EM4100, b, 3))
	assert.True(t, v.feed(protocols.EM4100, b, 3))

	// same bytes under another protocol
	assert.False(t, v.feed(protocols.H10301, b, 2))
	assert.True(t, v.feed(protocols.H10301, b, 2))

	v.reset()
	assert.True(t, v.feed(protocols.H10301, b, 1))
}

func TestReadASK(t *testing.T) {
	t.Parallel()

	fe := loopback.New(tagFor(t, protocols.EM4100, em4100Data))
	var w *Worker
	var rec recorder[readEvent]
	w = startWorker(t, fe)
	require.NoError(t, w.Read(ReadAuto, readCallback(&w, &rec)))

	require.Eventually(t, func() bool { return rec.has(isDone) }, waitFor, 5*time.Millisecond)
	done := doneEvent(t, &rec)
	assert.Equal(t, protocols.EM4100, done.id)
	assert.Equal(t, em4100Data, done.data)

	events := rec.snapshot()
	assert.Equal(t, ReadStartASK, events[0].result)
	assert.Less(t, indexOf(events, ReadSenseStart), indexOf(events, ReadSenseCardStart))
	assert.GreaterOrEqual(t, indexOf(events, ReadSenseStart), 0)
	assert.Equal(t, lfrfid.FeatureASK, fe.CaptureConfig().Feature)
}

func indexOf(events []readEvent, r ReadResult) int {
	for i, e := range events {
		if e.result == r {
			return i
		}
	}
	return -1
}

func TestReadReportsSenseBeforeCard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   protocols.ProtocolID
		data []byte
	}{
		{name: "em4100", id: protocols.EM4100, data: em4100Data},
		{name: "h10301", id: protocols.H10301, data: []byte{0x7B, 0x30, 0x39}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fe := loopback.New(tagFor(t, tt.id, tt.data))
			var w *Worker
			var rec recorder[readEvent]
			w = startWorker(t, fe)
			require.NoError(t, w.Read(ReadASKOnly, readCallback(&w, &rec)))

			require.Eventually(t, func() bool { return rec.has(isDone) }, waitFor, 5*time.Millisecond)
			var results []ReadResult
			for _, e := range rec.snapshot() {
				results = append(results, e.result)
			}
			want := []ReadResult{ReadStartASK, ReadSenseStart, ReadSenseCardStart, ReadDone}
			assert.Equal(t, want, results)
			assert.Equal(t, tt.data, doneEvent(t, &rec).data)
		})
	}
}

func TestReadAutoSwitchesToPSK(t *testing.T) {
	t.Parallel()

	data := []byte{0x12, 0x34, 0x56, 0x78}
	fe := loopback.New(tagFor(t, protocols.Indala26, data))
	var w *Worker
	var rec recorder[readEvent]
	w = startWorker(t, fe, WithReadSwitchInterval(400*time.Millisecond))
	require.NoError(t, w.Read(ReadAuto, readCallback(&w, &rec)))

	require.Eventually(t, func() bool { return rec.has(isDone) }, waitFor, 5*time.Millisecond)
	done := doneEvent(t, &rec)
	assert.Equal(t, protocols.Indala26, done.id)
	assert.Equal(t, data, done.data)

	var starts []ReadResult
	for _, e := range rec.snapshot() {
		if e.result == ReadStartASK || e.result == ReadStartPSK {
			starts = append(starts, e.result)
		}
	}
	require.GreaterOrEqual(t, len(starts), 2)
	assert.Equal(t, []ReadResult{ReadStartASK, ReadStartPSK}, starts[:2])
}

func TestReadPSKOnly(t *testing.T) {
	t.Parallel()

	data := []byte{0x0F, 0xED, 0xCB, 0xA9}
	fe := loopback.New(tagFor(t, protocols.Indala26, data))
	var w *Worker
	var rec recorder[readEvent]
	w = startWorker(t, fe)
	require.NoError(t, w.Read(ReadPSKOnly, readCallback(&w, &rec)))

	require.Eventually(t, func() bool { return rec.has(isDone) }, waitFor, 5*time.Millisecond)
	assert.Equal(t, ReadStartPSK, rec.snapshot()[0].result)
	assert.Equal(t, data, doneEvent(t, &rec).data)
	assert.False(t, rec.has(func(e readEvent) bool { return e.result == ReadStartASK }))
}

func TestReadContinuousReportsCardEnd(t *testing.T) {
	t.Parallel()

	tag := tagFor(t, protocols.H10301, []byte{0x7B, 0x30, 0x39})
	fe := loopback.New(tag)
	var w *Worker
	var rec recorder[readEvent]
	cfg := DefaultConfig()
	cfg.ContinuousRead = true
	cfg.CardTimeout = 50 * time.Millisecond
	cfg.SenseTimeout = 50 * time.Millisecond
	w = startWorker(t, fe, WithConfig(cfg))
	require.NoError(t, w.Read(ReadASKOnly, readCallback(&w, &rec)))

	count := func(r ReadResult) int {
		n := 0
		for _, e := range rec.snapshot() {
			if e.result == r {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return count(ReadDone) >= 2 }, waitFor, 5*time.Millisecond)

	tag.Remove()
	require.Eventually(t, func() bool { return count(ReadSenseCardEnd) >= 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return count(ReadSenseEnd) >= 1 }, waitFor, 5*time.Millisecond)
	assert.GreaterOrEqual(t, w.GetMetrics().CardsRead, int64(2))
}

func TestWriteVerifies(t *testing.T) {
	t.Parallel()

	tag := loopback.NewVirtualTag()
	fe := loopback.New(tag)
	w, err := New(fe, protocols.NewDict(), WithVerifyTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, w.Dict().SetData(protocols.EM4100, em4100Data))
	require.NoError(t, w.Start())
	t.Cleanup(func() {
		_ = w.Close()
		_ = fe.Close()
	})

	results := make(chan WriteResult, 1)
	require.NoError(t, w.Write(protocols.EM4100, func(r WriteResult) { results <- r }))

	select {
	case r := <-results:
		assert.Equal(t, WriteOK, r)
	case <-time.After(waitFor):
		t.Fatal("write did not finish")
	}
	assert.Positive(t, tag.Writes())

	want := tagFor(t, protocols.EM4100, em4100Data).Blocks()
	assert.Equal(t, want, tag.Blocks())
	assert.Equal(t, int64(1), w.GetMetrics().WriteAttempts)
}

func TestWriteFailures(t *testing.T) {
	t.Parallel()

	lockedTag := func(t *testing.T) *loopback.VirtualTag {
		tag := tagFor(t, protocols.H10301, []byte{0x7B, 0x30, 0x39})
		tag.Lock()
		return tag
	}

	tests := []struct {
		tag  func(t *testing.T) *loopback.VirtualTag
		name string
		want WriteResult
	}{
		{name: "locked tag with other data", tag: lockedTag, want: WriteFobCannotBeWritten},
		{name: "no tag", tag: func(*testing.T) *loopback.VirtualTag { return nil }, want: WriteTooLongToWrite},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fe := loopback.New(tt.tag(t))
			w := startWorker(t, fe, WithWriteAttempts(2), WithVerifyTimeout(150*time.Millisecond))
			results := make(chan WriteResult, 1)
			require.NoError(t, w.Write(protocols.EM4100, func(r WriteResult) { results <- r }))

			select {
			case r := <-results:
				assert.Equal(t, tt.want, r)
			case <-time.After(waitFor):
				t.Fatal("write did not finish")
			}
			assert.Equal(t, int64(2), w.GetMetrics().WriteAttempts)
		})
	}
}

// readOnly hides the T5577 layout of a protocol
type readOnly struct {
	protocols.Protocol
}

func (readOnly) WriteData(*protocols.WriteRequest) bool { return false }

func TestWriteUnsupportedProtocol(t *testing.T) {
	t.Parallel()

	base := protocols.EM4100Base
	base.Name = "EM4100 read only"
	base.New = func() protocols.Protocol { return readOnly{protocols.EM4100Base.New()} }

	fe := loopback.New(loopback.NewVirtualTag())
	w, err := New(fe, protocols.NewDictFrom([]*protocols.Base{&base}))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() {
		_ = w.Close()
		_ = fe.Close()
	})

	results := make(chan WriteResult, 1)
	require.NoError(t, w.Write(0, func(r WriteResult) { results <- r }))
	select {
	case r := <-results:
		assert.Equal(t, WriteProtocolCannotBeWritten, r)
	case <-time.After(waitFor):
		t.Fatal("write did not finish")
	}
	assert.Zero(t, fe.Tag().Writes())
}

func TestEmulatePlaysDecodableSignal(t *testing.T) {
	t.Parallel()

	fe := loopback.New(nil)
	w, err := New(fe, protocols.NewDict(), WithEmulateBufferSize(256))
	require.NoError(t, err)
	require.NoError(t, w.Dict().SetData(protocols.EM4100, em4100Data))
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = fe.Close() })

	require.NoError(t, w.Emulate(protocols.EM4100))
	require.Eventually(t, func() bool { return len(fe.Played()) >= 2000 }, waitFor, 5*time.Millisecond)
	require.NoError(t, w.Close())

	dict, id := decodePulses(fe.Played(), lfrfid.FeatureASK)
	require.Equal(t, protocols.EM4100, id)
	assert.Equal(t, em4100Data, dict.Data(id))
	assert.Equal(t, lfrfid.DefaultEmulateConfig(), fe.EmulateConfig())
}

func readPairs(t *testing.T, path string, n int) ([]lfrfid.Pulse, rawfile.Header) {
	t.Helper()
	f, r, err := rawfile.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	out := make([]lfrfid.Pulse, 0, n)
	for len(out) < n {
		p, err := r.ReadPair()
		require.NoError(t, err)
		out = append(out, p)
	}
	return out, r.Header()
}

func TestRawCaptureAndReplay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "em4100.raw")

	capFE := loopback.New(tagFor(t, protocols.EM4100, em4100Data))
	var rawRec recorder[ReadRawResult]
	capW := startWorker(t, capFE)
	require.NoError(t, capW.ReadRaw(path, ReadASKOnly, rawRec.add))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, capW.Close())
	assert.NotContains(t, rawRec.snapshot(), ReadRawFileError)

	pairs, header := readPairs(t, path, 600)
	assert.Equal(t, float32(lfrfid.CarrierFrequency), header.Frequency)
	assert.Equal(t, float32(0.5), header.DutyCycle)

	dict, id := decodePulses(pairs, lfrfid.FeatureASK)
	require.Equal(t, protocols.EM4100, id)
	assert.Equal(t, em4100Data, dict.Data(id))

	playFE := loopback.New(nil)
	var emuRec recorder[EmulateRawResult]
	playW := startWorker(t, playFE)
	require.NoError(t, playW.EmulateRaw(path, emuRec.add))
	require.Eventually(t, func() bool { return len(playFE.Played()) >= 40 }, waitFor, 5*time.Millisecond)
	require.NoError(t, playW.Close())

	assert.Equal(t, pairs[:20], playFE.Played()[:20])
	assert.NotContains(t, emuRec.snapshot(), EmulateRawFileError)
}

func TestRawFileErrors(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing", "capture.raw")

	fe := loopback.New(nil)
	w := startWorker(t, fe)

	var rawRec recorder[ReadRawResult]
	require.NoError(t, w.ReadRaw(missing, ReadAuto, rawRec.add))
	require.Eventually(t, func() bool {
		return rawRec.has(func(r ReadRawResult) bool { return r == ReadRawFileError })
	}, waitFor, 5*time.Millisecond)

	var emuRec recorder[EmulateRawResult]
	require.NoError(t, w.EmulateRaw(missing, emuRec.add))
	require.Eventually(t, func() bool {
		return emuRec.has(func(r EmulateRawResult) bool { return r == EmulateRawFileError })
	}, waitFor, 5*time.Millisecond)
}

func TestRawWorkerRejectsOverlap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fe := loopback.New(nil)
	t.Cleanup(func() { _ = fe.Close() })
	raw := NewRawWorker(fe)

	require.NoError(t, raw.StartRead(filepath.Join(dir, "a.raw"), lfrfid.ASKCapture()))
	assert.ErrorIs(t, raw.StartRead(filepath.Join(dir, "b.raw"), lfrfid.ASKCapture()), lfrfid.ErrWorkerRunning)
	assert.ErrorIs(t, raw.StartEmulate(filepath.Join(dir, "a.raw")), lfrfid.ErrWorkerRunning)
	require.NoError(t, raw.StopRead())
	require.NoError(t, raw.StopRead())
	assert.NoError(t, raw.Err())

	// an empty capture has no records to replay
	err := raw.StartEmulate(filepath.Join(dir, "a.raw"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, lfrfid.ErrRawFileFormat) || errors.Is(err, io.EOF))
}

func TestEmulateNotStartedWhenPrefillFails(t *testing.T) {
	t.Parallel()

	fe := loopback.New(nil)
	t.Cleanup(func() { _ = fe.Close() })
	w, err := New(fe, protocols.NewDict(), WithEmulateBufferSize(8))
	require.NoError(t, err)

	calls := 0
	m := newEmulateMode(w, protocols.EM4100)
	m.src = func() (lfrfid.Pulse, error) {
		calls++
		if calls > 3 {
			return lfrfid.Pulse{}, errors.New("source ran dry")
		}
		return lfrfid.Pulse{Duration: 512, Pulse: 256}, nil
	}
	m.start()
	assert.False(t, m.running)
	assert.Equal(t, 4, calls)
	assert.Empty(t, fe.Played())

	// the front end was never claimed
	buf := []lfrfid.Pulse{{Duration: 512, Pulse: 256}, {Duration: 512, Pulse: 256}}
	require.NoError(t, fe.StartEmulate(lfrfid.DefaultEmulateConfig(), buf, nil))
	require.NoError(t, fe.StopEmulate())
}

func TestCloseFromCallback(t *testing.T) {
	t.Parallel()

	fe := loopback.New(tagFor(t, protocols.EM4100, em4100Data))
	t.Cleanup(func() { _ = fe.Close() })
	w, err := New(fe, protocols.NewDict())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	closed := make(chan error, 1)
	require.NoError(t, w.Read(ReadASKOnly, func(result ReadResult, _ protocols.ProtocolID) {
		if result == ReadSenseStart {
			closed <- w.Close()
		}
	}))

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Close blocked inside a callback")
	}
	select {
	case <-w.done:
	case <-time.After(waitFor):
		t.Fatal("worker goroutine did not exit")
	}
	assert.ErrorIs(t, w.Read(ReadAuto, nil), lfrfid.ErrWorkerNotRunning)
	require.NoError(t, w.Close())
	assert.Equal(t, ModeIdle, w.Mode())
}
