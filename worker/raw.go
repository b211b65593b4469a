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
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/bufstream"
	"github.com/ZaparooProject/go-lfrfid/rawfile"
)

const (
	rawBufferCount   = 4
	rawBufferSize    = rawfile.MaxBufferSize
	rawEmulateSize   = 1024
	rawReceiveWait   = 50 * time.Millisecond
	rawTopUpInterval = 5 * time.Millisecond
)

// RawWorker captures edges to a raw file or replays one. It runs its own goroutine
// for file I/O so the front end callbacks never touch the file.
type RawWorker struct {
	frontend lfrfid.Frontend
	err      error
	stream   *bufstream.Stream
	file     *os.File
	writer   *rawfile.Writer
	emitter  *emitter
	quit     chan struct{}
	done     chan struct{}
	packer   lfrfid.PulsePacker
	scratch  [2 * binary.MaxVarintLen32]byte
	errMu    sync.Mutex
	failed   atomic.Bool
	reading  bool
	playing  bool
}

// NewRawWorker creates a raw worker for frontend.
func NewRawWorker(frontend lfrfid.Frontend) *RawWorker {
	return &RawWorker{
		frontend: frontend,
		stream:   bufstream.New(rawBufferCount, rawBufferSize),
	}
}

func (r *RawWorker) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil {
		r.err = err
	}
	r.failed.Store(true)
}

// Err returns the file error that ended the session, if any.
func (r *RawWorker) Err() error {
	if !r.failed.Load() {
		return nil
	}
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *RawWorker) resetSession() {
	r.errMu.Lock()
	r.err = nil
	r.errMu.Unlock()
	r.failed.Store(false)
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
}

// StartRead creates the file at path and starts capturing into it.
func (r *RawWorker) StartRead(path string, cfg lfrfid.CaptureConfig) error {
	if r.reading || r.playing {
		return lfrfid.ErrWorkerRunning
	}
	f, w, err := rawfile.Create(path, rawfile.Header{
		MaxBufferSize: rawBufferSize,
		Frequency:     cfg.Frequency,
		DutyCycle:     cfg.DutyCycle,
	})
	if err != nil {
		return err
	}
	r.file = f
	r.writer = w
	r.stream.Reset()
	r.packer.Reset()
	r.resetSession()

	go r.consume()
	if err := r.frontend.StartCapture(cfg, r.sink); err != nil {
		close(r.quit)
		<-r.done
		_ = f.Close()
		return fmt.Errorf("failed to start raw capture: %w", err)
	}
	r.reading = true
	return nil
}

// sink runs on the front end goroutine.
func (r *RawWorker) sink(ld lfrfid.LevelDuration) {
	p, ok := r.packer.Push(ld)
	if !ok {
		return
	}
	r.stream.Write(rawfile.AppendPair(r.scratch[:0], p))
}

func (r *RawWorker) consume() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			for b := r.stream.TryReceive(); b != nil; b = r.stream.TryReceive() {
				r.store(b)
			}
			return
		default:
		}
		if b := r.stream.Receive(rawReceiveWait); b != nil {
			r.store(b)
		}
	}
}

func (r *RawWorker) store(b *bufstream.Buffer) {
	defer r.stream.Release(b)
	if r.failed.Load() {
		return
	}
	if err := r.writer.WriteRecord(b.Data()); err != nil {
		r.setErr(err)
	}
}

// Overruns returns how many captured pairs were dropped in this session.
func (r *RawWorker) Overruns() uint32 {
	return r.stream.Overruns()
}

// StopRead stops the capture and closes the file.
func (r *RawWorker) StopRead() error {
	if !r.reading {
		return nil
	}
	r.reading = false
	var errs []error
	if err := r.frontend.StopCapture(); err != nil {
		errs = append(errs, err)
	}
	r.stream.Flush()
	close(r.quit)
	<-r.done
	if err := r.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close raw file: %w", err))
	}
	return errors.Join(errs...)
}

// StartEmulate opens the raw file at path and replays it in a loop.
func (r *RawWorker) StartEmulate(path string) error {
	if r.reading || r.playing {
		return lfrfid.ErrWorkerRunning
	}
	f, reader, err := rawfile.Open(path)
	if err != nil {
		return err
	}
	r.file = f
	r.emitter = newEmitter(rawEmulateSize)
	if err := r.emitter.prefill(reader.ReadPair); err != nil {
		_ = f.Close()
		return err
	}
	r.resetSession()

	go r.feed(reader)
	h := reader.Header()
	cfg := lfrfid.EmulateConfig{Frequency: h.Frequency, DutyCycle: h.DutyCycle}
	if err := r.frontend.StartEmulate(cfg, r.emitter.buf, r.emitter.onHalf); err != nil {
		close(r.quit)
		<-r.done
		_ = f.Close()
		return fmt.Errorf("failed to start raw emulation: %w", err)
	}
	r.playing = true
	return nil
}

// feed keeps the emitter supplied from the file.
func (r *RawWorker) feed(reader *rawfile.Reader) {
	defer close(r.done)
	ticker := time.NewTicker(rawTopUpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			if r.failed.Load() {
				continue
			}
			if err := r.emitter.topUp(reader.ReadPair); err != nil {
				r.setErr(err)
			}
		}
	}
}

// Underruns returns how many times the output ran out of pulses in this session.
func (r *RawWorker) Underruns() uint32 {
	if r.emitter == nil {
		return 0
	}
	return r.emitter.underruns.Load()
}

// StopEmulate stops playback and closes the file.
func (r *RawWorker) StopEmulate() error {
	if !r.playing {
		return nil
	}
	r.playing = false
	var errs []error
	if err := r.frontend.StopEmulate(); err != nil {
		errs = append(errs, err)
	}
	close(r.quit)
	<-r.done
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close raw file: %w", err))
	}
	return errors.Join(errs...)
}

type readRawMode struct {
	w        *Worker
	cb       ReadRawCallback
	path     string
	overruns uint32
	readType ReadType
	failed   bool
}

func (*readRawMode) kind() Mode { return ModeReadRaw }

func (m *readRawMode) quant() time.Duration { return 100 * time.Millisecond }

func (m *readRawMode) report(result ReadRawResult) {
	if m.cb != nil {
		m.w.dispatch(func() { m.cb(result) })
	}
}

func (m *readRawMode) start() {
	cfg := lfrfid.ASKCapture()
	if m.readType == ReadPSKOnly {
		cfg = lfrfid.PSKCapture()
	}
	if err := m.w.raw.StartRead(m.path, cfg); err != nil {
		lfrfid.Debugf("read raw: %v", err)
		m.failed = true
		m.report(ReadRawFileError)
	}
}

func (m *readRawMode) tick() {
	if m.failed {
		return
	}
	if err := m.w.raw.Err(); err != nil {
		lfrfid.Debugf("read raw: %v", err)
		m.failed = true
		if stopErr := m.w.raw.StopRead(); stopErr != nil {
			lfrfid.Debugf("read raw: stop: %v", stopErr)
		}
		m.report(ReadRawFileError)
		return
	}
	if n := m.w.raw.Overruns(); n != m.overruns {
		m.overruns = n
		m.report(ReadRawOverrun)
	}
}

func (m *readRawMode) stop() {
	if err := m.w.raw.StopRead(); err != nil {
		lfrfid.Debugf("read raw: stop: %v", err)
	}
}

type emulateRawMode struct {
	w         *Worker
	cb        EmulateRawCallback
	path      string
	underruns uint32
	failed    bool
}

func (*emulateRawMode) kind() Mode { return ModeEmulateRaw }

func (m *emulateRawMode) quant() time.Duration { return 100 * time.Millisecond }

func (m *emulateRawMode) report(result EmulateRawResult) {
	if m.cb != nil {
		m.w.dispatch(func() { m.cb(result) })
	}
}

func (m *emulateRawMode) start() {
	if err := m.w.raw.StartEmulate(m.path); err != nil {
		lfrfid.Debugf("emulate raw: %v", err)
		m.failed = true
		m.report(EmulateRawFileError)
	}
}

func (m *emulateRawMode) tick() {
	if m.failed {
		return
	}
	if err := m.w.raw.Err(); err != nil {
		lfrfid.Debugf("emulate raw: %v", err)
		m.failed = true
		if stopErr := m.w.raw.StopEmulate(); stopErr != nil {
			lfrfid.Debugf("emulate raw: stop: %v", stopErr)
		}
		m.report(EmulateRawFileError)
		return
	}
	if n := m.w.raw.Underruns(); n != m.underruns {
		m.underruns = n
		m.report(EmulateRawOverrun)
	}
}

func (m *emulateRawMode) stop() {
	if err := m.w.raw.StopEmulate(); err != nil {
		lfrfid.Debugf("emulate raw: stop: %v", err)
	}
}
