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

// Package worker drives a front end through the read, write, emulate and raw modes.
//
// A Worker owns a protocol dictionary and runs one goroutine. Commands are handed over
// through a single slot channel; every mode change runs the outgoing mode's stop hook
// before the incoming mode's start hook, so at most one mode uses the front end at a time.
// While no command arrives the current mode's tick runs once per quant.
package worker

import (
	"sync"
	"sync/atomic"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/protocols"
)

// ReadCallback receives read progress. id is protocols.ProtocolNo except for ReadDone.
type ReadCallback func(result ReadResult, id protocols.ProtocolID)

// WriteCallback receives the outcome of a write
type WriteCallback func(result WriteResult)

// ReadRawCallback receives raw capture problems
type ReadRawCallback func(result ReadRawResult)

// EmulateRawCallback receives raw replay problems
type EmulateRawCallback func(result EmulateRawResult)

// mode is one worker state. All hooks run on the worker goroutine.
type mode interface {
	start()
	tick()
	stop()
	// quant is the tick period; zero waits for the next command
	quant() time.Duration
	kind() Mode
}

type command struct {
	readCB       ReadCallback
	writeCB      WriteCallback
	readRawCB    ReadRawCallback
	emulateRawCB EmulateRawCallback
	path         string
	mode         Mode
	readType     ReadType
	id           protocols.ProtocolID
}

// Metrics tracks worker counters
type Metrics struct {
	ModeSwitches  int64
	Ticks         int64
	EdgeOverruns  uint32
	CardsRead     int64
	WriteAttempts int64
}

// Worker runs the LF modes on a front end.
type Worker struct {
	frontend lfrfid.Frontend
	dict     *protocols.Dict
	config   *Config
	modeHook func(mode Mode, started bool)
	current  mode
	edges    *edgeRing
	raw      *RawWorker
	cmds     chan command
	quit     chan struct{}
	done     chan struct{}
	startMu  sync.Mutex
	running  atomic.Bool
	closed   atomic.Bool

	// callbacks counts user callbacks in progress on the worker goroutine
	callbacks atomic.Int32

	modeSwitches  atomic.Int64
	ticks         atomic.Int64
	cardsRead     atomic.Int64
	writeAttempts atomic.Int64
}

// New creates a worker for frontend that owns dict.
func New(frontend lfrfid.Frontend, dict *protocols.Dict, opts ...Option) (*Worker, error) {
	w := &Worker{
		frontend: frontend,
		dict:     dict,
		config:   DefaultConfig(),
		cmds:     make(chan command, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	if err := w.config.Validate(); err != nil {
		return nil, err
	}
	w.edges = newEdgeRing(w.config.EdgeBufferSize)
	w.raw = NewRawWorker(frontend)
	w.current = idleMode{}
	return w, nil
}

// Dict returns the dictionary owned by the worker. Only touch it from callbacks or
// while the worker is idle.
func (w *Worker) Dict() *protocols.Dict {
	return w.dict
}

// Config returns a copy of the worker configuration
func (w *Worker) Config() Config {
	return *w.config
}

// Mode returns the current mode. It is only stable from the worker goroutine.
func (w *Worker) Mode() Mode {
	return w.current.kind()
}

// Start launches the worker goroutine.
func (w *Worker) Start() error {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.closed.Load() {
		return lfrfid.ErrWorkerNotRunning
	}
	if w.running.Load() {
		return lfrfid.ErrWorkerRunning
	}
	w.running.Store(true)
	go w.run()
	return nil
}

// Close stops the current mode and waits for the worker goroutine to exit.
//
// Called from inside a callback, Close cannot wait for the goroutine running that
// callback: it returns at once and the worker stops when the callback returns.
func (w *Worker) Close() error {
	w.startMu.Lock()
	if !w.running.Load() || w.closed.Load() {
		w.startMu.Unlock()
		return nil
	}
	w.closed.Store(true)
	close(w.quit)
	w.startMu.Unlock()

	if w.callbacks.Load() > 0 {
		return nil
	}
	<-w.done
	return nil
}

func (w *Worker) send(cmd command) error {
	if !w.running.Load() || w.closed.Load() {
		return lfrfid.ErrWorkerNotRunning
	}
	select {
	case w.cmds <- cmd:
		return nil
	case <-w.quit:
		return lfrfid.ErrWorkerNotRunning
	}
}

// dispatch runs a user callback on the worker goroutine.
func (w *Worker) dispatch(fn func()) {
	w.callbacks.Add(1)
	defer w.callbacks.Add(-1)
	fn()
}

// Read starts reading cards.
func (w *Worker) Read(readType ReadType, cb ReadCallback) error {
	return w.send(command{mode: ModeRead, readType: readType, readCB: cb})
}

// Write programs the record of id into a T5577 and verifies it.
func (w *Worker) Write(id protocols.ProtocolID, cb WriteCallback) error {
	return w.send(command{mode: ModeWrite, id: id, writeCB: cb})
}

// Emulate transmits the record of id until stopped.
func (w *Worker) Emulate(id protocols.ProtocolID) error {
	return w.send(command{mode: ModeEmulate, id: id})
}

// ReadRaw captures edges into the raw file at path.
func (w *Worker) ReadRaw(path string, readType ReadType, cb ReadRawCallback) error {
	return w.send(command{mode: ModeReadRaw, path: path, readType: readType, readRawCB: cb})
}

// EmulateRaw replays the raw file at path in a loop.
func (w *Worker) EmulateRaw(path string, cb EmulateRawCallback) error {
	return w.send(command{mode: ModeEmulateRaw, path: path, emulateRawCB: cb})
}

// Stop returns the worker to idle.
func (w *Worker) Stop() error {
	return w.send(command{mode: ModeIdle})
}

// GetMetrics returns current worker counters
func (w *Worker) GetMetrics() Metrics {
	return Metrics{
		ModeSwitches:  w.modeSwitches.Load(),
		Ticks:         w.ticks.Load(),
		EdgeOverruns:  w.edges.overruns.Load(),
		CardsRead:     w.cardsRead.Load(),
		WriteAttempts: w.writeAttempts.Load(),
	}
}

func (w *Worker) run() {
	defer func() {
		w.running.Store(false)
		close(w.done)
	}()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		var tick <-chan time.Time
		if q := w.current.quant(); q > 0 {
			timer.Reset(q)
			tick = timer.C
		}

		select {
		case <-w.quit:
			w.switchMode(command{mode: ModeIdle})
			return
		case cmd := <-w.cmds:
			w.switchMode(cmd)
		case <-tick:
			w.ticks.Add(1)
			w.current.tick()
		}
	}
}

// switchMode stops the current mode and starts the one cmd asks for.
func (w *Worker) switchMode(cmd command) {
	prev := w.current
	prev.stop()
	w.notifyHook(prev.kind(), false)

	next := w.newMode(cmd)
	lfrfid.Debugf("worker: %s -> %s", prev.kind(), next.kind())
	w.current = next
	w.modeSwitches.Add(1)
	next.start()
	w.notifyHook(next.kind(), true)
}

func (w *Worker) notifyHook(m Mode, started bool) {
	if w.modeHook != nil {
		w.dispatch(func() { w.modeHook(m, started) })
	}
}

func (w *Worker) newMode(cmd command) mode {
	switch cmd.mode {
	case ModeRead:
		return newReadMode(w, cmd.readType, cmd.readCB)
	case ModeWrite:
		return newWriteMode(w, cmd.id, cmd.writeCB)
	case ModeEmulate:
		return newEmulateMode(w, cmd.id)
	case ModeReadRaw:
		return &readRawMode{w: w, path: cmd.path, readType: cmd.readType, cb: cmd.readRawCB}
	case ModeEmulateRaw:
		return &emulateRawMode{w: w, path: cmd.path, cb: cmd.emulateRawCB}
	default:
		return idleMode{}
	}
}

type idleMode struct{}

func (idleMode) start()               {}
func (idleMode) tick()                {}
func (idleMode) stop()                {}
func (idleMode) quant() time.Duration { return 0 }
func (idleMode) kind() Mode           { return ModeIdle }

// edgeRing carries captured edges from the front end goroutine to the worker. The
// producer never blocks; edges that do not fit are counted and dropped.
type edgeRing struct {
	ch       chan lfrfid.LevelDuration
	overruns atomic.Uint32
}

func newEdgeRing(size int) *edgeRing {
	return &edgeRing{ch: make(chan lfrfid.LevelDuration, size)}
}

func (r *edgeRing) push(ld lfrfid.LevelDuration) {
	select {
	case r.ch <- ld:
	default:
		r.overruns.Add(1)
	}
}

// drain discards queued edges.
func (r *edgeRing) drain() {
	for {
		select {
		case <-r.ch:
		default:
			return
		}
	}
}
