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

// Package loopback provides an in-memory front end for tests and demos.
//
// Captures deliver the signal of a VirtualTag; emulation records every pulse it plays
// so the output can be fed back through the decoders.
package loopback

import (
	"context"
	"sync"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/hitag"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Options configures the loopback timing
type Options struct {
	// Interval is how often the capture and playback goroutines wake up
	Interval time.Duration
	// BatchSize is how many edges a capture delivers per interval
	BatchSize int
	// PlayedLimit caps the number of recorded output pulses
	PlayedLimit int
	// WriteDelay simulates the time a downlink program takes
	WriteDelay time.Duration
}

// DefaultOptions returns the default loopback timing
func DefaultOptions() Options {
	return Options{
		Interval:    time.Millisecond,
		BatchSize:   64,
		PlayedLimit: 1 << 16,
	}
}

type session struct {
	quit chan struct{}
	done chan struct{}
}

func newSession() *session {
	return &session{quit: make(chan struct{}), done: make(chan struct{})}
}

func (s *session) end() {
	close(s.quit)
	<-s.done
}

// Frontend is an in-memory lfrfid.Frontend
type Frontend struct {
	tag      *VirtualTag
	hitag    *hitag.Emulator
	capture  *session
	emulate  *session
	played   []lfrfid.Pulse
	captured lfrfid.CaptureConfig
	emulated lfrfid.EmulateConfig
	opts     Options
	mu       sync.Mutex
	closed   bool
}

// New creates a loopback front end with tag in its field. tag may be nil.
func New(tag *VirtualTag) *Frontend {
	return NewWithOptions(tag, DefaultOptions())
}

// NewWithOptions creates a loopback front end with explicit timing
func NewWithOptions(tag *VirtualTag, opts Options) *Frontend {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.PlayedLimit <= 0 {
		opts.PlayedLimit = def.PlayedLimit
	}
	if tag == nil {
		tag = NewVirtualTag()
		tag.Remove()
	}
	return &Frontend{tag: tag, opts: opts}
}

// Tag returns the tag in the field
func (f *Frontend) Tag() *VirtualTag {
	return f.tag
}

// Type returns the front end type
func (*Frontend) Type() lfrfid.FrontendType {
	return lfrfid.FrontendLoopback
}

// StartCapture starts delivering the tag signal to sink
func (f *Frontend) StartCapture(cfg lfrfid.CaptureConfig, sink lfrfid.EdgeSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return lfrfid.ErrFrontendClosed
	}
	if f.capture != nil || f.emulate != nil {
		return lfrfid.ErrFrontendBusy
	}
	f.captured = cfg
	s := newSession()
	f.capture = s
	go f.runCapture(s, sink)
	return nil
}

func (f *Frontend) runCapture(s *session, sink lfrfid.EdgeSink) {
	defer close(s.done)
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	gen := f.tag.generation()
	tx := f.tag.transmitter()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
		if g := f.tag.generation(); g != gen {
			gen = g
			tx = f.tag.transmitter()
		}
		if tx == nil {
			continue
		}
		for i := 0; i < f.opts.BatchSize; i++ {
			sink(tx.next())
		}
	}
}

// StopCapture stops the capture goroutine
func (f *Frontend) StopCapture() error {
	f.mu.Lock()
	s := f.capture
	f.capture = nil
	f.mu.Unlock()
	if s != nil {
		s.end()
	}
	return nil
}

// CaptureConfig returns the configuration of the last capture
func (f *Frontend) CaptureConfig() lfrfid.CaptureConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captured
}

// StartEmulate plays buf half by half, recording every pulse
func (f *Frontend) StartEmulate(cfg lfrfid.EmulateConfig, buf []lfrfid.Pulse, onHalf lfrfid.HalfFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return lfrfid.ErrFrontendClosed
	}
	if f.capture != nil || f.emulate != nil {
		return lfrfid.ErrFrontendBusy
	}
	f.emulated = cfg
	f.played = f.played[:0]
	s := newSession()
	f.emulate = s
	go f.runEmulate(s, buf, onHalf)
	return nil
}

func (f *Frontend) runEmulate(s *session, buf []lfrfid.Pulse, onHalf lfrfid.HalfFunc) {
	defer close(s.done)
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	half := len(buf) / 2
	which := lfrfid.HalfTransfer
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
		part := buf[:half]
		if which == lfrfid.TransferComplete {
			part = buf[half:]
		}
		f.record(part)
		if onHalf != nil {
			onHalf(which)
		}
		if which == lfrfid.HalfTransfer {
			which = lfrfid.TransferComplete
		} else {
			which = lfrfid.HalfTransfer
		}
	}
}

func (f *Frontend) record(part []lfrfid.Pulse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.opts.PlayedLimit - len(f.played)
	if room <= 0 {
		return
	}
	if len(part) > room {
		part = part[:room]
	}
	f.played = append(f.played, part...)
}

// StopEmulate stops playback
func (f *Frontend) StopEmulate() error {
	f.mu.Lock()
	s := f.emulate
	f.emulate = nil
	f.mu.Unlock()
	if s != nil {
		s.end()
	}
	return nil
}

// Played returns a copy of the pulses played since the last StartEmulate
func (f *Frontend) Played() []lfrfid.Pulse {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]lfrfid.Pulse, len(f.played))
	copy(out, f.played)
	return out
}

// EmulateConfig returns the configuration of the last emulation
func (f *Frontend) EmulateConfig() lfrfid.EmulateConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emulated
}

// WriteT5577 sends the downlink program of req to the tag
func (f *Frontend) WriteT5577(ctx context.Context, req *t5577.Request) error {
	f.mu.Lock()
	closed := f.closed
	busy := f.capture != nil || f.emulate != nil
	f.mu.Unlock()
	if closed {
		return lfrfid.ErrFrontendClosed
	}
	if busy {
		return lfrfid.ErrFrontendBusy
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	steps := t5577.Program(req)
	if f.opts.WriteDelay > 0 {
		timer := time.NewTimer(f.opts.WriteDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	n := f.tag.Receive(steps)
	lfrfid.Debugf("loopback: downlink of %d steps wrote %d blocks", len(steps), n)
	return nil
}

// Close stops any running session
func (f *Frontend) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	_ = f.StopCapture()
	_ = f.StopEmulate()
	return nil
}
