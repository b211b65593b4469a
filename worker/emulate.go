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
	"sync/atomic"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/protocols"
)

// pulseSource produces the next output pulse on the goroutine that owns it.
type pulseSource func() (lfrfid.Pulse, error)

// emitter feeds a front end double buffer. The owner keeps feed topped up; the front
// end's half callback copies from feed into the half it just played and never blocks.
type emitter struct {
	feed      chan lfrfid.Pulse
	buf       []lfrfid.Pulse
	underruns atomic.Uint32
}

func newEmitter(size int) *emitter {
	return &emitter{
		buf:  make([]lfrfid.Pulse, size),
		feed: make(chan lfrfid.Pulse, 4*size),
	}
}

// prefill fills the whole double buffer and the feed from src.
func (e *emitter) prefill(src pulseSource) error {
	for i := range e.buf {
		p, err := src()
		if err != nil {
			return err
		}
		e.buf[i] = p
	}
	return e.topUp(src)
}

// topUp refills the feed from src.
func (e *emitter) topUp(src pulseSource) error {
	for len(e.feed) < cap(e.feed) {
		p, err := src()
		if err != nil {
			return err
		}
		e.feed <- p
	}
	return nil
}

// onHalf refills the half of the buffer the front end just played.
func (e *emitter) onHalf(h lfrfid.Half) {
	half := len(e.buf) / 2
	part := e.buf[:half]
	if h == lfrfid.TransferComplete {
		part = e.buf[half:]
	}
	for i := range part {
		select {
		case p := <-e.feed:
			part[i] = p
		default:
			e.underruns.Add(1)
			return
		}
	}
}

// maxSilentPieces bounds the encoder pieces read while waiting for one pulse.
const maxSilentPieces = 4096

var errEncoderStalled = errors.New("encoder produced no pulse")

// encoderSource packs the encoder output of a protocol into microsecond pulses.
type encoderSource struct {
	dict   *protocols.Dict
	merger lfrfid.EdgeMerger
	packer lfrfid.PulsePacker
	id     protocols.ProtocolID
}

func (s *encoderSource) next() (lfrfid.Pulse, error) {
	for i := 0; i < maxSilentPieces; i++ {
		ld, ok := s.merger.Push(s.dict.EncoderYield(s.id))
		if !ok {
			continue
		}
		ld.Duration = lfrfid.ClocksToUs(ld.Duration)
		if p, ok := s.packer.Push(ld); ok {
			return p, nil
		}
	}
	return lfrfid.Pulse{}, errEncoderStalled
}

type emulateMode struct {
	w       *Worker
	emitter *emitter
	src     pulseSource
	id      protocols.ProtocolID
	running bool
}

func newEmulateMode(w *Worker, id protocols.ProtocolID) *emulateMode {
	return &emulateMode{
		w:       w,
		id:      id,
		emitter: newEmitter(w.config.EmulateBufferSize),
		src:     (&encoderSource{dict: w.dict, id: id}).next,
	}
}

func (*emulateMode) kind() Mode { return ModeEmulate }

func (m *emulateMode) quant() time.Duration { return m.w.config.EmulateQuant }

func (m *emulateMode) start() {
	if !m.w.dict.EncoderStart(m.id) {
		lfrfid.Debugf("emulate: %s has no encoder", m.w.dict.Name(m.id))
		return
	}
	if err := m.emitter.prefill(m.src); err != nil {
		lfrfid.Debugf("emulate: %s: %v", m.w.dict.Name(m.id), err)
		return
	}
	if err := m.w.frontend.StartEmulate(lfrfid.DefaultEmulateConfig(), m.emitter.buf, m.emitter.onHalf); err != nil {
		lfrfid.Debugf("emulate: start: %v", err)
		return
	}
	m.running = true
	lfrfid.Debugf("emulate: %s %s", m.w.dict.Name(m.id), m.w.dict.RenderBrief(m.id))
}

func (m *emulateMode) tick() {
	if !m.running {
		return
	}
	if err := m.emitter.topUp(m.src); err != nil {
		lfrfid.Debugf("emulate: refill: %v", err)
	}
}

func (m *emulateMode) stop() {
	if !m.running {
		return
	}
	if err := m.w.frontend.StopEmulate(); err != nil {
		lfrfid.Debugf("emulate: stop: %v", err)
	}
	m.running = false
	if n := m.emitter.underruns.Load(); n > 0 {
		lfrfid.Debugf("emulate: %d underruns", n)
	}
}
