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
	"bytes"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/psk"
	"github.com/ZaparooProject/go-lfrfid/protocols"
)

// readValidator confirms a read once the same protocol decoded the same bytes
// ValidateCount times in a row.
type readValidator struct {
	data  []byte
	id    protocols.ProtocolID
	count int
}

func newReadValidator(maxDataSize int) *readValidator {
	return &readValidator{data: make([]byte, 0, maxDataSize), id: protocols.ProtocolNo}
}

// feed records one decode and reports whether it completed a confirmation.
func (v *readValidator) feed(id protocols.ProtocolID, data []byte, need int) bool {
	if id == v.id && bytes.Equal(data, v.data) {
		v.count++
	} else {
		v.id = id
		v.data = append(v.data[:0], data...)
		v.count = 1
	}
	return v.count >= need
}

func (v *readValidator) reset() {
	v.id = protocols.ProtocolNo
	v.data = v.data[:0]
	v.count = 0
}

// edgeDecoder runs captured edges through the demodulation path of one capture
// configuration and into the dictionary.
type edgeDecoder struct {
	dict    *protocols.Dict
	demod   *psk.Demod
	feature lfrfid.Feature
}

func newEdgeDecoder(dict *protocols.Dict, feature lfrfid.Feature) *edgeDecoder {
	return &edgeDecoder{
		dict:    dict,
		feature: feature,
		demod:   psk.NewDemod(lfrfid.UsPerClock),
	}
}

func (d *edgeDecoder) reset(feature lfrfid.Feature) {
	d.feature = feature
	d.demod.Reset()
	d.dict.DecodersStart()
}

func (d *edgeDecoder) feed(ld lfrfid.LevelDuration) protocols.ProtocolID {
	if d.feature == lfrfid.FeaturePSK {
		level, run, ok := d.demod.Feed(ld.Duration)
		if !ok {
			return protocols.ProtocolNo
		}
		ld = lfrfid.LevelDuration{Level: level, Duration: run}
	}
	return d.dict.DecodersFeedByFeature(d.feature, ld.Level, ld.Duration)
}

func captureConfig(feature lfrfid.Feature) lfrfid.CaptureConfig {
	if feature == lfrfid.FeaturePSK {
		return lfrfid.PSKCapture()
	}
	return lfrfid.ASKCapture()
}

type readMode struct {
	w           *Worker
	cb          ReadCallback
	decoder     *edgeDecoder
	validator   *readValidator
	lastSwitch  time.Time
	lastEdge    time.Time
	lastFrame   time.Time
	readType    ReadType
	capturing   bool
	sensing     bool
	cardPresent bool
	done        bool
}

func newReadMode(w *Worker, readType ReadType, cb ReadCallback) *readMode {
	return &readMode{
		w:         w,
		cb:        cb,
		readType:  readType,
		decoder:   newEdgeDecoder(w.dict, lfrfid.FeatureASK),
		validator: newReadValidator(w.dict.MaxDataSize()),
	}
}

func (*readMode) kind() Mode { return ModeRead }

func (m *readMode) quant() time.Duration { return m.w.config.ReadQuant }

func (m *readMode) report(result ReadResult, id protocols.ProtocolID) {
	if m.cb != nil {
		m.w.dispatch(func() { m.cb(result, id) })
	}
}

func (m *readMode) start() {
	feature := lfrfid.FeatureASK
	if m.readType == ReadPSKOnly {
		feature = lfrfid.FeaturePSK
	}
	m.startCapture(feature)
}

func (m *readMode) startCapture(feature lfrfid.Feature) {
	m.decoder.reset(feature)
	m.validator.reset()
	m.w.edges.drain()
	m.lastSwitch = time.Now()

	if err := m.w.frontend.StartCapture(captureConfig(feature), m.w.edges.push); err != nil {
		lfrfid.Debugf("read: start %s capture: %v", feature, err)
		m.capturing = false
		return
	}
	m.capturing = true
	if feature == lfrfid.FeaturePSK {
		m.report(ReadStartPSK, protocols.ProtocolNo)
	} else {
		m.report(ReadStartASK, protocols.ProtocolNo)
	}
}

func (m *readMode) stopCapture() {
	if !m.capturing {
		return
	}
	if err := m.w.frontend.StopCapture(); err != nil {
		lfrfid.Debugf("read: stop capture: %v", err)
	}
	m.capturing = false
	m.w.edges.drain()
	m.w.dict.DecodersStart()
}

func (m *readMode) stop() {
	m.stopCapture()
}

func (m *readMode) tick() {
	if m.done {
		return
	}
	now := time.Now()
	edges := 0

	// only what is queued now; the producer keeps running
	for n := len(m.w.edges.ch); n > 0; n-- {
		ld := <-m.w.edges.ch
		if edges == 0 {
			m.senseEdge(now)
		}
		edges++
		id := m.decoder.feed(ld)
		if id == protocols.ProtocolNo {
			continue
		}
		m.lastFrame = now
		if !m.cardPresent {
			m.cardPresent = true
			m.report(ReadSenseCardStart, protocols.ProtocolNo)
		}
		data := m.w.dict.Data(id)
		lfrfid.Debugf("read: %s %X", m.w.dict.Name(id), data)
		if !m.validator.feed(id, data, m.w.dict.ValidateCount(id)) {
			continue
		}
		m.w.cardsRead.Add(1)
		m.report(ReadDone, id)
		if !m.w.config.ContinuousRead {
			m.done = true
			m.stopCapture()
			return
		}
		m.validator.reset()
		m.decoder.reset(m.decoder.feature)
	}

	m.updateSense(now, edges)
	m.maybeSwitch(now)
}

// senseEdge marks field activity; the sense start precedes any card event of the tick.
func (m *readMode) senseEdge(now time.Time) {
	m.lastEdge = now
	if !m.sensing {
		m.sensing = true
		m.report(ReadSenseStart, protocols.ProtocolNo)
	}
}

func (m *readMode) updateSense(now time.Time, edges int) {
	if edges > 0 {
		m.senseEdge(now)
	} else if m.sensing && now.Sub(m.lastEdge) > m.w.config.SenseTimeout {
		m.sensing = false
		m.report(ReadSenseEnd, protocols.ProtocolNo)
	}
	if m.cardPresent && now.Sub(m.lastFrame) > m.w.config.CardTimeout {
		m.cardPresent = false
		m.validator.reset()
		m.report(ReadSenseCardEnd, protocols.ProtocolNo)
	}
}

// maybeSwitch alternates the capture path of an auto read while no card is present.
func (m *readMode) maybeSwitch(now time.Time) {
	if m.readType != ReadAuto || m.cardPresent {
		return
	}
	if now.Sub(m.lastSwitch) < m.w.config.ReadSwitchInterval {
		return
	}
	next := lfrfid.FeaturePSK
	if m.decoder.feature == lfrfid.FeaturePSK {
		next = lfrfid.FeatureASK
	}
	m.stopCapture()
	m.startCapture(next)
}
