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
	"context"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/protocols"
)

type verifyOutcome int

const (
	verifyNothing verifyOutcome = iota
	verifyMatch
	verifyOther
)

type writeMode struct {
	w        *Worker
	cb       WriteCallback
	req      protocols.WriteRequest
	target   []byte
	id       protocols.ProtocolID
	attempts int
	other    bool
	done     bool
}

func newWriteMode(w *Worker, id protocols.ProtocolID, cb WriteCallback) *writeMode {
	return &writeMode{w: w, id: id, cb: cb}
}

func (*writeMode) kind() Mode { return ModeWrite }

// the tick blocks for one write and verify round
func (m *writeMode) quant() time.Duration { return time.Millisecond }

func (m *writeMode) finish(result WriteResult) {
	m.done = true
	lfrfid.Debugf("write: %s after %d attempts", result, m.attempts)
	if m.cb != nil {
		m.w.dispatch(func() { m.cb(result) })
	}
}

func (m *writeMode) start() {
	m.req = protocols.WriteRequest{Type: protocols.WriteTypeT5577}
	if !m.w.dict.WriteData(m.id, &m.req) {
		m.finish(WriteProtocolCannotBeWritten)
		return
	}
	m.target = m.w.dict.Data(m.id)
}

func (m *writeMode) tick() {
	if m.done {
		return
	}
	m.attempts++
	m.w.writeAttempts.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), m.w.config.VerifyTimeout)
	err := m.w.frontend.WriteT5577(ctx, &m.req.T5577)
	cancel()
	if err != nil {
		lfrfid.Debugf("write: attempt %d: %v", m.attempts, err)
	} else {
		switch m.verify() {
		case verifyMatch:
			m.finish(WriteOK)
			return
		case verifyOther:
			m.other = true
		case verifyNothing:
		}
	}

	if m.attempts >= m.w.config.WriteAttempts {
		if m.other {
			m.finish(WriteFobCannotBeWritten)
		} else {
			m.finish(WriteTooLongToWrite)
		}
	}
}

// verify reads the tag back and compares it with the written record. The dictionary
// record of id is restored afterwards whatever was read.
func (m *writeMode) verify() verifyOutcome {
	feature := m.w.dict.Features(m.id)
	if feature&lfrfid.FeatureASK != 0 {
		feature = lfrfid.FeatureASK
	}
	dec := newEdgeDecoder(m.w.dict, feature)
	dec.reset(feature)
	validator := newReadValidator(m.w.dict.MaxDataSize())
	m.w.edges.drain()

	if err := m.w.frontend.StartCapture(captureConfig(feature), m.w.edges.push); err != nil {
		lfrfid.Debugf("write: verify capture: %v", err)
		return verifyNothing
	}
	defer func() {
		if err := m.w.frontend.StopCapture(); err != nil {
			lfrfid.Debugf("write: stop verify capture: %v", err)
		}
		m.w.edges.drain()
		m.w.dict.DecodersStart()
		_ = m.w.dict.SetData(m.id, m.target)
	}()

	outcome := verifyNothing
	timer := time.NewTimer(m.w.config.VerifyTimeout)
	defer timer.Stop()
	for {
		select {
		case ld := <-m.w.edges.ch:
			id := dec.feed(ld)
			if id == protocols.ProtocolNo {
				continue
			}
			data := m.w.dict.Data(id)
			if !validator.feed(id, data, m.w.dict.ValidateCount(id)) {
				continue
			}
			if id == m.id && bytes.Equal(data, m.target) {
				return verifyMatch
			}
			outcome = verifyOther
		case <-timer.C:
			return outcome
		}
	}
}

func (m *writeMode) stop() {}
