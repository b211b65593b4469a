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

package hitag

import (
	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

// State is the emulated tag's place in the reader dialogue.
type State int

const (
	StateIdle State = iota
	StateSelected
	StateQuiet
)

func (s State) String() string {
	switch s {
	case StateSelected:
		return "selected"
	case StateQuiet:
		return "quiet"
	default:
		return "idle"
	}
}

// Mode is the reply framing the reader asked for.
type Mode int

const (
	ModeBasic Mode = iota
	ModeAdvanced
)

func (m Mode) String() string {
	if m == ModeAdvanced {
		return "advanced"
	}
	return "basic"
}

// Start bits in front of each reply.
const (
	acStartBasic    = 1
	acStartAdvanced = 3
	mcStartBasic    = 1
	mcStartAdvanced = 6
)

var (
	haltAckBasic    = []bool{true, false, true}
	haltAckAdvanced = []bool{true, true, true, true, true, true, false, true}
)

// Emulator answers reader commands on behalf of a tag image. Writes are
// acknowledged by silence and never change the image.
type Emulator struct {
	tag   *Tag
	state State
	mode  Mode
}

// NewEmulator returns a powered up emulator for tag.
func NewEmulator(tag *Tag) *Emulator {
	return &Emulator{tag: tag}
}

// Reset returns to the power-on state.
func (e *Emulator) Reset() {
	e.state = StateIdle
	e.mode = ModeBasic
}

// State returns the current dialogue state.
func (e *Emulator) State() State { return e.state }

// Mode returns the current reply framing.
func (e *Emulator) Mode() Mode { return e.mode }

// Tag returns the emulated image.
func (e *Emulator) Tag() *Tag { return e.tag }

// Handle processes one command and returns the reply, if any.
func (e *Emulator) Handle(cmd Command) (Reply, bool) {
	lfrfid.Debugf("hitag: %s in %s/%s", cmd, e.state, e.mode)

	switch cmd.Kind {
	case CmdSetCC, CmdSetCCNew:
		if e.state == StateQuiet {
			return Reply{}, false
		}
		e.state = StateIdle
		start := acStartBasic
		if cmd.Kind == CmdSetCCNew {
			e.mode = ModeAdvanced
			start = acStartAdvanced
		}
		uid := e.tag.Data[uidPage]
		return newReply(AntiCollision, start, uid[:]...), true

	case CmdSelect:
		if cmd.UID != e.tag.UID() {
			return Reply{}, false
		}
		e.state = StateSelected
		cfg := e.tag.Data[configPage]
		return e.pageReply(cfg[:]), true

	case CmdReadPage, CmdReadBlock:
		if e.state != StateSelected {
			return Reply{}, false
		}
		data, ok := e.readPages(cmd)
		if !ok {
			return Reply{}, false
		}
		return e.pageReply(data), true

	case CmdHalt:
		if e.state != StateSelected {
			return Reply{}, false
		}
		e.state = StateQuiet
		ack := haltAckBasic
		if e.mode == ModeAdvanced {
			ack = haltAckAdvanced
		}
		return Reply{Coding: Manchester, Bits: append([]bool(nil), ack...)}, true
	}
	return Reply{}, false
}

// blockLen is the number of pages a block read starting at page returns.
func blockLen(page int) int {
	if n := (Pages - page) % BlockPages; n != 0 {
		return n
	}
	return BlockPages
}

func (e *Emulator) readPages(cmd Command) ([]byte, bool) {
	first := int(cmd.Page)
	if first >= Pages {
		return nil, false
	}
	n := 1
	if cmd.Kind == CmdReadBlock {
		n = blockLen(first)
	}
	data := make([]byte, 0, n*PageBytes)
	for p := first; p < first+n; p++ {
		if !e.tag.Known[p] || !e.tag.Public(p) {
			return nil, false
		}
		data = append(data, e.tag.Data[p][:]...)
	}
	return data, true
}

func (e *Emulator) pageReply(data []byte) Reply {
	if e.mode == ModeAdvanced {
		r := newReply(Manchester, mcStartAdvanced, data...)
		r.Bits = appendByte(r.Bits, CRC8(r.Bits[mcStartAdvanced:]))
		return r
	}
	return newReply(Manchester, mcStartBasic, data...)
}
