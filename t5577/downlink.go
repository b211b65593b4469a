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

package t5577

// Command is one downlink command as a tag receives it
type Command struct {
	Data   uint32
	Opcode uint8
	Block  uint8
	Lock   bool
	// Bits is the number of bits received after the start gap
	Bits int
}

// IsWrite reports a complete page 0 block write
func (c Command) IsWrite() bool {
	return c.Opcode == opcodePage0 && c.Bits == writeBits
}

// IsReset reports a reset command
func (c Command) IsReset() bool {
	return c.Opcode == opcodeReset && c.Bits == 2
}

// opcode(2) + lock(1) + data(32) + address(3)
const writeBits = 38

// gap thresholds halfway between the nominal lengths
const (
	startGapMin = (TimingStartGap + TimingWriteGap) / 2
	data1Min    = (TimingData0 + TimingData1) / 2
)

// Receiver decodes a carrier on/off sequence into commands the way the tag's
// field detector does: a long gap opens a command, each short gap closes one bit
// whose value is given by the carrier time before it.
type Receiver struct {
	commands []Command
	bits     []bool
	on       uint32
	open     bool
}

// Feed consumes one step of the downlink.
func (r *Receiver) Feed(s Step) {
	if s.CarrierOn {
		r.on += s.Clocks
		return
	}
	on := r.on
	r.on = 0
	if s.Clocks >= startGapMin {
		r.flush()
		r.open = true
		return
	}
	if r.open {
		r.bits = append(r.bits, on >= data1Min)
	}
}

// Finish closes the command in progress and returns every command received.
func (r *Receiver) Finish() []Command {
	r.flush()
	out := r.commands
	r.commands = nil
	return out
}

func (r *Receiver) flush() {
	if !r.open || len(r.bits) < 2 {
		r.bits = r.bits[:0]
		return
	}
	c := Command{Bits: len(r.bits)}
	c.Opcode = field[uint8](r.bits[0:2])
	if len(r.bits) == writeBits {
		c.Lock = r.bits[2]
		c.Data = field[uint32](r.bits[3:35])
		c.Block = field[uint8](r.bits[35:38])
	}
	r.commands = append(r.commands, c)
	r.bits = r.bits[:0]
	r.open = false
}

func field[T uint8 | uint32](bits []bool) T {
	var v T
	for _, b := range bits {
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v
}

// Decode runs steps through a fresh receiver.
func Decode(steps []Step) []Command {
	var r Receiver
	for _, s := range steps {
		r.Feed(s)
	}
	return r.Finish()
}
