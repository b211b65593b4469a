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

package protocols

import (
	"encoding/binary"
	"fmt"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/manchester"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Radio Key SecuraKey: Manchester at RF/40. A 20 bit preamble (0, eighteen 1s, 0),
// eight bytes each followed by a 0 spacer and a nibble XOR checksum.
const (
	securakeyDataSize     = 5
	securakeyFrameBits    = 96
	securakeyPreamble     = 0x7FFFE
	securakeyPreambleBits = 20
	securakeyGroupBits    = 9
	securakeyPayloadBits  = 72
	securakeyBytes        = 8
	securakeyBitClocks    = 40
	securakeyShort        = securakeyBitClocks / 2 * lfrfid.UsPerClock
	securakeyJitter       = 40
)

type securakey struct {
	encoder *waveform.Encoder
	win     window
	data    [securakeyDataSize]byte
	frame   [securakeyFrameBits / 8]byte
	scratch [securakeyFrameBits / 8]byte
	state   manchester.State
}

func newSecurakey() *securakey {
	return &securakey{
		encoder: waveform.New(waveform.Manchester, securakeyBitClocks),
		win:     newWindow(securakeyFrameBits),
		state:   manchester.StateMid1,
	}
}

func (p *securakey) Data() []byte { return p.data[:] }

func (p *securakey) DecoderStart() { p.DecoderReset() }

func (p *securakey) DecoderReset() {
	p.win.reset()
	p.state = manchester.StateMid1
}

func (p *securakey) DecoderIdle() bool { return p.win.empty() }

func (p *securakey) DecoderFeed(level bool, duration uint32) bool {
	ev := manchester.Classify(level, duration, securakeyShort, 2*securakeyShort, securakeyJitter)
	if ev == manchester.EventReset {
		p.DecoderReset()
		return false
	}
	next, bit, ok := manchester.Advance(p.state, ev)
	p.state = next
	if !ok {
		return false
	}
	p.win.push(bit)
	return p.win.full() && p.tryDecode()
}

func nibbleXOR(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v>>4 ^ v&0xF
	}
	return x
}

func securakeyLengthValid(n byte) bool {
	return n == 26 || n == 32
}

func (p *securakey) tryDecode() bool {
	buf := p.win.buf
	if bitlib.GetBits32(buf, 0, securakeyPreambleBits) != securakeyPreamble {
		return false
	}
	if !bitlib.TestParity(buf, securakeyPreambleBits, securakeyPayloadBits, bitlib.ParityAlways0, securakeyGroupBits) {
		return false
	}
	copy(p.scratch[:], buf)
	bitlib.RemoveBitEveryNth(p.scratch[:], securakeyPreambleBits, securakeyPayloadBits, securakeyGroupBits)

	var payload [securakeyBytes]byte
	for i := range payload {
		payload[i] = bitlib.GetBits(p.scratch[:], securakeyPreambleBits+8*i, 8)
	}
	checksum := bitlib.GetBits(buf, securakeyPreambleBits+securakeyPayloadBits, 4)
	if nibbleXOR(payload[:]) != checksum {
		return false
	}
	if !securakeyLengthValid(payload[0]) {
		return false
	}
	copy(p.data[:], payload[:securakeyDataSize])
	return true
}

func (p *securakey) EncoderStart() bool {
	if !securakeyLengthValid(p.data[0]) {
		p.data[0] = 26
	}
	var payload [securakeyBytes]byte
	copy(payload[:], p.data[:])

	clear(p.frame[:])
	bitlib.SetBits(p.frame[:], 0, securakeyPreamble, securakeyPreambleBits)
	pos := securakeyPreambleBits
	for _, b := range payload {
		bitlib.SetBits(p.frame[:], pos, uint64(b), 8)
		pos += securakeyGroupBits
	}
	bitlib.SetBits(p.frame[:], pos, uint64(nibbleXOR(payload[:])), 4)
	p.encoder.Reset(p.frame[:], securakeyFrameBits)
	return true
}

func (p *securakey) EncoderYield() lfrfid.LevelDuration { return p.encoder.Yield() }

func (p *securakey) EncoderReset() { p.encoder.Reset(p.frame[:], securakeyFrameBits) }

func (p *securakey) RenderData() string {
	return fmt.Sprintf("%d bit\nFC: %d\nCard: %d", p.data[0],
		binary.BigEndian.Uint16(p.data[1:3]), binary.BigEndian.Uint16(p.data[3:5]))
}

func (p *securakey) RenderBrief() string {
	return fmt.Sprintf("FC: %d, Card: %d",
		binary.BigEndian.Uint16(p.data[1:3]), binary.BigEndian.Uint16(p.data[3:5]))
}

func (p *securakey) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	req.T5577.Blocks[0] = t5577.ModulationManchester | t5577.BitrateRF40 | 3<<t5577.MaxBlockShift
	bitsToWords(req, p.frame[:], securakeyFrameBits)
	return true
}

// SecurakeyBase is Radio Key SecuraKey.
var SecurakeyBase = Base{
	Name:          "Securakey",
	Manufacturer:  "Radio Key",
	DataSize:      securakeyDataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newSecurakey() },
}
