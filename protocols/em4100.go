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
	"github.com/ZaparooProject/go-lfrfid/internal/manchester"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

const (
	em4100DataSize  = 5
	em4100FrameBits = 64
	em4100Header    = 0x1FF
)

// em4100 is an EM4100 (EM Marin) card at a fixed data rate.
type em4100 struct {
	encoder  *waveform.Encoder
	data     [em4100DataSize]byte
	frame    [8]byte
	encoded  uint64
	bits     int
	clocks   uint32
	short    uint32
	jitter   uint32
	state    manchester.State
	t5577bit uint32
}

func newEM4100(clocks, jitter, bitrate uint32) *em4100 {
	return &em4100{
		clocks:   clocks,
		short:    lfrfid.ClocksToUs(clocks / 2),
		jitter:   jitter,
		t5577bit: bitrate,
		state:    manchester.StateMid1,
		encoder:  waveform.New(waveform.Manchester, clocks),
	}
}

func (p *em4100) Data() []byte { return p.data[:] }

func (p *em4100) DecoderStart() {
	p.DecoderReset()
}

func (p *em4100) DecoderReset() {
	p.encoded = 0
	p.bits = 0
	p.state = manchester.StateMid1
}

func (p *em4100) DecoderIdle() bool {
	return p.bits == 0
}

func (p *em4100) DecoderFeed(level bool, duration uint32) bool {
	ev := manchester.Classify(level, duration, p.short, 2*p.short, p.jitter)
	if ev == manchester.EventReset {
		p.DecoderReset()
		return false
	}
	next, bit, ok := manchester.Advance(p.state, ev)
	p.state = next
	if !ok {
		return false
	}
	p.encoded <<= 1
	if bit {
		p.encoded |= 1
	}
	if p.bits < em4100FrameBits {
		p.bits++
	}
	if p.bits < em4100FrameBits || !em4100Valid(p.encoded) {
		return false
	}
	em4100Decode(p.encoded, p.data[:])
	return true
}

// em4100Valid checks header, row parity, column parity and stop bit.
func em4100Valid(frame uint64) bool {
	if frame>>55 != em4100Header {
		return false
	}
	if frame&1 != 0 {
		return false
	}
	var column uint64
	for row := 0; row < 10; row++ {
		v := frame >> uint(50-5*row) & 0x1F
		if !evenOnes(v) {
			return false
		}
		column ^= v >> 1
	}
	return column^(frame>>1&0xF) == 0
}

func evenOnes(v uint64) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

func em4100Decode(frame uint64, data []byte) {
	for i := 0; i < em4100DataSize; i++ {
		hi := frame >> uint(50-5*(2*i)) >> 1 & 0xF
		lo := frame >> uint(50-5*(2*i+1)) >> 1 & 0xF
		data[i] = byte(hi<<4 | lo)
	}
}

func em4100Encode(data []byte) uint64 {
	frame := uint64(em4100Header) << 55
	var column uint64
	for row := 0; row < 10; row++ {
		nibble := uint64(data[row/2])
		if row%2 == 0 {
			nibble >>= 4
		}
		nibble &= 0xF
		v := nibble << 1
		if !evenOnes(nibble) {
			v |= 1
		}
		frame |= v << uint(50-5*row)
		column ^= nibble
	}
	frame |= column << 1
	return frame
}

func (p *em4100) EncoderStart() bool {
	binary.BigEndian.PutUint64(p.frame[:], em4100Encode(p.data[:]))
	p.encoder.Reset(p.frame[:], em4100FrameBits)
	return true
}

func (p *em4100) EncoderYield() lfrfid.LevelDuration {
	return p.encoder.Yield()
}

func (p *em4100) EncoderReset() {
	p.encoder.Reset(p.frame[:], em4100FrameBits)
}

func (p *em4100) facility() uint8 {
	return p.data[2]
}

func (p *em4100) card() uint16 {
	return binary.BigEndian.Uint16(p.data[3:5])
}

func (p *em4100) RenderData() string {
	return fmt.Sprintf("FC: %03d, Card: %05d (RF/%d)", p.facility(), p.card(), p.clocks)
}

func (p *em4100) RenderBrief() string {
	return fmt.Sprintf("FC: %03d, Card: %05d", p.facility(), p.card())
}

func (p *em4100) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	req.T5577.Blocks[0] = t5577.ModulationManchester | p.t5577bit | 2<<t5577.MaxBlockShift
	bitsToWords(req, p.frame[:], em4100FrameBits)
	return true
}

// EM4100Base is EM4100 at RF/64.
var EM4100Base = Base{
	Name:          "EM4100",
	Manufacturer:  "EM-Micro",
	DataSize:      em4100DataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newEM4100(64, 100, t5577.BitrateRF64) },
}

// EM4100RF32Base is EM4100 at RF/32.
var EM4100RF32Base = Base{
	Name:          "EM4100/32",
	Manufacturer:  "EM-Micro",
	DataSize:      em4100DataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newEM4100(32, 50, t5577.BitrateRF32) },
}

// EM4100RF16Base is EM4100 at RF/16.
var EM4100RF16Base = Base{
	Name:          "EM4100/16",
	Manufacturer:  "EM-Micro",
	DataSize:      em4100DataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newEM4100(16, 25, t5577.BitrateRF16) },
}
