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
	"fmt"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/biphase"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Guardall G-Prox II: bi-phase at RF/64, a six bit preamble and 18 nibbles each followed
// by an even parity bit. The first byte is an XOR key applied to the eight that follow.
const (
	gproxDataSize     = 9
	gproxFrameBits    = 96
	gproxWindowBits   = 104
	gproxPreamble     = 0b111110
	gproxPreambleBits = 6
	gproxGroupBits    = 5
	gproxPayloadBits  = 90
	gproxBitClocks    = 64
	gproxShort        = gproxBitClocks / 2 * lfrfid.UsPerClock
	gproxLong         = gproxBitClocks * lfrfid.UsPerClock
	gproxJitter       = 80
)

type gproxii struct {
	encoder *waveform.Encoder
	win     window
	sym     biphase.Decoder
	data    [gproxDataSize]byte
	frame   [gproxFrameBits / 8]byte
	scratch [gproxWindowBits / 8]byte
}

func newGProxII() *gproxii {
	return &gproxii{
		encoder: waveform.New(waveform.Biphase, gproxBitClocks),
		win:     newWindow(gproxWindowBits),
		sym:     biphase.Decoder{MidOnOne: true},
	}
}

func (p *gproxii) Data() []byte { return p.data[:] }

func (p *gproxii) DecoderStart() { p.DecoderReset() }

func (p *gproxii) DecoderReset() {
	p.win.reset()
	p.sym.Reset()
}

func (p *gproxii) DecoderIdle() bool { return p.win.empty() }

func (p *gproxii) DecoderFeed(_ bool, duration uint32) bool {
	pulse := biphase.Classify(duration, gproxShort, gproxLong, gproxJitter)
	if pulse == biphase.PulseInvalid {
		p.DecoderReset()
		return false
	}
	bit, ok := p.sym.Feed(pulse)
	if !ok {
		return false
	}
	p.win.push(bit)
	return p.win.full() && p.tryDecode()
}

// gproxDecrypt returns the payload bytes with the key removed.
func gproxDecrypt(data []byte) [gproxDataSize - 1]byte {
	var out [gproxDataSize - 1]byte
	for i := range out {
		out[i] = data[i+1] ^ data[0]
	}
	return out
}

// gproxFormat returns the Wiegand length the card announces.
func gproxFormat(plain [gproxDataSize - 1]byte) int {
	return int(plain[0] >> 2)
}

func (p *gproxii) tryDecode() bool {
	buf := p.win.buf
	if bitlib.GetBits(buf, 0, gproxPreambleBits) != gproxPreamble ||
		bitlib.GetBits(buf, gproxFrameBits, gproxPreambleBits) != gproxPreamble {
		return false
	}
	if !bitlib.TestParity(buf, gproxPreambleBits, gproxPayloadBits, bitlib.ParityEven, gproxGroupBits) {
		return false
	}
	copy(p.scratch[:], buf)
	bitlib.RemoveBitEveryNth(p.scratch[:], gproxPreambleBits, gproxPayloadBits, gproxGroupBits)

	var candidate [gproxDataSize]byte
	for i := range candidate {
		candidate[i] = bitlib.GetBits(p.scratch[:], gproxPreambleBits+8*i, 8)
	}
	if !gproxFormatValid(gproxFormat(gproxDecrypt(candidate[:]))) {
		return false
	}
	p.data = candidate
	return true
}

// gproxFormatValid reports whether the decoder accepts the announced length.
func gproxFormatValid(format int) bool {
	return format == 26 || format == 36
}

func (p *gproxii) EncoderStart() bool {
	// an unknown format would produce a frame no reader accepts
	if plain := gproxDecrypt(p.data[:]); !gproxFormatValid(gproxFormat(plain)) {
		p.data[1] = (26<<2 | plain[0]&0x3) ^ p.data[0]
	}

	clear(p.frame[:])
	bitlib.SetBits(p.frame[:], 0, gproxPreamble, gproxPreambleBits)
	pos := gproxPreambleBits
	for _, b := range p.data {
		for _, nibble := range []byte{b >> 4, b & 0xF} {
			bitlib.SetBits(p.frame[:], pos, uint64(nibble), 4)
			bitlib.SetBit(p.frame[:], pos+4, bitlib.CountOnes(uint64(nibble))%2 == 1)
			pos += gproxGroupBits
		}
	}
	p.encoder.Reset(p.frame[:], gproxFrameBits)
	return true
}

func (p *gproxii) EncoderYield() lfrfid.LevelDuration { return p.encoder.Yield() }

func (p *gproxii) EncoderReset() { p.encoder.Reset(p.frame[:], gproxFrameBits) }

// credential extracts the facility code and card number of the decrypted payload.
func (p *gproxii) credential() (format int, fc, card uint32) {
	plain := gproxDecrypt(p.data[:])
	format = gproxFormat(plain)
	switch format {
	case 26:
		fc = bitlib.GetBits32(plain[:], 8, 8)
		card = bitlib.GetBits32(plain[:], 16, 16)
	case 36:
		fc = bitlib.GetBits32(plain[:], 8, 16)
		card = bitlib.GetBits32(plain[:], 24, 16)
	}
	return format, fc, card
}

func (p *gproxii) RenderData() string {
	format, fc, card := p.credential()
	return fmt.Sprintf("Format: %d bit\nFC: %d\nCard: %d\nKey: %02X", format, fc, card, p.data[0])
}

func (p *gproxii) RenderBrief() string {
	format, fc, card := p.credential()
	return fmt.Sprintf("%d bit, FC: %d, Card: %d", format, fc, card)
}

func (p *gproxii) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	req.T5577.Blocks[0] = t5577.ModulationBiphase | t5577.BitrateRF64 | 3<<t5577.MaxBlockShift
	bitsToWords(req, p.frame[:], gproxFrameBits)
	return true
}

// GProxIIBase is Guardall G-Prox II.
var GProxIIBase = Base{
	Name:          "GProxII",
	Manufacturer:  "Guardall",
	DataSize:      gproxDataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newGProxII() },
}
