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
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/fsk"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

const (
	h10301DataSize    = 3
	h10301FrameBits   = 96
	h10301WindowBits  = 104
	h10301Preamble    = 0x1D
	h10301PairedBits  = 44
	h10301MaxRunBits  = 8
	h10301BitClocks   = 50
	h10301WordPattern = uint64(1)<<37 | uint64(1)<<26
)

// h10301 is the HID 26 bit Wiegand format carried over FSK.
type h10301 struct {
	demod   *fsk.Demod
	encoder *waveform.Encoder
	win     window
	data    [h10301DataSize]byte
	frame   [h10301FrameBits / 8]byte
}

func newH10301() *h10301 {
	return &h10301{
		demod: fsk.NewDemod(fsk.Config{
			Mid:        72,
			Min:        48,
			Max:        96,
			BitTime:    lfrfid.ClocksToUs(h10301BitClocks),
			ShortValue: true,
		}),
		encoder: waveform.New(waveform.FSK2a, h10301BitClocks),
		win:     newWindow(h10301WindowBits),
	}
}

func (p *h10301) Data() []byte { return p.data[:] }

func (p *h10301) DecoderStart() {
	p.DecoderReset()
}

func (p *h10301) DecoderReset() {
	p.demod.Reset()
	p.win.reset()
}

func (p *h10301) DecoderIdle() bool {
	return p.win.empty()
}

func (p *h10301) DecoderFeed(level bool, duration uint32) bool {
	value, count := p.demod.Feed(level, duration)
	if count == 0 {
		return false
	}
	if count > h10301MaxRunBits {
		p.DecoderReset()
		return false
	}
	for i := 0; i < count; i++ {
		p.win.push(value)
		if p.win.full() && p.tryDecode() {
			return true
		}
	}
	return false
}

// wiegand26 builds a 26 bit Wiegand word: even parity, 8 bit FC, 16 bit card, odd parity.
func wiegand26(fc uint8, card uint16) uint32 {
	w := uint32(fc)<<17 | uint32(card)<<1
	if bitlib.CountOnes(uint64(w>>13&0xFFF))%2 == 1 {
		w |= 1 << 25
	}
	if bitlib.CountOnes(uint64(w>>1&0xFFF))%2 == 0 {
		w |= 1
	}
	return w
}

func wiegand26Valid(w uint32) bool {
	return bitlib.CountOnes(uint64(w>>13&0x1FFF))%2 == 0 &&
		bitlib.CountOnes(uint64(w&0x1FFF))%2 == 1
}

func (p *h10301) tryDecode() bool {
	buf := p.win.buf
	if bitlib.GetBits(buf, 0, 8) != h10301Preamble || bitlib.GetBits(buf, h10301FrameBits, 8) != h10301Preamble {
		return false
	}
	var word uint64
	for i := 0; i < h10301PairedBits; i++ {
		switch bitlib.GetBits(buf, 8+2*i, 2) {
		case 0b10:
			word = word<<1 | 1
		case 0b01:
			word <<= 1
		default:
			return false
		}
	}
	if word&^0x3FFFFFF != h10301WordPattern {
		return false
	}
	w26 := uint32(word & 0x3FFFFFF)
	if !wiegand26Valid(w26) {
		return false
	}
	p.data[0] = byte(w26 >> 17)
	p.data[1] = byte(w26 >> 9)
	p.data[2] = byte(w26 >> 1)
	return true
}

func (p *h10301) EncoderStart() bool {
	card := uint16(p.data[1])<<8 | uint16(p.data[2])
	word := h10301WordPattern | uint64(wiegand26(p.data[0], card))

	clear(p.frame[:])
	bitlib.SetBits(p.frame[:], 0, h10301Preamble, 8)
	for i := 0; i < h10301PairedBits; i++ {
		if word>>uint(h10301PairedBits-1-i)&1 == 1 {
			bitlib.SetBits(p.frame[:], 8+2*i, 0b10, 2)
		} else {
			bitlib.SetBits(p.frame[:], 8+2*i, 0b01, 2)
		}
	}
	p.encoder.Reset(p.frame[:], h10301FrameBits)
	return true
}

func (p *h10301) EncoderYield() lfrfid.LevelDuration {
	return p.encoder.Yield()
}

func (p *h10301) EncoderReset() {
	p.encoder.Reset(p.frame[:], h10301FrameBits)
}

func (p *h10301) card() uint16 {
	return uint16(p.data[1])<<8 | uint16(p.data[2])
}

func (p *h10301) RenderData() string {
	return fmt.Sprintf("FC: %d\nCard: %d", p.data[0], p.card())
}

func (p *h10301) RenderBrief() string {
	return fmt.Sprintf("FC: %d, Card: %d", p.data[0], p.card())
}

func (p *h10301) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	req.T5577.Blocks[0] = t5577.ModulationFSK2a | t5577.BitrateRF50 | 3<<t5577.MaxBlockShift
	bitsToWords(req, p.frame[:], h10301FrameBits)
	return true
}

// H10301Base is HID H10301 (26 bit).
var H10301Base = Base{
	Name:          "H10301",
	Manufacturer:  "HID",
	DataSize:      h10301DataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newH10301() },
}
