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
	"strings"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Indala cards are PSK1 at RF/32. Decoders are fed NRZ runs recovered by the PSK
// demodulator; the run level is relative so frames are checked in both polarities.
const (
	indalaBitClocks = 32
	indalaBitUs     = indalaBitClocks * lfrfid.UsPerClock
)

// indalaFrame describes the preamble placement of an Indala variant.
type indalaFrame struct {
	preamble     uint64
	preambleBits int
	frameBits    int
}

// match checks the preamble at the start of the window and again one frame later.
func (f indalaFrame) match(buf []byte, inverted bool) bool {
	want := f.preamble
	if inverted {
		want = ^want & (uint64(1)<<uint(f.preambleBits) - 1)
	}
	return bitlib.GetBits64(buf, 0, f.preambleBits) == want &&
		bitlib.GetBits64(buf, f.frameBits, f.preambleBits) == want
}

// indala holds the decode/encode machinery shared by both frame sizes.
type indala struct {
	encoder *waveform.Encoder
	win     window
	frame   []byte
	layout  indalaFrame
}

func newIndala(layout indalaFrame, windowBits int) indala {
	return indala{
		encoder: waveform.New(waveform.PSK1, indalaBitClocks),
		win:     newWindow(windowBits),
		frame:   make([]byte, layout.frameBits/8),
		layout:  layout,
	}
}

// feed pushes one NRZ run and returns the aligned frame when one is complete.
func (p *indala) feed(level bool, duration uint32) []byte {
	bits := int((duration + indalaBitUs/2) / indalaBitUs)
	if bits == 0 || bits > p.layout.frameBits {
		p.win.reset()
		return nil
	}
	for i := 0; i < bits; i++ {
		p.win.push(level)
		if !p.win.full() {
			continue
		}
		inverted := false
		switch {
		case p.layout.match(p.win.buf, false):
		case p.layout.match(p.win.buf, true):
			inverted = true
		default:
			continue
		}
		out := make([]byte, len(p.frame))
		copy(out, p.win.buf[:len(p.frame)])
		if inverted {
			for j := range out {
				out[j] = ^out[j]
			}
		}
		return out
	}
	return nil
}

func (p *indala) start() {
	p.encoder.Reset(p.frame, p.layout.frameBits)
}

func (p *indala) writeBlocks(req *WriteRequest, config uint32) {
	req.T5577.Blocks[0] = config
	bitsToWords(req, p.frame, p.layout.frameBits)
}

const (
	indala26DataSize = 4
	indala26Preamble = 0xA0000001
)

// indala26 is the 64 bit Motorola/HID Indala format carrying a 26 bit credential.
type indala26 struct {
	indala
	data [indala26DataSize]byte
}

func newIndala26() *indala26 {
	return &indala26{
		indala: newIndala(indalaFrame{preamble: indala26Preamble, preambleBits: 32, frameBits: 64}, 96),
	}
}

func (p *indala26) Data() []byte { return p.data[:] }

func (p *indala26) DecoderStart() { p.win.reset() }

func (p *indala26) DecoderReset() { p.win.reset() }

func (p *indala26) DecoderIdle() bool { return p.win.empty() }

func (p *indala26) DecoderFeed(level bool, duration uint32) bool {
	frame := p.feed(level, duration)
	if frame == nil {
		return false
	}
	copy(p.data[:], frame[4:8])
	return true
}

func (p *indala26) EncoderStart() bool {
	bitlib.SetBits(p.frame, 0, indala26Preamble, 32)
	copy(p.frame[4:8], p.data[:])
	p.start()
	return true
}

func (p *indala26) EncoderYield() lfrfid.LevelDuration { return p.encoder.Yield() }

func (p *indala26) EncoderReset() { p.start() }

// Facility and card bits are scattered over the frame; indexes are frame bit positions.
var (
	indala26FCBits   = []int{57, 49, 44, 47, 48, 53, 39, 58}
	indala26CardBits = []int{42, 45, 43, 40, 52, 36, 35, 51, 46, 33, 37, 54, 56, 59, 50, 41}
)

func (p *indala26) gather(positions []int) uint32 {
	var v uint32
	for _, pos := range positions {
		v <<= 1
		if bitlib.GetBit(p.data[:], pos-32) {
			v |= 1
		}
	}
	return v
}

func (p *indala26) facility() uint8 { return uint8(p.gather(indala26FCBits)) }

func (p *indala26) card() uint16 { return uint16(p.gather(indala26CardBits)) }

// checksumOK applies the two bit Indala checksum over the combined FC and card number.
func (p *indala26) checksumOK() bool {
	fcCard := uint32(p.facility())<<16 | uint32(p.card())
	sum := 0
	for _, bit := range []uint{14, 12, 9, 8, 6, 5, 2, 0} {
		sum += int(fcCard >> bit & 1)
	}
	checksum := 0
	if bitlib.GetBit(p.data[:], 62-32) {
		checksum |= 2
	}
	if bitlib.GetBit(p.data[:], 63-32) {
		checksum |= 1
	}
	if sum&1 == 1 {
		return checksum == 2
	}
	return checksum == 1
}

func (p *indala26) RenderData() string {
	status := "ok"
	if !p.checksumOK() {
		status = "invalid"
	}
	return fmt.Sprintf("FC: %d\nCard: %d\nChecksum: %s", p.facility(), p.card(), status)
}

func (p *indala26) RenderBrief() string {
	return fmt.Sprintf("FC: %d, Card: %d", p.facility(), p.card())
}

func (p *indala26) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	p.writeBlocks(req, t5577.ModulationPSK1|t5577.BitrateRF32|t5577.PSKCFRF2|2<<t5577.MaxBlockShift)
	return true
}

const (
	indala224DataSize  = 28
	indala224FrameBits = 224
	// 1, 28 zeros, 1
	indala224Preamble     = uint64(1)<<29 | 1
	indala224PreambleBits = 30
)

// indala224 is the long Indala format. The whole frame is stored.
type indala224 struct {
	indala
	data [indala224DataSize]byte
}

func newIndala224() *indala224 {
	return &indala224{
		indala: newIndala(indalaFrame{
			preamble:     indala224Preamble,
			preambleBits: indala224PreambleBits,
			frameBits:    indala224FrameBits,
		}, 256),
	}
}

func (p *indala224) Data() []byte { return p.data[:] }

func (p *indala224) DecoderStart() { p.win.reset() }

func (p *indala224) DecoderReset() { p.win.reset() }

func (p *indala224) DecoderIdle() bool { return p.win.empty() }

func (p *indala224) DecoderFeed(level bool, duration uint32) bool {
	frame := p.feed(level, duration)
	if frame == nil {
		return false
	}
	copy(p.data[:], frame)
	return true
}

func (p *indala224) EncoderStart() bool {
	bitlib.SetBits(p.data[:], 0, indala224Preamble, indala224PreambleBits)
	copy(p.frame, p.data[:])
	p.start()
	return true
}

func (p *indala224) EncoderYield() lfrfid.LevelDuration { return p.encoder.Yield() }

func (p *indala224) EncoderReset() { p.start() }

func (p *indala224) RenderData() string {
	var sb strings.Builder
	sb.WriteString("Data:")
	for i := 0; i < indala224DataSize; i += 4 {
		fmt.Fprintf(&sb, "\n%02X %02X %02X %02X", p.data[i], p.data[i+1], p.data[i+2], p.data[i+3])
	}
	return sb.String()
}

func (p *indala224) RenderBrief() string {
	return fmt.Sprintf("Data: %X...", p.data[4:8])
}

func (p *indala224) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	p.writeBlocks(req, t5577.ModulationPSK1|t5577.BitrateRF32|t5577.PSKCFRF2|7<<t5577.MaxBlockShift)
	return true
}

// Indala26Base is Indala 26 bit.
var Indala26Base = Base{
	Name:          "Indala26",
	Manufacturer:  "Motorola",
	DataSize:      indala26DataSize,
	Features:      lfrfid.FeaturePSK,
	ValidateCount: 6,
	New:           func() Protocol { return newIndala26() },
}

// Indala224Base is Indala 224 bit.
var Indala224Base = Base{
	Name:          "Indala224",
	Manufacturer:  "Motorola",
	DataSize:      indala224DataSize,
	Features:      lfrfid.FeaturePSK,
	ValidateCount: 6,
	New:           func() Protocol { return newIndala224() },
}
