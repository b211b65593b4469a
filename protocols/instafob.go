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
	"github.com/ZaparooProject/go-lfrfid/internal/seqterm"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// InstaFob: two T5577 blocks of Manchester at RF/32 followed by the T5577 sequence
// terminator. Block 1 is a fixed constant; block 2 holds a 24 bit card number, a 7 bit
// checksum and a 0 stop bit.
const (
	instafobDataSize  = 8
	instafobFrameBits = 64
	instafobBlock1    = 0x1E53A000
	instafobBitClocks = 32
	instafobShort     = instafobBitClocks / 2 * lfrfid.UsPerClock
	instafobJitter    = 40
	// terminator pulses last one and a half bits
	instafobTermClocks = instafobBitClocks * 3 / 2
)

const (
	instafobClassShort uint8 = iota
	instafobClassLong
	instafobClassXLong
	instafobClassInvalid
)

var instafobTerminator = [seqterm.Length]seqterm.Step{
	{Level: true, Class: instafobClassXLong},
	{Level: false, Class: instafobClassXLong},
	{Level: true, Class: instafobClassXLong},
	{Level: false, Class: instafobClassXLong},
	{Level: true, Class: instafobClassXLong},
	{Level: false, Class: instafobClassXLong},
}

type instafob struct {
	encoder    *waveform.Encoder
	term       seqterm.Matcher
	collected  [instafobFrameBits / 8]byte
	data       [instafobDataSize]byte
	frame      [instafobFrameBits / 8]byte
	count      int
	state      manchester.State
	collecting bool
}

func newInstaFob() *instafob {
	p := &instafob{
		encoder: waveform.New(waveform.Manchester, instafobBitClocks),
		term:    seqterm.New(instafobTerminator),
		state:   manchester.StateMid1,
	}
	p.encoder.SetTerminator(
		lfrfid.LevelDuration{Level: true, Duration: instafobTermClocks},
		lfrfid.LevelDuration{Level: false, Duration: instafobTermClocks},
		lfrfid.LevelDuration{Level: true, Duration: instafobTermClocks},
		lfrfid.LevelDuration{Level: false, Duration: instafobTermClocks},
		lfrfid.LevelDuration{Level: true, Duration: instafobTermClocks},
		lfrfid.LevelDuration{Level: false, Duration: instafobTermClocks},
	)
	binary.BigEndian.PutUint32(p.data[0:4], instafobBlock1)
	return p
}

func (p *instafob) Data() []byte { return p.data[:] }

func (p *instafob) DecoderStart() { p.DecoderReset() }

func (p *instafob) DecoderReset() {
	p.dropFrame()
	p.term.Reset()
}

// dropFrame forgets the frame being collected. A terminator match in progress is kept
// because the pulse that broke a frame may start the next terminator.
func (p *instafob) dropFrame() {
	clear(p.collected[:])
	p.count = 0
	p.collecting = false
	p.state = manchester.StateMid1
}

func (p *instafob) DecoderIdle() bool {
	return !p.collecting && p.count == 0 && !p.term.InProgress()
}

func instafobClassify(duration uint32) uint8 {
	switch {
	case within(duration, instafobShort, instafobJitter):
		return instafobClassShort
	case within(duration, 2*instafobShort, instafobJitter):
		return instafobClassLong
	case within(duration, 3*instafobShort, instafobJitter):
		return instafobClassXLong
	default:
		return instafobClassInvalid
	}
}

func (p *instafob) DecoderFeed(level bool, duration uint32) bool {
	class := instafobClassify(duration)
	if class == instafobClassInvalid {
		p.DecoderReset()
		return false
	}

	switch p.term.Feed(level, class) {
	case seqterm.Complete:
		p.dropFrame()
		p.collecting = true
		// the first bit after the terminator is the 0 at the top of block 1
		p.state = manchester.StateStart0
		return false
	case seqterm.Progress:
		if p.collecting {
			p.dropFrame()
		}
		return false
	case seqterm.Broken:
		p.dropFrame()
		return false
	}

	if !p.collecting {
		return false
	}
	ev := manchester.EventShortLow
	if class == instafobClassLong {
		ev = manchester.EventLongLow
	}
	if level {
		ev += 2
	}
	next, bit, ok := manchester.Advance(p.state, ev)
	p.state = next
	if !ok {
		return false
	}
	bitlib.PushBit(p.collected[:], bit)
	p.count++
	if p.count < instafobFrameBits {
		return false
	}

	valid := instafobValid(p.collected[:])
	if valid {
		copy(p.data[:], p.collected[:])
	}
	p.dropFrame()
	return valid
}

func instafobChecksum(block2 uint32) uint32 {
	card := block2 >> 8
	return (card>>16&0xFF + card>>8&0xFF + card&0xFF) & 0x7F
}

func instafobValid(frame []byte) bool {
	if binary.BigEndian.Uint32(frame[0:4]) != instafobBlock1 {
		return false
	}
	block2 := binary.BigEndian.Uint32(frame[4:8])
	if block2&1 != 0 {
		return false
	}
	return block2>>1&0x7F == instafobChecksum(block2)
}

func (p *instafob) EncoderStart() bool {
	binary.BigEndian.PutUint32(p.data[0:4], instafobBlock1)
	block2 := binary.BigEndian.Uint32(p.data[4:8]) &^ 0xFF
	block2 |= instafobChecksum(block2) << 1
	binary.BigEndian.PutUint32(p.data[4:8], block2)

	copy(p.frame[:], p.data[:])
	p.encoder.Reset(p.frame[:], instafobFrameBits)
	return true
}

func (p *instafob) EncoderYield() lfrfid.LevelDuration { return p.encoder.Yield() }

func (p *instafob) EncoderReset() { p.encoder.Reset(p.frame[:], instafobFrameBits) }

func (p *instafob) card() uint32 {
	return binary.BigEndian.Uint32(p.data[4:8]) >> 8
}

func (p *instafob) RenderData() string {
	return fmt.Sprintf("Card: %d\nBlock 2: %08X", p.card(), binary.BigEndian.Uint32(p.data[4:8]))
}

func (p *instafob) RenderBrief() string {
	return fmt.Sprintf("Card: %d", p.card())
}

func (p *instafob) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	req.T5577.Blocks[0] = t5577.ModulationManchester | t5577.BitrateRF32 | t5577.STTerminator | 2<<t5577.MaxBlockShift
	bitsToWords(req, p.frame[:], instafobFrameBits)
	return true
}

// InstaFobBase is Hillman Group InstaFob.
var InstaFobBase = Base{
	Name:          "InstaFob",
	Manufacturer:  "Hillman Group",
	DataSize:      instafobDataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newInstaFob() },
}
