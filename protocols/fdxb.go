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
	"strings"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/biphase"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// FDX-B (ISO 11784/11785) animal tags. Bytes travel LSB first, so the wire order byte
// is the bit reversal of the value byte.
const (
	fdxbDataSize    = 11
	fdxbFrameBits   = 128
	fdxbHeaderBits  = 11
	fdxbHeader      = 0x001
	fdxbGroupBits   = 9
	fdxbPayloadBits = 117
	fdxbBytes       = 13
	fdxbBitClocks   = 32
	fdxbShort       = fdxbBitClocks / 2 * lfrfid.UsPerClock
	fdxbLong        = fdxbBitClocks * lfrfid.UsPerClock
	fdxbJitter      = 60
)

type fdxb struct {
	encoder *waveform.Encoder
	win     window
	sym     biphase.Decoder
	data    [fdxbDataSize]byte
	frame   [fdxbFrameBits / 8]byte
	scratch [fdxbFrameBits / 8]byte
}

func newFDXB() *fdxb {
	return &fdxb{
		encoder: waveform.New(waveform.Diphase, fdxbBitClocks),
		win:     newWindow(fdxbFrameBits),
		sym:     biphase.Decoder{MidOnOne: false},
	}
}

// crc16Kermit is CRC-16/KERMIT: reflected polynomial 0x1021, zero init.
func crc16Kermit(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func (p *fdxb) Data() []byte { return p.data[:] }

func (p *fdxb) DecoderStart() { p.DecoderReset() }

func (p *fdxb) DecoderReset() {
	p.win.reset()
	p.sym.Reset()
}

func (p *fdxb) DecoderIdle() bool { return p.win.empty() }

func (p *fdxb) DecoderFeed(_ bool, duration uint32) bool {
	pulse := biphase.Classify(duration, fdxbShort, fdxbLong, fdxbJitter)
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

func (p *fdxb) tryDecode() bool {
	buf := p.win.buf
	if bitlib.GetBits16(buf, 0, fdxbHeaderBits) != fdxbHeader {
		return false
	}
	if !bitlib.TestParity(buf, fdxbHeaderBits, fdxbPayloadBits, bitlib.ParityAlways1, fdxbGroupBits) {
		return false
	}
	copy(p.scratch[:], buf)
	bitlib.RemoveBitEveryNth(p.scratch[:], fdxbHeaderBits, fdxbPayloadBits, fdxbGroupBits)

	var wire [fdxbBytes]byte
	for i := range wire {
		wire[i] = bitlib.GetBits(p.scratch[:], fdxbHeaderBits+8*i, 8)
	}
	var id [8]byte
	for i := range id {
		id[i] = bitlib.Reverse8(wire[i])
	}
	crc := crc16Kermit(id[:])
	if bitlib.Reverse8(wire[8]) != byte(crc) || bitlib.Reverse8(wire[9]) != byte(crc>>8) {
		return false
	}
	copy(p.data[:8], wire[:8])
	copy(p.data[8:], wire[10:13])
	return true
}

// id returns the 64 bit identification field in value order.
func (p *fdxb) id() uint64 {
	var raw [8]byte
	for i := range raw {
		raw[i] = bitlib.Reverse8(p.data[i])
	}
	return binary.LittleEndian.Uint64(raw[:])
}

func (p *fdxb) EncoderStart() bool {
	var id [8]byte
	for i := range id {
		id[i] = bitlib.Reverse8(p.data[i])
	}
	crc := crc16Kermit(id[:])

	var wire [fdxbBytes]byte
	copy(wire[:8], p.data[:8])
	wire[8] = bitlib.Reverse8(byte(crc))
	wire[9] = bitlib.Reverse8(byte(crc >> 8))
	copy(wire[10:], p.data[8:])

	clear(p.frame[:])
	bitlib.SetBits(p.frame[:], 0, fdxbHeader, fdxbHeaderBits)
	pos := fdxbHeaderBits
	for _, b := range wire {
		bitlib.SetBits(p.frame[:], pos, uint64(b), 8)
		bitlib.SetBit(p.frame[:], pos+8, true)
		pos += fdxbGroupBits
	}
	p.encoder.Reset(p.frame[:], fdxbFrameBits)
	return true
}

func (p *fdxb) EncoderYield() lfrfid.LevelDuration { return p.encoder.Yield() }

func (p *fdxb) EncoderReset() { p.encoder.Reset(p.frame[:], fdxbFrameBits) }

func (p *fdxb) fields() (national uint64, country uint16, dataBlock, animal bool, reserved uint16) {
	id := p.id()
	national = id & (1<<38 - 1)
	country = uint16(id >> 38 & 0x3FF)
	dataBlock = id>>48&1 == 1
	reserved = uint16(id >> 49 & 0x3FFF)
	animal = id>>63&1 == 1
	return national, country, dataBlock, animal, reserved
}

func (p *fdxb) extended() uint32 {
	var ext uint32
	for i := 2; i >= 0; i-- {
		ext = ext<<8 | uint32(bitlib.Reverse8(p.data[8+i]))
	}
	return ext
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func (p *fdxb) RenderData() string {
	national, country, dataBlock, animal, reserved := p.fields()
	var sb strings.Builder
	fmt.Fprintf(&sb, "ID: %03d-%012d\n", country, national)
	fmt.Fprintf(&sb, "Country Code: %d\n", country)
	fmt.Fprintf(&sb, "Animal: %s\n", yesNo(animal))
	fmt.Fprintf(&sb, "Reserved: %d\n", reserved)
	fmt.Fprintf(&sb, "Extended Data: %s", yesNo(dataBlock))
	if dataBlock {
		fmt.Fprintf(&sb, " (%06X)", p.extended())
	}
	return sb.String()
}

func (p *fdxb) RenderBrief() string {
	national, country, _, animal, _ := p.fields()
	return fmt.Sprintf("ID: %03d-%012d, Animal: %s", country, national, yesNo(animal))
}

func (p *fdxb) WriteData(req *WriteRequest) bool {
	if req.Type != WriteTypeT5577 {
		return false
	}
	p.EncoderStart()
	req.T5577.Blocks[0] = t5577.ModulationDiphase | t5577.BitrateRF32 | 4<<t5577.MaxBlockShift
	bitsToWords(req, p.frame[:], fdxbFrameBits)
	return true
}

// FDXBBase is FDX-B.
var FDXBBase = Base{
	Name:          "FDX-B",
	Manufacturer:  "ISO",
	DataSize:      fdxbDataSize,
	Features:      lfrfid.FeatureASK,
	ValidateCount: 3,
	New:           func() Protocol { return newFDXB() },
}
