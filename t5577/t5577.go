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

// Package t5577 describes T5577 tag configuration and the downlink timing used to program it.
package t5577

// Block 0 configuration bits
const (
	PORDelay     uint32 = 0x00000001
	STTerminator uint32 = 0x00000008
	PWD          uint32 = 0x00000010
	AOR          uint32 = 0x00000200

	// MaxBlockShift positions the number of blocks transmitted after block 0
	MaxBlockShift = 5

	PSKCFRF2 uint32 = 0x00000000
	PSKCFRF4 uint32 = 0x00000400
	PSKCFRF8 uint32 = 0x00000800

	ModulationDirect     uint32 = 0x00000000
	ModulationPSK1       uint32 = 0x00001000
	ModulationPSK2       uint32 = 0x00002000
	ModulationPSK3       uint32 = 0x00003000
	ModulationFSK1       uint32 = 0x00004000
	ModulationFSK2       uint32 = 0x00005000
	ModulationFSK1a      uint32 = 0x00006000
	ModulationFSK2a      uint32 = 0x00007000
	ModulationManchester uint32 = 0x00008000
	ModulationBiphase    uint32 = 0x00010000
	ModulationDiphase    uint32 = 0x00018000

	XMode uint32 = 0x00020000

	BitrateRF8   uint32 = 0x00000000
	BitrateRF16  uint32 = 0x00040000
	BitrateRF32  uint32 = 0x00080000
	BitrateRF40  uint32 = 0x000C0000
	BitrateRF50  uint32 = 0x00100000
	BitrateRF64  uint32 = 0x00140000
	BitrateRF100 uint32 = 0x00180000
	BitrateRF128 uint32 = 0x001C0000

	TestModeDisabled uint32 = 0x60000000
)

const (
	modulationMask uint32 = 0x0001F000
	bitrateMask    uint32 = 0x001C0000
	maxBlockMask   uint32 = 0x000000E0
)

// MaxBlocks is the number of blocks a write request can carry
const MaxBlocks = 8

// Request holds the blocks to program, block 0 first.
type Request struct {
	Blocks     [MaxBlocks]uint32
	BlockCount int
}

// MaxBlock returns the number of data blocks block 0 announces.
func MaxBlock(block0 uint32) int {
	return int((block0 & maxBlockMask) >> MaxBlockShift)
}

// Modulation returns the modulation bits of block 0.
func Modulation(block0 uint32) uint32 {
	return block0 & modulationMask
}

// BitrateClocks returns the data rate of block 0 in carrier clocks per bit.
func BitrateClocks(block0 uint32) uint32 {
	switch block0 & bitrateMask {
	case BitrateRF8:
		return 8
	case BitrateRF16:
		return 16
	case BitrateRF32:
		return 32
	case BitrateRF40:
		return 40
	case BitrateRF50:
		return 50
	case BitrateRF64:
		return 64
	case BitrateRF100:
		return 100
	default:
		return 128
	}
}

// Downlink timing in carrier clocks
const (
	TimingWait     = 400
	TimingStartGap = 30
	TimingWriteGap = 18
	TimingData0    = 24
	TimingData1    = 56
	TimingProgram  = 700
)

const (
	opcodePage0 = 0b10
	opcodeReset = 0b00
)

// Step is one segment of the write downlink: the carrier is held on or off for Clocks.
type Step struct {
	Clocks    uint32
	CarrierOn bool
}

// Program returns the carrier on/off sequence that writes every block of req
// and then resets the tag so it starts transmitting the new configuration.
func Program(req *Request) []Step {
	p := &program{}
	count := req.BlockCount
	if count > MaxBlocks {
		count = MaxBlocks
	}
	for i := 0; i < count; i++ {
		p.writeBlock(uint8(i), false, req.Blocks[i])
	}
	p.reset()
	return p.steps
}

type program struct {
	steps []Step
}

func (p *program) on(clocks uint32) {
	p.steps = append(p.steps, Step{CarrierOn: true, Clocks: clocks})
}

func (p *program) gap(clocks uint32) {
	p.steps = append(p.steps, Step{CarrierOn: false, Clocks: clocks})
}

func (p *program) bit(v bool) {
	if v {
		p.on(TimingData1)
	} else {
		p.on(TimingData0)
	}
	p.gap(TimingWriteGap)
}

func (p *program) opcode(op uint8) {
	p.bit(op>>1&1 == 1)
	p.bit(op&1 == 1)
}

func (p *program) writeBlock(block uint8, lock bool, data uint32) {
	p.on(TimingWait)
	p.gap(TimingStartGap)
	p.opcode(opcodePage0)
	p.bit(lock)
	for i := 31; i >= 0; i-- {
		p.bit(data>>uint(i)&1 == 1)
	}
	p.bit(block>>2&1 == 1)
	p.bit(block>>1&1 == 1)
	p.bit(block&1 == 1)
	p.on(TimingProgram)
	p.on(TimingWait)
	p.reset()
}

func (p *program) reset() {
	p.gap(TimingStartGap)
	p.opcode(opcodeReset)
}

// Duration returns the total length of a program in carrier clocks.
func Duration(steps []Step) uint64 {
	var total uint64
	for _, s := range steps {
		total += uint64(s.Clocks)
	}
	return total
}
