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

package loopback

import (
	"sync"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/waveform"
	"github.com/ZaparooProject/go-lfrfid/protocols"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// VirtualTag is a simulated T5577 in the field of the loopback front end.
// It transmits whatever its blocks describe and accepts downlink writes.
type VirtualTag struct {
	blocks  [t5577.MaxBlocks]uint32
	mu      sync.Mutex
	gen     uint64
	writes  int
	present bool
	locked  bool
}

// NewVirtualTag creates a blank tag that is present in the field
func NewVirtualTag() *VirtualTag {
	return &VirtualTag{present: true}
}

// NewVirtualTagFor creates a tag programmed with the current record of id.
// It returns false if the protocol cannot be written to a T5577.
func NewVirtualTagFor(dict *protocols.Dict, id protocols.ProtocolID) (*VirtualTag, bool) {
	req := protocols.WriteRequest{Type: protocols.WriteTypeT5577}
	if !dict.WriteData(id, &req) {
		return nil, false
	}
	tag := NewVirtualTag()
	tag.Program(&req.T5577)
	return tag, true
}

// Program sets the blocks of req directly, bypassing the downlink and the lock.
func (t *VirtualTag) Program(req *t5577.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < req.BlockCount && i < t5577.MaxBlocks; i++ {
		t.blocks[i] = req.Blocks[i]
	}
	t.gen++
}

// Receive applies the block writes carried by a downlink program. A locked or
// absent tag ignores them.
func (t *VirtualTag) Receive(steps []t5577.Step) int {
	cmds := t5577.Decode(steps)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present || t.locked {
		return 0
	}
	applied := 0
	for _, c := range cmds {
		if !c.IsWrite() {
			continue
		}
		t.blocks[c.Block] = c.Data
		applied++
	}
	if applied > 0 {
		t.writes += applied
		t.gen++
	}
	return applied
}

// Lock makes the tag refuse further downlink writes
func (t *VirtualTag) Lock() {
	t.mu.Lock()
	t.locked = true
	t.mu.Unlock()
}

// Remove takes the tag out of the field
func (t *VirtualTag) Remove() {
	t.mu.Lock()
	t.present = false
	t.gen++
	t.mu.Unlock()
}

// Insert puts the tag back into the field
func (t *VirtualTag) Insert() {
	t.mu.Lock()
	t.present = true
	t.gen++
	t.mu.Unlock()
}

// Blocks returns a copy of the tag memory
func (t *VirtualTag) Blocks() [t5577.MaxBlocks]uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocks
}

// Writes returns how many blocks the downlink has written
func (t *VirtualTag) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

// generation changes whenever the transmitted signal may have changed
func (t *VirtualTag) generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// transmitter returns the signal of the tag, or nil when it is silent.
func (t *VirtualTag) transmitter() *transmitter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present {
		return nil
	}
	return newTransmitter(t.blocks)
}

// maxIdlePieces bounds the search for the next level change of a stuck waveform
const maxIdlePieces = 4096

// transmitter turns tag memory into captured edges in microseconds.
type transmitter struct {
	encoder *waveform.Encoder
	merger  lfrfid.EdgeMerger
	frame   []byte
}

func newTransmitter(blocks [t5577.MaxBlocks]uint32) *transmitter {
	block0 := blocks[0]
	kind, ok := lineCode(t5577.Modulation(block0))
	if !ok {
		return nil
	}
	count := t5577.MaxBlock(block0)
	if count == 0 {
		return nil
	}
	frame := make([]byte, count*4)
	for i := 0; i < count; i++ {
		bitlib.SetBits(frame, i*32, uint64(blocks[i+1]), 32)
	}

	clocks := t5577.BitrateClocks(block0)
	tx := &transmitter{encoder: waveform.New(kind, clocks), frame: frame}
	if block0&t5577.STTerminator != 0 {
		d := clocks * 3 / 2
		tx.encoder.SetTerminator(
			lfrfid.LevelDuration{Level: true, Duration: d},
			lfrfid.LevelDuration{Level: false, Duration: d},
			lfrfid.LevelDuration{Level: true, Duration: d},
			lfrfid.LevelDuration{Level: false, Duration: d},
			lfrfid.LevelDuration{Level: true, Duration: d},
			lfrfid.LevelDuration{Level: false, Duration: d},
		)
	}
	tx.encoder.Reset(tx.frame, count*32)
	return tx
}

func lineCode(modulation uint32) (waveform.Kind, bool) {
	switch modulation {
	case t5577.ModulationManchester:
		return waveform.Manchester, true
	case t5577.ModulationBiphase:
		return waveform.Biphase, true
	case t5577.ModulationDiphase:
		return waveform.Diphase, true
	case t5577.ModulationFSK2a:
		return waveform.FSK2a, true
	case t5577.ModulationPSK1:
		return waveform.PSK1, true
	default:
		return 0, false
	}
}

// next returns the next level change of the transmitted signal
func (tx *transmitter) next() lfrfid.LevelDuration {
	for i := 0; i < maxIdlePieces; i++ {
		if ld, ok := tx.merger.Push(tx.encoder.Yield()); ok {
			ld.Duration = lfrfid.ClocksToUs(ld.Duration)
			return ld
		}
	}
	ld, _ := tx.merger.Flush()
	ld.Duration = lfrfid.ClocksToUs(ld.Duration)
	return ld
}
