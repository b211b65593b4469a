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

// Package waveform turns a bit frame into the looping pulse sequence a tag transmits.
// Durations are carrier clocks.
package waveform

import (
	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/internal/fsk"
	"github.com/ZaparooProject/go-lfrfid/internal/psk"
)

// Kind selects the line code
type Kind uint8

const (
	// Manchester sends a 1 as low-then-high and a 0 as high-then-low
	Manchester Kind = iota
	// Biphase toggles on every boundary and in the middle of a 1
	Biphase
	// Diphase toggles on every boundary and in the middle of a 0
	Diphase
	// FSK2a sends a 1 as RF/8 cycles and a 0 as RF/10 cycles
	FSK2a
	// PSK1 sends an RF/2 sub-carrier whose phase reverses when the bit value changes
	PSK1
)

// String returns the line code name
func (k Kind) String() string {
	switch k {
	case Manchester:
		return "manchester"
	case Biphase:
		return "biphase"
	case Diphase:
		return "diphase"
	case FSK2a:
		return "fsk2a"
	case PSK1:
		return "psk1"
	default:
		return "unknown"
	}
}

// Encoder yields one piece of the waveform per call and loops forever.
// Manchester and bi-phase codes yield half bits; FSK yields carrier half cycles;
// PSK yields sub-carrier half periods.
type Encoder struct {
	osc       *fsk.Osc
	bits      []byte
	term      []lfrfid.LevelDuration
	count     int
	pos       int
	termPos   int
	bitClocks uint32
	piece     uint32
	kind      Kind
	level     bool
	inTerm    bool
}

// New creates an encoder for kind at bitClocks carrier clocks per bit.
func New(kind Kind, bitClocks uint32) *Encoder {
	e := &Encoder{kind: kind, bitClocks: bitClocks}
	if kind == FSK2a {
		e.osc = fsk.NewOsc(10, 8, bitClocks)
	}
	return e
}

// SetTerminator appends a fixed sequence of pulses after every frame.
func (e *Encoder) SetTerminator(pulses ...lfrfid.LevelDuration) {
	e.term = pulses
}

// Reset loads the first count bits of bits and rewinds to the first piece.
// The encoder keeps a reference to bits.
func (e *Encoder) Reset(bits []byte, count int) {
	e.bits = bits
	e.count = count
	e.pos = 0
	e.piece = 0
	e.level = false
	e.inTerm = false
	e.termPos = 0
	if e.osc != nil {
		e.osc.Reset()
	}
}

// Yield returns the next piece of the waveform.
func (e *Encoder) Yield() lfrfid.LevelDuration {
	if e.inTerm {
		out := e.term[e.termPos]
		e.termPos++
		if e.termPos == len(e.term) {
			e.inTerm = false
			e.termPos = 0
		}
		return out
	}
	if e.count == 0 {
		return lfrfid.LevelDuration{Level: false, Duration: e.bitClocks}
	}

	bit := bitlib.GetBit(e.bits, e.pos)
	half := e.bitClocks / 2
	var out lfrfid.LevelDuration
	advance := false

	switch e.kind {
	case Manchester:
		if e.piece == 0 {
			out = lfrfid.LevelDuration{Level: !bit, Duration: half}
			e.piece = 1
		} else {
			out = lfrfid.LevelDuration{Level: bit, Duration: e.bitClocks - half}
			advance = true
		}
	case Biphase, Diphase:
		mid := bit == (e.kind == Biphase)
		if e.piece == 0 {
			e.level = !e.level
			out = lfrfid.LevelDuration{Level: e.level, Duration: half}
			e.piece = 1
		} else {
			if mid {
				e.level = !e.level
			}
			out = lfrfid.LevelDuration{Level: e.level, Duration: e.bitClocks - half}
			advance = true
		}
	case FSK2a:
		level, d, adv := e.osc.NextHalf(bit)
		out = lfrfid.LevelDuration{Level: level, Duration: d}
		advance = adv
	case PSK1:
		out = lfrfid.LevelDuration{Level: psk.Level(bit, e.piece), Duration: 1}
		e.piece++
		advance = e.piece == e.bitClocks
	}

	if advance {
		e.piece = 0
		e.pos++
		if e.pos == e.count {
			e.pos = 0
			e.inTerm = len(e.term) > 0
		}
	}
	return out
}

// FramePieces returns how many Yield calls one full frame plus terminator takes for
// line codes with a fixed number of pieces per bit. FSK returns zero.
func (e *Encoder) FramePieces() int {
	per := 0
	switch e.kind {
	case Manchester, Biphase, Diphase:
		per = 2
	case PSK1:
		per = int(e.bitClocks)
	default:
		return 0
	}
	return e.count*per + len(e.term)
}
