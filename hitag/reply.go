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

package hitag

import (
	"fmt"
	"slices"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

// Coding selects how a tag modulates its reply.
type Coding int

const (
	// AntiCollision codes a 1 as two short periods and a 0 as one long period.
	AntiCollision Coding = iota
	// Manchester codes a 1 as high then low and a 0 as low then high.
	Manchester
)

func (c Coding) String() string {
	if c == Manchester {
		return "MC"
	}
	return "AC"
}

// A reply is built from half-periods of 16 carrier clocks.
const (
	halfClocks = 16
	halfUs     = halfClocks * lfrfid.UsPerClock
)

func (c Coding) halves() int {
	if c == Manchester {
		return 2
	}
	return 4
}

var symbols = map[Coding][2][]bool{
	AntiCollision: {
		{true, true, false, false},
		{true, false, true, false},
	},
	Manchester: {
		{false, true},
		{true, false},
	},
}

// Reply is a tag answer: its bits, start bits and CRC included.
type Reply struct {
	Bits   []bool
	Coding Coding
}

func newReply(c Coding, startBits int, data ...byte) Reply {
	bits := make([]bool, startBits, startBits+8*len(data))
	for i := range bits {
		bits[i] = true
	}
	return Reply{Coding: c, Bits: appendBytes(bits, data...)}
}

func (r Reply) levels() []bool {
	sym := symbols[r.Coding]
	out := make([]bool, 0, len(r.Bits)*r.Coding.halves())
	for _, bit := range r.Bits {
		if bit {
			out = append(out, sym[1]...)
		} else {
			out = append(out, sym[0]...)
		}
	}
	return out
}

// Duration is the air time of the reply in microseconds.
func (r Reply) Duration() uint32 {
	return uint32(len(r.Bits)*r.Coding.halves()) * halfUs
}

// Pulses renders the load modulation as the reader sees it.
func (r Reply) Pulses() []lfrfid.Pulse {
	var (
		merger lfrfid.EdgeMerger
		packer lfrfid.PulsePacker
		out    []lfrfid.Pulse
	)
	pack := func(ld lfrfid.LevelDuration) {
		if p, ok := packer.Push(ld); ok {
			out = append(out, p)
		}
	}
	for _, level := range r.levels() {
		if run, ok := merger.Push(lfrfid.LevelDuration{Level: level, Duration: halfUs}); ok {
			pack(run)
		}
	}
	if run, ok := merger.Flush(); ok {
		pack(run)
	}
	if p, ok := packer.Flush(); ok {
		out = append(out, p)
	}
	return out
}

// ListenClocks is how long a reader listens for a reply of n bits.
func ListenClocks(c Coding, n int) uint32 {
	return uint32(n*c.halves()*halfClocks) * 105 / 100
}

// halvesOf rounds a run to whole half-periods.
func halvesOf(us uint32) (int, error) {
	if us == 0 {
		return 0, nil
	}
	n := int((us + halfUs/2) / halfUs)
	if n == 0 {
		return 0, fmt.Errorf("%d us run: %w", us, lfrfid.ErrFrameCorrupted)
	}
	return n, nil
}

// DecodeReply recovers reply bits from captured pulses. Leading idle is
// skipped and a run of silence ends the frame.
func DecodeReply(c Coding, pulses []lfrfid.Pulse) ([]bool, error) {
	var levels []bool
	for _, p := range pulses {
		high, low := p.Edges()
		for _, ld := range []lfrfid.LevelDuration{high, low} {
			n, err := halvesOf(ld.Duration)
			if err != nil {
				return nil, err
			}
			if !ld.Level && len(levels) == 0 {
				continue
			}
			for ; n > 0; n-- {
				levels = append(levels, ld.Level)
			}
		}
	}

	width := c.halves()
	for len(levels)%width != 0 {
		levels = append(levels, false)
	}

	sym := symbols[c]
	silence := make([]bool, width)
	var bits []bool
	for i := 0; i < len(levels); i += width {
		group := levels[i : i+width]
		switch {
		case slices.Equal(group, sym[1]):
			bits = append(bits, true)
		case slices.Equal(group, sym[0]):
			bits = append(bits, false)
		case slices.Equal(group, silence):
			return bits, nil
		default:
			return nil, fmt.Errorf("bit %d: %w", len(bits), lfrfid.ErrFrameCorrupted)
		}
	}
	return bits, nil
}
