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
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Downlink timing in carrier clocks. Each bit is a short field gap followed
// by carrier; the gap to gap period carries the value.
const (
	leadClocks   = 128
	gapClocks    = 7
	zeroOnClocks = 15
	oneOnClocks  = 21
	stopClocks   = 40

	zeroMinPeriod = 18
	zeroMaxPeriod = 22
	oneMinPeriod  = 26
	oneMaxPeriod  = 32
	minGapClocks  = 4
	maxGapClocks  = 12
)

// Downlink returns the field sequence a reader plays to send cmd.
func Downlink(cmd Command) []t5577.Step {
	bits := cmd.Bits()
	steps := make([]t5577.Step, 0, 2*len(bits)+3)
	steps = append(steps, t5577.Step{Clocks: leadClocks, CarrierOn: true})
	for _, bit := range bits {
		on := uint32(zeroOnClocks)
		if bit {
			on = oneOnClocks
		}
		steps = append(steps,
			t5577.Step{Clocks: gapClocks},
			t5577.Step{Clocks: on, CarrierOn: true})
	}
	return append(steps,
		t5577.Step{Clocks: gapClocks},
		t5577.Step{Clocks: stopClocks, CarrierOn: true})
}

// CommandDecoder recovers reader commands from the field as a tag sees it.
// The zero value is ready to use.
type CommandDecoder struct {
	bits []bool
	gap  uint32
	on   uint32
}

// Reset drops any partially received command.
func (d *CommandDecoder) Reset() {
	d.bits = d.bits[:0]
	d.gap = 0
	d.on = 0
}

// Feed adds a stretch of field on or off lasting clocks. It returns a
// command once the frame that carried it has ended.
func (d *CommandDecoder) Feed(carrierOn bool, clocks uint32) (Command, bool) {
	if !carrierOn {
		if d.gap > 0 && d.on > 0 {
			if !d.classify(d.gap + d.on) {
				d.Reset()
			}
			d.gap, d.on = 0, 0
		}
		d.gap += clocks
		return Command{}, false
	}

	if d.gap == 0 {
		return Command{}, false
	}
	if d.gap < minGapClocks || d.gap > maxGapClocks {
		d.Reset()
		return Command{}, false
	}
	d.on += clocks
	if d.gap+d.on <= oneMaxPeriod {
		return Command{}, false
	}

	// A period longer than any bit closes the frame.
	cmd, ok := ParseCommand(d.bits)
	d.Reset()
	return cmd, ok
}

func (d *CommandDecoder) classify(period uint32) bool {
	switch {
	case period >= zeroMinPeriod && period <= zeroMaxPeriod:
		d.bits = append(d.bits, false)
	case period >= oneMinPeriod && period <= oneMaxPeriod:
		d.bits = append(d.bits, true)
	default:
		return false
	}
	return true
}
