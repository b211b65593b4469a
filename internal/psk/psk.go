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

// Package psk recovers NRZ data from a PSK1 sub-carrier and generates the sub-carrier
// for a bit stream.
//
// The sub-carrier toggles every carrier clock. A phase reversal shows up as one half
// period of double length; the demodulator places the data edge in its middle.
package psk

// Demod turns sub-carrier half periods into NRZ level runs.
type Demod struct {
	unit  uint32
	acc   uint32
	level bool
}

// NewDemod creates a demodulator for a sub-carrier whose half period is unit microseconds.
func NewDemod(unit uint32) *Demod {
	return &Demod{unit: unit}
}

// Feed consumes one sub-carrier edge. On a phase reversal it returns the level of the
// NRZ run that just ended and its duration.
func (d *Demod) Feed(duration uint32) (level bool, run uint32, ok bool) {
	halves := (duration + d.unit/2) / d.unit
	switch halves {
	case 1:
		d.acc += duration
		return false, 0, false
	case 2:
		level = d.level
		run = d.acc + duration/2
		d.level = !d.level
		d.acc = duration - duration/2
		return level, run, true
	default:
		d.Reset()
		return false, 0, false
	}
}

// Reset drops the current run.
func (d *Demod) Reset() {
	d.acc = 0
	d.level = false
}

// Level returns the sub-carrier level of half period n within a bit carrying bit.
// Consecutive bits of different value meet with two equal levels, which is the
// phase reversal. bitClocks must be even.
func Level(bit bool, n uint32) bool {
	return (n%2 == 0) != bit
}
