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

// Package fsk demodulates and synthesizes two-tone FSK carriers.
package fsk

// Config describes the two tones of a demodulator. All times are microseconds.
type Config struct {
	// Mid separates the short cycle tone from the long one
	Mid uint32
	// Min and Max bound a plausible carrier cycle; anything else is signal loss
	Min uint32
	Max uint32
	// BitTime is the length of one data bit
	BitTime uint32
	// ShortValue is the bit value carried by the short cycle tone
	ShortValue bool
}

// Demod classifies full carrier cycles and converts each tone run into a bit count.
type Demod struct {
	cfg     Config
	high    uint32
	hasHigh bool
	value   bool
	run     uint32
	running bool
}

// NewDemod creates a demodulator for cfg.
func NewDemod(cfg Config) *Demod {
	return &Demod{cfg: cfg}
}

// Feed consumes one edge. When the tone changes it returns the value of the run that just
// ended and how many bits it lasted; count is zero otherwise.
func (d *Demod) Feed(level bool, duration uint32) (value bool, count int) {
	if level {
		d.high = duration
		d.hasHigh = true
		return false, 0
	}
	if !d.hasHigh {
		return false, 0
	}
	cycle := d.high + duration
	d.hasHigh = false

	if cycle < d.cfg.Min || cycle > d.cfg.Max {
		d.Reset()
		return false, 0
	}

	v := d.cfg.ShortValue
	if cycle >= d.cfg.Mid {
		v = !v
	}
	if d.running && v != d.value {
		value = d.value
		count = int((d.run + d.cfg.BitTime/2) / d.cfg.BitTime)
		d.run = 0
	}
	d.value = v
	d.running = true
	d.run += cycle
	return value, count
}

// Reset drops the current run.
func (d *Demod) Reset() {
	d.high = 0
	d.hasHigh = false
	d.value = false
	d.run = 0
	d.running = false
}

// Osc generates FSK half cycles with a phase accumulator so the average bit length is exact.
type Osc struct {
	periods  [2]uint32
	phaseMax uint32
	phase    uint32
	low      uint32
}

// NewOsc creates an oscillator whose 0 and 1 tones have the given periods. phaseMax is
// the bit length; all values are in carrier clocks.
func NewOsc(period0, period1, phaseMax uint32) *Osc {
	return &Osc{periods: [2]uint32{period0, period1}, phaseMax: phaseMax}
}

// NextHalf returns the next half cycle of the tone for bit. advance reports that the
// bit has been fully sent and the caller should move to the next one.
func (o *Osc) NextHalf(bit bool) (level bool, duration uint32, advance bool) {
	if o.low == 0 {
		period := o.periods[0]
		if bit {
			period = o.periods[1]
		}
		high := period / 2
		o.low = period - high
		return true, high, false
	}
	duration = o.low
	o.low = 0
	period := o.periods[0]
	if bit {
		period = o.periods[1]
	}
	o.phase += period
	if o.phase >= o.phaseMax {
		o.phase -= o.phaseMax
		advance = true
	}
	return false, duration, advance
}

// Reset restarts the oscillator at phase zero.
func (o *Osc) Reset() {
	o.phase = 0
	o.low = 0
}
