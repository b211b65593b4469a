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

// Package biphase decodes bi-phase and differential bi-phase symbol streams.
//
// Both codes put a transition on every bit boundary. One symbol value adds a second
// transition in the middle of the cell, so it arrives as two short pulses; the other
// arrives as a single long pulse. Pulse levels carry no information.
package biphase

// Pulse class returned by Classify
type Pulse uint8

const (
	PulseInvalid Pulse = iota
	PulseShort
	PulseLong
)

// Classify compares a duration against the short and long windows.
func Classify(duration, short, long, jitter uint32) Pulse {
	switch {
	case duration+jitter >= short && duration <= short+jitter:
		return PulseShort
	case duration+jitter >= long && duration <= long+jitter:
		return PulseLong
	default:
		return PulseInvalid
	}
}

// Decoder turns classified pulses into symbols.
type Decoder struct {
	// MidOnOne is true when a 1 carries the mid-cell transition (bi-phase as used by
	// GProxII); false when a 0 does (differential bi-phase as used by FDX-B).
	MidOnOne bool
	pending  bool
}

// Feed consumes one pulse and reports a completed symbol.
func (d *Decoder) Feed(p Pulse) (bit, ok bool) {
	switch p {
	case PulseShort:
		if d.pending {
			d.pending = false
			return d.MidOnOne, true
		}
		d.pending = true
		return false, false
	case PulseLong:
		// a lone short before a long is a cell boundary we never saw; drop it
		d.pending = false
		return !d.MidOnOne, true
	default:
		d.pending = false
		return false, false
	}
}

// Reset drops a pending half cell.
func (d *Decoder) Reset() {
	d.pending = false
}
