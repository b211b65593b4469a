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

package lfrfid

// Carrier constants for a 125 kHz reader field.
const (
	// CarrierFrequency is the reader field frequency in Hz.
	CarrierFrequency = 125000
	// UsPerClock is the length of one carrier clock in microseconds.
	UsPerClock = 8
)

// Feature is a bitmask of the demodulation paths a protocol can appear under.
type Feature uint8

const (
	// FeatureASK marks protocols read from the amplitude (envelope) capture.
	FeatureASK Feature = 1 << iota
	// FeaturePSK marks protocols read from the phase demodulated capture.
	FeaturePSK
)

// String returns a short name for the feature set.
func (f Feature) String() string {
	switch f {
	case FeatureASK:
		return "ASK"
	case FeaturePSK:
		return "PSK"
	case FeatureASK | FeaturePSK:
		return "ASK|PSK"
	default:
		return "none"
	}
}

// LevelDuration is one edge of a demodulated signal: the line held Level for Duration.
// Durations are microseconds on the read path and carrier clocks on the encode path.
type LevelDuration struct {
	Duration uint32
	Level    bool
}

// Pulse is one period of an output waveform: high for Pulse, then low until Duration.
// Both values are microseconds.
type Pulse struct {
	Duration uint32
	Pulse    uint32
}

// Edges splits the pulse back into its high and low edges.
func (p Pulse) Edges() (high, low LevelDuration) {
	high = LevelDuration{Level: true, Duration: p.Pulse}
	low = LevelDuration{Level: false, Duration: p.Duration - p.Pulse}
	return high, low
}

// ClocksToUs converts a duration in carrier clocks to microseconds.
func ClocksToUs(clocks uint32) uint32 {
	return clocks * UsPerClock
}

// EdgeMerger joins consecutive edges of the same level into one.
// Encoders emit half-bit pieces; a receiver only ever sees level changes.
type EdgeMerger struct {
	pending LevelDuration
	has     bool
}

// Push adds an edge and returns the previous run when the level changed.
func (m *EdgeMerger) Push(ld LevelDuration) (LevelDuration, bool) {
	if ld.Duration == 0 {
		return LevelDuration{}, false
	}
	if !m.has {
		m.pending = ld
		m.has = true
		return LevelDuration{}, false
	}
	if m.pending.Level == ld.Level {
		m.pending.Duration += ld.Duration
		return LevelDuration{}, false
	}
	out := m.pending
	m.pending = ld
	return out, true
}

// Flush returns the run still being accumulated.
func (m *EdgeMerger) Flush() (LevelDuration, bool) {
	if !m.has {
		return LevelDuration{}, false
	}
	m.has = false
	return m.pending, true
}

// Reset drops any pending run.
func (m *EdgeMerger) Reset() {
	m.has = false
	m.pending = LevelDuration{}
}

// PulsePacker folds a stream of edges into high-then-low Pulses.
type PulsePacker struct {
	high uint32
	low  uint32
}

// Push adds an edge and returns a completed Pulse when a new high phase begins.
func (p *PulsePacker) Push(ld LevelDuration) (Pulse, bool) {
	if ld.Level {
		if p.low > 0 {
			out := Pulse{Pulse: p.high, Duration: p.high + p.low}
			p.high = ld.Duration
			p.low = 0
			return out, true
		}
		p.high += ld.Duration
		return Pulse{}, false
	}
	p.low += ld.Duration
	return Pulse{}, false
}

// Reset drops any partial pulse.
func (p *PulsePacker) Reset() {
	p.high = 0
	p.low = 0
}

// Flush returns the pulse still being accumulated.
func (p *PulsePacker) Flush() (Pulse, bool) {
	if p.high == 0 && p.low == 0 {
		return Pulse{}, false
	}
	out := Pulse{Pulse: p.high, Duration: p.high + p.low}
	p.Reset()
	return out, true
}
