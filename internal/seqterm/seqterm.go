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

// Package seqterm matches the fixed six pulse sequence terminators some tags send between frames.
package seqterm

// Length is the number of pulses in a terminator
const Length = 6

// Step is one expected pulse: its level and the timing class the protocol assigned it.
type Step struct {
	Level bool
	Class uint8
}

// Result of feeding one pulse
type Result uint8

const (
	// NoMatch means no terminator is in progress
	NoMatch Result = iota
	// Progress means the pulse extended a partial match
	Progress
	// Complete means the pulse finished the terminator
	Complete
	// Broken means a partial match failed; the pulse was retried as a first step
	Broken
)

// Matcher tracks progress through a terminator pattern.
type Matcher struct {
	pattern [Length]Step
	pos     int
}

// New creates a matcher for pattern.
func New(pattern [Length]Step) Matcher {
	return Matcher{pattern: pattern}
}

// Feed consumes one classified pulse.
func (m *Matcher) Feed(level bool, class uint8) Result {
	s := Step{Level: level, Class: class}
	if s == m.pattern[m.pos] {
		m.pos++
		if m.pos == Length {
			m.pos = 0
			return Complete
		}
		return Progress
	}
	if m.pos == 0 {
		return NoMatch
	}
	m.pos = 0
	if s == m.pattern[0] {
		m.pos = 1
	}
	return Broken
}

// InProgress reports whether part of the terminator has been seen.
func (m *Matcher) InProgress() bool {
	return m.pos > 0
}

// Reset forgets any partial match.
func (m *Matcher) Reset() {
	m.pos = 0
}
