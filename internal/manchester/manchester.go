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

// Package manchester implements the edge-event state machine used by Manchester coded protocols.
//
// A data bit 1 is sent low-then-high and a 0 is sent high-then-low. Events are named after
// the level of the pulse just measured.
package manchester

// State of the decoder between events
type State uint8

const (
	StateStart1 State = 0
	StateMid1   State = 1
	StateMid0   State = 2
	StateStart0 State = 3
)

// Event is a classified pulse
type Event uint8

const (
	EventShortLow  Event = 0
	EventShortHigh Event = 2
	EventLongLow   Event = 4
	EventLongHigh  Event = 6
	EventReset     Event = 8
)

// transitions packs the next state for every event, two bits per event, indexed by state.
var transitions = [4]uint16{
	0b00000001,
	0b10010001,
	0b10011011,
	0b11111011,
}

// Advance feeds one event and returns the next state. ok reports that a data bit was
// completed, in which case bit holds its value. An event that is not valid in the current
// state, or EventReset, returns StateMid1.
func Advance(state State, event Event) (next State, bit, ok bool) {
	if event == EventReset {
		return StateMid1, false, false
	}
	next = State(transitions[state] >> event & 3)
	if next == state {
		return StateMid1, false, false
	}
	switch next {
	case StateMid0:
		return next, false, true
	case StateMid1:
		return next, true, true
	default:
		return next, false, false
	}
}

// Classify converts a measured pulse into an event. Durations outside both windows
// return EventReset.
func Classify(level bool, duration, short, long, jitter uint32) Event {
	var ev Event
	switch {
	case within(duration, short, jitter):
		ev = EventShortLow
	case within(duration, long, jitter):
		ev = EventLongLow
	default:
		return EventReset
	}
	if level {
		ev += 2
	}
	return ev
}

func within(d, center, jitter uint32) bool {
	return d+jitter >= center && d <= center+jitter
}
