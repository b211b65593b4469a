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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

func TestReplyPulses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply Reply
		want  []lfrfid.Pulse
	}{
		{
			name:  "manchester 101",
			reply: Reply{Coding: Manchester, Bits: []bool{true, false, true}},
			want:  []lfrfid.Pulse{{Pulse: 128, Duration: 384}, {Pulse: 256, Duration: 384}},
		},
		{
			name:  "anticollision 10",
			reply: Reply{Coding: AntiCollision, Bits: []bool{true, false}},
			want: []lfrfid.Pulse{
				{Pulse: 128, Duration: 256},
				{Pulse: 128, Duration: 256},
				{Pulse: 256, Duration: 512},
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.reply.Pulses()
			assert.Equal(t, tt.want, got)

			var total uint32
			for _, p := range got {
				total += p.Duration
			}
			assert.Equal(t, tt.reply.Duration(), total)
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range []Coding{AntiCollision, Manchester} {
		c := c
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()
			r := newReply(c, 3, 0x12, 0x34, 0x00, 0xFF, 0xA5)
			bits, err := DecodeReply(c, r.Pulses())
			require.NoError(t, err)
			assert.Equal(t, r.Bits, bits)
		})
	}
}

func TestDecodeReplyToleratesCapture(t *testing.T) {
	t.Parallel()

	r := newReply(Manchester, 1, 0xC3, 0x5A)
	pulses := r.Pulses()

	// Stretch every run by about 10 %, add idle before and silence after.
	captured := []lfrfid.Pulse{{Pulse: 0, Duration: 2000}}
	for _, p := range pulses {
		captured = append(captured, lfrfid.Pulse{Pulse: p.Pulse * 11 / 10, Duration: p.Duration * 11 / 10})
	}
	captured[len(captured)-1].Duration += 5000

	bits, err := DecodeReply(Manchester, captured)
	require.NoError(t, err)
	assert.Equal(t, r.Bits, bits)
}

func TestDecodeReplyRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		coding Coding
		pulses []lfrfid.Pulse
	}{
		{name: "glitch", coding: Manchester, pulses: []lfrfid.Pulse{{Pulse: 30, Duration: 158}}},
		{name: "manchester high high", coding: Manchester, pulses: []lfrfid.Pulse{{Pulse: 256, Duration: 384}}},
		{name: "anticollision three highs", coding: AntiCollision, pulses: []lfrfid.Pulse{{Pulse: 384, Duration: 512}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeReply(tt.coding, tt.pulses)
			require.ErrorIs(t, err, lfrfid.ErrFrameCorrupted)
		})
	}
}

func TestListenClocks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(1108), ListenClocks(Manchester, 33))
	assert.Equal(t, uint32(2217), ListenClocks(AntiCollision, 33))
}
