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

package loopback

import (
	"context"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/hitag"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// SetHitag places a Hitag S tag in the field, or removes it when tag is nil.
func (f *Frontend) SetHitag(tag *hitag.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tag == nil {
		f.hitag = nil
		return
	}
	f.hitag = hitag.NewEmulator(tag)
}

// Hitag returns the emulated Hitag S tag, or nil.
func (f *Frontend) Hitag() *hitag.Emulator {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hitag
}

// Transceive plays downlink to the Hitag S tag in the field and returns
// its answer to the last command, cut to the listen window.
func (f *Frontend) Transceive(ctx context.Context, downlink []t5577.Step, listen uint32) ([]lfrfid.Pulse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, lfrfid.ErrFrontendClosed
	}
	if f.capture != nil || f.emulate != nil {
		return nil, lfrfid.ErrFrontendBusy
	}
	if f.hitag == nil {
		return nil, nil
	}

	var (
		rx    hitag.CommandDecoder
		reply []lfrfid.Pulse
	)
	for _, step := range downlink {
		cmd, ok := rx.Feed(step.CarrierOn, step.Clocks)
		if !ok {
			continue
		}
		reply = nil
		if r, ok := f.hitag.Handle(cmd); ok {
			reply = r.Pulses()
		}
	}
	return clip(reply, lfrfid.ClocksToUs(listen)), nil
}

// clip drops whatever a reader listening for window microseconds would miss.
func clip(pulses []lfrfid.Pulse, window uint32) []lfrfid.Pulse {
	var elapsed uint32
	for i, p := range pulses {
		if elapsed+p.Duration > window {
			return pulses[:i]
		}
		elapsed += p.Duration
	}
	return pulses
}
