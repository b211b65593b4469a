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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Transceiver plays a downlink and returns what the field carried back
// during the following listen clocks.
type Transceiver interface {
	Transceive(ctx context.Context, downlink []t5577.Step, listen uint32) ([]lfrfid.Pulse, error)
}

const (
	// confirmReads is how many identical answers a value needs.
	confirmReads = 3
	// maxAttempts bounds the exchanges spent on one value.
	maxAttempts = 20
)

// Read runs the basic mode dialogue against the tag in the field: UID,
// config page, then every public readable block. Blocks that never answer
// stay unknown in the result.
func Read(ctx context.Context, tr Transceiver) (*Tag, error) {
	tag := NewTag()

	uid, err := confirm(ctx, tr, Command{Kind: CmdSetCC}, AntiCollision, acStartBasic, PageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read UID: %w", err)
	}
	tag.SetUID(binary.BigEndian.Uint32(uid))
	lfrfid.Debugf("hitag: UID %08X", tag.UID())

	sel := Command{Kind: CmdSelect, UID: tag.UID()}
	cfg, err := confirm(ctx, tr, sel, Manchester, mcStartBasic, PageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to select %08X: %w", tag.UID(), err)
	}
	tag.SetPage(configPage, [PageBytes]byte(cfg))

	for page := BlockPages; page < Pages; page += BlockPages {
		if !tag.Readable(page) {
			continue
		}
		// Re-select so a tag that lost the field answers again.
		if _, err := tr.Transceive(ctx, Downlink(sel), ListenClocks(Manchester, mcStartBasic+8*PageBytes)); err != nil {
			return nil, err
		}
		cmd := Command{Kind: CmdReadBlock, Page: uint8(page)}
		data, err := confirm(ctx, tr, cmd, Manchester, mcStartBasic, BlockPages*PageBytes)
		if errors.Is(err, lfrfid.ErrTimeout) {
			lfrfid.Debugf("hitag: block at page %d unanswered, left unknown", page)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read block at page %d: %w", page, err)
		}
		for i := 0; i < BlockPages; i++ {
			tag.SetPage(page+i, [PageBytes]byte(data[i*PageBytes:]))
		}
	}
	lfrfid.Debugf("hitag: read %d pages", tag.KnownPages())
	return tag, nil
}

// confirm repeats cmd until the same n byte payload arrives confirmReads
// times in a row.
func confirm(ctx context.Context, tr Transceiver, cmd Command, c Coding, start, n int) ([]byte, error) {
	wantBits := start + 8*n
	downlink := Downlink(cmd)
	listen := ListenClocks(c, wantBits)

	var last []byte
	same := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pulses, err := tr.Transceive(ctx, downlink, listen)
		if err != nil {
			return nil, err
		}
		payload, err := payloadOf(pulses, c, start, wantBits)
		if err != nil {
			lfrfid.Debugf("hitag: %s attempt %d: %v", cmd, attempt, err)
			same = 0
			continue
		}
		if slices.Equal(payload, last) {
			same++
		} else {
			last, same = payload, 1
		}
		if same == confirmReads {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("no stable reply to %s: %w", cmd, lfrfid.ErrTimeout)
}

func payloadOf(pulses []lfrfid.Pulse, c Coding, start, wantBits int) ([]byte, error) {
	bits, err := DecodeReply(c, pulses)
	if err != nil {
		return nil, err
	}
	if len(bits) < wantBits {
		return nil, fmt.Errorf("%d of %d bits: %w", len(bits), wantBits, lfrfid.ErrFrameCorrupted)
	}
	for _, b := range bits[:start] {
		if !b {
			return nil, fmt.Errorf("start bits: %w", lfrfid.ErrFrameCorrupted)
		}
	}
	return bitsToBytes(bits[start:wantBits]), nil
}
