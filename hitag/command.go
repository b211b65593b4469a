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
	"encoding/binary"
	"fmt"
)

// Kind identifies a reader command.
type Kind int

const (
	CmdSetCC Kind = iota + 1
	CmdSetCCNew
	CmdSelect
	CmdReadPage
	CmdReadBlock
	CmdWritePage
	CmdWriteBlock
	CmdHalt
)

func (k Kind) String() string {
	switch k {
	case CmdSetCC:
		return "SET_CC"
	case CmdSetCCNew:
		return "SET_CCNEW"
	case CmdSelect:
		return "SELECT"
	case CmdReadPage:
		return "READ_PAGE"
	case CmdReadBlock:
		return "READ_BLOCK"
	case CmdWritePage:
		return "WRITE_PAGE"
	case CmdWriteBlock:
		return "WRITE_BLOCK"
	case CmdHalt:
		return "HALT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is one reader to tag command.
type Command struct {
	Kind Kind
	UID  uint32 // CmdSelect
	Page uint8  // page commands and CmdHalt
}

const (
	shortBits  = 5
	pageBits   = 20
	selectBits = 45
	// A tag may see up to two spurious bits before the command.
	maxLeadingBits = 2
)

var (
	codeSetCC    = [shortBits]bool{false, false, true, true, false}
	codeSetCCNew = [shortBits]bool{true, true, false, false, true}
)

var pageOpcodes = map[Kind]byte{
	CmdReadPage:   0xC,
	CmdReadBlock:  0xD,
	CmdWritePage:  0x8,
	CmdWriteBlock: 0x9,
	CmdHalt:       0x7,
}

// Bits returns the command as sent on the downlink, CRC included.
func (c Command) Bits() []bool {
	switch c.Kind {
	case CmdSetCC:
		return append([]bool(nil), codeSetCC[:]...)
	case CmdSetCCNew:
		return append([]bool(nil), codeSetCCNew[:]...)
	case CmdSelect:
		bits := make([]bool, 5, selectBits)
		var uid [4]byte
		binary.BigEndian.PutUint32(uid[:], c.UID)
		bits = appendBytes(bits, uid[:]...)
		return appendByte(bits, CRC8(bits))
	default:
		op, ok := pageOpcodes[c.Kind]
		if !ok {
			return nil
		}
		bits := make([]bool, 0, pageBits)
		for i := 3; i >= 0; i-- {
			bits = append(bits, op>>i&1 == 1)
		}
		bits = appendByte(bits, c.Page)
		return appendByte(bits, CRC8(bits))
	}
}

func (c Command) String() string {
	switch c.Kind {
	case CmdSelect:
		return fmt.Sprintf("%s %08X", c.Kind, c.UID)
	case CmdSetCC, CmdSetCCNew:
		return c.Kind.String()
	default:
		return fmt.Sprintf("%s %d", c.Kind, c.Page)
	}
}

// ParseCommand recognises a command in bits received by a tag.
func ParseCommand(bits []bool) (Command, bool) {
	for skip := 0; skip <= maxLeadingBits && skip < len(bits); skip++ {
		if cmd, ok := parseExact(bits[skip:]); ok {
			return cmd, true
		}
	}
	return Command{}, false
}

func parseExact(bits []bool) (Command, bool) {
	switch len(bits) {
	case shortBits:
		switch [shortBits]bool(bits) {
		case codeSetCC:
			return Command{Kind: CmdSetCC}, true
		case codeSetCCNew:
			return Command{Kind: CmdSetCCNew}, true
		}
	case selectBits:
		if packBits(bits[:5]) != 0 || CRC8(bits[:selectBits-8]) != packBits(bits[selectBits-8:]) {
			return Command{}, false
		}
		uid := binary.BigEndian.Uint32(bitsToBytes(bits[5 : 5+32]))
		return Command{Kind: CmdSelect, UID: uid}, true
	case pageBits:
		if CRC8(bits[:pageBits-8]) != packBits(bits[pageBits-8:]) {
			return Command{}, false
		}
		op := packBits(bits[:4]) >> 4
		page := packBits(bits[4:12])
		for kind, code := range pageOpcodes {
			if code == op {
				return Command{Kind: kind, Page: page}, true
			}
		}
	}
	return Command{}, false
}
