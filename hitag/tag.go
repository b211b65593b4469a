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
	"strings"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

const (
	// Pages is the number of 32-bit pages on a Hitag S 2048 tag.
	Pages = 64
	// PageBytes is the size of one page.
	PageBytes = 4
	// BlockPages is the number of pages in a block.
	BlockPages = 4
	// DumpSize is the serialised tag: page data followed by one known flag per page.
	DumpSize = Pages*PageBytes + Pages

	uidPage    = 0
	configPage = 1
)

// Access is what a reader may do with a page.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

// Tag is the memory image of a Hitag S tag as far as a reader has seen it.
type Tag struct {
	Data   [Pages][PageBytes]byte
	Known  [Pages]bool
	access [Pages]Access
	public [Pages]bool
}

// NewTag returns an empty tag with factory access rights.
func NewTag() *Tag {
	t := &Tag{}
	t.resetAccess()
	return t
}

func (t *Tag) resetAccess() {
	for p := range t.access {
		t.access[p] = AccessRead
		if p >= Pages/2 {
			t.access[p] |= AccessWrite
		}
		t.public[p] = p < 2 || p > 31
	}
	t.access[2] = 0
	t.access[3] = 0
}

// UID returns page 0.
func (t *Tag) UID() uint32 {
	return binary.BigEndian.Uint32(t.Data[uidPage][:])
}

// SetUID stores uid in page 0 and marks it known.
func (t *Tag) SetUID(uid uint32) {
	binary.BigEndian.PutUint32(t.Data[uidPage][:], uid)
	t.Known[uidPage] = true
}

// SetPage stores one page and marks it known. Writing the config page
// reapplies it.
func (t *Tag) SetPage(page int, data [PageBytes]byte) {
	t.Data[page] = data
	t.Known[page] = true
	if page == configPage {
		t.ApplyConfig()
	}
}

// Access reports the rights the config page grants on page.
func (t *Tag) Access(page int) Access {
	return t.access[page]
}

// Public reports whether page can be read without authentication.
func (t *Tag) Public(page int) bool {
	return t.public[page]
}

func (t *Tag) setBlock(block int, a Access) {
	for p := block * BlockPages; p < (block+1)*BlockPages; p++ {
		t.access[p] = a
	}
}

func pick(set bool, yes, no Access) Access {
	if set {
		return yes
	}
	return no
}

// ApplyConfig derives access rights and visibility from the config page.
func (t *Tag) ApplyConfig() {
	rw := AccessRead | AccessWrite
	c0, c1 := t.Data[configPage][0], t.Data[configPage][1]

	t.setBlock(1, pick(c0&0x80 != 0, rw, 0))
	t.access[2] = pick(c0&0x40 != 0, AccessWrite, 0)
	t.access[3] = t.access[2]
	for block := 2; block <= 7; block++ {
		t.setBlock(block, pick(c0&(0x80>>block) != 0, rw, AccessRead))
	}
	t.access[configPage] = pick(c1&0x10 != 0, rw, AccessRead)

	for p := 4 * BlockPages; p < 8*BlockPages; p++ {
		t.public[p] = c1&0x01 != 0
	}
}

// Readable reports whether a reader can fetch page without authentication.
func (t *Tag) Readable(page int) bool {
	return t.public[page] && t.access[page]&AccessRead != 0
}

// MarshalBinary returns the DumpSize byte image of the tag.
func (t *Tag) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, DumpSize)
	for _, page := range t.Data {
		out = append(out, page[:]...)
	}
	for _, known := range t.Known {
		if known {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out, nil
}

// UnmarshalBinary loads an image written by MarshalBinary.
func (t *Tag) UnmarshalBinary(data []byte) error {
	if len(data) != DumpSize {
		return fmt.Errorf("hitag image of %d bytes: %w", len(data), lfrfid.ErrDataSize)
	}
	for p := range t.Data {
		copy(t.Data[p][:], data[p*PageBytes:])
		t.Known[p] = data[Pages*PageBytes+p] != 0
	}
	t.resetAccess()
	if t.Known[configPage] {
		t.ApplyConfig()
	}
	return nil
}

// KnownPages counts the pages read so far.
func (t *Tag) KnownPages() int {
	n := 0
	for _, k := range t.Known {
		if k {
			n++
		}
	}
	return n
}

// Render formats the tag for display, one page per line.
func (t *Tag) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "UID: %08X\n", t.UID())
	fmt.Fprintf(&b, "Pages known: %d/%d\n", t.KnownPages(), Pages)
	for p := range t.Data {
		if !t.Known[p] {
			continue
		}
		fmt.Fprintf(&b, "%2d: % X\n", p, t.Data[p][:])
	}
	return b.String()
}
