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
	"fmt"
	"io"
	"os"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/keyfile"
)

// KeyType names Hitag S images in key files.
const KeyType = "Hitag1"

// Save writes tag as a key file record.
func Save(w io.Writer, tag *Tag) error {
	data, err := tag.MarshalBinary()
	if err != nil {
		return err
	}
	return keyfile.SaveRecord(w, KeyType, data)
}

// Load reads a tag image written by Save.
func Load(r io.Reader) (*Tag, error) {
	keyName, data, err := keyfile.LoadRecord(r)
	if err != nil {
		return nil, err
	}
	if keyName != KeyType {
		return nil, fmt.Errorf("%q: %w", keyName, lfrfid.ErrUnknownProtocol)
	}
	tag := NewTag()
	if err := tag.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return tag, nil
}

// SaveFile writes tag to path.
func SaveFile(path string, tag *Tag) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Save(f, tag); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a tag image from path.
func LoadFile(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}
