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

// Package keyfile reads and writes saved card records.
//
// A key file is line oriented text:
//
//	Filetype: Flipper RFID key
//	Version: 1
//	Key type: EM4100
//	Data: 12 34 56 78 9A
//
// Lines starting with '#' are comments.
package keyfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/protocols"
)

const (
	// Filetype is the header every key file starts with
	Filetype = "Flipper RFID key"
	// Version is the only supported format version
	Version = "1"
)

const (
	keyFiletype = "Filetype"
	keyVersion  = "Version"
	keyType     = "Key type"
	keyData     = "Data"
)

// Save writes the record of id held by dict.
func Save(w io.Writer, dict *protocols.Dict, id protocols.ProtocolID) error {
	return SaveRecord(w, dict.Name(id), dict.Data(id))
}

// SaveRecord writes a record of the named key type.
func SaveRecord(w io.Writer, keyName string, data []byte) error {
	hexBytes := make([]string, len(data))
	for i, b := range data {
		hexBytes[i] = fmt.Sprintf("%02X", b)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s: %s\n", keyFiletype, Filetype)
	fmt.Fprintf(bw, "%s: %s\n", keyVersion, Version)
	fmt.Fprintf(bw, "%s: %s\n", keyType, keyName)
	fmt.Fprintf(bw, "# %s has %d data bytes\n", keyName, len(data))
	fmt.Fprintf(bw, "%s: %s\n", keyData, strings.Join(hexBytes, " "))
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// SaveFile writes the record of id to path.
func SaveFile(path string, dict *protocols.Dict, id protocols.ProtocolID) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create key file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close key file %s: %w", path, closeErr)
		}
	}()
	return Save(f, dict, id)
}

// Load reads a key file into dict and returns the protocol it names. On failure the
// protocol is protocols.ProtocolNo and dict is left unchanged.
func Load(r io.Reader, dict *protocols.Dict) (protocols.ProtocolID, error) {
	keyName, data, err := LoadRecord(r)
	if err != nil {
		return protocols.ProtocolNo, err
	}

	id := dict.ByName(keyName)
	if id == protocols.ProtocolNo {
		return protocols.ProtocolNo, fmt.Errorf("%q: %w", keyName, lfrfid.ErrUnknownProtocol)
	}
	if err := dict.SetData(id, data); err != nil {
		return protocols.ProtocolNo, err
	}
	lfrfid.Debugf("loaded %s key: %s", dict.Name(id), dict.RenderBrief(id))
	return id, nil
}

// LoadRecord reads a key file and returns its key type and data bytes.
func LoadRecord(r io.Reader) (keyName string, data []byte, err error) {
	fields, err := parse(r)
	if err != nil {
		return "", nil, err
	}

	for _, k := range []string{keyFiletype, keyVersion, keyType, keyData} {
		if _, ok := fields[k]; !ok {
			return "", nil, fmt.Errorf("missing %q: %w", k, lfrfid.ErrKeyFileFormat)
		}
	}
	if fields[keyFiletype] != Filetype {
		return "", nil, fmt.Errorf("filetype %q: %w", fields[keyFiletype], lfrfid.ErrKeyFileFormat)
	}
	if fields[keyVersion] != Version {
		return "", nil, fmt.Errorf("version %q: %w", fields[keyVersion], lfrfid.ErrKeyFileFormat)
	}

	data, err = hex.DecodeString(strings.Join(strings.Fields(fields[keyData]), ""))
	if err != nil {
		return "", nil, fmt.Errorf("data %q: %w", fields[keyData], lfrfid.ErrKeyFileFormat)
	}
	return fields[keyType], data, nil
}

// LoadFile reads the key file at path into dict.
func LoadFile(path string, dict *protocols.Dict) (protocols.ProtocolID, error) {
	f, err := os.Open(path)
	if err != nil {
		return protocols.ProtocolNo, fmt.Errorf("failed to open key file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f, dict)
}

// parse collects "Key: value" lines. The first occurrence of a key wins.
func parse(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: %w", lineNo, lfrfid.ErrKeyFileFormat)
		}
		key = strings.TrimSpace(key)
		if _, seen := fields[key]; !seen {
			fields[key] = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return fields, nil
}
