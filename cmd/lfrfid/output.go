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

package main

import (
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-lfrfid/protocols"
)

// Output handles consistent formatting of messages
type Output struct {
	verbose bool
}

// NewOutput creates a new output handler
func NewOutput(verbose bool) *Output {
	return &Output{verbose: verbose}
}

// CardRead prints a confirmed card
func (o *Output) CardRead(dict *protocols.Dict, id protocols.ProtocolID) {
	_, _ = fmt.Printf("\nCARD: %s %s\n", dict.Name(id), dict.RenderBrief(id))
	if o.verbose {
		o.card(dict, id)
	}
}

// Card prints every detail of a record
func (o *Output) Card(dict *protocols.Dict, id protocols.ProtocolID) {
	_, _ = fmt.Printf("%s (%s)\n", dict.Name(id), dict.Manufacturer(id))
	o.card(dict, id)
}

func (*Output) card(dict *protocols.Dict, id protocols.ProtocolID) {
	data := dict.Data(id)
	hex := make([]string, len(data))
	for i, b := range data {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	_, _ = fmt.Printf("   Data: %s\n", strings.Join(hex, " "))
	for _, line := range strings.Split(dict.RenderData(id), "\n") {
		if line != "" {
			_, _ = fmt.Printf("   %s\n", line)
		}
	}
}

// Error prints an error message
func (*Output) Error(format string, args ...any) {
	_, _ = fmt.Printf("ERROR: "+format+"\n", args...)
}

// Warning prints a warning message
func (*Output) Warning(format string, args ...any) {
	_, _ = fmt.Printf("WARNING: "+format+"\n", args...)
}

// Info prints an info message
func (*Output) Info(format string, args ...any) {
	_, _ = fmt.Printf("INFO: "+format+"\n", args...)
}

// OK prints a success message
func (*Output) OK(format string, args ...any) {
	_, _ = fmt.Printf("OK: "+format+"\n", args...)
}

// Verbose prints only if verbose mode is enabled
func (o *Output) Verbose(format string, args ...any) {
	if o.verbose {
		_, _ = fmt.Printf(format+"\n", args...)
	}
}
