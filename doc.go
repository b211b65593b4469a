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

/*
Package lfrfid provides a pure Go engine for 125 kHz LF-RFID cards.

It decodes the demodulated edge stream of a reader front end into card data and encodes
card data back into a pulse stream for emulation or T5577 cloning. The protocol plugins,
the protocol dictionary and the worker that drives a front end live in sub-packages; this
package holds the shared signal types, the Frontend interface, errors and debug logging.

Features:
  - EM4100 (RF/64, RF/32, RF/16), HID H10301, Indala26, Indala224, FDX-B, GProxII,
    Securakey and InstaFob
  - ASK and PSK read paths with automatic switching
  - T5577 write with read-back verification
  - Raw capture to file and raw replay
  - GPIO (periph.io), serial co-processor and in-memory loopback front ends

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-lfrfid/frontend/uart"
	    "github.com/ZaparooProject/go-lfrfid/protocols"
	    "github.com/ZaparooProject/go-lfrfid/worker"
	)

	fe, err := uart.New("/dev/ttyACM0")
	if err != nil {
	    log.Fatal(err)
	}
	defer fe.Close()

	w, err := worker.New(fe, protocols.NewDict())
	if err != nil {
	    log.Fatal(err)
	}
	if err := w.Start(); err != nil {
	    log.Fatal(err)
	}
	defer w.Close()

	err = w.Read(worker.ReadAuto, func(res worker.ReadResult, id protocols.ProtocolID) {
	    if res == worker.ReadDone {
	        fmt.Println(w.Dict().Name(id), w.Dict().RenderBrief(id))
	    }
	})

Error Handling:

All operations return meaningful errors that can be inspected:

	if errors.Is(err, lfrfid.ErrTimeout) {
	    // Handle timeout
	}

Thread Safety:

A protocol dictionary is owned by exactly one worker goroutine. Read its data only from
worker callbacks or after the worker is stopped.
*/
package lfrfid
