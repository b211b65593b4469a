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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/frontend/gpio"
	"github.com/ZaparooProject/go-lfrfid/frontend/loopback"
	"github.com/ZaparooProject/go-lfrfid/frontend/uart"
	"github.com/ZaparooProject/go-lfrfid/hitag"
	"github.com/ZaparooProject/go-lfrfid/keyfile"
	"github.com/ZaparooProject/go-lfrfid/protocols"
	"github.com/ZaparooProject/go-lfrfid/worker"
)

var (
	// Front end selection
	frontendKind string
	portName     string
	baudRate     int
	tagFile      string
	hitagFile    string

	// GPIO pins
	inputPin      string
	carrierPin    string
	modulationPin string

	debug   bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lfrfid",
	Short: "125 kHz RFID reader, writer and emulator",
	Long: `lfrfid drives a 125 kHz analog front end to read, clone and emulate LF cards.

Front ends:
  serial:   --port /dev/ttyACM0 [--baud 115200]  (port is detected when omitted)
  gpio:     [--input-pin GPIO17 --carrier-pin GPIO18 --mod-pin GPIO23]
  loopback: [--tag card.rfid] [--hitag dump.rfid]  (in-memory tags, for trying things out)

Cards are stored in Flipper RFID key files.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		lfrfid.SetDebugEnabled(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&frontendKind, "frontend", "f", "serial", "Front end: serial, gpio or loopback")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the co-processor")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", uart.DefaultConfig().BaudRate, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&tagFile, "tag", "", "Key file placed on the loopback tag")
	rootCmd.PersistentFlags().StringVar(&hitagFile, "hitag", "", "Hitag S dump placed in the loopback field")

	def := gpio.DefaultConfig()
	rootCmd.PersistentFlags().StringVar(&inputPin, "input-pin", def.InputPin, "Comparator input pin (gpio only)")
	rootCmd.PersistentFlags().StringVar(&carrierPin, "carrier-pin", def.CarrierPin, "Carrier PWM pin (gpio only)")
	rootCmd.PersistentFlags().StringVar(&modulationPin, "mod-pin", def.ModulationPin, "Load modulation pin (gpio only)")

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show progress events")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func openFrontend() (lfrfid.Frontend, error) {
	switch strings.ToLower(frontendKind) {
	case "serial", "uart":
		port := portName
		if port == "" {
			ports, err := uart.Detect(uart.DetectOptions{Blocklist: uart.DefaultBlocklist(), USBOnly: true})
			if err != nil {
				return nil, err
			}
			if len(ports) == 0 {
				return nil, errors.New("no serial co-processor found, use --port")
			}
			port = ports[0].Name
		}
		cfg := uart.DefaultConfig()
		cfg.BaudRate = baudRate
		return uart.NewWithConfig(port, cfg)

	case "gpio":
		cfg := gpio.DefaultConfig()
		cfg.InputPin = inputPin
		cfg.CarrierPin = carrierPin
		cfg.ModulationPin = modulationPin
		return gpio.New(cfg)

	case "loopback":
		tag := loopback.NewVirtualTag()
		if tagFile != "" {
			dict := protocols.NewDict()
			id, err := keyfile.LoadFile(tagFile, dict)
			if err != nil {
				return nil, err
			}
			vt, ok := loopback.NewVirtualTagFor(dict, id)
			if !ok {
				return nil, fmt.Errorf("%s: %w", dict.Name(id), lfrfid.ErrWriteUnsupported)
			}
			tag = vt
		}
		lb := loopback.New(tag)
		if hitagFile != "" {
			ht, err := hitag.LoadFile(hitagFile)
			if err != nil {
				return nil, err
			}
			lb.SetHitag(ht)
		}
		return lb, nil

	default:
		return nil, fmt.Errorf("unknown front end %q", frontendKind)
	}
}

// session is an open front end with a running worker
type session struct {
	fe  lfrfid.Frontend
	w   *worker.Worker
	out *Output
}

func openSession(opts ...worker.Option) (*session, error) {
	fe, err := openFrontend()
	if err != nil {
		return nil, err
	}
	w, err := worker.New(fe, protocols.NewDict(), opts...)
	if err != nil {
		_ = fe.Close()
		return nil, err
	}
	if err := w.Start(); err != nil {
		_ = fe.Close()
		return nil, err
	}
	return &session{fe: fe, w: w, out: NewOutput(verbose)}, nil
}

// loadKey reads a key file into the worker dictionary; the worker must be idle
func (s *session) loadKey(path string) (protocols.ProtocolID, error) {
	return keyfile.LoadFile(path, s.w.Dict())
}

func (s *session) Close() {
	_ = s.w.Close()
	_ = s.fe.Close()
}

// waitContext ends on Ctrl+C or after timeout when it is positive
func waitContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// interrupted turns a finished wait into the command result
func interrupted(ctx context.Context, what string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: nothing after %s", what, timeout)
	}
	return nil
}

func parseReadType(s string) (worker.ReadType, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return worker.ReadAuto, nil
	case "ask":
		return worker.ReadASKOnly, nil
	case "psk":
		return worker.ReadPSKOnly, nil
	default:
		return 0, fmt.Errorf("unknown read type %q, want auto, ask or psk", s)
	}
}
