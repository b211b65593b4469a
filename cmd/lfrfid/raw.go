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
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-lfrfid/worker"
)

var (
	rawReadType string
	rawDuration time.Duration
)

var rawReadCmd = &cobra.Command{
	Use:   "raw-read <file>",
	Short: "Capture the demodulated signal to a raw file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRawRead,
}

var rawEmulateCmd = &cobra.Command{
	Use:   "raw-emulate <file>",
	Short: "Replay a raw capture in a loop",
	Args:  cobra.ExactArgs(1),
	RunE:  runRawEmulate,
}

func init() {
	rawReadCmd.Flags().StringVarP(&rawReadType, "type", "t", "ask", "Demodulation: ask or psk")
	rawReadCmd.Flags().DurationVarP(&rawDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	rootCmd.AddCommand(rawReadCmd)
	rootCmd.AddCommand(rawEmulateCmd)
}

func runRawRead(cmd *cobra.Command, args []string) error {
	rt, err := parseReadType(rawReadType)
	if err != nil {
		return err
	}
	if rt == worker.ReadAuto {
		return errors.New("raw capture needs --type ask or psk")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := waitContext(cmd, rawDuration)
	defer stop()

	failed := make(chan struct{}, 1)
	err = s.w.ReadRaw(args[0], rt, func(result worker.ReadRawResult) {
		if result == worker.ReadRawFileError {
			select {
			case failed <- struct{}{}:
			default:
			}
			return
		}
		s.out.Warning("capture overrun, edges dropped")
	})
	if err != nil {
		return err
	}
	s.out.Info("capturing to %s", args[0])

	select {
	case <-failed:
		return errors.New("raw capture: file error")
	case <-ctx.Done():
	}
	if err := s.w.Stop(); err != nil {
		return err
	}
	s.out.OK("capture saved to %s", args[0])
	return nil
}

func runRawEmulate(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := waitContext(cmd, 0)
	defer stop()

	failed := make(chan struct{}, 1)
	err = s.w.EmulateRaw(args[0], func(result worker.EmulateRawResult) {
		if result == worker.EmulateRawFileError {
			select {
			case failed <- struct{}{}:
			default:
			}
			return
		}
		s.out.Verbose("replay underrun")
	})
	if err != nil {
		return err
	}
	s.out.Info("replaying %s, press Ctrl+C to exit", args[0])

	select {
	case <-failed:
		return errors.New("raw replay: file error")
	case <-ctx.Done():
		return nil
	}
}
