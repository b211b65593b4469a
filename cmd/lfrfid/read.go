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
	"time"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-lfrfid/keyfile"
	"github.com/ZaparooProject/go-lfrfid/protocols"
	"github.com/ZaparooProject/go-lfrfid/worker"
)

var (
	readType       string
	readSave       string
	readContinuous bool
	readTimeout    time.Duration
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a card",
	Long: `Listen for a card and print it once enough identical frames confirm it.

By default ASK and PSK captures alternate until a card is found.`,
	Args: cobra.NoArgs,
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readType, "type", "t", "auto", "Demodulation: auto, ask or psk")
	readCmd.Flags().StringVarP(&readSave, "save", "s", "", "Save the card to this key file")
	readCmd.Flags().BoolVarP(&readContinuous, "continuous", "c", false, "Keep reading after a card")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, _ []string) error {
	rt, err := parseReadType(readType)
	if err != nil {
		return err
	}
	s, err := openSession(worker.WithContinuousRead(readContinuous))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := waitContext(cmd, readTimeout)
	defer stop()

	found := make(chan struct{}, 1)
	err = s.w.Read(rt, func(result worker.ReadResult, id protocols.ProtocolID) {
		if result != worker.ReadDone {
			s.out.Verbose("read: %s", result)
			return
		}
		dict := s.w.Dict()
		s.out.CardRead(dict, id)
		if readSave != "" {
			if err := keyfile.SaveFile(readSave, dict, id); err != nil {
				s.out.Error("%v", err)
			} else {
				s.out.OK("saved %s", readSave)
			}
		}
		if !readContinuous {
			select {
			case found <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	s.out.Info("waiting for a card, press Ctrl+C to exit")

	select {
	case <-found:
		return nil
	case <-ctx.Done():
		return interrupted(ctx, "read", readTimeout)
	}
}
