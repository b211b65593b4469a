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
	"github.com/spf13/cobra"
)

var emulateCmd = &cobra.Command{
	Use:   "emulate <keyfile>",
	Short: "Emulate the card in a key file",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)
}

func runEmulate(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.loadKey(args[0])
	if err != nil {
		return err
	}
	s.out.Card(s.w.Dict(), id)

	ctx, stop := waitContext(cmd, 0)
	defer stop()

	if err := s.w.Emulate(id); err != nil {
		return err
	}
	s.out.Info("emulating, press Ctrl+C to exit")
	<-ctx.Done()

	m := s.w.GetMetrics()
	s.out.Verbose("%d worker ticks", m.Ticks)
	return nil
}
