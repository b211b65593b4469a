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
	"time"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-lfrfid/worker"
)

var writeTimeout time.Duration

var writeCmd = &cobra.Command{
	Use:   "write <keyfile>",
	Short: "Clone a key file onto a T5577",
	Long: `Program the card in the key file into a T5577 in the field and read it back.

Each attempt writes every block and then listens for the new card; a tag that keeps
answering with other data is reported as not writable.`,
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 30*time.Second, "Give up after this long")
	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, args []string) error {
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

	ctx, stop := waitContext(cmd, writeTimeout)
	defer stop()

	done := make(chan worker.WriteResult, 1)
	if err := s.w.Write(id, func(result worker.WriteResult) { done <- result }); err != nil {
		return err
	}
	s.out.Info("hold a T5577 to the antenna")

	select {
	case result := <-done:
		if result != worker.WriteOK {
			return fmt.Errorf("write failed: %s", result)
		}
		s.out.OK("written and verified")
		return nil
	case <-ctx.Done():
		return interrupted(ctx, "write", writeTimeout)
	}
}
