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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-lfrfid/frontend/uart"
	"github.com/ZaparooProject/go-lfrfid/keyfile"
	"github.com/ZaparooProject/go-lfrfid/protocols"
)

var protocolsCmd = &cobra.Command{
	Use:   "protocols",
	Short: "List supported protocols",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		dict := protocols.NewDict()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tMANUFACTURER\tFEATURES\tBYTES\tWRITABLE")
		for i := 0; i < dict.Count(); i++ {
			id := protocols.ProtocolID(i)
			var req protocols.WriteRequest
			writable := "no"
			if dict.WriteData(id, &req) {
				writable = "yes"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				dict.Name(id), dict.Manufacturer(id), dict.Features(id), dict.DataSize(id), writable)
		}
		return tw.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <keyfile>",
	Short: "Print the card stored in a key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		dict := protocols.NewDict()
		id, err := keyfile.LoadFile(args[0], dict)
		if err != nil {
			return err
		}
		NewOutput(true).Card(dict, id)
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports that may host a co-processor",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		ports, err := uart.Detect(uart.DetectOptions{Blocklist: uart.DefaultBlocklist()})
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			NewOutput(false).Warning("no serial ports found")
			return nil
		}
		for _, p := range ports {
			_, _ = fmt.Printf("%s\t%s\t%s %s\n", p.Name, p.VIDPID, p.Product, p.Serial)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(protocolsCmd, showCmd, portsCmd)
}
