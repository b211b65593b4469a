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

package uart

import (
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

// Port describes a candidate co-processor port
type Port struct {
	Name    string
	VIDPID  string
	Product string
	Serial  string
}

// DetectOptions filters port discovery
type DetectOptions struct {
	// Blocklist holds VID:PID pairs that are never offered
	Blocklist []string
	// IgnorePaths holds device paths that are never offered
	IgnorePaths []string
	// USBOnly drops ports without USB descriptors
	USBOnly bool
}

// DefaultBlocklist returns USB devices known not to be LF co-processors
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, often running unrelated sketches
		"1A86:55D4", // CH9102 on ESP32 boards with stock firmware
	}
}

// Detect lists the serial ports that may host a co-processor
func Detect(opts DetectOptions) ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, lfrfid.NewFrontendError("detect", "", err, lfrfid.ErrorTypePermanent)
	}
	return filterPorts(details, opts), nil
}

func filterPorts(details []*enumerator.PortDetails, opts DetectOptions) []Port {
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		if d == nil || IsPathIgnored(d.Name, opts.IgnorePaths) {
			continue
		}
		var vidpid string
		if d.IsUSB {
			vidpid = ParseVIDPID(d.VID + ":" + d.PID)
		}
		if opts.USBOnly && vidpid == "" {
			continue
		}
		if vidpid != "" && IsBlocked(vidpid, opts.Blocklist) {
			lfrfid.Debugf("uart: skipping blocked device %s at %s", vidpid, d.Name)
			continue
		}
		ports = append(ports, Port{
			Name:    d.Name,
			VIDPID:  vidpid,
			Product: d.Product,
			Serial:  d.SerialNumber,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports
}

// IsBlocked checks if a USB device is in the blocklist
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// ParseVIDPID extracts VID:PID from various USB descriptor formats.
// Accepted forms are "VID:1234 PID:5678", "vendor=1234 product=5678" and "1234:5678".
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	vid := valueAfter(descriptor, "VID:", "VENDOR=", "VID=")
	pid := valueAfter(descriptor, "PID:", "PRODUCT=", "PID=")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if parts := strings.Split(descriptor, ":"); len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
		return descriptor
	}
	return ""
}

// valueAfter returns the hex run following the first key found
func valueAfter(s string, keys ...string) string {
	for _, key := range keys {
		if idx := strings.Index(s, key); idx >= 0 {
			return extractHex(s[idx+len(key):])
		}
	}
	return ""
}

// extractHex returns the first run of hex digits in s
func extractHex(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !isHexDigit(r) })
	end := 0
	for end < len(s) && isHexDigit(rune(s[end])) {
		end++
	}
	return s[:end]
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

// IsPathIgnored checks if a device path should be ignored. Paths are compared
// cleaned and case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := strings.ToLower(filepath.Clean(devicePath))
	for _, p := range ignorePaths {
		if p != "" && strings.ToLower(filepath.Clean(p)) == device {
			return true
		}
	}
	return false
}
