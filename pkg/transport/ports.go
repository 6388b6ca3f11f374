// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on this machine
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Common USB bridge vendors on ESP32 controller boards
var knownVendors = map[string]string{
	"10C4": "Silicon Labs CP210x",
	"1A86": "WCH CH34x",
	"0403": "FTDI",
	"303A": "Espressif USB",
}

// Vendor returns a friendly name for the USB bridge, if known
func (p PortInfo) Vendor() string {
	return knownVendors[strings.ToUpper(p.VID)]
}

// ListPorts enumerates serial ports, USB ports first
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].IsUSB != ports[j].IsUSB {
			return ports[i].IsUSB
		}
		return ports[i].Name < ports[j].Name
	})
	return ports, nil
}
