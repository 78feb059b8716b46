//go:build rp2040 || rp2350

package main

import (
	"machine"

	"flapchain/core"
)

var debugUART *machine.UART

// InitDebugUART routes core debug output to UART1 on GPIO4 (TX) and GPIO5
// (RX). UART0 belongs to the chain.
func InitDebugUART() {
	debugUART = machine.UART1

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO4,
		RX:       machine.GPIO5,
	})
	if err != nil {
		debugUART = nil
		return
	}

	core.SetDebugWriter(DebugPrintln)
	core.StartDebugQueue(16)
}

// DebugPrintln writes a string to the debug UART with newline
func DebugPrintln(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
