//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"flapchain/core"
	"flapchain/node"
	"flapchain/property"
	"flapchain/protocol"
)

var (
	// UART0 receives from the previous module and transmits to the next
	chainUART = machine.UART0

	engine    *node.Engine
	idle      core.Timer
	idleTicks uint32
	quiet     bool // no chain traffic for a full module timeout

	firmwareBlocks uint32
)

func main() {
	// Clear any watchdog state left over from a reboot command
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitDebugUART()
	UpdateSystemTime()

	module := node.NewModule(protocol.Version)

	store, err := node.OpenStore(machine.Flash, true)
	if err != nil {
		core.DebugPrintln("[STORE] mount failed: " + err.Error())
	} else {
		n := module.Attach(store)
		core.DebugPrintln("[STORE] restored " + core.Utoa(uint32(n)) + " properties")
	}

	light := newLED()
	light.Show(module.Color)

	module.OnChange = func(id protocol.PropertyID) {
		if id == protocol.PropertyColor {
			light.Show(module.Color)
		}
	}
	module.OnCommand = func(cmd property.Command) {
		if cmd == property.CommandReboot {
			// The ACK is already downstream, keep pending values
			if err := module.Flush(); err != nil {
				core.DebugPrintln("[STORE] " + err.Error())
			}
			reset()
		}
	}
	module.OnFirmwareBlock = func(b property.FirmwareBlock) error {
		// Image handling belongs to the bootloader; count what arrives
		firmwareBlocks++
		core.DebugAsync("[FW] block " + core.Utoa(uint32(b.Index)))
		return nil
	}

	handlers, err := module.Handlers(nil)
	if err != nil {
		core.DebugPrintln("[INIT] " + err.Error())
		return
	}
	engine = node.NewEngine(handlers)

	idleTicks = core.TimerFromDuration(protocol.ModuleTimeout)
	idle.Handler = func(*core.Timer) uint8 {
		engine.Timeout()
		quiet = true
		return core.SF_DONE
	}

	err = chainUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		core.DebugPrintln("[INIT] chain UART: " + err.Error())
		return
	}

	for {
		UpdateSystemTime()
		pump()
		core.ProcessTimers()

		// Flash writes stall the CPU, so only flush between transfers
		if quiet && module.Dirty() {
			if err := module.Flush(); err != nil {
				core.DebugAsync("[STORE] " + err.Error())
			}
		}
	}
}

// pump feeds every received byte to the engine and transmits its output.
// A blocking WriteByte returns once the byte is queued, which stands in for
// the transmit-complete event.
func pump() {
	for chainUART.Buffered() > 0 {
		b, err := chainUART.ReadByte()
		if err != nil {
			return
		}
		touch()

		out, ok := engine.Receive(b)
		for ok {
			chainUART.WriteByte(out)
			touch()
			out, ok = engine.TransmitComplete()
		}
	}
}

// touch re-arms the idle timeout after bus activity
func touch() {
	quiet = false
	idle.WakeTime = core.GetTime() + idleTicks
	core.ScheduleTimer(&idle)
}

// reset reboots through the watchdog, which is more reliable on the RP2040
// than a SYSRESETREQ
func reset() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(time.Millisecond)
	}
}
