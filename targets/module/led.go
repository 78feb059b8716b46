//go:build rp2040 || rp2350

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"

	"flapchain/property"
)

const ledPin = machine.GPIO16

// led shows the module color on a single WS2812
type led struct {
	dev ws2812.Device
}

func newLED() *led {
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &led{dev: ws2812.New(ledPin)}
}

// Show lights the LED with the foreground color
func (l *led) Show(c property.Color) {
	l.dev.WriteColors([]color.RGBA{{
		R: c.Foreground.R,
		G: c.Foreground.G,
		B: c.Foreground.B,
		A: 0xFF,
	}})
}
