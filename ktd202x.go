// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// Configuration errors, reported by New before any bus or supply
// access.
var (
	errUnsupportedVariant = errors.New("ktd202x: unsupported variant")
	errInvalidAddress     = errors.New("ktd202x: address not supported by variant")
	errNoLEDs             = errors.New("ktd202x: at least one LED is required")
	errEmptyLED           = errors.New("ktd202x: LED without channels")
	errInvalidChannel     = errors.New("ktd202x: channel index out of range")
	errChannelReused      = errors.New("ktd202x: channel assigned to more than one LED")
)

var (
	errBadBrightness  = errors.New("ktd202x: brightness out of range")
	errBadIntensities = errors.New("ktd202x: intensity count does not match channel count")
	errBadBlink       = errors.New("ktd202x: negative blink duration")
)

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ktd202x: %w", err)
}

// PowerSupply switches the chip's VIN rail.
type PowerSupply interface {
	Enable() error
	Disable() error
}

// PinSupply adapts a GPIO driven regulator enable line to PowerSupply.
type PinSupply struct {
	Pin gpio.PinOut
}

// Enable drives the enable line high.
func (p *PinSupply) Enable() error { return p.Pin.Out(gpio.High) }

// Disable drives the enable line low.
func (p *PinSupply) Disable() error { return p.Pin.Out(gpio.Low) }

// alwaysOn is the supply used when none is configured: the rail is
// hard wired and never fails.
type alwaysOn struct{}

func (alwaysOn) Enable() error  { return nil }
func (alwaysOn) Disable() error { return nil }

// Color is the role of a channel inside a multicolor LED.
type Color uint8

const (
	ColorWhite Color = iota
	ColorRed
	ColorGreen
	ColorBlue
)

func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "white"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	}
	return fmt.Sprintf("Color(%d)", uint8(c))
}

// ChannelConfig assigns one chip output to an LED.
type ChannelConfig struct {
	// Channel is the output index, 0 to 2 on the KTD2026 and 0 to 3 on
	// the KTD2027.
	Channel int
	// Color is the role of the output inside a multicolor LED.
	Color Color
}

// LEDConfig describes one logical LED. A single channel makes a
// standalone LED; two to four channels make one multicolor LED whose
// members share brightness and blink settings.
type LEDConfig struct {
	Channels []ChannelConfig
}

// Opts holds the configuration for one chip.
type Opts struct {
	// Addr is the I²C address of the chip. Defaults to 0x30.
	Addr uint16
	// Supply switches the VIN rail. Leave nil when the rail is hard
	// wired.
	Supply PowerSupply
	// LEDs declares how the channels are grouped into logical LEDs.
	LEDs []LEDConfig
}

// Dev is a handle to a KTD2026 or KTD2027.
type Dev struct {
	variant Variant
	supply  PowerSupply

	mu      sync.Mutex // held for all register access and power transitions
	regs    *regmap
	enabled bool
	leds    []*LED
}

// LED is one logical LED of a chip, standalone or multicolor.
type LED struct {
	d        *Dev
	channels []ChannelConfig

	// Guarded by d.mu.
	brightness display.Intensity
	mix        []display.Intensity
}

// New returns a handle to a KTD202x chip on the given bus. The
// configuration is validated before the first bus or supply access.
//
// The chip is hard reset so the register file is in a known state; the
// supply is only kept up for the duration of the reset.
func New(bus i2c.Bus, v Variant, opts *Opts) (*Dev, error) {
	info, ok := variants[v]
	if !ok {
		return nil, errUnsupportedVariant
	}
	if opts == nil || len(opts.LEDs) == 0 {
		return nil, errNoLEDs
	}
	addr := opts.Addr
	if addr == 0 {
		addr = 0x30
	}
	if info.isAddrInvalid(addr) {
		return nil, errInvalidAddress
	}
	var used [4]bool
	for _, lc := range opts.LEDs {
		if len(lc.Channels) == 0 {
			return nil, errEmptyLED
		}
		for _, c := range lc.Channels {
			if c.Channel < 0 || c.Channel >= info.channels {
				return nil, errInvalidChannel
			}
			if used[c.Channel] {
				return nil, errChannelReused
			}
			used[c.Channel] = true
		}
	}

	supply := opts.Supply
	if supply == nil {
		supply = alwaysOn{}
	}
	d := &Dev{
		variant: v,
		supply:  supply,
		regs:    newRegmap(&i2c.Dev{Bus: bus, Addr: addr}),
	}
	for _, lc := range opts.LEDs {
		l := &LED{
			d:        d,
			channels: append([]ChannelConfig(nil), lc.Channels...),
			mix:      make([]display.Intensity, len(lc.Channels)),
		}
		// Default color mix: all members at full, so a plain
		// SetBrightness on a fresh LED lights every channel.
		for i := range l.mix {
			l.mix[i] = MaxBrightness
		}
		d.leds = append(d.leds, l)
	}
	if err := d.reset(); err != nil {
		return nil, wrap(err)
	}
	return d, nil
}

// LEDs returns the configured LEDs in declaration order. The returned
// slice is the caller's to keep.
func (d *Dev) LEDs() []*LED {
	return append([]*LED(nil), d.leds...)
}

// Halt resets the chip so every channel is off, regardless of the
// current power state. Implements conn.Resource; meant for shutdown.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.leds {
		l.brightness = 0
	}
	return wrap(d.regs.command(cmdReset))
}

// Close puts the chip to sleep and switches the supply rail off.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.disable())
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.variant, d.regs.i2c)
}

// reset powers the chip just long enough to execute a hard reset, so
// the register file is in a known state before the first request.
func (d *Dev) reset() error {
	if err := d.supply.Enable(); err != nil {
		return err
	}
	if err := d.regs.command(cmdReset); err != nil {
		_ = d.supply.Disable()
		return err
	}
	// The datasheet asks for 200µs to 300µs for the reset to complete.
	time.Sleep(250 * time.Microsecond)
	return d.supply.Disable()
}

// enable makes sure the chip is powered and awake. A failed wake
// switches the supply back off so the rail is not left up on a dead
// chip.
func (d *Dev) enable() error {
	if d.enabled {
		return nil
	}
	if err := d.supply.Enable(); err != nil {
		return err
	}
	if err := d.regs.command(cmdWake); err != nil {
		_ = d.supply.Disable()
		return err
	}
	d.enabled = true
	return nil
}

// disable puts the chip to sleep and cuts the supply. The sleep
// command is best effort: the rail goes down right after. When the
// supply refuses to switch off the chip stays flagged enabled so the
// next idle request retries the disable.
func (d *Dev) disable() error {
	if !d.enabled {
		return nil
	}
	_ = d.regs.command(cmdSleep)
	if err := d.supply.Disable(); err != nil {
		return err
	}
	d.enabled = false
	// The register file is lost with the rail.
	d.regs.invalidate()
	return nil
}

// inUse reports whether any LED still drives a channel.
func (d *Dev) inUse() bool {
	for _, l := range d.leds {
		if l.brightness != 0 {
			return true
		}
	}
	return false
}

// SetBrightness sets the LED's brightness, 0 (off) to MaxBrightness.
// For a multicolor LED the configured color mix is scaled by b. The
// supply is switched on for the first lit channel and back off when
// the last one goes dark.
func (l *LED) SetBrightness(b display.Intensity) error {
	if b < 0 || b > MaxBrightness {
		return errBadBrightness
	}
	d := l.d
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(l.setBrightness(b))
}

// SetIntensities sets the color mix of a multicolor LED, one value per
// configured channel in declaration order, and applies it at the
// current brightness.
func (l *LED) SetIntensities(values ...display.Intensity) error {
	if len(values) != len(l.channels) {
		return errBadIntensities
	}
	for _, v := range values {
		if v < 0 || v > MaxBrightness {
			return errBadBrightness
		}
	}
	d := l.d
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(l.mix, values)
	return wrap(l.apply(l.resolved()))
}

// SetBlink makes the LED blink with roughly the requested on and off
// times and returns the timings the blink engine can actually produce.
// Passing 0 for both selects the 1Hz default. An LED that is currently
// off is first switched to full brightness; a request that never turns
// on switches the LED off instead of running PWM at zero duty.
//
// All members of a multicolor LED blink together; the chip has a
// single period/duty pair.
func (l *LED) SetBlink(on, off time.Duration) (time.Duration, time.Duration, error) {
	if on < 0 || off < 0 {
		return 0, 0, errBadBlink
	}
	d := l.d
	d.mu.Lock()
	defer d.mu.Unlock()

	if on/time.Millisecond == 0 && off/time.Millisecond == 0 {
		on = 500 * time.Millisecond
		off = 500 * time.Millisecond
	}
	if l.brightness == 0 {
		if err := l.setBrightness(MaxBrightness); err != nil {
			return 0, 0, wrap(err)
		}
	}
	// Never on: plain off.
	if on/time.Millisecond == 0 {
		return 0, off, wrap(l.setBrightness(0))
	}
	// The LED is lit at this point; make sure the chip really is awake
	// before touching the timing registers.
	if err := d.enable(); err != nil {
		return 0, 0, wrap(err)
	}
	// Never off: steady on, brightness is already set.
	if off/time.Millisecond == 0 {
		mask, bits := ctrlPatch(l.channels, modeOn)
		return on, 0, wrap(d.regs.updateBits(regChannelCtrl, mask, bits))
	}

	steps, duty, gotOn, gotOff := quantizeBlink(on, off)
	if err := d.regs.write(regFlashPeriod, steps); err != nil {
		return 0, 0, wrap(err)
	}
	if err := d.regs.write(regPWM1Timer, duty); err != nil {
		return 0, 0, wrap(err)
	}
	mask, bits := ctrlPatch(l.channels, modePWM1)
	if err := d.regs.updateBits(regChannelCtrl, mask, bits); err != nil {
		return 0, 0, wrap(err)
	}
	return gotOn, gotOff, nil
}

// Brightness returns the last brightness set on the LED.
func (l *LED) Brightness() display.Intensity {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	return l.brightness
}

func (l *LED) String() string {
	s := "LED("
	for i, c := range l.channels {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d:%s", c.Channel, c.Color)
	}
	return s + ")"
}

func (l *LED) setBrightness(b display.Intensity) error {
	l.brightness = b
	return l.apply(l.resolved())
}

// resolved returns the per channel values at the current brightness:
// the color mix scaled by brightness, rounded to nearest.
func (l *LED) resolved() []display.Intensity {
	values := make([]display.Intensity, len(l.channels))
	for i := range l.channels {
		values[i] = display.Intensity((int(l.mix[i])*int(l.brightness) + int(MaxBrightness)/2) / int(MaxBrightness))
	}
	return values
}

// apply writes the LED's channel values: the IOUT register of each
// member, then one folded patch of the shared control register. A
// failed write aborts the rest of the request; channels already
// written keep their new state.
func (l *LED) apply(values []display.Intensity) error {
	d := l.d
	if d.inUse() {
		if err := d.enable(); err != nil {
			return err
		}
	} else if !d.enabled {
		// Nothing is lit and the chip is unpowered; the register file
		// already has every channel off. Don't touch the bus.
		return nil
	}
	var mask, bits byte
	for i, c := range l.channels {
		if err := d.regs.write(regLedIout+byte(c.Channel), ioutValue(values[i])); err != nil {
			return err
		}
		mask |= ctrlMask(c.Channel)
		if values[i] != 0 {
			bits |= ctrlBits(c.Channel, modeOn)
		}
	}
	if err := d.regs.updateBits(regChannelCtrl, mask, bits); err != nil {
		return err
	}
	if !d.inUse() {
		// Best effort: a failed disable is retried on the next idle
		// request, see disable.
		_ = d.disable()
	}
	return nil
}

var _ conn.Resource = &Dev{}
