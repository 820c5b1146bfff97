// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ktd202xsim emulates a KTD2026/KTD2027 LED driver chip and
// shows the channel outputs in the terminal using ANSI color codes.
//
// It implements i2c.Bus, so the ktd202x driver runs against it
// unmodified. Useful while you are waiting for the real chip to come
// by mail.
package ktd202xsim

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Register file layout of the emulated chip.
const (
	regResetControl = 0x00
	regFlashPeriod  = 0x01
	regPWM1Timer    = 0x02
	regPWM2Timer    = 0x03
	regChannelCtrl  = 0x04
	regLedIout      = 0x06
	regCount        = 0x0a
)

const (
	cmdReset = 0x07
	bitSleep = 0x08
)

var regDefaults = [regCount]byte{
	regPWM1Timer:   0x01,
	regPWM2Timer:   0x01,
	regLedIout:     0x4f,
	regLedIout + 1: 0x4f,
	regLedIout + 2: 0x4f,
	regLedIout + 3: 0x4f,
}

// Opts represents the options available for the emulated chip.
type Opts struct {
	// Addr is the emulated I²C address. Defaults to 0x30.
	Addr uint16
	// Colors is the LED color wired to each channel; its length sets
	// the channel count. Defaults to red, green, blue, white.
	Colors []color.NRGBA
	// Palette used for the terminal rendering.
	Palette *ansi256.Palette
	// W receives the rendered output. Defaults to a colorable stdout.
	W io.Writer

	_ struct{}
}

// Dev emulates the register file of a KTD202x behind i2c.Bus and
// renders one ANSI color block per channel after every write.
type Dev struct {
	addr    uint16
	colors  []color.NRGBA
	palette ansi256.Palette

	mu   sync.Mutex
	w    io.Writer
	regs [regCount]byte
	buf  bytes.Buffer
}

// New returns an emulated chip rendering to the console. The Opts can
// be nil.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	addr := opts.Addr
	if addr == 0 {
		addr = 0x30
	}
	colors := opts.Colors
	if len(colors) > 4 {
		colors = colors[:4]
	}
	if len(colors) == 0 {
		colors = []color.NRGBA{
			{R: 255, A: 255},
			{G: 255, A: 255},
			{B: 255, A: 255},
			{R: 255, G: 255, B: 255, A: 255},
		}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{
		addr:    addr,
		colors:  colors,
		palette: *p,
		w:       w,
		regs:    regDefaults,
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("KTD202XSim(%#02x)", d.addr)
}

// SetSpeed implements i2c.Bus. The emulated chip accepts any speed.
func (d *Dev) SetSpeed(f physic.Frequency) error {
	return nil
}

// Tx implements i2c.Bus. A write is a register address followed by
// values stored at incrementing addresses; a read returns the register
// file starting at the addressed register.
func (d *Dev) Tx(addr uint16, w, r []byte) error {
	if addr != d.addr {
		return fmt.Errorf("ktd202xsim: no device at %#02x", addr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w) == 0 {
		if len(r) == 0 {
			return nil
		}
		return fmt.Errorf("ktd202xsim: read without a register address")
	}
	reg := w[0]
	for i, v := range w[1:] {
		if err := d.store(reg+byte(i), v); err != nil {
			return err
		}
	}
	for i := range r {
		a := int(reg) + i
		if a >= regCount {
			return fmt.Errorf("ktd202xsim: register %#02x out of range", a)
		}
		r[i] = d.regs[a]
	}
	if len(w) > 1 {
		return d.refresh()
	}
	return nil
}

func (d *Dev) store(reg, v byte) error {
	if int(reg) >= regCount {
		return fmt.Errorf("ktd202xsim: register %#02x out of range", reg)
	}
	if reg == regResetControl && v == cmdReset {
		d.regs = regDefaults
		return nil
	}
	d.regs[reg] = v
	return nil
}

// Registers returns a copy of the emulated register file.
func (d *Dev) Registers() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, regCount)
	copy(cp, d.regs[:])
	return cp
}

// Halt restores the terminal. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// refresh redraws the channel blocks. Like screen1d this reuses one
// buffer to minimize the allocations per call.
func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for ch := range d.colors {
		_, _ = io.WriteString(&d.buf, d.palette.Block(d.channelColor(ch)))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return err
}

// channelColor is the momentary color of one channel: the wired LED
// color scaled by the IOUT current setting and the channel mode. The
// PWM modes are shown at their duty cycle average.
func (d *Dev) channelColor(ch int) color.NRGBA {
	if d.regs[regResetControl]&bitSleep != 0 {
		return color.NRGBA{A: 255}
	}
	mode := (d.regs[regChannelCtrl] >> (2 * uint(ch))) & 0x3
	if mode == 0 {
		return color.NRGBA{A: 255}
	}
	level := int(d.regs[regLedIout+byte(ch)]) + 1
	if level > 192 {
		level = 192
	}
	switch mode {
	case 0x2:
		level = level * int(d.regs[regPWM1Timer]) / 256
	case 0x3:
		level = level * int(d.regs[regPWM2Timer]) / 256
	}
	c := d.colors[ch]
	scale := func(v uint8) uint8 {
		return uint8(int(v) * level / 192)
	}
	return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: 255}
}

var _ i2c.Bus = &Dev{}
var _ fmt.Stringer = &Dev{}
