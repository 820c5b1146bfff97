// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import "periph.io/x/conn/v3/i2c"

// Register offsets from the datasheet.
const (
	regResetControl byte = 0x00
	regFlashPeriod  byte = 0x01
	regPWM1Timer    byte = 0x02
	regPWM2Timer    byte = 0x03
	regChannelCtrl  byte = 0x04
	regTriseTfall   byte = 0x05
	regLedIout      byte = 0x06 // one register per channel, 0x06..0x09
)

const regCount = 0x0a

// Values written to the reset control register.
const (
	cmdWake  byte = 0x00 // SCL & SDA high
	cmdSleep byte = 0x08 // SCL high & SDA toggling
	cmdReset byte = 0x07
)

// Power-on defaults, restored by cmdReset.
var regDefaults = [regCount]byte{
	regResetControl: 0x00,
	regFlashPeriod:  0x00,
	regPWM1Timer:    0x01,
	regPWM2Timer:    0x01,
	regChannelCtrl:  0x00,
	regTriseTfall:   0x00,
	regLedIout:      0x4f,
	regLedIout + 1:  0x4f,
	regLedIout + 2:  0x4f,
	regLedIout + 3:  0x4f,
}

// regmap is a write-through flat cache over the chip's register file.
// The chip has no side effects on data register writes, so a write
// whose value is already cached can be elided, and read-modify-write
// of the shared channel control register never needs a bus read.
//
// The register file does not survive the chip powering down, so the
// cache only elides a write once the register has actually been
// written (or reset) since the last power-up.
type regmap struct {
	i2c   *i2c.Dev
	cache [regCount]byte
	known [regCount]bool
}

func newRegmap(d *i2c.Dev) *regmap {
	return &regmap{i2c: d, cache: regDefaults}
}

// write writes value to a data register, skipping the bus when the
// register is known to already hold value.
func (r *regmap) write(reg, value byte) error {
	if r.known[reg] && r.cache[reg] == value {
		return nil
	}
	if err := r.i2c.Tx([]byte{reg, value}, nil); err != nil {
		return err
	}
	r.cache[reg] = value
	r.known[reg] = true
	return nil
}

// invalidate reloads the cache from the power-on defaults and forgets
// that any register has been written. Called when the chip powers
// down: a rail cut reverts the register file to the defaults, so
// nothing written before the power-down may elide a write after it.
func (r *regmap) invalidate() {
	r.cache = regDefaults
	r.known = [regCount]bool{}
}

// command writes value to the reset control register, bypassing the
// cache. Wake, sleep and reset are commands to the power logic, not
// state, and must reach the bus every time. A reset restores the
// power-on defaults, so the cache is reloaded from them.
func (r *regmap) command(value byte) error {
	if err := r.i2c.Tx([]byte{regResetControl, value}, nil); err != nil {
		return err
	}
	if value == cmdReset {
		r.cache = regDefaults
		for i := range r.known {
			r.known[i] = true
		}
	} else {
		r.cache[regResetControl] = value
		r.known[regResetControl] = true
	}
	return nil
}

// updateBits replaces the bits selected by mask with value, leaving
// the other bits of the register untouched. At most one bus write.
func (r *regmap) updateBits(reg, mask, value byte) error {
	return r.write(reg, (r.cache[reg]&^mask)|(value&mask))
}
