// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

import (
	"time"

	"periph.io/x/conn/v3/display"
)

// MaxBrightness is the number of current steps per channel. Brightness
// values passed to this driver range from 0 (off) to MaxBrightness.
const MaxBrightness display.Intensity = 192

// ioutValue converts a brightness into the value of the channel's IOUT
// register. The register holds the current setting minus one; 0 doubles
// as the off value since the channel's control word bits gate the
// output anyway.
func ioutValue(b display.Intensity) byte {
	if b == 0 {
		return 0
	}
	return byte(b - 1)
}

// Channel modes in the channel control register, 2 bits per channel.
const (
	modeOff  byte = 0x0
	modeOn   byte = 0x1
	modePWM1 byte = 0x2 // blink engine, flash period + PWM1 timer
	modePWM2 byte = 0x3
)

func ctrlBits(channel int, mode byte) byte {
	return mode << (2 * uint(channel))
}

func ctrlMask(channel int) byte {
	return ctrlBits(channel, 0x3)
}

// ctrlPatch folds the channels of one request into a single mask/value
// pair so the shared control register is patched with one bus write.
func ctrlPatch(channels []ChannelConfig, mode byte) (mask, value byte) {
	for _, c := range channels {
		mask |= ctrlMask(c.Channel)
		value |= ctrlBits(c.Channel, mode)
	}
	return mask, value
}

// Timing model of the flash period register: a 256ms floor plus 1 to
// 126 steps of 128ms. The PWM timers express the duty cycle in 1/256
// increments of that period.
const (
	blinkPeriodMin  = 256 * time.Millisecond
	blinkPeriodStep = 128 * time.Millisecond
	blinkStepsMax   = 126
	blinkDutyRange  = 256
)

// quantizeBlink converts a requested on/off pair into the nearest
// period/duty encoding the blink engine supports, along with the
// timings that encoding actually produces. off must be at least 1ms;
// the all-on and all-off cases never reach the blink engine.
//
// The hardware works in milliseconds, so finer fractions of the
// request are ignored.
func quantizeBlink(on, off time.Duration) (steps, duty byte, gotOn, gotOff time.Duration) {
	onMS := int64(on / time.Millisecond)
	totalMS := onMS + int64(off/time.Millisecond)

	floorMS := int64(blinkPeriodMin / time.Millisecond)
	stepMS := int64(blinkPeriodStep / time.Millisecond)
	n := int64(1)
	if totalMS > floorMS {
		n = (totalMS-floorMS+stepMS/2)/stepMS + 1
	}
	if n > blinkStepsMax {
		n = blinkStepsMax
	}
	d := onMS * blinkDutyRange / totalMS

	quantMS := n*stepMS + floorMS
	gotOnMS := quantMS * d / blinkDutyRange
	gotOn = time.Duration(gotOnMS) * time.Millisecond
	gotOff = time.Duration(quantMS-gotOnMS) * time.Millisecond
	return byte(n), byte(d), gotOn, gotOff
}
