// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ktd202x controls the Kinetic KTD2026 and KTD2027 RGB/white
// LED drivers over I²C.
//
// The KTD2026 drives three and the KTD2027 four current regulated LED
// channels with 192 current steps each, plus a hardware blink engine
// shared by all channels. Channels can be used as independent LEDs or
// grouped into one multicolor LED that blinks as a unit.
//
// The driver also sequences the chip's supply rail: the rail is
// switched on and the chip woken before the first channel lights up,
// and put back to sleep with the rail off once every channel is off
// again. Boards with a switchable rail pass a PowerSupply (typically a
// PinSupply around the regulator enable line); boards with a hard
// wired rail pass none.
//
// # Datasheet
//
// https://www.kinet-ic.com/uploads/web/KTD2026-7/KTD2026-7-04h.pdf
package ktd202x
