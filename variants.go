// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ktd202x

// Variant is the type denoting a specific chip of the family.
type Variant string

const (
	KTD2026 Variant = "KTD2026" // KTD2026 3-channel (RGB) LED driver.
	KTD2027 Variant = "KTD2027" // KTD2027 4-channel (RGB/white) LED driver.
)

type variant struct {
	channels int
	addStart uint16
	addEnd   uint16
}

var variants = map[Variant]variant{
	KTD2026: {channels: 3, addStart: 0x30, addEnd: 0x31},
	KTD2027: {channels: 4, addStart: 0x30, addEnd: 0x31},
}

// isAddrInvalid checks to see if the address is used by the chip.
func (v variant) isAddrInvalid(addr uint16) bool {
	return addr < v.addStart || v.addEnd < addr
}
