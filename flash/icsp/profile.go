//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package icsp

import (
	"time"
)

// Profile describes a device family: row geometry, memory map and timings.
// All addresses are device word addresses.
type Profile struct {
	Name string

	// RowSize is the number of 16-bit words programmed at once.
	RowSize int
	// WriteAlign is the granularity, in bytes, hex data lengths are rounded
	// up to.
	WriteAlign int
	// WordsPerRead is the number of 16-bit words returned by one ReadWord.
	WordsPerRead int

	// Rows overlapping [ConfigAddress, ConfigEnd) are written with
	// WriteConfig. A zero ConfigEnd leaves the region open-ended.
	ConfigAddress uint32
	ConfigEnd     uint32
	// ConfigFirst is the address of the first configuration word.
	ConfigFirst uint32
	ConfigCount int
	// AddrStep is the address increment between consecutive words.
	AddrStep uint32

	DeviceIDAddress   uint32
	RevisionIDAddress uint32

	WriteTime     time.Duration
	ConfigTime    time.Duration
	BulkEraseTime time.Duration

	// Readback report.
	InfoSegments int
	FlashSize    string
	DataEESize   string
	DumpAddress  uint32
	DumpMask     uint32
}

// RowBytes is the number of hex image bytes a row holds.
func (p *Profile) RowBytes() uint32 {
	return uint32(p.RowSize) * 2
}

// InConfig tells whether the row at addr overlaps the configuration region.
func (p *Profile) InConfig(addr uint32) bool {
	if addr+uint32(p.RowSize) <= p.ConfigAddress {
		return false
	}
	return p.ConfigEnd == 0 || addr < p.ConfigEnd
}
