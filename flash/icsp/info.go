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
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// InfoSegmentSize is the size of one device info segment. Segments are
// space padded and carry no terminator.
const InfoSegmentSize = 64

const (
	infoConfigPerSegment = 5
	infoDumpWords        = 8
)

type infoState struct {
	open bool
	next int
}

// InfoSegments is the number of segments in the device info report.
func (e *Engine) InfoSegments() int {
	return e.prof.InfoSegments
}

// InfoSize is the total size of the device info report.
func (e *Engine) InfoSize() int {
	return e.prof.InfoSegments * InfoSegmentSize
}

// GetInfo renders segment seg of the device info report into buf.
//
// Segments must be requested in order, starting from 0. Segment 0 enters
// programming mode, the last segment leaves it. Any error aborts the
// readout and leaves programming mode.
func (e *Engine) GetInfo(buf []byte, seg int) error {
	if len(buf) < InfoSegmentSize {
		return errors.NotValidf("info buffer of %d bytes", len(buf))
	}
	if seg < 0 || seg >= e.prof.InfoSegments {
		return errors.NotValidf("info segment %d", seg)
	}
	if seg != e.info.next {
		err := errors.Errorf("info segment %d requested, expected %d", seg, e.info.next)
		if e.info.open {
			e.closeInfo()
		}
		return err
	}
	if seg == 0 {
		if e.dev.InProgress() {
			return errors.Errorf("programming session in progress")
		}
		if err := e.dev.Enter(); err != nil {
			e.exit()
			return errors.Annotatef(err, "failed to enter programming mode")
		}
		e.info.open = true
	}
	text, err := e.infoText(seg)
	if err == nil {
		err = fillSegment(buf[:InfoSegmentSize], text)
	}
	if err != nil {
		e.closeInfo()
		return errors.Annotatef(err, "info segment %d", seg)
	}
	glog.V(3).Infof("info segment %d: %q", seg, text)
	if seg == e.prof.InfoSegments-1 {
		return errors.Trace(e.closeInfo())
	}
	e.info.next++
	return nil
}

func (e *Engine) closeInfo() error {
	e.info = infoState{}
	return e.exit()
}

func (e *Engine) infoText(seg int) (string, error) {
	p := e.prof
	var sb strings.Builder
	cfgSegs := (p.ConfigCount + infoConfigPerSegment - 1) / infoConfigPerSegment
	switch {
	case seg == 0:
		id, err := e.dev.ReadWord(p.DeviceIDAddress)
		if err != nil {
			return "", errors.Trace(err)
		}
		rev, err := e.dev.ReadWord(p.RevisionIDAddress)
		if err != nil {
			return "", errors.Trace(err)
		}
		fmt.Fprintf(&sb, "\nDevice ID: %s \n\nRev ID   : %s \n\nFlash    : %s\n", hex4(id), hex4(rev), p.FlashSize)
	case seg <= cfgSegs:
		k := seg - 1
		if k == 0 {
			sb.WriteString("\nConfiguration:\n")
		}
		for i := k * infoConfigPerSegment; i < p.ConfigCount && i < (k+1)*infoConfigPerSegment; i++ {
			w, err := e.dev.ReadWord(p.ConfigFirst + uint32(i)*p.AddrStep)
			if err != nil {
				return "", errors.Trace(err)
			}
			sb.WriteString(hex4(w))
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
		if k == cfgSegs-1 && p.DataEESize != "" {
			fmt.Fprintf(&sb, "\nData EE  : %s\n", p.DataEESize)
		}
	default:
		d := uint32(seg - 1 - cfgSegs)
		reads := infoDumpWords / p.WordsPerRead
		addr := p.DumpAddress + d*uint32(reads)*p.AddrStep
		fmt.Fprintf(&sb, "\n%s:", hex4(addr&p.DumpMask))
		for i := 0; i < reads; i++ {
			w, err := e.dev.ReadWord(addr)
			if err != nil {
				return "", errors.Trace(err)
			}
			for j := 0; j < p.WordsPerRead; j++ {
				sb.WriteString(hex4(w >> (16 * uint(j))))
				sb.WriteByte(' ')
			}
			addr += p.AddrStep
		}
	}
	return sb.String(), nil
}

func hex4(w uint32) string {
	return fmt.Sprintf("%04X", w&0xffff)
}

func fillSegment(buf []byte, text string) error {
	if len(text) > len(buf) {
		return errors.Errorf("%d bytes do not fit in a segment", len(text))
	}
	n := copy(buf, text)
	for ; n < len(buf); n++ {
		buf[n] = ' '
	}
	return nil
}
