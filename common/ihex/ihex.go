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

// Package ihex reads Intel HEX images.
package ihex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"
	"io/ioutil"

	"github.com/juju/errors"
)

const (
	recData = iota
	recEOF
	recExtSegmentAddr
	recStartSegmentAddr
	recExtLinearAddr
	recStartLinearAddr
)

// Image is the content of a hex file. Records are in file order.
type Image struct {
	Records []*Record
	Start   uint32
}

// Record is one data record with its absolute byte address.
type Record struct {
	Addr uint32
	Data []byte
}

// Part is a contiguous span of the image.
type Part struct {
	Addr uint32
	Data []byte
}

func ParseFile(fname string) (*Image, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	img, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	return img, nil
}

func Parse(r io.Reader) (*Image, error) {
	img := &Image{}
	eof := false
	scanner := bufio.NewScanner(r)
	lineNo := 0
	var base uint32
	for !eof && scanner.Scan() {
		lineNo++
		l := bytes.TrimSpace(scanner.Bytes())
		if len(l) == 0 {
			continue
		}
		if l[0] != ':' {
			return nil, errors.Errorf("line %d: invalid start of the line", lineNo)
		}
		if len(l) < 11 || len(l)%2 != 1 {
			return nil, errors.Errorf("line %d: too short (%d)", lineNo, len(l))
		}
		ld := make([]byte, hex.DecodedLen(len(l)-1))
		if _, err := hex.Decode(ld, l[1:]); err != nil {
			return nil, errors.Errorf("line %d: error decoding record body", lineNo)
		}
		recLen := int(ld[0])
		if len(ld) != 4+recLen+1 {
			return nil, errors.Errorf("line %d: invalid length %d", lineNo, len(ld))
		}
		cs := uint8(0)
		for _, b := range ld[:len(ld)-1] {
			cs += b
		}
		cs = (cs ^ 0xff) + 1
		if checksum := ld[len(ld)-1]; cs != checksum {
			return nil, errors.Errorf("line %d: invalid checksum (want %02x, got %02x)", lineNo, checksum, cs)
		}
		offset := binary.BigEndian.Uint16(ld[1:3])
		body := ld[4 : 4+recLen]
		switch recType := ld[3]; recType {
		case recData:
			if recLen == 0 {
				continue
			}
			img.Records = append(img.Records, &Record{
				Addr: base + uint32(offset),
				Data: body,
			})
		case recEOF:
			eof = true
		case recExtSegmentAddr:
			if recLen != 2 {
				return nil, errors.Errorf("line %d: invalid extended segment address", lineNo)
			}
			base = uint32(binary.BigEndian.Uint16(body)) << 4
		case recStartSegmentAddr:
			if recLen != 4 {
				return nil, errors.Errorf("line %d: invalid start segment address", lineNo)
			}
			cs, ip := binary.BigEndian.Uint16(body), binary.BigEndian.Uint16(body[2:])
			img.Start = uint32(cs)<<4 | uint32(ip)
		case recExtLinearAddr:
			if recLen != 2 {
				return nil, errors.Errorf("line %d: invalid extended linear address", lineNo)
			}
			base = uint32(binary.BigEndian.Uint16(body)) << 16
		case recStartLinearAddr:
			if recLen != 4 {
				return nil, errors.Errorf("line %d: invalid start linear address", lineNo)
			}
			img.Start = binary.BigEndian.Uint32(body)
		default:
			return nil, errors.Errorf("line %d: unsupported record type (%d)", lineNo, recType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotatef(err, "line %d", lineNo)
	}
	if !eof {
		return nil, errors.Errorf("unexpected end of data")
	}
	return img, nil
}

// Size is the number of data bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, r := range img.Records {
		n += len(r.Data)
	}
	return n
}

// Parts coalesces records into contiguous parts. Gaps shorter than maxGap
// bytes between consecutive records are filled with fill.
func (img *Image) Parts(fill byte, maxGap int) []*Part {
	var parts []*Part
	var cur *Part
	for _, r := range img.Records {
		if cur != nil {
			end := cur.Addr + uint32(len(cur.Data))
			switch {
			case r.Addr == end:
			case r.Addr > end && int(r.Addr-end) < maxGap:
				for i := end; i < r.Addr; i++ {
					cur.Data = append(cur.Data, fill)
				}
			default:
				cur = nil
			}
		}
		if cur == nil {
			cur = &Part{Addr: r.Addr}
			parts = append(parts, cur)
		}
		cur.Data = append(cur.Data, r.Data...)
	}
	return parts
}
