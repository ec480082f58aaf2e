// Copyright 2022 Linkall Inc.
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

// Package frame implements the header/tail framing that brackets every buffer exchanged
// through a shared area.
package frame

import (
	// standard libraries.
	"encoding/binary"
	stderrors "errors"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
)

var errShortBuffer = stderrors.New("frame: short buffer")

// Reasons a buffer is rejected by Validate.
const (
	ReasonOffset   = "offset"
	ReasonSize     = "size"
	ReasonReserved = "reserved"
	ReasonChecksum = "checksum"
)

// Buffer is a validated buffer. Header is a host-side copy; the payload still lives in
// guest-writable memory.
type Buffer struct {
	Offset  area.Offset
	Header  Header
	Payload area.Pointer
}

func (b *Buffer) DataSize() uint32 {
	return b.Header.DataSize
}

func FrameSize(dataSize uint32) uint32 {
	return dataSize + MinBufferSize
}

func PayloadPointer(hdr area.Pointer) area.Pointer {
	return hdr + HeaderSize
}

func TailPointer(hdr area.Pointer, dataSize uint32) area.Pointer {
	return hdr + HeaderSize + area.Pointer(dataSize)
}

// Checksum is the Jenkins one-at-a-time hash of the wire offset, the header and the
// reserved tail word. The checksum word itself and the payload are not covered.
func Checksum(off area.Offset, header []byte, tail []byte) uint32 {
	var ob [4]byte
	binary.LittleEndian.PutUint32(ob[:], uint32(off))
	h := oneAtATime(0, ob[:])
	h = oneAtATime(h, header[:HeaderSize])
	h = oneAtATime(h, tail[reservedFieldSO:reservedFieldEO])
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

func oneAtATime(h uint32, data []byte) uint32 {
	for _, b := range data {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}
	return h
}

// InitializeSingle frames a single buffer of bufferSize bytes (header, payload and tail)
// at hdr and returns its offset, or area.VoidOffset if it cannot be placed.
func InitializeSingle(a area.Interface, hdr area.Pointer, bufferSize uint32,
	channel uint8, channelInfo uint16,
) area.Offset {
	return Initialize(a, hdr, bufferSize, channel, channelInfo, Single{})
}

func Initialize(a area.Interface, hdr area.Pointer, bufferSize uint32,
	channel uint8, channelInfo uint16, seq Sequence,
) area.Offset {
	if bufferSize < MinBufferSize {
		return area.VoidOffset
	}
	b, ok := a.Bytes(hdr, bufferSize)
	if !ok {
		return area.VoidOffset
	}
	off := a.ToOffset(hdr)
	if off > a.Last() {
		return area.VoidOffset
	}

	h := Header{
		DataSize:    bufferSize - MinBufferSize,
		Channel:     channel,
		ChannelInfo: channelInfo,
		Sequence:    seq,
	}
	var hb [HeaderSize]byte
	_, _ = h.MarshalTo(hb[:])
	t := Tail{}
	var tb [TailSize]byte
	_, _ = t.MarshalTo(tb[:])
	t.Checksum = Checksum(off, hb[:], tb[:])
	_, _ = t.MarshalTo(tb[:])

	copy(b[:HeaderSize], hb[:])
	copy(b[HeaderSize+h.DataSize:], tb[:])
	return off
}

// Validate checks the buffer at off before anything in it is trusted. Header and tail are
// copied out of shared memory exactly once; all checks run on the copies.
func Validate(a area.Interface, off area.Offset) (Buffer, error) {
	if !a.Contains(off) || off > a.Last() {
		return Buffer{}, errors.ErrInvalidBuffer.WithMessage(ReasonOffset)
	}
	hdr := a.ToPointer(off)

	var hb [HeaderSize]byte
	src, ok := a.Bytes(hdr, HeaderSize)
	if !ok {
		return Buffer{}, errors.ErrInvalidBuffer.WithMessage(ReasonOffset)
	}
	copy(hb[:], src)
	h, _ := UnmarshalHeader(hb[:])

	// off <= last, so the remaining room is last-off+1 bytes past a minimal buffer.
	if uint64(h.DataSize) > uint64(a.Last()-off)+1 {
		return Buffer{}, errors.ErrInvalidBuffer.WithMessage(ReasonSize)
	}

	var tb [TailSize]byte
	src, ok = a.Bytes(TailPointer(hdr, h.DataSize), TailSize)
	if !ok {
		return Buffer{}, errors.ErrInvalidBuffer.WithMessage(ReasonSize)
	}
	copy(tb[:], src)
	t, _ := UnmarshalTail(tb[:])

	if t.Checksum != Checksum(off, hb[:], tb[:]) {
		return Buffer{}, errors.ErrInvalidBuffer.WithMessage(ReasonChecksum)
	}
	if t.Reserved != 0 {
		return Buffer{}, errors.ErrInvalidBuffer.WithMessage(ReasonReserved)
	}

	return Buffer{
		Offset:  off,
		Header:  h,
		Payload: PayloadPointer(hdr),
	}, nil
}

// Reason extracts the rejection reason from an error returned by Validate.
func Reason(err error) string {
	var et *errors.ErrorType
	if stderrors.As(err, &et) && et.Message != "" {
		return et.Message
	}
	return "unknown"
}
