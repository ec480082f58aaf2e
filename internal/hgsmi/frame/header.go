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

package frame

import (
	// standard libraries.
	"encoding/binary"
)

// Buffer header layout, little-endian:
//
//	0  u32 data size
//	4  u8  flags (bits 0..1: sequence type)
//	5  u8  channel
//	6  u16 channel info
//	8  [8] sequence specific
const (
	dataSizeFieldSO    = 0
	dataSizeFieldEO    = dataSizeFieldSO + 4
	flagsFieldSO       = dataSizeFieldEO
	channelFieldSO     = flagsFieldSO + 1
	channelInfoFieldSO = channelFieldSO + 1
	channelInfoFieldEO = channelInfoFieldSO + 2
	seqNumberFieldSO   = channelInfoFieldEO
	seqNumberFieldEO   = seqNumberFieldSO + 4
	seqValueFieldSO    = seqNumberFieldEO
	seqValueFieldEO    = seqValueFieldSO + 4
)

const HeaderSize = seqValueFieldEO

// Tail layout: u32 reserved (always zero), u32 checksum.
const (
	reservedFieldSO = 0
	reservedFieldEO = reservedFieldSO + 4
	checksumFieldSO = reservedFieldEO
	checksumFieldEO = checksumFieldSO + 4
)

const TailSize = checksumFieldEO

// MinBufferSize is the size of a buffer without payload.
const MinBufferSize = HeaderSize + TailSize

type SeqType uint8

const (
	SeqSingle SeqType = iota
	SeqStart
	SeqContinue
	SeqEnd
)

const seqMask = 0x03

func (t SeqType) String() string {
	switch t {
	case SeqSingle:
		return "single"
	case SeqStart:
		return "start"
	case SeqContinue:
		return "continue"
	case SeqEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Sequence is the sequence-type specific part of a header.
type Sequence interface {
	Type() SeqType
	marshalTo(b []byte)
}

type Single struct{}

func (Single) Type() SeqType { return SeqSingle }

func (Single) marshalTo(b []byte) {
	binary.LittleEndian.PutUint32(b[seqNumberFieldSO:seqNumberFieldEO], 0)
	binary.LittleEndian.PutUint32(b[seqValueFieldSO:seqValueFieldEO], 0)
}

// Start opens a sequence of TotalSize bytes split over several buffers.
type Start struct {
	Number    uint32
	TotalSize uint32
}

func (Start) Type() SeqType { return SeqStart }

func (s Start) marshalTo(b []byte) {
	binary.LittleEndian.PutUint32(b[seqNumberFieldSO:seqNumberFieldEO], s.Number)
	binary.LittleEndian.PutUint32(b[seqValueFieldSO:seqValueFieldEO], s.TotalSize)
}

type Continue struct {
	Number uint32
	Offset uint32
}

func (Continue) Type() SeqType { return SeqContinue }

func (c Continue) marshalTo(b []byte) {
	binary.LittleEndian.PutUint32(b[seqNumberFieldSO:seqNumberFieldEO], c.Number)
	binary.LittleEndian.PutUint32(b[seqValueFieldSO:seqValueFieldEO], c.Offset)
}

type End struct {
	Number uint32
	Offset uint32
}

func (End) Type() SeqType { return SeqEnd }

func (e End) marshalTo(b []byte) {
	binary.LittleEndian.PutUint32(b[seqNumberFieldSO:seqNumberFieldEO], e.Number)
	binary.LittleEndian.PutUint32(b[seqValueFieldSO:seqValueFieldEO], e.Offset)
}

type Header struct {
	DataSize    uint32
	Flags       uint8
	Channel     uint8
	ChannelInfo uint16
	Sequence    Sequence
}

func (h *Header) MarshalTo(b []byte) (int, error) {
	if len(b) < HeaderSize {
		return 0, errShortBuffer
	}
	seq := h.Sequence
	if seq == nil {
		seq = Single{}
	}
	binary.LittleEndian.PutUint32(b[dataSizeFieldSO:dataSizeFieldEO], h.DataSize)
	b[flagsFieldSO] = h.Flags&^seqMask | uint8(seq.Type())
	b[channelFieldSO] = h.Channel
	binary.LittleEndian.PutUint16(b[channelInfoFieldSO:channelInfoFieldEO], h.ChannelInfo)
	seq.marshalTo(b)
	return HeaderSize, nil
}

// UnmarshalHeader decodes a header from b, which must hold at least HeaderSize bytes.
func UnmarshalHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errShortBuffer
	}
	h := Header{
		DataSize:    binary.LittleEndian.Uint32(b[dataSizeFieldSO:dataSizeFieldEO]),
		Flags:       b[flagsFieldSO],
		Channel:     b[channelFieldSO],
		ChannelInfo: binary.LittleEndian.Uint16(b[channelInfoFieldSO:channelInfoFieldEO]),
	}
	number := binary.LittleEndian.Uint32(b[seqNumberFieldSO:seqNumberFieldEO])
	value := binary.LittleEndian.Uint32(b[seqValueFieldSO:seqValueFieldEO])
	switch SeqType(h.Flags & seqMask) {
	case SeqStart:
		h.Sequence = Start{Number: number, TotalSize: value}
	case SeqContinue:
		h.Sequence = Continue{Number: number, Offset: value}
	case SeqEnd:
		h.Sequence = End{Number: number, Offset: value}
	default:
		h.Sequence = Single{}
	}
	return h, nil
}

type Tail struct {
	Reserved uint32
	Checksum uint32
}

func (t *Tail) MarshalTo(b []byte) (int, error) {
	if len(b) < TailSize {
		return 0, errShortBuffer
	}
	binary.LittleEndian.PutUint32(b[reservedFieldSO:reservedFieldEO], t.Reserved)
	binary.LittleEndian.PutUint32(b[checksumFieldSO:checksumFieldEO], t.Checksum)
	return TailSize, nil
}

func UnmarshalTail(b []byte) (Tail, error) {
	if len(b) < TailSize {
		return Tail{}, errShortBuffer
	}
	return Tail{
		Reserved: binary.LittleEndian.Uint32(b[reservedFieldSO:reservedFieldEO]),
		Checksum: binary.LittleEndian.Uint32(b[checksumFieldSO:checksumFieldEO]),
	}, nil
}
