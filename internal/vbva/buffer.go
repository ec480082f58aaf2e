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

package vbva

import (
	// standard libraries.
	"fmt"
	"sync/atomic"
	"unsafe"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

const (
	hostEventsFieldSO       = 0
	supportedOrdersFieldSO  = 4
	dataStartFieldSO        = 8
	dataFreeFieldSO         = 12
	recordsFieldSO          = 16
	indexFirstFieldSO       = recordsFieldSO + MaxRecords*recordSize
	indexFreeFieldSO        = indexFirstFieldSO + 4
	partialThresholdFieldSO = indexFreeFieldSO + 4
	dataSizeFieldSO         = partialThresholdFieldSO + 4
	dataFieldSO             = dataSizeFieldSO + 4

	recordSize = 4
)

const (
	// HeaderSize is the fixed control prefix in front of the ring data.
	HeaderSize = dataFieldSO
	MaxRecords = 64

	DefaultDataSize         = 4<<20 - 1<<10
	DefaultPartialThreshold = 4 << 10
	MaxRecordSize           = 128 << 20

	// RecordPartial is set while the producer is still writing a record.
	RecordPartial = uint32(0x80000000)
)

// Host event flags.
const (
	ModeEnabled       = uint32(0x1)
	ModeVRDP          = uint32(0x2)
	ModeVRDPReset     = uint32(0x4)
	ModeVRDPOrderMask = uint32(0x8)
)

// BufferSize is the number of bytes a ring with cbData data bytes occupies.
func BufferSize(cbData uint32) int {
	return HeaderSize + int(cbData)
}

// Format initializes an empty ring in mem. This is the producer's job at setup.
func Format(mem []byte, cbData, threshold uint32) error {
	if cbData == 0 || threshold >= cbData {
		return errors.ErrInvalidConfig.WithMessagef("ring of %d bytes with threshold %d", cbData, threshold)
	}
	if len(mem) < BufferSize(cbData) {
		return errors.ErrInvalidConfig.WithMessagef("%d bytes cannot hold a ring of %d bytes", len(mem), cbData)
	}
	v, err := newView(mem)
	if err != nil {
		return err
	}
	for i := 0; i < HeaderSize; i += 4 {
		v.store(i, 0)
	}
	v.store(partialThresholdFieldSO, threshold)
	v.store(dataSizeFieldSO, cbData)
	return nil
}

// view is an atomic window over the control words. The layout is little-endian, so the
// words are only read natively on little-endian hosts.
type view struct {
	mem []byte
}

func newView(mem []byte) (view, error) {
	if len(mem) < HeaderSize {
		return view{}, errors.ErrInvalidConfig.WithMessagef("%d bytes cannot hold the ring header", len(mem))
	}
	if uintptr(unsafe.Pointer(&mem[0]))%4 != 0 {
		return view{}, errors.ErrInvalidConfig.WithMessage("ring memory is not 4-byte aligned")
	}
	return view{mem: mem}, nil
}

func (v view) word(at int) *uint32 {
	return (*uint32)(unsafe.Pointer(&v.mem[at]))
}

func (v view) load(at int) uint32 {
	return atomic.LoadUint32(v.word(at))
}

func (v view) store(at int, val uint32) {
	atomic.StoreUint32(v.word(at), val)
}

func (v view) loadRecord(i uint32) uint32 {
	return v.load(recordsFieldSO + int(i)*recordSize)
}

func (v view) storeRecord(i, val uint32) {
	v.store(recordsFieldSO+int(i)*recordSize, val)
}

func (v view) data(cbData uint32) []byte {
	return v.mem[dataFieldSO : dataFieldSO+int(cbData)]
}

// State is a snapshot of the control words, for inspection.
type State struct {
	HostEvents       uint32             `json:"host_events"`
	SupportedOrders  uint32             `json:"supported_orders"`
	DataStart        uint32             `json:"data_start"`
	DataFree         uint32             `json:"data_free"`
	Records          [MaxRecords]uint32 `json:"records"`
	IndexFirst       uint32             `json:"index_first"`
	IndexFree        uint32             `json:"index_free"`
	PartialThreshold uint32             `json:"partial_threshold"`
	DataSize         uint32             `json:"data_size"`
}

func (s State) Enabled() bool {
	return s.HostEvents&ModeEnabled != 0
}

// Pending lists the record words between IndexFirst and IndexFree. Out of range indexes
// yield nothing.
func (s State) Pending() []uint32 {
	if s.IndexFirst >= MaxRecords || s.IndexFree >= MaxRecords {
		return nil
	}
	var out []uint32
	for i := s.IndexFirst; i != s.IndexFree; i = (i + 1) % MaxRecords {
		out = append(out, s.Records[i])
	}
	return out
}

func (s State) String() string {
	return fmt.Sprintf("events=%#x data=[%d,%d)/%d records=[%d,%d) threshold=%d",
		s.HostEvents, s.DataStart, s.DataFree, s.DataSize, s.IndexFirst, s.IndexFree, s.PartialThreshold)
}

// Inspect snapshots the control words of the ring in mem without validating them.
func Inspect(mem []byte) (State, error) {
	v, err := newView(mem)
	if err != nil {
		return State{}, err
	}
	s := State{
		HostEvents:       v.load(hostEventsFieldSO),
		SupportedOrders:  v.load(supportedOrdersFieldSO),
		DataStart:        v.load(dataStartFieldSO),
		DataFree:         v.load(dataFreeFieldSO),
		IndexFirst:       v.load(indexFirstFieldSO),
		IndexFree:        v.load(indexFreeFieldSO),
		PartialThreshold: v.load(partialThresholdFieldSO),
		DataSize:         v.load(dataSizeFieldSO),
	}
	for i := range s.Records {
		s.Records[i] = v.loadRecord(uint32(i))
	}
	return s, nil
}

// copyOut copies len(dst) bytes starting at pos, wrapping at the end of data.
func copyOut(dst, data []byte, pos uint32) {
	n := copy(dst, data[pos:])
	copy(dst[n:], data)
}

// copyIn is the inverse of copyOut.
func copyIn(data []byte, pos uint32, src []byte) {
	n := copy(data[pos:], src)
	copy(data, src[n:])
}
