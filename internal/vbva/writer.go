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
	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/observability/metrics"
)

// Flusher asks the consumer to catch up. It is called from the producer when the ring is
// short of records or space and must return once the consumer has had its chance.
type Flusher interface {
	Flush()
}

type FlusherFunc func()

func (f FlusherFunc) Flush() {
	f()
}

type writerConfig struct {
	flusher Flusher
}

type WriterOption func(*writerConfig)

func WithFlusher(f Flusher) WriterOption {
	return func(cfg *writerConfig) {
		cfg.flusher = f
	}
}

const noRecord = -1

// Writer is the producer side of the ring. It is not safe for concurrent use.
type Writer struct {
	v         view
	cbData    uint32
	threshold uint32
	flusher   Flusher

	record   int
	overflow bool
}

// NewWriter attaches to a ring previously set up with Format.
func NewWriter(mem []byte, opts ...WriterOption) (*Writer, error) {
	cfg := writerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	v, err := newView(mem)
	if err != nil {
		return nil, err
	}
	cbData := v.load(dataSizeFieldSO)
	threshold := v.load(partialThresholdFieldSO)
	if cbData == 0 || threshold >= cbData || len(mem) < BufferSize(cbData) {
		return nil, errors.ErrInvalidConfig.WithMessagef("ring header declares %d bytes with threshold %d",
			cbData, threshold)
	}
	return &Writer{
		v:         v,
		cbData:    cbData,
		threshold: threshold,
		flusher:   cfg.flusher,
		record:    noRecord,
	}, nil
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}

func (w *Writer) Enabled() bool {
	return w.v.load(hostEventsFieldSO)&ModeEnabled != 0
}

func (w *Writer) HostEvents() uint32 {
	return w.v.load(hostEventsFieldSO)
}

func (w *Writer) SupportedOrders() uint32 {
	return w.v.load(supportedOrdersFieldSO)
}

// BeginRecord opens a record. It does nothing if one is already open.
func (w *Writer) BeginRecord() error {
	if w.record != noRecord {
		return nil
	}
	if !w.Enabled() {
		return errors.ErrDisabled
	}

	free := w.v.load(indexFreeFieldSO)
	if free >= MaxRecords {
		return errors.ErrCorrupted.WithMessagef("record index %d", free)
	}
	next := (free + 1) % MaxRecords
	if next == w.v.load(indexFirstFieldSO) {
		w.flush()
		if next == w.v.load(indexFirstFieldSO) {
			return errors.ErrRecordsFull
		}
	}

	w.v.storeRecord(free, RecordPartial)
	w.v.store(indexFreeFieldSO, next)
	w.record = int(free)
	w.overflow = false
	return nil
}

// available is the free space ahead of dataFree; one byte before dataStart stays unused so
// that a full ring never looks empty.
func (w *Writer) available(dataFree uint32) uint32 {
	start := w.v.load(dataStartFieldSO)
	if start >= w.cbData {
		return 0
	}
	diff := int64(start) - int64(dataFree)
	if diff > 0 {
		return uint32(diff)
	}
	return uint32(int64(w.cbData) + diff)
}

// Write appends p to the open record. On a short write the record is marked overflowed
// and every further Write fails until EndRecord.
func (w *Writer) Write(p []byte) (int, error) {
	if w.record == noRecord {
		return 0, errors.ErrNoRecord.WithMessage("no open record")
	}
	if w.overflow {
		return 0, errors.ErrBufferOverflow
	}

	idx := uint32(w.record)
	length := w.v.loadRecord(idx) &^ RecordPartial
	if uint64(length)+uint64(len(p)) > MaxRecordSize {
		return 0, w.overflowed("record exceeds max size")
	}

	dataFree := w.v.load(dataFreeFieldSO)
	if dataFree >= w.cbData {
		return 0, errors.ErrCorrupted.WithMessagef("data free %d", dataFree)
	}
	data := w.v.data(w.cbData)
	avail := w.available(dataFree)

	written := 0
	for written < len(p) {
		chunk := uint32(len(p) - written)
		if chunk >= avail {
			w.flush()
			avail = w.available(dataFree)
			if chunk >= avail {
				if avail <= w.threshold {
					return written, w.overflowed("no space left in ring")
				}
				chunk = avail - w.threshold
			}
		}

		copyIn(data, dataFree, p[written:written+int(chunk)])
		dataFree = (dataFree + chunk) % w.cbData
		length += chunk
		// data and dataFree are published before the record length grows.
		w.v.store(dataFreeFieldSO, dataFree)
		w.v.storeRecord(idx, RecordPartial|length)

		avail -= chunk
		written += int(chunk)
	}
	return written, nil
}

func (w *Writer) overflowed(reason string) error {
	w.overflow = true
	metrics.VBVAOverflowCounter.Inc()
	return errors.ErrBufferOverflow.WithMessage(reason)
}

// EndRecord commits the open record. If a write overflowed since BeginRecord, the bytes
// written so far are still committed and ErrBufferOverflow is returned.
func (w *Writer) EndRecord() error {
	if w.record == noRecord {
		return nil
	}
	idx := uint32(w.record)
	w.v.storeRecord(idx, w.v.loadRecord(idx)&^RecordPartial)
	w.record = noRecord
	if w.overflow {
		w.overflow = false
		return errors.ErrBufferOverflow
	}
	return nil
}

// WriteRecord writes p as one record.
func (w *Writer) WriteRecord(p []byte) error {
	if err := w.BeginRecord(); err != nil {
		return err
	}
	_, werr := w.Write(p)
	if err := w.EndRecord(); err != nil {
		return err
	}
	return werr
}
