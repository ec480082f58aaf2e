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

// Record describes the record at the head of the ring.
type Record struct {
	// Length is the number of bytes the producer has written so far.
	Length uint32
	// Taken is the number of bytes already consumed.
	Taken    uint32
	Complete bool
}

// Reader is the consumer side of the ring. It owns dataStart and indexFirst: both are kept
// locally and only published, never read back from shared memory. Not safe for
// concurrent use.
type Reader struct {
	v         view
	cbData    uint32
	threshold uint32

	dataStart  uint32
	indexFirst uint32
	taken      uint32

	// pending holds bytes of a streamed record between Drain calls.
	pending []byte
}

// NewReader attaches to the ring in mem. The geometry is read and checked once.
func NewReader(mem []byte) (*Reader, error) {
	v, err := newView(mem)
	if err != nil {
		return nil, err
	}
	cbData := v.load(dataSizeFieldSO)
	threshold := v.load(partialThresholdFieldSO)
	if cbData == 0 || threshold >= cbData || len(mem) < BufferSize(cbData) {
		return nil, errors.ErrCorrupted.WithMessagef("ring header declares %d bytes with threshold %d in %d bytes",
			cbData, threshold, len(mem))
	}
	r := &Reader{
		v:          v,
		cbData:     cbData,
		threshold:  threshold,
		dataStart:  v.load(dataStartFieldSO),
		indexFirst: v.load(indexFirstFieldSO),
	}
	if r.dataStart >= cbData || r.indexFirst >= MaxRecords {
		return nil, errors.ErrCorrupted.WithMessagef("ring cursors data=%d record=%d", r.dataStart, r.indexFirst)
	}
	return r, nil
}

func (r *Reader) DataSize() uint32 {
	return r.cbData
}

func (r *Reader) PartialThreshold() uint32 {
	return r.threshold
}

func (r *Reader) SetHostEvents(events uint32) {
	r.v.store(hostEventsFieldSO, events)
}

func (r *Reader) HostEvents() uint32 {
	return r.v.load(hostEventsFieldSO)
}

func (r *Reader) SetSupportedOrders(orders uint32) {
	r.v.store(supportedOrdersFieldSO, orders)
}

func (r *Reader) Enable() {
	r.SetHostEvents(r.HostEvents() | ModeEnabled)
}

func (r *Reader) Disable() {
	r.SetHostEvents(r.HostEvents() &^ ModeEnabled)
}

func (r *Reader) corrupted(format string, args ...interface{}) error {
	metrics.VBVACorruptedCounter.Inc()
	return errors.ErrCorrupted.WithMessagef(format, args...)
}

// used is the number of unread bytes between the local dataStart and the producer's
// dataFree.
func (r *Reader) used() (uint32, error) {
	free := r.v.load(dataFreeFieldSO)
	if free >= r.cbData {
		return 0, r.corrupted("data free %d out of range", free)
	}
	if free >= r.dataStart {
		return free - r.dataStart, nil
	}
	return r.cbData - r.dataStart + free, nil
}

// NextRecord reports the record at the head of the ring. A partial record is only
// reported once it is long enough to be streamed and has unread bytes.
func (r *Reader) NextRecord() (Record, error) {
	free := r.v.load(indexFreeFieldSO)
	if free >= MaxRecords {
		return Record{}, r.corrupted("record index %d out of range", free)
	}
	if r.indexFirst == free {
		return Record{}, errors.ErrNoRecord
	}

	raw := r.v.loadRecord(r.indexFirst)
	rec := Record{
		Length:   raw &^ RecordPartial,
		Taken:    r.taken,
		Complete: raw&RecordPartial == 0,
	}
	if rec.Length > MaxRecordSize {
		return Record{}, r.corrupted("record length %d exceeds max", rec.Length)
	}
	if rec.Length < r.taken {
		return Record{}, r.corrupted("record length %d below consumed %d", rec.Length, r.taken)
	}
	if !rec.Complete && (rec.Length < r.cbData-r.threshold || rec.Length == r.taken) {
		return Record{}, errors.ErrNoRecord
	}

	used, err := r.used()
	if err != nil {
		return Record{}, err
	}
	if rec.Length-r.taken > used {
		return Record{}, r.corrupted("record needs %d bytes, ring holds %d", rec.Length-r.taken, used)
	}
	return rec, nil
}

// Consume copies up to max bytes of the head record (all available bytes if max <= 0).
// done is true once a complete record has been fully taken and its slot released.
func (r *Reader) Consume(max int) ([]byte, bool, error) {
	rec, err := r.NextRecord()
	if err != nil {
		return nil, false, err
	}

	n := rec.Length - rec.Taken
	if max > 0 && uint64(max) < uint64(n) {
		n = uint32(max)
	}
	out := make([]byte, n)
	copyOut(out, r.v.data(r.cbData), r.dataStart)
	r.dataStart = (r.dataStart + n) % r.cbData
	r.v.store(dataStartFieldSO, r.dataStart)
	r.taken += n

	if !rec.Complete {
		if n > 0 {
			metrics.VBVAPartialReadCounter.Inc()
		}
		// the producer may have finished the record while it was being read.
		raw := r.v.loadRecord(r.indexFirst)
		if raw&RecordPartial != 0 || raw != r.taken {
			return out, false, nil
		}
	} else if r.taken != rec.Length {
		return out, false, nil
	}

	r.indexFirst = (r.indexFirst + 1) % MaxRecords
	r.v.store(indexFirstFieldSO, r.indexFirst)
	r.taken = 0
	return out, true, nil
}

// Drain passes every record that can be completed now to fn, in order, and returns how
// many were delivered. Bytes of a partial record are kept until it completes. An error
// from fn stops the drain after that record has been released.
func (r *Reader) Drain(fn func(record []byte) error) (int, error) {
	count := 0
	for {
		data, done, err := r.Consume(0)
		if err != nil {
			if errors.ErrNoRecord.Is(err) {
				return count, nil
			}
			return count, err
		}
		r.pending = append(r.pending, data...)
		if !done {
			// a streamed record ran out of written bytes.
			return count, nil
		}

		record := r.pending
		r.pending = nil
		count++
		metrics.VBVARecordCounter.Inc()
		metrics.VBVAByteCounter.Add(float64(len(record)))
		if err = fn(record); err != nil {
			return count, err
		}
	}
}
