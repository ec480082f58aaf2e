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

package command

import (
	// standard libraries.
	"context"
	"encoding/binary"
	"os"
	"time"

	// third-party libraries.
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/ratelimit"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/config"
	"github.com/linkall-labs/hgsmi/internal/device"
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/buddy"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/channel"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/frame"
	"github.com/linkall-labs/hgsmi/internal/vbva"
	"github.com/linkall-labs/hgsmi/observability"
	"github.com/linkall-labs/hgsmi/observability/log"
	"github.com/linkall-labs/hgsmi/observability/metrics"
)

const (
	stampSize      = 8
	maxLatencyUsec = int64(10 * time.Second / time.Microsecond)
)

type simulateParams struct {
	Buffers    int
	BufferSize uint32
	Inflight   int
	Rate       int
	Records    int
	RecordSize int
	Channel    uint8
}

type latency struct {
	Count int64   `json:"count"`
	Min   int64   `json:"min_us"`
	P50   int64   `json:"p50_us"`
	P90   int64   `json:"p90_us"`
	P99   int64   `json:"p99_us"`
	Max   int64   `json:"max_us"`
	Mean  float64 `json:"mean_us"`
}

type simulateResult struct {
	Sent        int          `json:"sent"`
	AllocFailed int          `json:"alloc_failed"`
	Received    int          `json:"received"`
	Records     int          `json:"records"`
	RecordBytes int          `json:"record_bytes"`
	Overflows   int          `json:"overflows"`
	Latency     latency      `json:"latency"`
	Device      device.Stats `json:"device"`

	descriptors []buddy.Descriptor
	image       []byte
}

func (p simulateParams) validate() error {
	if p.Buffers < 0 || p.Records < 0 || p.RecordSize < 0 || p.Inflight < 1 || p.Rate < 0 {
		return errors.ErrInvalidConfig.WithMessage("counts must not be negative and inflight must be positive")
	}
	if p.BufferSize < stampSize {
		return errors.ErrInvalidConfig.WithMessagef("buffer size must be at least %d bytes", stampSize)
	}
	if p.Channel == channel.ReservedID {
		return errors.ErrInvalidConfig.WithMessagef("channel %d is reserved", p.Channel)
	}
	return nil
}

// runSimulation plays the guest and the host over one device: buffers go through the heap
// and a channel, records go through the ring.
func runSimulation(ctx context.Context, cfg config.Config, p simulateParams) (simulateResult, error) {
	if err := p.validate(); err != nil {
		return simulateResult{}, err
	}
	if p.Records > 0 {
		cfg.VBVA.Enable = true
	}
	d, err := device.New(cfg)
	if err != nil {
		return simulateResult{}, err
	}
	defer func() { _ = d.Close() }()

	res := simulateResult{}
	hist := hdrhistogram.New(1, maxLatencyUsec, 3)
	err = d.Register(p.Channel, "simulate", channel.HandlerFunc(
		func(_ context.Context, _ uint16, payload []byte) error {
			stamp, ok := frame.Uint64At(payload, 0)
			if !ok {
				return errors.ErrInvalidBuffer.WithMessage("short payload")
			}
			elapsed := time.Since(time.Unix(0, int64(stamp))).Microseconds()
			_ = hist.RecordValue(elapsed)
			res.Received++
			return nil
		}))
	if err != nil {
		return simulateResult{}, err
	}

	limiter := ratelimit.NewUnlimited()
	if p.Rate > 0 {
		limiter = ratelimit.New(p.Rate)
	}
	h, err := d.GuestHeap()
	if err != nil {
		return simulateResult{}, err
	}
	window := make([]area.Offset, 0, p.Inflight+1)
	for i := 0; i < p.Buffers; i++ {
		limiter.Take()
		off, payload := h.Alloc(p.BufferSize, p.Channel, uint16(i))
		if off == area.VoidOffset {
			res.AllocFailed++
			if len(window) > 0 {
				_ = h.Free(window[0])
				window = window[1:]
			}
			continue
		}
		binary.LittleEndian.PutUint64(payload, uint64(time.Now().UnixNano()))
		if err = d.Dispatch(ctx, off); err != nil {
			return simulateResult{}, err
		}
		res.Sent++
		window = append(window, off)
		if len(window) > p.Inflight {
			_ = h.Free(window[0])
			window = window[1:]
		}
	}
	res.descriptors = h.Allocator().Descriptors()

	if p.Records > 0 {
		if err = simulateRing(ctx, d, p, &res); err != nil {
			return simulateResult{}, err
		}
	}
	res.image = d.Image()

	for _, off := range window {
		_ = h.Free(off)
	}
	res.Latency = latency{
		Count: hist.TotalCount(),
		Min:   hist.Min(),
		P50:   hist.ValueAtQuantile(50),
		P90:   hist.ValueAtQuantile(90),
		P99:   hist.ValueAtQuantile(99),
		Max:   hist.Max(),
		Mean:  hist.Mean(),
	}
	res.Device = d.Stats()
	return res, nil
}

func simulateRing(ctx context.Context, d *device.Device, p simulateParams, res *simulateResult) error {
	if err := d.EnableVBVA(); err != nil {
		return err
	}
	collect := func(_ context.Context, record []byte) error {
		res.Records++
		res.RecordBytes += len(record)
		return nil
	}
	w, err := d.GuestRing(vbva.WithFlusher(vbva.FlusherFunc(func() {
		if _, err := d.DrainRing(ctx, collect); err != nil {
			log.Warning(ctx, "drain ring failed", map[string]interface{}{
				log.KeyError: err,
			})
		}
	})))
	if err != nil {
		return err
	}
	record := make([]byte, p.RecordSize)
	for i := 0; i < p.Records; i++ {
		for j := range record {
			record[j] = byte(i + j)
		}
		if err = w.WriteRecord(record); err != nil {
			if errors.ErrBufferOverflow.Is(err) {
				res.Overflows++
				continue
			}
			return err
		}
	}
	_, err = d.DrainRing(ctx, collect)
	return err
}

func NewSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "run a guest and a host over one in-process segment",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Default()
			if file := configFile(cmd); file != "" {
				var err error
				if cfg, err = config.Load(file); err != nil {
					cmdFailedf(cmd, "load config failed: %s", err)
				}
			}
			if debug, _ := cmd.Flags().GetBool("debug"); !debug {
				log.SetLogLevel(cfg.LogLevel)
			}
			_ = observability.Initialize(cfg.Observability, metrics.RegisterHGSMIMetrics)

			res, err := runSimulation(context.Background(), cfg, simulateParams{
				Buffers:    bufferCount,
				BufferSize: bufferSize,
				Inflight:   inflight,
				Rate:       sendRate,
				Records:    recordCount,
				RecordSize: recordSize,
				Channel:    simChannelID,
			})
			if err != nil {
				cmdFailedf(cmd, "simulate failed: %s", err)
			}
			if err = dumpResult(res); err != nil {
				cmdFailedf(cmd, "dump failed: %s", err)
			}

			if IsFormatJSON(cmd) {
				printJSON(res)
				return
			}
			t := newTable(table.Row{"Sent", "Received", "Alloc Failed", "Records", "Overflows"})
			t.AppendRow(table.Row{res.Sent, res.Received, res.AllocFailed, res.Records, res.Overflows})
			t.Render()

			lt := newTable(table.Row{"Count", "Min(us)", "P50(us)", "P90(us)", "P99(us)", "Max(us)", "Mean(us)"})
			l := res.Latency
			lt.AppendRow(table.Row{l.Count, l.Min, l.P50, l.P90, l.P99, l.Max, int64(l.Mean)})
			lt.Render()

			ht := newTable(table.Row{"Heap Size", "Free", "Used", "Blocks"})
			hs := res.Device.Heap
			ht.AppendRow(table.Row{hs.Size, hs.FreeBytes, hs.UsedBytes, hs.Blocks})
			ht.Render()
		},
	}
	cmd.Flags().IntVar(&bufferCount, "buffers", 1000, "the number of buffers the guest sends")
	cmd.Flags().Uint32Var(&bufferSize, "size", 256, "the payload size of each buffer")
	cmd.Flags().IntVar(&inflight, "inflight", 16, "the number of buffers the guest keeps allocated")
	cmd.Flags().IntVar(&sendRate, "rate", 0, "buffers per second, 0 is unlimited")
	cmd.Flags().IntVar(&recordCount, "records", 0, "the number of ring records the guest writes")
	cmd.Flags().IntVar(&recordSize, "record-size", 512, "the size of each ring record")
	cmd.Flags().Uint8Var(&simChannelID, "channel", 1, "the channel id buffers are sent on")
	cmd.Flags().StringVar(&dumpHeapFile, "dump-heap", "", "write the heap descriptor table to this file")
	cmd.Flags().StringVar(&dumpImageFile, "dump-image", "", "write the segment image to this file")
	return cmd
}

func dumpResult(res simulateResult) error {
	if dumpHeapFile != "" {
		buf := make([]byte, len(res.descriptors)*buddy.DescriptorSize)
		if _, err := buddy.EncodeDescriptors(buf, res.descriptors); err != nil {
			return err
		}
		if err := os.WriteFile(dumpHeapFile, buf, 0o600); err != nil {
			return err
		}
	}
	if dumpImageFile != "" && res.image != nil {
		if err := os.WriteFile(dumpImageFile, res.image, 0o600); err != nil {
			return err
		}
	}
	return nil
}
