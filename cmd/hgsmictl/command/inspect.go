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
	"fmt"
	"os"

	// third-party libraries.
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/buddy"
	"github.com/linkall-labs/hgsmi/internal/shmem"
	"github.com/linkall-labs/hgsmi/internal/vbva"
)

func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect sub-command",
		Short: "inspect shared memory images",
	}
	cmd.AddCommand(inspectHeapCommand())
	cmd.AddCommand(inspectRingCommand())
	return cmd
}

type blockInfo struct {
	Offset uint32 `json:"offset"`
	Size   uint32 `json:"size"`
	Order  uint8  `json:"order"`
	Free   bool   `json:"free"`
}

type heapImage struct {
	Blocks []blockInfo `json:"blocks"`
	Stats  buddy.Stats `json:"stats"`
}

// loadHeapImage restores a descriptor table over an area of size bytes. The table is
// checked the same way a guest-published one would be.
func loadHeapImage(data []byte, size, maxBlock uint32) (heapImage, error) {
	ds := buddy.DecodeDescriptors(data)
	if len(ds) == 0 {
		return heapImage{}, errors.ErrInvalidConfig.WithMessage("empty descriptor table")
	}
	a, err := area.New(make([]byte, size), 0)
	if err != nil {
		return heapImage{}, err
	}
	al, err := buddy.New(a, ds, maxBlock, nil)
	if err != nil {
		return heapImage{}, err
	}
	img := heapImage{Stats: al.Stats()}
	al.Walk(func(d buddy.Descriptor) bool {
		img.Blocks = append(img.Blocks, blockInfo{
			Offset: d.Offset(),
			Size:   d.Size(),
			Order:  uint8(d.Order()),
			Free:   d.Free(),
		})
		return true
	})
	return img, nil
}

func inspectHeapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heap",
		Short: "render a saved heap descriptor table",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(imageFile)
			if err != nil {
				cmdFailedf(cmd, "read image failed: %s", err)
			}
			img, err := loadHeapImage(data, areaSize, maxBlockSize)
			if err != nil {
				cmdFailedf(cmd, "load heap image failed: %s", err)
			}

			if IsFormatJSON(cmd) {
				printJSON(img)
				return
			}
			t := newTable(table.Row{"Offset", "Size", "Order", "State"})
			for _, b := range img.Blocks {
				state := "used"
				if b.Free {
					state = "free"
				}
				t.AppendRow(table.Row{fmt.Sprintf("%#x", b.Offset), b.Size, b.Order, state})
			}
			t.AppendFooter(table.Row{"Total", img.Stats.Size,
				fmt.Sprintf("%d blocks", img.Stats.Blocks), fmt.Sprintf("%d free", img.Stats.FreeBytes)})
			t.Render()
		},
	}
	cmd.Flags().StringVar(&imageFile, "file", "", "the descriptor table image")
	cmd.Flags().Uint32Var(&areaSize, "size", 0, "the heap area size in bytes")
	cmd.Flags().Uint32Var(&maxBlockSize, "max-block", 64*1024, "the max block size of the heap")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

// loadRingImage copies the ring at offset of data into aligned memory and snapshots it.
func loadRingImage(data []byte, offset int64) (vbva.State, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return vbva.State{}, errors.ErrInvalidConfig.WithMessagef("offset %d outside an image of %d bytes",
			offset, len(data))
	}
	seg, err := shmem.Anonymous(len(data) - int(offset))
	if err != nil {
		return vbva.State{}, err
	}
	defer func() { _ = seg.Close() }()
	copy(seg.Bytes(), data[offset:])
	return vbva.Inspect(seg.Bytes())
}

func inspectRingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ring",
		Short: "render the control words of a ring",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(imageFile)
			if err != nil {
				cmdFailedf(cmd, "read image failed: %s", err)
			}
			st, err := loadRingImage(data, ringOffset)
			if err != nil {
				cmdFailedf(cmd, "load ring image failed: %s", err)
			}

			if IsFormatJSON(cmd) {
				printJSON(st)
				return
			}
			t := newTable(table.Row{"Field", "Value"})
			t.AppendRow(table.Row{"HostEvents", fmt.Sprintf("%#x", st.HostEvents)})
			t.AppendRow(table.Row{"SupportedOrders", fmt.Sprintf("%#x", st.SupportedOrders)})
			t.AppendRow(table.Row{"DataStart", st.DataStart})
			t.AppendRow(table.Row{"DataFree", st.DataFree})
			t.AppendRow(table.Row{"IndexFirst", st.IndexFirst})
			t.AppendRow(table.Row{"IndexFree", st.IndexFree})
			t.AppendRow(table.Row{"PartialThreshold", st.PartialThreshold})
			t.AppendRow(table.Row{"DataSize", st.DataSize})
			t.Render()

			pending := st.Pending()
			if len(pending) == 0 {
				return
			}
			rt := newTable(table.Row{"Record", "Length", "Partial"})
			for i, raw := range pending {
				rt.AppendRow(table.Row{(int(st.IndexFirst) + i) % vbva.MaxRecords,
					raw &^ vbva.RecordPartial, raw&vbva.RecordPartial != 0})
			}
			rt.Render()
		},
	}
	cmd.Flags().StringVar(&imageFile, "file", "", "the segment image")
	cmd.Flags().Int64Var(&ringOffset, "offset", 0, "the byte offset of the ring in the image")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
