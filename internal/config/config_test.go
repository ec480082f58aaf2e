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

package config

import (
	// standard libraries.
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	// third-party libraries.
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/time/rate"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/vbva"
)

const sample = `
area:
  size: 65536
  base_offset: 0x10000
heap:
  max_block_size: 4096
  max_blocks: ${HGSMI_TEST_MAX_BLOCKS}
vbva:
  enable: true
  data_size: 8192
  partial_threshold: 1024
dispatch:
  reject_log_limit: 2.5
  reject_log_burst: 5
log_level: debug
observability:
  metrics:
    enable: true
    port: 9100
  tracing:
    enable: false
`

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "hgsmi.yaml")
	So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)
	return path
}

func TestLoad(t *testing.T) {
	Convey("load config", t, func() {
		t.Setenv("HGSMI_TEST_MAX_BLOCKS", "128")

		Convey("full file", func() {
			c, err := Load(writeFile(t, sample))
			So(err, ShouldBeNil)
			So(c.Area.Size, ShouldEqual, 65536)
			So(c.Area.BaseOffset, ShouldEqual, 0x10000)
			So(c.Heap.MaxBlockSize, ShouldEqual, 4096)
			So(c.Heap.MaxBlocks, ShouldEqual, 128)
			So(c.VBVA.Enable, ShouldBeTrue)
			So(c.LogLevel, ShouldEqual, "debug")
			So(c.Observability.M.Enable, ShouldBeTrue)
			So(c.Observability.M.GetPort(), ShouldEqual, 9100)
			So(c.SegmentSize(), ShouldEqual, 65536+vbva.BufferSize(8192))

			So(c.Heap.Options(), ShouldHaveLength, 1)
			So(c.Dispatch.Options(), ShouldHaveLength, 1)
		})

		Convey("defaults", func() {
			c, err := Load(writeFile(t, "log_level: info\n"))
			So(err, ShouldBeNil)
			So(c, ShouldResemble, Default())
			So(c.VBVA.DataSize, ShouldEqual, vbva.DefaultDataSize)
			So(c.SegmentSize(), ShouldEqual, defaultAreaSize)
			So(c.Heap.Options(), ShouldBeEmpty)
			So(c.Dispatch.Options(), ShouldBeEmpty)
		})

		Convey("missing or broken files", func() {
			_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			So(errors.IsInvalidConfig(err), ShouldBeTrue)
			_, err = Load(writeFile(t, "area: [\n"))
			So(errors.IsInvalidConfig(err), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("validate config", t, func() {
		c := Default()
		So(c.Validate(), ShouldBeNil)

		Convey("area not a multiple of the max block", func() {
			c.Area.Size = defaultMaxBlockSize + 32
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)
		})

		Convey("area below one frame", func() {
			c.Area.Size = 16
			So(stderrors.Is(c.Validate(), errors.ErrAreaTooSmall), ShouldBeTrue)
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)
		})

		Convey("max block size not a power of two", func() {
			c.Heap.MaxBlockSize = 3000
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)
		})

		Convey("ring threshold above its size", func() {
			c.VBVA = VBVA{Enable: true, DataSize: 4096, PartialThreshold: 4096}
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)
		})

		Convey("offset space overflow", func() {
			c.Area.BaseOffset = 0xFFFF0000
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)
		})

		Convey("bad log level", func() {
			c.LogLevel = "loud"
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)
		})

		Convey("dispatch limits", func() {
			c.Dispatch.RejectLogLimit = -1
			So(errors.IsInvalidConfig(c.Validate()), ShouldBeTrue)

			c.Dispatch = Dispatch{RejectLogLimit: 1, RejectLogBurst: 3}
			So(c.Validate(), ShouldBeNil)
			So(c.Dispatch.Options(), ShouldHaveLength, 1)
			So(rate.Limit(c.Dispatch.RejectLogLimit), ShouldEqual, rate.Limit(1))
		})
	})
}
