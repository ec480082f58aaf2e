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
	"math"
	"strings"

	// third-party libraries.
	"golang.org/x/time/rate"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/buddy"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/channel"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/frame"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/heap"
	"github.com/linkall-labs/hgsmi/internal/primitive"
	"github.com/linkall-labs/hgsmi/internal/vbva"
	"github.com/linkall-labs/hgsmi/observability"
)

const (
	baseKB = 1024
	baseMB = 1024 * baseKB

	defaultAreaSize     = baseMB
	defaultMaxBlockSize = 64 * baseKB
)

type Config struct {
	Area          Area                 `yaml:"area"`
	Heap          Heap                 `yaml:"heap"`
	VBVA          VBVA                 `yaml:"vbva"`
	Dispatch      Dispatch             `yaml:"dispatch"`
	LogLevel      string               `yaml:"log_level"`
	Observability observability.Config `yaml:"observability"`
}

// Area describes the heap part of the shared segment.
type Area struct {
	Size       uint32 `yaml:"size"`
	BaseOffset uint32 `yaml:"base_offset"`
	// File maps the segment from a file instead of process memory.
	File string `yaml:"file"`
}

type Heap struct {
	MaxBlockSize uint32 `yaml:"max_block_size"`
	// MaxBlocks bounds the host bookkeeping for block nodes, 0 is unbounded.
	MaxBlocks int `yaml:"max_blocks"`
}

type VBVA struct {
	Enable           bool   `yaml:"enable"`
	DataSize         uint32 `yaml:"data_size"`
	PartialThreshold uint32 `yaml:"partial_threshold"`
}

type Dispatch struct {
	RejectLogLimit float64 `yaml:"reject_log_limit"`
	RejectLogBurst int     `yaml:"reject_log_burst"`
}

func Default() Config {
	c := Config{}
	c.fillDefaults()
	return c
}

// Load reads a yaml config file, fills unset fields with defaults and validates it.
func Load(filename string) (Config, error) {
	c := Config{}
	if err := primitive.LoadConfig(filename, &c); err != nil {
		return Config{}, errors.ErrInvalidConfig.WithMessagef("load %s", filename).Wrap(err)
	}
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) fillDefaults() {
	if c.Area.Size == 0 {
		c.Area.Size = defaultAreaSize
	}
	if c.Heap.MaxBlockSize == 0 {
		c.Heap.MaxBlockSize = defaultMaxBlockSize
	}
	if c.VBVA.DataSize == 0 {
		c.VBVA.DataSize = vbva.DefaultDataSize
	}
	if c.VBVA.PartialThreshold == 0 {
		c.VBVA.PartialThreshold = vbva.DefaultPartialThreshold
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	return errors.Chain(
		c.Heap.Validate(),
		c.Area.Validate(c.Heap.MaxBlockSize),
		c.VBVA.Validate(),
		c.Dispatch.Validate(),
		validateLogLevel(c.LogLevel),
		c.validateLayout(),
	)
}

// SegmentSize is the size of the whole shared segment: the heap area followed by the ring
// when it is enabled.
func (c *Config) SegmentSize() int {
	size := int(c.Area.Size)
	if c.VBVA.Enable {
		size += vbva.BufferSize(c.VBVA.DataSize)
	}
	return size
}

func (c *Config) validateLayout() error {
	if uint64(c.Area.BaseOffset)+uint64(c.SegmentSize()) > math.MaxUint32 {
		return errors.ErrInvalidConfig.WithMessagef("segment of %d bytes at %#x overflows the offset space",
			c.SegmentSize(), c.Area.BaseOffset)
	}
	return nil
}

func (c *Area) Validate(maxBlockSize uint32) error {
	if c.Size < frame.MinBufferSize {
		return errors.ErrAreaTooSmall.WithMessagef("area size %d", c.Size)
	}
	if maxBlockSize != 0 && c.Size%maxBlockSize != 0 {
		return errors.ErrInvalidConfig.WithMessagef("area size %d must be a multiple of max block size %d",
			c.Size, maxBlockSize)
	}
	return nil
}

func (c *Heap) Validate() error {
	s := c.MaxBlockSize
	if s < buddy.MinBlockSize || s > buddy.MaxBlockSize || s&(s-1) != 0 {
		return errors.ErrInvalidConfig.WithMessagef("max block size %d must be a power of two in [%d, %d]",
			s, buddy.MinBlockSize, buddy.MaxBlockSize)
	}
	if c.MaxBlocks < 0 {
		return errors.ErrInvalidConfig.WithMessagef("max blocks %d", c.MaxBlocks)
	}
	return nil
}

func (c *Heap) Options() (opts []heap.Option) {
	if c.MaxBlocks != 0 {
		opts = append(opts, heap.WithEnv(buddy.NewLimitEnv(c.MaxBlocks)))
	}
	return opts
}

func (c *VBVA) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.DataSize%4 != 0 {
		return errors.ErrInvalidConfig.WithMessagef("ring data size %d must be a multiple of 4", c.DataSize)
	}
	if c.PartialThreshold >= c.DataSize {
		return errors.ErrInvalidConfig.WithMessagef("partial threshold %d must be below ring data size %d",
			c.PartialThreshold, c.DataSize)
	}
	return nil
}

func (c *Dispatch) Validate() error {
	if c.RejectLogLimit < 0 || c.RejectLogBurst < 0 {
		return errors.ErrInvalidConfig.WithMessagef("reject log limit %v burst %d",
			c.RejectLogLimit, c.RejectLogBurst)
	}
	return nil
}

func (c *Dispatch) Options() (opts []channel.Option) {
	if c.RejectLogLimit != 0 || c.RejectLogBurst != 0 {
		opts = append(opts, channel.WithRejectLogLimit(rate.Limit(c.RejectLogLimit), c.RejectLogBurst))
	}
	return opts
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return errors.ErrInvalidConfig.WithMessagef("unknown log level %q", level)
	}
}
