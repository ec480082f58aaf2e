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

package shmem

import (
	// third-party libraries.
	"github.com/ncw/directio"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

// Segment is one block of memory shared by host and guest.
type Segment interface {
	Bytes() []byte
	Close() error
}

type anonymous struct {
	mem []byte
}

// Anonymous returns a process-local segment. The memory is page aligned, so every
// 32-bit control word placed at a 4-byte offset is naturally aligned.
func Anonymous(size int) (Segment, error) {
	if size <= 0 {
		return nil, errors.ErrInvalidConfig.WithMessagef("segment size %d", size)
	}
	return &anonymous{mem: directio.AlignedBlock(roundUp(size))[:size]}, nil
}

func (s *anonymous) Bytes() []byte {
	return s.mem
}

func (s *anonymous) Close() error {
	s.mem = nil
	return nil
}

func roundUp(size int) int {
	return (size + directio.AlignSize - 1) &^ (directio.AlignSize - 1)
}
