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

//go:build !linux && !darwin && !freebsd

package shmem

import (
	// standard libraries.
	"io"
	"os"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

// copied keeps the file contents in aligned memory and writes them back on Close. It is
// only shared with other users of the file after Close.
type copied struct {
	f   *os.File
	mem []byte
}

func OpenFile(path string, size int) (Segment, error) {
	seg, err := Anonymous(size)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithMessagef("open segment %s", path).Wrap(err)
	}
	mem := seg.Bytes()
	if _, err = f.ReadAt(mem, 0); err != nil && err != io.EOF {
		_ = f.Close()
		return nil, errors.ErrInternal.WithMessagef("read segment %s", path).Wrap(err)
	}
	return &copied{f: f, mem: mem}, nil
}

func (s *copied) Bytes() []byte {
	return s.mem
}

func (s *copied) Close() error {
	if s.mem == nil {
		return nil
	}
	_, err := s.f.WriteAt(s.mem, 0)
	s.mem = nil
	return errors.Chain(err, s.f.Close())
}
