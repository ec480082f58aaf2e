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

//go:build linux || darwin || freebsd

package shmem

import (
	// standard libraries.
	"os"

	// third-party libraries.
	"golang.org/x/sys/unix"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

type mapped struct {
	f   *os.File
	mem []byte
}

// OpenFile maps size bytes of path shared, creating or growing the file as needed. Other
// processes mapping the same file see the same bytes.
func OpenFile(path string, size int) (Segment, error) {
	if size <= 0 {
		return nil, errors.ErrInvalidConfig.WithMessagef("segment size %d", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithMessagef("open segment %s", path).Wrap(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.ErrInternal.Wrap(err)
	}
	if fi.Size() < int64(size) {
		if err = f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, errors.ErrInternal.WithMessagef("grow segment %s", path).Wrap(err)
		}
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errors.ErrInternal.WithMessagef("map segment %s", path).Wrap(err)
	}
	return &mapped{f: f, mem: mem}, nil
}

func (s *mapped) Bytes() []byte {
	return s.mem
}

func (s *mapped) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	return errors.Chain(err, s.f.Close())
}
