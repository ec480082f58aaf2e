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

package frame

import (
	// standard libraries.
	"encoding/binary"
)

// Payload bytes alias guest-writable memory. Handlers copy each field out once with these
// helpers and work on the copies.

func Uint8At(b []byte, at int) (uint8, bool) {
	if at < 0 || at >= len(b) {
		return 0, false
	}
	return b[at], true
}

func Uint16At(b []byte, at int) (uint16, bool) {
	if at < 0 || at > len(b)-2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[at : at+2]), true
}

func Uint32At(b []byte, at int) (uint32, bool) {
	if at < 0 || at > len(b)-4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[at : at+4]), true
}

func Uint64At(b []byte, at int) (uint64, bool) {
	if at < 0 || at > len(b)-8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[at : at+8]), true
}

// Snapshot copies n bytes at at, so later reads are stable.
func Snapshot(b []byte, at, n int) ([]byte, bool) {
	if at < 0 || n < 0 || at > len(b) || n > len(b)-at {
		return nil, false
	}
	return append([]byte(nil), b[at:at+n]...), true
}
