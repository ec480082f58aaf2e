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

package errors

var (
	ErrInternal = New("internal error").WithCode(ErrorCode_INTERNAL)

	// setup-time mistakes.
	ErrInvalidConfig     = New("invalid configuration").WithCode(ErrorCode_INVALID_CONFIG)
	ErrAreaTooSmall      = New("area too small").WithCode(ErrorCode_INVALID_CONFIG)
	ErrAlreadyRegistered = New("channel already registered").WithCode(ErrorCode_INVALID_CONFIG)

	// guest-controlled input.
	ErrInvalidBuffer = New("invalid buffer").WithCode(ErrorCode_MALFORMED)
	ErrInvalidOffset = New("invalid offset").WithCode(ErrorCode_MALFORMED)
	ErrCorrupted     = New("ring corrupted").WithCode(ErrorCode_MALFORMED)

	// resource exhaustion.
	ErrNoSpace        = New("not enough space").WithCode(ErrorCode_EXHAUSTED)
	ErrRecordsFull    = New("record array full").WithCode(ErrorCode_EXHAUSTED)
	ErrBufferOverflow = New("guest buffer overflow").WithCode(ErrorCode_EXHAUSTED)
	ErrNoRecord       = New("no record available").WithCode(ErrorCode_EXHAUSTED)
	ErrDisabled       = New("ring disabled by host").WithCode(ErrorCode_EXHAUSTED)
)
