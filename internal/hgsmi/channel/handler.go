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

//go:generate mockgen -source=handler.go -destination=mock_handler.go -package=channel
package channel

import (
	// standard libraries.
	"context"
)

// Handler consumes the payload of buffers sent on one channel. The payload aliases
// guest-writable memory: read each field at most once, or take a copy first.
type Handler interface {
	Handle(ctx context.Context, channelInfo uint16, payload []byte) error
}

type HandlerFunc func(ctx context.Context, channelInfo uint16, payload []byte) error

func (f HandlerFunc) Handle(ctx context.Context, channelInfo uint16, payload []byte) error {
	return f(ctx, channelInfo, payload)
}
