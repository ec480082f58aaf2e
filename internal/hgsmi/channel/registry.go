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

package channel

import (
	// standard libraries.
	"fmt"
	"sync"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

const (
	// NumChannels is fixed by the 8-bit channel id in the buffer header.
	NumChannels = 256
	// ReservedID is never assigned to a handler.
	ReservedID uint8 = 0
)

type Flags uint8

const (
	FlagRegistered Flags = 1 << iota
)

type Channel struct {
	ID      uint8
	Name    string
	Flags   Flags
	Handler Handler
}

func (c Channel) Registered() bool {
	return c.Flags&FlagRegistered != 0
}

func (c Channel) String() string {
	return fmt.Sprintf("%d(%s)", c.ID, c.Name)
}

// Registry maps channel ids to handlers. Lookups index the table directly.
type Registry struct {
	mu       sync.RWMutex
	channels [NumChannels]Channel
	count    int
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(id uint8, name string, h Handler) error {
	if id == ReservedID {
		return errors.ErrInvalidConfig.WithMessagef("channel id %d is reserved", id)
	}
	if h == nil {
		return errors.ErrInvalidConfig.WithMessagef("channel %d has no handler", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[id].Registered() {
		return errors.ErrAlreadyRegistered.WithMessagef("channel %s", r.channels[id])
	}
	r.channels[id] = Channel{
		ID:      id,
		Name:    name,
		Flags:   FlagRegistered,
		Handler: h,
	}
	r.count++
	return nil
}

func (r *Registry) Unregister(id uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.channels[id].Registered() {
		return errors.ErrInvalidConfig.WithMessagef("channel %d is not registered", id)
	}
	r.channels[id] = Channel{}
	r.count--
	return nil
}

func (r *Registry) Find(id uint8) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.channels[id]
	return c, c.Registered()
}

// Range calls fn for each registered channel in id order until fn returns false. fn must
// not call back into the registry.
func (r *Registry) Range(fn func(c Channel) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.channels {
		if !r.channels[i].Registered() {
			continue
		}
		if !fn(r.channels[i]) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
