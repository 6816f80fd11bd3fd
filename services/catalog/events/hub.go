// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events fans catalog change notifications out to subscribers.
//
// The catalog keeps no graph cache of its own. Clients that hold a graph
// view subscribe here and refetch when an event names a record they
// depend on.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// Type classifies a change.
type Type string

const (
	Created     Type = "CREATED"
	Updated     Type = "UPDATED"
	Deleted     Type = "DELETED"
	Linked      Type = "LINKED"
	Unlinked    Type = "UNLINKED"
	Invalidated Type = "INVALIDATED"
)

// Event is one change notification.
type Event struct {
	Type Type       `json:"type"`
	Kind model.Kind `json:"kind"`
	ID   string     `json:"id"`
	At   time.Time  `json:"at"`

	// Refs names related records (for edges: the two endpoint ids).
	Refs []string `json:"refs,omitempty"`
}

// Publisher accepts change events. Publish must not block.
type Publisher interface {
	Publish(ev Event)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// Hub is an in-process fan-out of events to subscribers.
//
// Each subscriber has a bounded buffer. When a buffer is full the event is
// dropped for that subscriber and counted; publishers never wait.
//
// Thread Safety: Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	dropped atomic.Int64
	onDrop  func()
}

// NewHub creates a hub with the given per-subscriber buffer (minimum 1).
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[uint64]*Subscription), buffer: buffer}
}

// OnDrop registers a callback invoked for every dropped event.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber that has room.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID, hub: h, ch: make(chan Event, h.buffer)}
	h.subs[sub.id] = sub
	return sub
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the number of events dropped so far.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Subscription is one subscriber's event stream.
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// Events returns the stream. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

var _ Publisher = (*Hub)(nil)
var _ Publisher = Nop{}
