// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()
	assert.Equal(t, 2, hub.Subscribers())

	hub.Publish(Event{Type: Created, Kind: model.KindService, ID: "s1"})

	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.Events()
		assert.Equal(t, Created, ev.Type)
		assert.Equal(t, "s1", ev.ID)
		assert.False(t, ev.At.IsZero())
	}
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub(1)
	drops := 0
	hub.OnDrop(func() { drops++ })
	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(Event{Type: Created, ID: "1"})
	hub.Publish(Event{Type: Created, ID: "2"})

	assert.Equal(t, int64(1), hub.Dropped())
	assert.Equal(t, 1, drops)
	ev := <-sub.Events()
	assert.Equal(t, "1", ev.ID)
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	_, open := <-sub.Events()
	require.False(t, open)

	// Publishing with no subscribers is a no-op.
	hub.Publish(Event{Type: Deleted})
}
