// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// EventType is a bit mask of resource events.
type EventType uint32

// Event types.
const (
	EventInsert EventType = 1 << iota // first commit of a resource
	EventUpdate                       // any later commit
	EventDestroy                      // teardown by the collector

	EventAll = EventInsert | EventUpdate | EventDestroy
)

var eventNames = []string{"insert", "update", "destroy"}

func (e EventType) String() string {
	var names []string
	for i, name := range eventNames {
		if e&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Event describes a change to a resource. Old is the snapshot that was
// replaced, nil on insert. New is the snapshot published, nil on destroy.
// Both are read views that resolve prototypes.
type Event struct {
	Type   EventType
	RID    core.RID
	TypeID core.TypeID
	Old    *Object
	New    *Object
}

// EventFunc is called synchronously from the goroutine that committed or
// collected the resource. It may use the store.
type EventFunc func(Event)

// SubscriptionID identifies a subscriber for RemoveResourceTypeEvent.
type SubscriptionID uint64

type subscriber struct {
	id   SubscriptionID
	mask EventType
	fn   EventFunc
}

// eventBus holds the subscribers of each resource type.
type eventBus struct {
	lock   sync.RWMutex
	next   SubscriptionID
	byType map[core.TypeID][]subscriber
}

func (b *eventBus) init() {
	b.byType = make(map[core.TypeID][]subscriber)
}

func (b *eventBus) fire(ev Event) {
	b.lock.RLock()
	subs := b.byType[ev.TypeID]
	b.lock.RUnlock()

	// subs is never appended to in place, so it is safe to walk unlocked.
	for _, sub := range subs {
		if sub.mask&ev.Type != 0 {
			sub.fn(ev)
		}
	}
}

// AddResourceTypeEvent calls 'fn' for each event in 'mask' on resources of
// type 'typeID'.
func (s *Store) AddResourceTypeEvent(typeID core.TypeID, mask EventType, fn EventFunc) (SubscriptionID, error) {
	if _, ok := s.registry.Get(typeID); !ok {
		return 0, fmt.Errorf("type %s: %w", typeID, core.ErrUnknownType.Error())
	}
	if mask&EventAll == 0 || fn == nil {
		return 0, core.ErrInvalidArgument.Error()
	}

	b := &s.events
	b.lock.Lock()
	defer b.lock.Unlock()
	b.next++
	old := b.byType[typeID]
	subs := make([]subscriber, len(old), len(old)+1)
	copy(subs, old)
	b.byType[typeID] = append(subs, subscriber{id: b.next, mask: mask, fn: fn})
	log.V(1).Infof("subscription %d to %s events on %s", b.next, mask, typeID)
	return b.next, nil
}

// RemoveResourceTypeEvent drops a subscriber. It returns false if 'id' isn't
// subscribed.
func (s *Store) RemoveResourceTypeEvent(id SubscriptionID) bool {
	b := &s.events
	b.lock.Lock()
	defer b.lock.Unlock()
	for typeID, old := range b.byType {
		for i, sub := range old {
			if sub.id != id {
				continue
			}
			subs := make([]subscriber, 0, len(old)-1)
			subs = append(subs, old[:i]...)
			b.byType[typeID] = append(subs, old[i+1:]...)
			return true
		}
	}
	return false
}
