package client

import (
	"encoding/json"
	"sync"
)

// EventCallback receives the opaque body of one event.
type EventCallback func(body json.RawMessage)

// EventSubscription is the handle returned by OnEvent/OnEventOnce.
type EventSubscription struct {
	hub   *eventHub
	event string
	id    uint64
}

// Unsubscribe removes the callback. Calling it on a subscription that was
// already auto-removed (a fired once-subscription) or already unsubscribed is
// a no-op.
func (s *EventSubscription) Unsubscribe() {
	s.hub.unsubscribe(s.event, s.id)
}

type eventSub struct {
	id   uint64
	cb   EventCallback
	once bool
}

// eventHub maps event names to their subscribers, preserving registration
// order. publish is only ever called from the connection's dispatch path, so
// two publishes never interleave; the mutex guards against subscriptions
// racing that path.
type eventHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]*eventSub
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string][]*eventSub)}
}

func (h *eventHub) subscribe(event string, cb EventCallback, once bool) *EventSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.subs[event] = append(h.subs[event], &eventSub{id: h.nextID, cb: cb, once: once})
	return &EventSubscription{hub: h, event: event, id: h.nextID}
}

func (h *eventHub) unsubscribe(event string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[event]
	for i, sub := range list {
		if sub.id == id {
			h.subs[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// publish invokes every callback registered for the event, in registration
// order. Once-subscriptions are removed before their callback runs, so they
// fire exactly once even if the callback panics.
func (h *eventHub) publish(event string, body json.RawMessage) {
	h.mu.Lock()
	list := h.subs[event]
	fire := make([]*eventSub, len(list))
	copy(fire, list)

	remaining := list[:0:0]
	for _, sub := range list {
		if !sub.once {
			remaining = append(remaining, sub)
		}
	}
	h.subs[event] = remaining
	h.mu.Unlock()

	for _, sub := range fire {
		sub.cb(body)
	}
}

func (h *eventHub) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = make(map[string][]*eventSub)
}
