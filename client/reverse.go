package client

import (
	"context"
	"encoding/json"
	"sync"
)

// ReverseRequestHandler answers one adapter-originated request. The returned
// value becomes the body of a success response; a non-nil error becomes a
// failure response carrying the error's message.
type ReverseRequestHandler func(ctx context.Context, args json.RawMessage) (any, error)

// ReverseSubscription is the handle returned by OnReverseRequest.
type ReverseSubscription struct {
	reg     *reverseRegistry
	command string
	entry   *reverseEntry
}

// Unsubscribe removes the handler, but only while this handle's registration
// is still the current one for the command. A stale handle (replaced by a
// later OnReverseRequest for the same command) is a no-op, so an old
// unregister can never clobber a newer registration.
func (s *ReverseSubscription) Unsubscribe() {
	s.reg.unregister(s.command, s.entry)
}

type reverseEntry struct {
	handler ReverseRequestHandler
}

// reverseRegistry maps inbound request command names to at most one handler
// each. Registering a command again replaces the previous handler
// (last-write-wins).
type reverseRegistry struct {
	mu       sync.Mutex
	handlers map[string]*reverseEntry
}

func newReverseRegistry() *reverseRegistry {
	return &reverseRegistry{handlers: make(map[string]*reverseEntry)}
}

func (r *reverseRegistry) register(command string, h ReverseRequestHandler) *ReverseSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &reverseEntry{handler: h}
	r.handlers[command] = entry
	return &ReverseSubscription{reg: r, command: command, entry: entry}
}

func (r *reverseRegistry) unregister(command string, entry *reverseEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers[command] == entry {
		delete(r.handlers, command)
	}
}

func (r *reverseRegistry) lookup(command string) ReverseRequestHandler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.handlers[command]; ok {
		return entry.handler
	}
	return nil
}

func (r *reverseRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]*reverseEntry)
}
