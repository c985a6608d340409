package eventing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Registry knows how to turn a stored envelope payload back into the
// concrete event it was serialized from. Every event the outbox carries
// (readings ingested, invoice generated, curtailment lifecycle) must be
// registered at startup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register adds an event type, keyed by its qualified type name. Passing
// a pointer registers the pointed-to type.
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.types[t.String()] = t
	r.mu.Unlock()
}

// DecodePayload rebuilds the concrete event from an envelope. Unregistered
// types are an error, not a silent skip, so a missed Register call fails
// loudly at dispatch.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventing: unregistered event type %q", env.EventType)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}
