package hooks

import (
	"sync"

	"dictakey/internal/domain"
)

// Token is the only value a native callback carries back to Go.
type Token uint64

// Sink receives raw key events. keys.Dispatcher implements it.
type Sink interface {
	Publish(ev domain.RawKeyEvent)
}

// Owner is what a token resolves to.
type Owner struct {
	Source domain.EventSource
	Sink   Sink
}

// Registry maps tokens handed to native code back to their typed owner.
type Registry struct {
	mu     sync.RWMutex
	next   Token
	owners map[Token]Owner
}

func NewRegistry() *Registry {
	return &Registry{owners: make(map[Token]Owner)}
}

func (r *Registry) Register(owner Owner) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.owners[r.next] = owner
	return r.next
}

// Unregister is a no-op for unknown tokens.
func (r *Registry) Unregister(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, token)
}

func (r *Registry) Lookup(token Token) (Owner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[token]
	return owner, ok
}

// Dispatch forwards ev to the token's owner. Events for released tokens are dropped.
func (r *Registry) Dispatch(token Token, ev domain.RawKeyEvent) bool {
	owner, ok := r.Lookup(token)
	if !ok || owner.Sink == nil {
		return false
	}
	ev.Source = owner.Source
	owner.Sink.Publish(ev)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}
