package service

import (
	"context"
	"strings"
	"sync"
)

// keyedMutex hands out one lock per key. Slots are reference counted and
// dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	key  string
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*lockSlot)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
// key may alias a request buffer, so the map only ever holds a copy.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		owned := strings.Clone(key)
		slot = &lockSlot{key: owned, ch: make(chan struct{}, 1)}
		k.slots[owned] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			k.release(slot)
		}, nil
	case <-ctx.Done():
		k.release(slot)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(slot *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, slot.key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
