// Package events is the cross-component notification channel for changes the
// edit workflow makes outside its own form: sidebars, table rows and the lock
// screen subscribe instead of re-querying the cache.
package events

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/editcache"
	"github.com/unkn0wn-root/editcache/admin"
)

// Handler reacts to one event. Errors are logged by the topic.
type Handler[E any] func(context.Context, E) error

type subscriber[E any] struct {
	id uint64
	h  Handler[E]
}

// Topic fans one event kind out to its subscribers. The zero value is ready
// to use and logs nothing.
type Topic[E any] struct {
	name string
	log  editcache.Logger

	mu     sync.RWMutex
	subs   []subscriber[E]
	nextID uint64
}

func NewTopic[E any](name string, log editcache.Logger) *Topic[E] {
	if log == nil {
		log = editcache.NopLogger{}
	}
	return &Topic[E]{name: name, log: log}
}

// Subscribe registers h and returns a func that removes it. Calling cancel
// more than once is harmless.
func (t *Topic[E]) Subscribe(h Handler[E]) (cancel func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber[E]{id: id, h: h})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish calls every subscriber in subscription order on the caller's
// goroutine. A failing handler does not stop the others.
func (t *Topic[E]) Publish(ctx context.Context, e E) {
	t.mu.RLock()
	subs := t.subs
	t.mu.RUnlock()

	for _, s := range subs {
		if err := s.h(ctx, e); err != nil && t.log != nil {
			t.log.Error("event handler error", editcache.Fields{"topic": t.name, "err": err})
		}
	}
}

// Len returns the number of subscribers.
func (t *Topic[E]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

type AvatarChanged struct {
	UserID    string
	AvatarURL string
}

type PinStateChanged struct {
	UserID string
	State  admin.PinState
}

// DetailPatched is published after the cached detail record of a user changed
// through the edit workflow.
type DetailPatched struct {
	UserID string
	User   admin.User
}

// Bus groups the topics the edit workflow publishes to.
type Bus struct {
	Avatar *Topic[AvatarChanged]
	Pin    *Topic[PinStateChanged]
	Detail *Topic[DetailPatched]
}

func NewBus(log editcache.Logger) *Bus {
	return &Bus{
		Avatar: NewTopic[AvatarChanged]("avatar", log),
		Pin:    NewTopic[PinStateChanged]("pin", log),
		Detail: NewTopic[DetailPatched]("detail", log),
	}
}
