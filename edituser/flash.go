package edituser

import (
	"sync"
	"time"
)

type FlashKind int

const (
	FlashInfo FlashKind = iota
	FlashError
)

type FlashMessage struct {
	Kind FlashKind
	Text string
}

// Flash holds at most one transient message and clears it after ttl. The
// zero value is not usable; sessions create one.
type Flash struct {
	ttl time.Duration

	mu    sync.Mutex
	cur   *FlashMessage
	timer *time.Timer
	seq   uint64
}

func newFlash(ttl time.Duration) *Flash { return &Flash{ttl: ttl} }

// Show replaces the current message and restarts the timeout.
func (f *Flash) Show(kind FlashKind, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.seq++
	seq := f.seq
	f.cur = &FlashMessage{Kind: kind, Text: text}
	f.timer = time.AfterFunc(f.ttl, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		// a newer Show owns the slot
		if f.seq == seq {
			f.cur, f.timer = nil, nil
		}
	})
}

func (f *Flash) Current() (FlashMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur == nil {
		return FlashMessage{}, false
	}
	return *f.cur, true
}

// Cancel clears the message and stops its timer.
func (f *Flash) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.seq++
	f.cur, f.timer = nil, nil
}
