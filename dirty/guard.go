// Package dirty detects unsaved edits by comparing canonical snapshots of a
// draft against a baseline taken once the form has settled.
package dirty

import (
	"bytes"
	"errors"
	"sync"

	"github.com/unkn0wn-root/editcache/codec"
)

var ErrNoCapture = errors.New("dirty: nil capture func")

// Guard holds one baseline. capture must return a value whose encoding depends
// only on the draft's content; callers sort and filter before returning it.
type Guard struct {
	capture func() any
	enc     codec.CBOR[any]

	mu       sync.Mutex
	baseline []byte
	pending  int // settle passes left before the baseline is armed
	armed    bool
}

func New(capture func() any) (*Guard, error) {
	if capture == nil {
		return nil, ErrNoCapture
	}
	return &Guard{capture: capture, enc: codec.MustCBOR[any](true)}, nil
}

// Open drops any baseline and arms a new one after passes calls to Settle.
// passes <= 0 captures immediately.
func (g *Guard) Open(passes int) error {
	g.mu.Lock()
	g.baseline, g.armed = nil, false
	g.pending = passes
	g.mu.Unlock()
	if passes <= 0 {
		return g.MarkClean()
	}
	return nil
}

// Settle counts one layout pass. The pass that reaches zero captures the
// baseline; later calls are no-ops.
func (g *Guard) Settle() error {
	g.mu.Lock()
	if g.armed || g.pending <= 0 {
		g.mu.Unlock()
		return nil
	}
	g.pending--
	ready := g.pending == 0
	g.mu.Unlock()
	if ready {
		return g.MarkClean()
	}
	return nil
}

// MarkClean makes the current draft the baseline.
func (g *Guard) MarkClean() error {
	snap, err := g.snapshot()
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.baseline, g.armed, g.pending = snap, true, 0
	g.mu.Unlock()
	return nil
}

// IsDirty is false until a baseline exists. A draft that cannot be encoded
// counts as dirty.
func (g *Guard) IsDirty() bool {
	g.mu.Lock()
	base, armed := g.baseline, g.armed
	g.mu.Unlock()
	if !armed {
		return false
	}
	snap, err := g.snapshot()
	if err != nil {
		return true
	}
	return !bytes.Equal(base, snap)
}

func (g *Guard) HasBaseline() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Reset forgets the baseline and any pending settle passes.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.baseline, g.armed, g.pending = nil, false, 0
	g.mu.Unlock()
}

func (g *Guard) snapshot() ([]byte, error) {
	return g.enc.Encode(g.capture())
}
