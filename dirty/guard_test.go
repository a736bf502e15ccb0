package dirty

import (
	"testing"
)

type form struct {
	Name  string
	Roles []string
	Tags  map[string]bool
}

func newGuard(t *testing.T, f *form) *Guard {
	t.Helper()
	g, err := New(func() any { return *f })
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestNoBaselineIsNeverDirty(t *testing.T) {
	f := &form{Name: "Ada"}
	g := newGuard(t, f)
	f.Name = "changed"
	if g.IsDirty() || g.HasBaseline() {
		t.Fatalf("guard without baseline must report clean")
	}
}

func TestMarkCleanAndEdits(t *testing.T) {
	f := &form{Name: "Ada", Roles: []string{"r1"}}
	g := newGuard(t, f)
	if err := g.MarkClean(); err != nil {
		t.Fatal(err)
	}
	if g.IsDirty() {
		t.Fatalf("no change must be clean")
	}

	f.Name = "Grace"
	if !g.IsDirty() {
		t.Fatalf("edited field must be dirty")
	}
	f.Name = "Ada"
	if g.IsDirty() {
		t.Fatalf("reverting the edit must be clean again")
	}

	// a save re-arms the baseline at the new values
	f.Roles = append(f.Roles, "r2")
	if err := g.MarkClean(); err != nil {
		t.Fatal(err)
	}
	if g.IsDirty() {
		t.Fatalf("after MarkClean following a save the guard must be clean")
	}
}

func TestMapOrderDoesNotMatter(t *testing.T) {
	f := &form{Tags: map[string]bool{"a": true, "b": true, "c": false}}
	g := newGuard(t, f)
	if err := g.MarkClean(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		f.Tags = map[string]bool{"c": false, "b": true, "a": true}
		if g.IsDirty() {
			t.Fatalf("rebuilt map with equal content reported dirty")
		}
	}
}

func TestOpenWaitsForSettlePasses(t *testing.T) {
	f := &form{}
	g := newGuard(t, f)
	if err := g.Open(2); err != nil {
		t.Fatal(err)
	}

	// data hydrates after open; not a user edit
	f.Name = "Ada"
	if err := g.Settle(); err != nil {
		t.Fatal(err)
	}
	if g.HasBaseline() {
		t.Fatalf("baseline armed after one pass")
	}
	f.Roles = []string{"r1"}
	if err := g.Settle(); err != nil {
		t.Fatal(err)
	}
	if !g.HasBaseline() || g.IsDirty() {
		t.Fatalf("second pass should capture the hydrated state")
	}

	f.Name = "edited"
	_ = g.Settle() // extra passes must not move the baseline
	if !g.IsDirty() {
		t.Fatalf("edit after settle must be dirty")
	}
}

func TestOpenZeroCapturesNowAndResetClears(t *testing.T) {
	f := &form{Name: "Ada"}
	g := newGuard(t, f)
	if err := g.Open(0); err != nil {
		t.Fatal(err)
	}
	if !g.HasBaseline() {
		t.Fatalf("Open(0) should capture immediately")
	}
	f.Name = "x"
	g.Reset()
	if g.IsDirty() || g.HasBaseline() {
		t.Fatalf("Reset must drop the baseline")
	}
	if err := g.Settle(); err != nil || g.HasBaseline() {
		t.Fatalf("Settle after Reset must not arm")
	}
}

func TestNewRejectsNilCapture(t *testing.T) {
	if _, err := New(nil); err != ErrNoCapture {
		t.Fatalf("got %v", err)
	}
}
