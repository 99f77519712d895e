package pmod

import (
	"errors"
	"testing"

	"github.com/gogpu/pngine/bytecode"
)

// wgslModule builds a module whose data blobs are the given fragments
// and whose WGSL graph is described by deps (index -> dependency list).
func wgslModule(t *testing.T, fragments []string, deps [][]uint16) *Module {
	t.Helper()
	b := NewBuilder(bytecode.AllPlugins)
	for _, f := range fragments {
		b.AddData([]byte(f))
	}
	for i := range fragments {
		b.AddWGSL(uint16(i), deps[i]...)
	}
	blob, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func TestResolveWGSLSingle(t *testing.T) {
	m := wgslModule(t, []string{"fn main() {}"}, [][]uint16{nil})
	src, err := m.ResolveWGSL(0)
	if err != nil {
		t.Fatalf("ResolveWGSL: %v", err)
	}
	if src != "fn main() {}" {
		t.Errorf("src = %q", src)
	}
}

func TestResolveWGSLDepsPrecede(t *testing.T) {
	// 2 depends on 0 and 1; both must precede it.
	m := wgslModule(t,
		[]string{"// util", "// noise", "fn main() {}"},
		[][]uint16{nil, nil, {0, 1}},
	)
	src, err := m.ResolveWGSL(2)
	if err != nil {
		t.Fatalf("ResolveWGSL: %v", err)
	}
	want := "// util\n// noise\nfn main() {}"
	if src != want {
		t.Errorf("src = %q, want %q", src, want)
	}
}

func TestResolveWGSLDiamond(t *testing.T) {
	// 3 -> {1, 2}, 1 -> {0}, 2 -> {0}: the shared dependency is emitted
	// exactly once, before everything that needs it.
	m := wgslModule(t,
		[]string{"base", "left", "right", "top"},
		[][]uint16{nil, {0}, {0}, {1, 2}},
	)
	src, err := m.ResolveWGSL(3)
	if err != nil {
		t.Fatalf("ResolveWGSL: %v", err)
	}
	want := "base\nleft\nright\ntop"
	if src != want {
		t.Errorf("src = %q, want %q", src, want)
	}
}

func TestResolveWGSLMissingRoot(t *testing.T) {
	m := wgslModule(t, []string{"a"}, [][]uint16{nil})
	if _, err := m.ResolveWGSL(9); !errors.Is(err, ErrMissingWGSL) {
		t.Errorf("got %v, want ErrMissingWGSL", err)
	}
}

func TestResolveWGSLCycleTerminates(t *testing.T) {
	// 0 <-> 1. Resolution stops at the cycle with
	// ErrDependencyDepthExceeded instead of spinning.
	m := wgslModule(t,
		[]string{"a", "b"},
		[][]uint16{{1}, {0}},
	)
	src, err := m.ResolveWGSL(0)
	if !errors.Is(err, ErrDependencyDepthExceeded) {
		t.Fatalf("got %v, want ErrDependencyDepthExceeded", err)
	}
	if src != "" {
		t.Errorf("src = %q, want empty", src)
	}
}
