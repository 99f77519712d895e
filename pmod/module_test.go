package pmod

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/pngine/bytecode"
)

func buildTestModule(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder(bytecode.AllPlugins)
	b.AddString("frame_main")
	b.AddString("init")
	b.AddData([]byte("@vertex fn vs() {}"))
	b.AddData([]byte(`{"format":"bgra8unorm"}`))
	b.AddWGSL(0)

	w := bytecode.NewWriter(0)
	w.CreateShader(0, 0)
	w.Submit()
	b.SetBytecode(w.Bytes())

	blob, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return blob
}

func TestParseRoundTrip(t *testing.T) {
	blob := buildTestModule(t)
	m, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if m.Version() != Version {
		t.Errorf("version = %d", m.Version())
	}
	if !m.Plugins().Has(bytecode.PluginCore) {
		t.Error("core plugin missing")
	}
	if m.NumStrings() != 2 {
		t.Fatalf("NumStrings = %d", m.NumStrings())
	}
	if s, ok := m.String(0); !ok || s != "frame_main" {
		t.Errorf("String(0) = %q, %v", s, ok)
	}
	if s, ok := m.String(1); !ok || s != "init" {
		t.Errorf("String(1) = %q, %v", s, ok)
	}
	if _, ok := m.String(2); ok {
		t.Error("String(2) should not resolve")
	}
	if m.NumData() != 2 {
		t.Fatalf("NumData = %d", m.NumData())
	}
	if d, ok := m.Data(0); !ok || string(d) != "@vertex fn vs() {}" {
		t.Errorf("Data(0) = %q, %v", d, ok)
	}
	if m.NumWGSL() != 1 {
		t.Fatalf("NumWGSL = %d", m.NumWGSL())
	}
	if e, ok := m.WGSL(0); !ok || e.DataID != 0 || len(e.Deps) != 0 {
		t.Errorf("WGSL(0) = %+v, %v", e, ok)
	}
	if len(m.Bytecode()) == 0 {
		t.Error("empty bytecode")
	}
}

func TestParseEncodeEqual(t *testing.T) {
	blob := buildTestModule(t)
	m, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Re-encode from the parsed content and parse again; all tables must
	// match.
	b := NewBuilder(m.Plugins())
	for i := range m.NumStrings() {
		s, _ := m.String(uint32(i))
		b.AddString(s)
	}
	for i := range m.NumData() {
		d, _ := m.Data(uint32(i))
		b.AddData(d)
	}
	for i := range m.NumWGSL() {
		e, _ := m.WGSL(uint32(i))
		b.AddWGSL(e.DataID, e.Deps...)
	}
	b.SetBytecode(m.Bytecode())
	blob2, err := b.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if string(blob2) != string(blob) {
		t.Error("re-encoded container differs from original")
	}
}

func TestParseEmptyBytecode(t *testing.T) {
	b := NewBuilder(0)
	blob, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Bytecode()) != 0 {
		t.Errorf("bytecode length = %d", len(m.Bytecode()))
	}
}

func TestParseErrors(t *testing.T) {
	good := buildTestModule(t)

	t.Run("bad magic", func(t *testing.T) {
		blob := append([]byte{}, good...)
		blob[0] = 'X'
		if _, err := Parse(blob); !errors.Is(err, ErrBadMagic) {
			t.Errorf("got %v, want ErrBadMagic", err)
		}
	})

	t.Run("bad version", func(t *testing.T) {
		blob := append([]byte{}, good...)
		binary.LittleEndian.PutUint16(blob[4:6], 99)
		if _, err := Parse(blob); !errors.Is(err, ErrBadVersion) {
			t.Errorf("got %v, want ErrBadVersion", err)
		}
	})

	t.Run("bad plugin set", func(t *testing.T) {
		blob := append([]byte{}, good...)
		blob[6] = 0 // no core
		if _, err := Parse(blob); !errors.Is(err, ErrBadPluginSet) {
			t.Errorf("got %v, want ErrBadPluginSet", err)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		if _, err := Parse(good[:10]); !errors.Is(err, ErrTruncated) {
			t.Errorf("got %v, want ErrTruncated", err)
		}
	})

	t.Run("truncated body", func(t *testing.T) {
		// Cut the tail and keep end_offset agreeing with the new length;
		// the bytecode offset then lies past the end and Parse rejects
		// the blob.
		blob := append([]byte{}, good[:len(good)-8]...)
		binary.LittleEndian.PutUint32(blob[24:28], uint32(len(blob)))
		_, err := Parse(blob)
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("offset out of range", func(t *testing.T) {
		blob := append([]byte{}, good...)
		binary.LittleEndian.PutUint32(blob[8:12], uint32(len(blob)+100))
		if _, err := Parse(blob); !errors.Is(err, ErrOffsetRange) {
			t.Errorf("got %v, want ErrOffsetRange", err)
		}
	})

	t.Run("end offset mismatch", func(t *testing.T) {
		blob := append([]byte{}, good...)
		blob = append(blob, 0xAB)
		if _, err := Parse(blob); !errors.Is(err, ErrOffsetRange) {
			t.Errorf("got %v, want ErrOffsetRange", err)
		}
	})
}

func TestBuilderLimits(t *testing.T) {
	b := NewBuilder(0)
	b.SetBytecode(make([]byte, MaxBytecode+1))
	if _, err := b.Encode(); !errors.Is(err, ErrTableTooLarge) {
		t.Errorf("oversize bytecode: got %v, want ErrTableTooLarge", err)
	}
}

func TestWGSLRefValidation(t *testing.T) {
	b := NewBuilder(0)
	b.AddData([]byte("fragment"))
	b.AddWGSL(5) // data id 5 does not exist
	blob, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Parse(blob); !errors.Is(err, ErrBadWGSLRef) {
		t.Errorf("got %v, want ErrBadWGSLRef", err)
	}
}
