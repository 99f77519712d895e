package vm

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/pmod"
)

func TestFillConstantAndUpload(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.CreateBuffer(0, 16, bytecode.BufferUsageStorage|bytecode.BufferUsageCopyDst)
		w.CreateTypedArray(0, bytecode.ElemF32, 4)
		w.FillConstant(0, 0.5)
		w.WriteBufferFromArray(0, 0, 0)
	})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	wb := be.Named("write_buffer")
	if len(wb) != 1 {
		t.Fatalf("write_buffer count = %d", len(wb))
	}
	if len(wb[0].Blob) != 16 {
		t.Fatalf("uploaded %d bytes, want 16", len(wb[0].Blob))
	}
	for i := range 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(wb[0].Blob[i*4:]))
		if v != 0.5 {
			t.Errorf("element %d = %v, want 0.5", i, v)
		}
	}
}

func TestFillRandomDeterministic(t *testing.T) {
	build := func(b *pmod.Builder, w *bytecode.Writer) {
		w.CreateTypedArray(0, bytecode.ElemF32, 8)
		w.FillRandom(0, 42)
		w.WriteBufferFromArray(0, 0, 0)
	}
	d1, be1 := newMockDispatcher(t, bytecode.AllPlugins, build)
	d2, be2 := newMockDispatcher(t, bytecode.AllPlugins, build)
	if err := d1.RunFrame(); err != nil {
		t.Fatal(err)
	}
	if err := d2.RunFrame(); err != nil {
		t.Fatal(err)
	}
	b1 := be1.Named("write_buffer")[0].Blob
	b2 := be2.Named("write_buffer")[0].Blob
	if string(b1) != string(b2) {
		t.Error("fill_random is not deterministic for equal seeds")
	}
	for i := 0; i < len(b1); i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(b1[i:]))
		if v < 0 || v >= 1.0000001 {
			t.Errorf("random value %v outside [0,1)", v)
		}
	}
}

func TestFillExpression(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		exprID := b.AddString("i * 2.0 + 1.0")
		w.CreateTypedArray(0, bytecode.ElemF32, 3)
		w.FillExpression(0, exprID)
		w.WriteBufferFromArray(0, 0, 0)
	})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	blob := be.Named("write_buffer")[0].Blob
	want := []float32{1, 3, 5}
	for i, wv := range want {
		v := math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
		if v != wv {
			t.Errorf("element %d = %v, want %v", i, v, wv)
		}
	}
}

func TestFillExpressionBadSource(t *testing.T) {
	d, _ := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		exprID := b.AddString("i +")
		w.CreateTypedArray(0, bytecode.ElemF32, 1)
		w.FillExpression(0, exprID)
	})
	if err := d.RunFrame(); !errors.Is(err, ErrBadExpression) {
		t.Errorf("got %v, want ErrBadExpression", err)
	}
}

func TestFillMissingArray(t *testing.T) {
	d, _ := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.FillConstant(9, 1)
	})
	if err := d.RunFrame(); !errors.Is(err, ErrMissingArray) {
		t.Errorf("got %v, want ErrMissingArray", err)
	}
}

func TestOnceSetOverflowIDs(t *testing.T) {
	var s onceSet
	for _, id := range []uint32{0, 63, 64, 1023, 1024, 1 << 20} {
		if s.contains(id) {
			t.Errorf("id %d present before add", id)
		}
		s.add(id)
		if !s.contains(id) {
			t.Errorf("id %d missing after add", id)
		}
	}
}
