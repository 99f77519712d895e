package cmdbuf

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/pngine/bytecode"
)

func TestStreamLayout(t *testing.T) {
	b := New(nil)
	if err := b.Draw(3, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.Submit(); err != nil {
		t.Fatal(err)
	}
	stream, _ := b.Drain()

	totalLen := binary.LittleEndian.Uint32(stream[0:4])
	cmdCount := binary.LittleEndian.Uint16(stream[4:6])
	if totalLen != uint32(len(stream)) {
		t.Errorf("total_len = %d, stream = %d", totalLen, len(stream))
	}
	if cmdCount != 2 {
		t.Errorf("cmd_count = %d, want 2", cmdCount)
	}
	if stream[len(stream)-1] != Terminator {
		t.Error("stream not terminated")
	}

	// First command: draw with four u32 operands.
	if bytecode.Op(stream[8]) != bytecode.OpDraw {
		t.Fatalf("first opcode = %#x, want draw", stream[8])
	}
	if v := binary.LittleEndian.Uint32(stream[9:13]); v != 3 {
		t.Errorf("draw vtx = %d, want 3", v)
	}
	if bytecode.Op(stream[25]) != bytecode.OpSubmit {
		t.Errorf("second opcode = %#x, want submit", stream[25])
	}
}

func TestBlobInsideImage(t *testing.T) {
	image := []byte("0123456789abcdef")
	b := New(image)
	desc := image[4:8]
	if err := b.CreateTexture(7, desc); err != nil {
		t.Fatal(err)
	}
	stream, arena := b.Drain()
	if len(arena) != 0 {
		t.Errorf("arena used for image-resident blob")
	}
	off := binary.LittleEndian.Uint32(stream[13:17])
	n := binary.LittleEndian.Uint32(stream[17:21])
	if off != 4 || n != 4 {
		t.Errorf("(ptr,len) = (%d,%d), want (4,4)", off, n)
	}
	if off&arenaBit != 0 {
		t.Error("arena bit set for image-resident blob")
	}
}

func TestBlobOutsideImageUsesArena(t *testing.T) {
	b := New([]byte("image"))
	if err := b.CreateShaderModule(0, "s", "fn main() {}"); err != nil {
		t.Fatal(err)
	}
	stream, arena := b.Drain()
	if string(arena) != "fn main() {}" {
		t.Errorf("arena = %q", arena)
	}
	flags := binary.LittleEndian.Uint16(stream[6:8])
	if flags&flagArenaUsed == 0 {
		t.Error("arena flag not set")
	}
	off := binary.LittleEndian.Uint32(stream[13:17])
	if off&arenaBit == 0 {
		t.Error("arena bit not set in (ptr,len) pair")
	}
	if off&^uint32(arenaBit) != 0 {
		t.Errorf("arena offset = %d, want 0", off&^uint32(arenaBit))
	}
}

func TestOverflowDropsSilently(t *testing.T) {
	b := New(nil, WithBufferSize(headerSize+8))
	if err := b.Submit(); err != nil { // 1 byte, fits
		t.Fatal(err)
	}
	if err := b.Draw(1, 1, 0, 0); err != nil { // 17 bytes, does not fit
		t.Fatal(err)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", b.Dropped())
	}
	stream, _ := b.Drain()
	cmdCount := binary.LittleEndian.Uint16(stream[4:6])
	if cmdCount != 1 {
		t.Errorf("cmd_count = %d, want 1", cmdCount)
	}
	if stream[len(stream)-1] != Terminator {
		t.Error("stream not terminated after drop")
	}
}

func TestDrainResets(t *testing.T) {
	b := New(nil)
	if err := b.Submit(); err != nil {
		t.Fatal(err)
	}
	first, _ := b.Drain()
	if len(first) != headerSize+2 { // submit + terminator
		t.Errorf("first drain = %d bytes", len(first))
	}
	second, arena := b.Drain()
	cmdCount := binary.LittleEndian.Uint16(second[4:6])
	if cmdCount != 0 || len(arena) != 0 {
		t.Errorf("second drain not empty: %d cmds, %d arena", cmdCount, len(arena))
	}
}

func TestRollbackRestoresArena(t *testing.T) {
	// Arena write succeeds but the buffer overflows afterwards: the
	// arena bytes from the dropped command must be rolled back too.
	b := New(nil, WithBufferSize(headerSize+17))
	if err := b.WriteBuffer(0, 0, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
	_, arena := b.Drain()
	if len(arena) != 0 {
		t.Errorf("arena not rolled back: %d bytes", len(arena))
	}
}
