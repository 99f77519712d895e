package bytecode

import "testing"

// emitEvery emits one instance of every opcode and returns the stream
// together with the offset just past each opcode's operands.
func emitEvery(w *Writer) []int {
	var ends []int
	mark := func() { ends = append(ends, w.Len()) }

	w.Nop()
	mark()
	w.CreateBuffer(1, 100000, BufferUsageVertex|BufferUsageCopyDst)
	mark()
	w.CreateTexture(2, 3)
	mark()
	w.CreateSampler(4, 5)
	mark()
	w.CreateShader(6, 7)
	mark()
	w.CreateRenderPipeline(8, 9)
	mark()
	w.CreateComputePipeline(10, 11)
	mark()
	w.CreateBindGroup(12, 13, 14)
	mark()
	w.CreateBindGroupLayout(15, 16)
	mark()
	w.CreatePipelineLayout(17, 18)
	mark()
	w.CreateTextureView(19, 20)
	mark()
	w.CreateQuerySet(21, 22)
	mark()
	w.CreateImageBitmap(23, 24)
	mark()
	w.CreateRenderBundle(25, 26)
	mark()
	w.BeginRenderPass(0, LoadOpClear, StoreOpStore, NoDepthAttachment)
	mark()
	w.BeginComputePass()
	mark()
	w.EndPass()
	mark()
	w.SetPipeline(27)
	mark()
	w.SetBindGroup(2, 70000)
	mark()
	w.SetVertexBuffer(1, 28)
	mark()
	w.SetIndexBuffer(29, IndexFormatUint32)
	mark()
	w.Draw(16384, 1000, 128, 0)
	mark()
	w.DrawIndexed(36, 2, 0, 4, 1)
	mark()
	w.Dispatch(64, 1, 1)
	mark()
	w.ExecuteBundles([]uint32{1, 2, 300})
	mark()
	w.WriteBuffer(30, 256, 31)
	mark()
	w.WriteTimeUniform(32, 0, 16)
	mark()
	w.Submit()
	mark()
	w.CopyExternalImageToTexture(33, 34)
	mark()
	w.DefineFrame(0, 35)
	mark()
	w.EndFrame()
	mark()
	w.DefinePass(3, PassKindCompute, 36)
	mark()
	w.EndPassDef()
	mark()
	w.ExecPass(3)
	mark()
	w.ExecPassOnce(3)
	mark()
	w.SetVertexBufferPool(0, 10, 2, 1)
	mark()
	w.SetBindGroupPool(1, 20, 2, 0)
	mark()
	w.InitWasmModule(0, 37)
	mark()
	w.CallWasmFunc(0, 38, []WasmArg{
		{Type: WasmArgI32, I32: 40000},
		{Type: WasmArgI64, I64: 1 << 40},
		{Type: WasmArgF32, F32: 1.5},
		{Type: WasmArgF64, F64: -2.25},
	})
	mark()
	w.WriteBufferFromWasm(39, 0, 0, 4096, 512)
	mark()
	w.CreateTypedArray(0, ElemF32, 1024)
	mark()
	w.FillConstant(0, 0.5)
	mark()
	w.FillRandom(0, 42)
	mark()
	w.FillExpression(0, 40)
	mark()
	w.WriteBufferFromArray(41, 0, 0)
	mark()

	return ends
}

// Scanner.Skip must land exactly where the Writer finished emitting, for
// every opcode the Writer can produce.
func TestSkipMatchesWriter(t *testing.T) {
	w := NewWriter(0)
	ends := emitEvery(w)
	code := w.Bytes()
	s := NewScanner(code)

	pc := 0
	for i, want := range ends {
		op := Op(code[pc])
		next, err := s.Skip(op, pc+1)
		if err != nil {
			t.Fatalf("op %d (%s): Skip failed: %v", i, op, err)
		}
		if next != want {
			t.Fatalf("op %d (%s): Skip landed at %d, want %d", i, op, next, want)
		}
		pc = next
	}
	if pc != len(code) {
		t.Errorf("final pc %d, want %d", pc, len(code))
	}
}

func TestSkipUnknownOpcode(t *testing.T) {
	s := NewScanner([]byte{0xEE})
	if _, err := s.Skip(Op(0xEE), 1); err != ErrUnknownOpcode {
		t.Errorf("got %v, want ErrUnknownOpcode", err)
	}
}

func TestScanPassDefinitions(t *testing.T) {
	w := NewWriter(0)
	w.Nop()
	w.DefinePass(0, PassKindRender, 1)
	bodyStart := w.Len()
	w.Draw(3, 1, 0, 0)
	bodyEnd := w.Len()
	w.EndPassDef()
	w.DefinePass(7, PassKindCompute, 2)
	body2Start := w.Len()
	w.Dispatch(8, 8, 1)
	body2End := w.Len()
	w.EndPassDef()

	ranges := NewScanner(w.Bytes()).ScanPassDefinitions()
	if len(ranges) != 2 {
		t.Fatalf("found %d ranges, want 2", len(ranges))
	}
	r0 := ranges[0]
	if r0.Start != bodyStart || r0.End != bodyEnd {
		t.Errorf("pass 0 range [%d,%d), want [%d,%d)", r0.Start, r0.End, bodyStart, bodyEnd)
	}
	if r0.Kind != PassKindRender || r0.DescID != 1 {
		t.Errorf("pass 0 header kind=%d desc=%d", r0.Kind, r0.DescID)
	}
	r7 := ranges[7]
	if r7.Start != body2Start || r7.End != body2End {
		t.Errorf("pass 7 range [%d,%d), want [%d,%d)", r7.Start, r7.End, body2Start, body2End)
	}
	if r7.Kind != PassKindCompute {
		t.Errorf("pass 7 kind = %d, want compute", r7.Kind)
	}
}

// Regression: a create_bind_group (three varints) followed by unrelated
// opcodes must not desynchronize the scanner; later define_pass blocks
// are still found.
func TestScanAfterBindGroup(t *testing.T) {
	w := NewWriter(0)
	w.CreateBindGroup(1, 2, 3)
	w.WriteBuffer(0, 0, 4)
	w.SetBindGroup(0, 1)
	w.DefinePass(5, PassKindRender, 0)
	start := w.Len()
	w.Draw(6, 1, 0, 0)
	end := w.Len()
	w.EndPassDef()

	ranges := NewScanner(w.Bytes()).ScanPassDefinitions()
	r, ok := ranges[5]
	if !ok {
		t.Fatal("pass 5 not found after create_bind_group")
	}
	if r.Start != start || r.End != end {
		t.Errorf("range [%d,%d), want [%d,%d)", r.Start, r.End, start, end)
	}
}

// A malformed opcode inside the stream must not prevent later passes
// from being found.
func TestScanCatchAndSkip(t *testing.T) {
	w := NewWriter(0)
	w.Nop()
	code := append([]byte{}, w.Bytes()...)
	code = append(code, 0xEE, 0xEE) // garbage
	w2 := NewWriter(0)
	w2.DefinePass(1, PassKindRender, 0)
	start := len(code) + w2.Len()
	w2.Draw(3, 1, 0, 0)
	end := len(code) + w2.Len()
	w2.EndPassDef()
	code = append(code, w2.Bytes()...)

	ranges := NewScanner(code).ScanPassDefinitions()
	r, ok := ranges[1]
	if !ok {
		t.Fatal("pass 1 not found past malformed region")
	}
	if r.Start != start || r.End != end {
		t.Errorf("range [%d,%d), want [%d,%d)", r.Start, r.End, start, end)
	}
}

func TestScanUnterminatedPass(t *testing.T) {
	w := NewWriter(0)
	w.DefinePass(2, PassKindRender, 0)
	start := w.Len()
	w.Draw(3, 1, 0, 0)
	code := w.Bytes()

	ranges := NewScanner(code).ScanPassDefinitions()
	r, ok := ranges[2]
	if !ok {
		t.Fatal("unterminated pass not recorded")
	}
	if r.Start != start || r.End != len(code) {
		t.Errorf("range [%d,%d), want [%d,%d)", r.Start, r.End, start, len(code))
	}
}

func TestScanEmptyBytecode(t *testing.T) {
	ranges := NewScanner(nil).ScanPassDefinitions()
	if len(ranges) != 0 {
		t.Errorf("found %d ranges in empty stream", len(ranges))
	}
}

// Every recorded range must lie within the stream even for adversarial
// input bytes.
func TestScanRangesBounded(t *testing.T) {
	code := make([]byte, 512)
	for i := range code {
		code[i] = byte(i * 7)
	}
	ranges := NewScanner(code).ScanPassDefinitions()
	for id, r := range ranges {
		if r.Start < 0 || r.Start > r.End || r.End > len(code) {
			t.Errorf("pass %d: range [%d,%d) out of bounds (len %d)", id, r.Start, r.End, len(code))
		}
	}
}

func TestDisassembleCoversStream(t *testing.T) {
	w := NewWriter(0)
	w.CreateShader(0, 0)
	w.Submit()
	out := Disassemble(w.Bytes())
	if out == "" {
		t.Fatal("empty disassembly")
	}
	for _, want := range []string{"create_shader", "submit"} {
		if !containsLine(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func containsLine(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
