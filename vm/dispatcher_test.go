package vm

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/pngine/backend/mock"
	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/pmod"
)

// buildModule assembles a module whose content is produced by fill.
func buildModule(t *testing.T, plugins bytecode.PluginSet, fill func(b *pmod.Builder, w *bytecode.Writer)) *pmod.Module {
	t.Helper()
	b := pmod.NewBuilder(plugins)
	w := bytecode.NewWriter(0)
	fill(b, w)
	b.SetBytecode(w.Bytes())
	blob, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := pmod.Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func newMockDispatcher(t *testing.T, plugins bytecode.PluginSet, fill func(b *pmod.Builder, w *bytecode.Writer)) (*Dispatcher[*mock.Backend], *mock.Backend) {
	t.Helper()
	be := mock.New()
	d := New(buildModule(t, plugins, fill), be)
	return d, be
}

// Single triangle: the canonical end-to-end golden sequence.
func TestSingleTriangle(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		b.AddData([]byte("@vertex fn vs() {} @fragment fn fs() {}"))
		b.AddData([]byte("{}"))
		b.AddWGSL(0)
		w.CreateShader(0, 0)
		w.CreateRenderPipeline(0, 1)
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.SetPipeline(0)
		w.Draw(3, 1, 0, 0)
		w.EndPass()
		w.Submit()
	})

	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	want := []string{
		"create_shader_module", "create_render_pipeline", "begin_render_pass",
		"set_pipeline", "draw", "end_pass", "submit",
	}
	if got := be.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	draw := be.Named("draw")[0]
	if draw.Args[0] != 3 || draw.Args[1] != 1 {
		t.Errorf("draw args = %v, want vtx=3 inst=1", draw.Args)
	}
}

// Multi-pass scene switching across two frames.
func TestMultiPassSceneSwitching(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		b.AddString("frame0")
		b.AddString("frame1")

		w.DefinePass(0, bytecode.PassKindRender, 0)
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.Draw(3, 1, 0, 0)
		w.EndPass()
		w.Submit()
		w.EndPassDef()

		w.DefinePass(1, bytecode.PassKindRender, 0)
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.Draw(6, 1, 0, 0)
		w.EndPass()
		w.Submit()
		w.EndPassDef()

		w.DefineFrame(0, 0)
		w.ExecPass(0)
		w.EndFrame()
		w.DefineFrame(1, 1)
		w.ExecPass(1)
		w.EndFrame()
	})

	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}

	count := func(name string) int { return len(be.Named(name)) }
	if count("begin_render_pass") != 2 || count("end_pass") != 2 || count("submit") != 2 {
		t.Errorf("pass counts: begin=%d end=%d submit=%d, want 2 each",
			count("begin_render_pass"), count("end_pass"), count("submit"))
	}
	draws := be.Named("draw")
	if len(draws) != 2 {
		t.Fatalf("draws = %d, want 2", len(draws))
	}
	if draws[0].Args[0] != 3 || draws[1].Args[0] != 6 {
		t.Errorf("draw vertex counts = %d, %d, want 3, 6", draws[0].Args[0], draws[1].Args[0])
	}
}

// Boids ping-pong: pool indices alternate with the frame counter.
func TestBoidsPingPong(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.BeginComputePass()
		w.SetBindGroupPool(0, 0, 2, 0)
		w.Dispatch(64, 1, 1)
		w.EndPass()
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.SetVertexBufferPool(0, 0, 2, 1)
		w.Draw(3, 1, 0, 0)
		w.EndPass()
		w.Submit()
		w.EndFrame()
	})

	type frame struct{ bindGroup, vertexBuffer uint64 }
	var got []frame
	for range 2 {
		be.Reset()
		if err := d.RunFrame(); err != nil {
			t.Fatalf("RunFrame: %v", err)
		}
		got = append(got, frame{
			bindGroup:    be.Named("set_bind_group")[0].Args[1],
			vertexBuffer: be.Named("set_vertex_buffer")[0].Args[1],
		})
	}
	want := []frame{{0, 1}, {1, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("pool resolution = %v, want %v", got, want)
	}
}

// Once-only init: pass 0 runs once over five frames, pass 1 every frame.
func TestExecPassOnce(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.DefinePass(0, bytecode.PassKindCompute, 0)
		w.BeginComputePass()
		w.Dispatch(1, 1, 1)
		w.EndPass()
		w.EndPassDef()
		w.DefinePass(1, bytecode.PassKindRender, 0)
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.Draw(3, 1, 0, 0)
		w.EndPass()
		w.EndPassDef()
		w.ExecPassOnce(0)
		w.ExecPass(1)
		w.Submit()
		w.EndFrame()
	})

	for i := range 5 {
		if err := d.RunFrame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if n := len(be.Named("dispatch")); n != 1 {
		t.Errorf("dispatch ran %d times, want exactly 1", n)
	}
	if n := len(be.Named("draw")); n != 5 {
		t.Errorf("draw ran %d times, want 5", n)
	}
}

// Forward reference: exec_pass 0 precedes the define_pass 0 block; the
// pre-scan resolves it.
func TestForwardPassReference(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		b.AddString("main")
		w.DefineFrame(0, 0)
		w.ExecPass(0)
		w.EndFrame()
		w.DefinePass(0, bytecode.PassKindRender, 0)
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.Draw(3, 1, 0, 0)
		w.EndPass()
		w.EndPassDef()
	})

	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if n := len(be.Named("draw")); n != 1 {
		t.Errorf("draw ran %d times, want 1", n)
	}
}

// exec_pass to an unknown id: no backend calls, pc advances, no error.
func TestExecPassUnknownSilent(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.ExecPass(42)
		w.Submit()
	})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if got := be.Names(); !reflect.DeepEqual(got, []string{"submit"}) {
		t.Errorf("calls = %v, want only submit", got)
	}
	if d.Counters().MissedPasses != 1 {
		t.Errorf("MissedPasses = %d, want 1", d.Counters().MissedPasses)
	}
}

// exec_pass_once to an unknown id is silent too, and does not consume
// the once slot.
func TestExecPassOnceUnknownSilent(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.ExecPassOnce(7)
	})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if len(be.Calls()) != 0 {
		t.Errorf("calls = %v, want none", be.Names())
	}
}

// Varint boundary values reach the backend as exact decimals.
func TestVarintBoundaryValues(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.CreateBuffer(0, 100000, bytecode.BufferUsageVertex|bytecode.BufferUsageCopyDst)
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.Draw(16384, 1000, 128, 0)
		w.EndPass()
		w.Submit()
	})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	buf := be.Named("create_buffer")[0]
	if buf.Args[1] != 100000 {
		t.Errorf("buffer size = %d, want 100000", buf.Args[1])
	}
	if buf.Args[2] != uint64(bytecode.BufferUsageVertex|bytecode.BufferUsageCopyDst) {
		t.Errorf("usage = %#x", buf.Args[2])
	}
	draw := be.Named("draw")[0]
	want := []uint64{16384, 1000, 128, 0}
	if !reflect.DeepEqual(draw.Args, want) {
		t.Errorf("draw args = %v, want %v", draw.Args, want)
	}
}

// Frame counter: after the n-th end_frame, FrameCounter == n.
func TestFrameCounter(t *testing.T) {
	d, _ := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.Nop()
		w.EndFrame()
	})
	for n := uint32(1); n <= 4; n++ {
		if err := d.RunFrame(); err != nil {
			t.Fatalf("RunFrame: %v", err)
		}
		if d.FrameCounter() != n {
			t.Errorf("FrameCounter = %d, want %d", d.FrameCounter(), n)
		}
	}
}

// Pool size zero is rejected with ErrInvalidResource.
func TestPoolSizeZeroRejected(t *testing.T) {
	d, _ := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.SetBindGroupPool(0, 0, 0, 0)
	})
	err := d.RunFrame()
	if !errors.Is(err, ErrInvalidResource) {
		t.Errorf("got %v, want ErrInvalidResource", err)
	}
}

// Pool resolution stays in [base, base+pool) and is periodic.
func TestPoolPeriodicity(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.BeginRenderPass(0, bytecode.LoadOpLoad, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.SetVertexBufferPool(0, 10, 3, 1)
		w.EndPass()
		w.Submit()
		w.EndFrame()
	})
	var ids []uint64
	for range 7 {
		be.Reset()
		if err := d.RunFrame(); err != nil {
			t.Fatalf("RunFrame: %v", err)
		}
		ids = append(ids, be.Named("set_vertex_buffer")[0].Args[1])
	}
	for i, id := range ids {
		if id < 10 || id >= 13 {
			t.Errorf("frame %d: id %d outside [10,13)", i, id)
		}
	}
	for i := 0; i+3 < len(ids); i++ {
		if ids[i] != ids[i+3] {
			t.Errorf("period break at %d: %d vs %d", i, ids[i], ids[i+3])
		}
	}
}

// Unknown opcodes surface a distinguishable error.
func TestUnknownOpcode(t *testing.T) {
	be := mock.New()
	b := pmod.NewBuilder(bytecode.AllPlugins)
	b.SetBytecode([]byte{0xEE})
	blob, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := pmod.Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d := New(m, be)
	if err := d.RunFrame(); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("got %v, want ErrUnknownOpcode", err)
	}
}

// Opcodes owned by a disabled plugin are rejected.
func TestPluginDisabled(t *testing.T) {
	d, _ := newMockDispatcher(t, bytecode.PluginSet(bytecode.PluginCore), func(b *pmod.Builder, w *bytecode.Writer) {
		w.Dispatch(1, 1, 1) // compute plugin not enabled
	})
	if err := d.RunFrame(); !errors.Is(err, ErrPluginDisabled) {
		t.Errorf("got %v, want ErrPluginDisabled", err)
	}
}

// execute_bundles caps execution at MaxExecuteBundles but consumes all
// ids, keeping the stream aligned for the next opcode.
func TestExecuteBundlesCap(t *testing.T) {
	ids := make([]uint32, 20)
	for i := range ids {
		ids[i] = uint32(i)
	}
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.BeginRenderPass(0, bytecode.LoadOpLoad, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.ExecuteBundles(ids)
		w.EndPass()
		w.Submit()
	})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	eb := be.Named("execute_bundles")[0]
	if len(eb.Args) != bytecode.MaxExecuteBundles {
		t.Errorf("executed %d bundles, want %d", len(eb.Args), bytecode.MaxExecuteBundles)
	}
	// The opcode after execute_bundles still decoded correctly.
	if n := len(be.Named("end_pass")); n != 1 {
		t.Errorf("end_pass count = %d; stream desynchronized", n)
	}
}

// A backend error mid-frame aborts the frame and is surfaced.
func TestBackendErrorAbortsFrame(t *testing.T) {
	sentinel := errors.New("boom")
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {
		w.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment)
		w.Draw(3, 1, 0, 0)
		w.EndPass()
	})
	be.FailOn, be.FailErr = "draw", sentinel
	if err := d.RunFrame(); !errors.Is(err, sentinel) {
		t.Errorf("got %v, want wrapped sentinel", err)
	}
	// end_pass never ran: the frame aborted at the failing call.
	if n := len(be.Named("end_pass")); n != 0 {
		t.Errorf("end_pass ran %d times after abort", n)
	}
}

// Empty bytecode: zero frames, zero calls, no error.
func TestEmptyBytecode(t *testing.T) {
	d, be := newMockDispatcher(t, bytecode.AllPlugins, func(b *pmod.Builder, w *bytecode.Writer) {})
	if err := d.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if len(be.Calls()) != 0 {
		t.Errorf("calls = %v, want none", be.Names())
	}
	if d.FrameCounter() != 0 {
		t.Errorf("FrameCounter = %d, want 0", d.FrameCounter())
	}
}
