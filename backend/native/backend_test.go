package native

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestBackend(t *testing.T) (*Backend, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	b := New(device, queue)
	if err := b.Configure(64, 64); err != nil {
		cleanup()
		t.Fatalf("Configure: %v", err)
	}
	return b, func() {
		_ = b.Close()
		cleanup()
	}
}

func TestCreateBufferIdempotent(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.CreateBuffer(3, 256, bytecode.BufferUsageStorage); err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	first := b.buffers[3]
	if first == nil {
		t.Fatal("slot 3 empty after create")
	}
	// Second create with the same id is a no-op.
	if err := b.CreateBuffer(3, 512, bytecode.BufferUsageUniform); err != nil {
		t.Fatalf("repeat CreateBuffer: %v", err)
	}
	if b.buffers[3] != first {
		t.Error("repeat create replaced the buffer")
	}
	if b.bufferSizes[3] != 256 {
		t.Errorf("size = %d, want original 256", b.bufferSizes[3])
	}
}

func TestCreateBufferOutOfRange(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	err := b.CreateBuffer(MaxBuffers, 16, 0)
	if !errors.Is(err, backend.ErrResourceRange) {
		t.Errorf("got %v, want ErrResourceRange", err)
	}
}

func TestPassStateMachine(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if b.state != stateIdle {
		t.Fatalf("initial state = %s", b.state)
	}
	if err := b.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	if b.state != stateRenderActive {
		t.Errorf("state = %s, want render_active", b.state)
	}

	// Beginning another pass while one is active is rejected.
	if err := b.BeginComputePass(); !errors.Is(err, backend.ErrPassActive) {
		t.Errorf("nested begin: got %v, want ErrPassActive", err)
	}

	if err := b.EndPass(); err != nil {
		t.Fatalf("EndPass: %v", err)
	}
	if b.state != stateEncoderOpen {
		t.Errorf("state = %s, want encoder_open", b.state)
	}

	if err := b.BeginComputePass(); err != nil {
		t.Fatalf("BeginComputePass: %v", err)
	}
	if b.state != stateComputeActive {
		t.Errorf("state = %s, want compute_active", b.state)
	}
	if err := b.EndPass(); err != nil {
		t.Fatalf("EndPass: %v", err)
	}

	if err := b.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if b.state != stateIdle {
		t.Errorf("state after submit = %s, want idle", b.state)
	}
	if b.encoder != nil {
		t.Error("encoder not released after submit")
	}
}

func TestEndPassWithoutPass(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.EndPass(); !errors.Is(err, backend.ErrNoActivePass) {
		t.Errorf("got %v, want ErrNoActivePass", err)
	}
}

func TestSubmitIdleIsNoop(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.Submit(); err != nil {
		t.Fatalf("Submit from idle: %v", err)
	}
	if b.frame != 0 {
		t.Errorf("frame = %d after empty submit, want 0", b.frame)
	}
}

func TestSubmitForcesOpenPassClosed(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	if err := b.Submit(); err != nil {
		t.Fatalf("Submit with open pass: %v", err)
	}
	if b.state != stateIdle {
		t.Errorf("state = %s, want idle", b.state)
	}
	if b.frame != 1 {
		t.Errorf("frame = %d, want 1", b.frame)
	}
}

func TestDrawOutsideRenderPass(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.Draw(3, 1, 0, 0); !errors.Is(err, backend.ErrNoActivePass) {
		t.Errorf("got %v, want ErrNoActivePass", err)
	}
	if err := b.Dispatch(1, 1, 1); !errors.Is(err, backend.ErrNoActivePass) {
		t.Errorf("got %v, want ErrNoActivePass", err)
	}
}

func TestSetPipelineNotFound(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.BeginRenderPass(0, bytecode.LoadOpClear, bytecode.StoreOpStore, bytecode.NoDepthAttachment); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	defer func() { _ = b.Submit() }()

	if err := b.SetPipeline(5); !errors.Is(err, backend.ErrResourceNotFound) {
		t.Errorf("got %v, want ErrResourceNotFound", err)
	}
}

func TestShaderAndPipelines(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	src := "@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }\n" +
		"@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }"
	if err := b.CreateShaderModule(0, "test_shader", src); err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}
	if err := b.CreateRenderPipeline(0, []byte(`{"shader":0}`)); err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}
	if b.renderPipes[0] == nil {
		t.Error("render pipeline slot empty")
	}
	if err := b.CreateComputePipeline(0, []byte(`{"shader":0,"entry":"vs_main"}`)); err != nil {
		t.Fatalf("CreateComputePipeline: %v", err)
	}

	// Pipeline referencing a missing shader fails with a reference error.
	err := b.CreateRenderPipeline(1, []byte(`{"shader":9}`))
	if !errors.Is(err, backend.ErrResourceNotFound) {
		t.Errorf("got %v, want ErrResourceNotFound", err)
	}
}

func TestBindGroupFlow(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.CreateBuffer(0, 64, bytecode.BufferUsageUniform|bytecode.BufferUsageCopyDst); err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	layoutJSON := `{"entries":[{"binding":0,"visibility":["compute"],"type":"uniform"}]}`
	if err := b.CreateBindGroupLayout(0, []byte(layoutJSON)); err != nil {
		t.Fatalf("CreateBindGroupLayout: %v", err)
	}
	groupJSON := `{"entries":[{"binding":0,"buffer":0,"offset":0,"size":64}]}`
	if err := b.CreateBindGroup(0, 0, []byte(groupJSON)); err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}
	if b.bindGroups[0] == nil {
		t.Error("bind group slot empty")
	}

	// Missing layout is a reference error.
	if err := b.CreateBindGroup(1, 7, []byte(groupJSON)); !errors.Is(err, backend.ErrResourceNotFound) {
		t.Errorf("got %v, want ErrResourceNotFound", err)
	}
}

func TestWriteTimeUniformClamped(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	if err := b.CreateBuffer(0, 64, bytecode.BufferUsageUniform|bytecode.BufferUsageCopyDst); err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	b.SetTime(1.5)
	// Requests beyond the packed layout are clamped, not an error.
	if err := b.WriteTimeUniform(0, 0, 64); err != nil {
		t.Fatalf("WriteTimeUniform: %v", err)
	}
	if err := b.WriteTimeUniform(9, 0, 16); !errors.Is(err, backend.ErrResourceNotFound) {
		t.Errorf("missing buffer: got %v, want ErrResourceNotFound", err)
	}
}

func TestWasmDisabled(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	b := New(device, queue, WithPlugins(bytecode.PluginSet(bytecode.PluginCore|bytecode.PluginRender)))
	defer func() { _ = b.Close() }()

	if err := b.InitWasmModule(0, []byte{0}); !errors.Is(err, backend.ErrPluginDisabled) {
		t.Errorf("got %v, want ErrPluginDisabled", err)
	}
}

func TestCloseReleasesSlots(t *testing.T) {
	b, cleanup := newTestBackend(t)

	if err := b.CreateBuffer(0, 16, bytecode.BufferUsageVertex); err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	cleanup()
	if b.buffers[0] != nil {
		t.Error("buffer slot not cleared by Close")
	}
	if b.surfaceView != nil {
		t.Error("surface view not cleared by Close")
	}
}
