// Package wasmrt hosts the embedded-VM plugin on wazero: pure-Go wasm
// instantiation and calls, with direct reads from guest linear memory
// for buffer uploads.
package wasmrt

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/gogpu/pngine/bytecode"
)

// Runtime errors.
var (
	// ErrModuleNotFound is returned when a module id was never initialized.
	ErrModuleNotFound = errors.New("wasmrt: module not found")

	// ErrFuncNotFound is returned when a named export does not exist.
	ErrFuncNotFound = errors.New("wasmrt: exported function not found")

	// ErrMemoryRange is returned when a guest memory read is out of range.
	ErrMemoryRange = errors.New("wasmrt: memory read out of range")
)

// MaxModules bounds the wasm module table.
const MaxModules = 16

// Runtime owns one wazero runtime and the instantiated guest modules.
// It is confined to the dispatcher's goroutine.
type Runtime struct {
	ctx     context.Context
	runtime wazero.Runtime
	modules [MaxModules]api.Module
}

// New creates an empty runtime. The context is used for all guest
// calls; cancellation between frames is the caller's concern.
func New(ctx context.Context) *Runtime {
	return &Runtime{
		ctx:     ctx,
		runtime: wazero.NewRuntime(ctx),
	}
}

// InitModule instantiates wasm bytecode under the given id. A second
// init with the same id is a no-op, matching resource-create semantics.
func (rt *Runtime) InitModule(id uint32, code []byte) error {
	if int(id) >= MaxModules {
		return fmt.Errorf("%w: module id %d", ErrModuleNotFound, id)
	}
	if rt.modules[id] != nil {
		return nil
	}
	mod, err := rt.runtime.Instantiate(rt.ctx, code)
	if err != nil {
		return fmt.Errorf("wasmrt: instantiate module %d: %w", id, err)
	}
	rt.modules[id] = mod
	return nil
}

// Call invokes an exported function with the decoded argument list.
// Results are discarded; guests communicate through their memory.
func (rt *Runtime) Call(moduleID uint32, name string, args []bytecode.WasmArg) error {
	mod, err := rt.module(moduleID)
	if err != nil {
		return err
	}
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrFuncNotFound, name)
	}
	params := make([]uint64, len(args))
	for i, a := range args {
		switch a.Type {
		case bytecode.WasmArgI32:
			params[i] = api.EncodeI32(int32(a.I32))
		case bytecode.WasmArgI64:
			params[i] = a.I64
		case bytecode.WasmArgF32:
			params[i] = api.EncodeF32(a.F32)
		default:
			params[i] = math.Float64bits(a.F64)
		}
	}
	if _, err := fn.Call(rt.ctx, params...); err != nil {
		return fmt.Errorf("wasmrt: call %q: %w", name, err)
	}
	return nil
}

// ReadMemory returns size bytes of the module's linear memory at ptr.
// The returned slice aliases wazero's memory view and is only valid
// until the next guest call.
func (rt *Runtime) ReadMemory(moduleID, ptr, size uint32) ([]byte, error) {
	mod, err := rt.module(moduleID)
	if err != nil {
		return nil, err
	}
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		return nil, fmt.Errorf("%w: module %d exports no memory", ErrMemoryRange, moduleID)
	}
	data, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("%w: ptr %d size %d", ErrMemoryRange, ptr, size)
	}
	return data, nil
}

func (rt *Runtime) module(id uint32) (api.Module, error) {
	if int(id) >= MaxModules || rt.modules[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrModuleNotFound, id)
	}
	return rt.modules[id], nil
}

// Close tears down the runtime and every instantiated module.
func (rt *Runtime) Close() {
	if rt.runtime != nil {
		_ = rt.runtime.Close(rt.ctx)
		rt.runtime = nil
	}
}
