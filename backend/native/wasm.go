package native

import (
	"context"
	"fmt"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/internal/wasmrt"
)

// Embedded-VM operations. The wazero runtime is created lazily on the
// first init so modules without the wasm plugin never pay for it.

func (b *Backend) wasmRuntime() (*wasmrt.Runtime, error) {
	if !b.plugins.Has(bytecode.PluginWasm) {
		return nil, backend.ErrPluginDisabled
	}
	if b.wasm == nil {
		b.wasm = wasmrt.New(context.Background())
	}
	return b.wasm, nil
}

func (b *Backend) InitWasmModule(id uint32, code []byte) error {
	rt, err := b.wasmRuntime()
	if err != nil {
		return err
	}
	return rt.InitModule(id, code)
}

func (b *Backend) CallWasmFunc(moduleID uint32, name string, args []bytecode.WasmArg) error {
	rt, err := b.wasmRuntime()
	if err != nil {
		return err
	}
	return rt.Call(moduleID, name, args)
}

// WriteBufferFromWasm copies bytes out of a guest module's linear
// memory into a GPU buffer.
func (b *Backend) WriteBufferFromWasm(bufferID, offset, moduleID, srcPtr, size uint32) error {
	rt, err := b.wasmRuntime()
	if err != nil {
		return err
	}
	if int(bufferID) >= MaxBuffers || b.buffers[bufferID] == nil {
		return fmt.Errorf("%w: buffer %d", backend.ErrResourceNotFound, bufferID)
	}
	data, err := rt.ReadMemory(moduleID, srcPtr, size)
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(b.buffers[bufferID], uint64(offset), data)
	return nil
}
