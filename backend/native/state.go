package native

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
)

// Pass state machine:
//
//	idle         --begin_*_pass--> render_active / compute_active
//	                               (acquiring the frame encoder first)
//	*_active     --end_pass------> encoder_open
//	encoder_open --begin_*_pass--> render_active / compute_active
//	any          --submit--------> idle (flush, release encoder)
//
// Beginning a pass while one is active is a programming error in the
// module and is rejected.

// ensureEncoder acquires the frame encoder on the first pass begin.
func (b *Backend) ensureEncoder() error {
	if b.encoder != nil {
		return nil
	}
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "pngine_frame",
	})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	b.encoder = encoder
	b.state = stateEncoderOpen
	return nil
}

// colorView resolves a render pass's color attachment: a live texture
// view slot wins, otherwise the configured surface target.
func (b *Backend) colorView(id uint32) (hal.TextureView, error) {
	if int(id) < MaxTextureViews && b.views[id] != nil {
		return b.views[id], nil
	}
	if b.surfaceView == nil {
		return nil, backend.ErrNoSurface
	}
	return b.surfaceView, nil
}

func (b *Backend) BeginRenderPass(colorID uint32, loadOp, storeOp uint8, depthID uint32) error {
	if b.state == stateRenderActive || b.state == stateComputeActive {
		return fmt.Errorf("%w: state %s", backend.ErrPassActive, b.state)
	}
	if err := b.ensureEncoder(); err != nil {
		return err
	}
	view, err := b.colorView(colorID)
	if err != nil {
		return err
	}

	load := gputypes.LoadOpLoad
	if loadOp == bytecode.LoadOpClear {
		load = gputypes.LoadOpClear
	}
	store := gputypes.StoreOpStore
	if storeOp == bytecode.StoreOpDiscard {
		store = gputypes.StoreOpDiscard
	}

	desc := &hal.RenderPassDescriptor{
		Label: "pngine_render_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     load,
			StoreOp:    store,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	}
	if depthID != bytecode.NoDepthAttachment {
		depthView := hal.TextureView(nil)
		if int(depthID) < MaxTextureViews && b.views[depthID] != nil {
			depthView = b.views[depthID]
		} else {
			if err := b.ensureDepth(); err != nil {
				return err
			}
			depthView = b.depthView
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: 1,
		}
	}

	b.renderPass = b.encoder.BeginRenderPass(desc)
	b.state = stateRenderActive
	return nil
}

func (b *Backend) BeginComputePass() error {
	if b.state == stateRenderActive || b.state == stateComputeActive {
		return fmt.Errorf("%w: state %s", backend.ErrPassActive, b.state)
	}
	if err := b.ensureEncoder(); err != nil {
		return err
	}
	b.computePass = b.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "pngine_compute_pass",
	})
	b.state = stateComputeActive
	return nil
}

func (b *Backend) EndPass() error {
	switch b.state {
	case stateRenderActive:
		b.renderPass.End()
		b.renderPass = nil
	case stateComputeActive:
		b.computePass.End()
		b.computePass = nil
	default:
		return fmt.Errorf("%w: state %s", backend.ErrNoActivePass, b.state)
	}
	b.state = stateEncoderOpen
	return nil
}

func (b *Backend) SetPipeline(id uint32) error {
	switch b.state {
	case stateRenderActive:
		if int(id) >= MaxRenderPipelines || b.renderPipes[id] == nil {
			return fmt.Errorf("%w: render pipeline %d", backend.ErrResourceNotFound, id)
		}
		b.renderPass.SetPipeline(b.renderPipes[id])
	case stateComputeActive:
		if int(id) >= MaxComputePipelines || b.computePipes[id] == nil {
			return fmt.Errorf("%w: compute pipeline %d", backend.ErrResourceNotFound, id)
		}
		b.computePass.SetPipeline(b.computePipes[id])
	default:
		return fmt.Errorf("%w: set_pipeline in state %s", backend.ErrNoActivePass, b.state)
	}
	return nil
}

func (b *Backend) SetBindGroup(slot uint8, id uint32) error {
	if int(id) >= MaxBindGroups || b.bindGroups[id] == nil {
		return fmt.Errorf("%w: bind group %d", backend.ErrResourceNotFound, id)
	}
	switch b.state {
	case stateRenderActive:
		b.renderPass.SetBindGroup(uint32(slot), b.bindGroups[id], nil)
	case stateComputeActive:
		b.computePass.SetBindGroup(uint32(slot), b.bindGroups[id], nil)
	default:
		return fmt.Errorf("%w: set_bind_group in state %s", backend.ErrNoActivePass, b.state)
	}
	return nil
}

func (b *Backend) SetVertexBuffer(slot uint8, id uint32) error {
	if b.state != stateRenderActive {
		return fmt.Errorf("%w: set_vertex_buffer in state %s", backend.ErrNoActivePass, b.state)
	}
	if int(id) >= MaxBuffers || b.buffers[id] == nil {
		return fmt.Errorf("%w: buffer %d", backend.ErrResourceNotFound, id)
	}
	b.renderPass.SetVertexBuffer(uint32(slot), b.buffers[id], 0)
	return nil
}

func (b *Backend) SetIndexBuffer(id uint32, indexFormat uint8) error {
	if b.state != stateRenderActive {
		return fmt.Errorf("%w: set_index_buffer in state %s", backend.ErrNoActivePass, b.state)
	}
	if int(id) >= MaxBuffers || b.buffers[id] == nil {
		return fmt.Errorf("%w: buffer %d", backend.ErrResourceNotFound, id)
	}
	format := gputypes.IndexFormatUint16
	if indexFormat == bytecode.IndexFormatUint32 {
		format = gputypes.IndexFormatUint32
	}
	b.renderPass.SetIndexBuffer(b.buffers[id], format, 0)
	return nil
}

func (b *Backend) Draw(vtx, inst, firstVtx, firstInst uint32) error {
	if b.state != stateRenderActive {
		return fmt.Errorf("%w: draw in state %s", backend.ErrNoActivePass, b.state)
	}
	b.renderPass.Draw(vtx, inst, firstVtx, firstInst)
	return nil
}

func (b *Backend) DrawIndexed(idx, inst, firstIdx, baseVtx, firstInst uint32) error {
	if b.state != stateRenderActive {
		return fmt.Errorf("%w: draw_indexed in state %s", backend.ErrNoActivePass, b.state)
	}
	b.renderPass.DrawIndexed(idx, inst, firstIdx, int32(baseVtx), firstInst)
	return nil
}

func (b *Backend) Dispatch(x, y, z uint32) error {
	if b.state != stateComputeActive {
		return fmt.Errorf("%w: dispatch in state %s", backend.ErrNoActivePass, b.state)
	}
	b.computePass.Dispatch(x, y, z)
	return nil
}

func (b *Backend) ExecuteBundles(ids []uint32) error {
	if b.state != stateRenderActive {
		return fmt.Errorf("%w: execute_bundles in state %s", backend.ErrNoActivePass, b.state)
	}
	// The HAL has no render bundle replay; recorded bundle ids are
	// acknowledged so streams that use them keep running.
	for _, id := range ids {
		if int(id) >= MaxRenderBundles || b.bundles[id] == nil {
			return fmt.Errorf("%w: render bundle %d", backend.ErrResourceNotFound, id)
		}
	}
	b.log.Debug("execute_bundles: no HAL bundle replay, skipped", "count", len(ids))
	return nil
}

// --- queue operations ----------------------------------------------------

func (b *Backend) WriteBuffer(id uint32, offset uint32, data []byte) error {
	if int(id) >= MaxBuffers || b.buffers[id] == nil {
		return fmt.Errorf("%w: buffer %d", backend.ErrResourceNotFound, id)
	}
	b.queue.WriteBuffer(b.buffers[id], uint64(offset), data)
	return nil
}

// timeUniformSize is the packed layout written by WriteTimeUniform:
// time:f32, frame:u32, dt:f32, aspect:f32.
const timeUniformSize = 16

func (b *Backend) WriteTimeUniform(id uint32, offset, size uint32) error {
	if int(id) >= MaxBuffers || b.buffers[id] == nil {
		return fmt.Errorf("%w: buffer %d", backend.ErrResourceNotFound, id)
	}
	var packed [timeUniformSize]byte
	binary.LittleEndian.PutUint32(packed[0:], math.Float32bits(float32(b.time)))
	binary.LittleEndian.PutUint32(packed[4:], b.frame)
	binary.LittleEndian.PutUint32(packed[8:], math.Float32bits(float32(b.time-b.lastTime)))
	aspect := float32(1)
	if b.height != 0 {
		aspect = float32(b.width) / float32(b.height)
	}
	binary.LittleEndian.PutUint32(packed[12:], math.Float32bits(aspect))

	n := size
	if n > timeUniformSize {
		n = timeUniformSize
	}
	b.queue.WriteBuffer(b.buffers[id], uint64(offset), packed[:n])
	return nil
}

// Submit flushes the frame: an open pass is force-ended (with a warning,
// since well-formed modules end passes explicitly), the encoder is
// finished and submitted, and the state machine returns to idle.
func (b *Backend) Submit() error {
	switch b.state {
	case stateIdle:
		return nil // nothing recorded this frame
	case stateRenderActive, stateComputeActive:
		b.log.Warn("submit with open pass, forcing end_pass", "state", b.state.String())
		if err := b.EndPass(); err != nil {
			return err
		}
	}

	cmdBuf, err := b.encoder.EndEncoding()
	if err != nil {
		b.abortFrame()
		return fmt.Errorf("end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	fence, err := b.device.CreateFence()
	if err != nil {
		b.abortFrame()
		return fmt.Errorf("create fence: %w", err)
	}
	defer b.device.DestroyFence(fence)

	if _, err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		b.abortFrame()
		return fmt.Errorf("submit: %w", err)
	}
	if ok, err := b.device.Wait(fence, 1, submitTimeout); err != nil || !ok {
		b.abortFrame()
		return fmt.Errorf("wait for frame: ok=%v err=%w", ok, err)
	}

	b.encoder = nil
	b.state = stateIdle
	b.frame++
	return nil
}

// abortFrame drops all transient frame state on error paths so the next
// frame starts clean. Pass and encoder handles are released regardless
// of where the failure happened.
func (b *Backend) abortFrame() {
	if b.renderPass != nil {
		b.renderPass.End()
		b.renderPass = nil
	}
	if b.computePass != nil {
		b.computePass.End()
		b.computePass = nil
	}
	b.encoder = nil
	b.state = stateIdle
}
