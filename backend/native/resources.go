package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pngine/backend"
)

// Resource creation. Every create is idempotent: a second create with an
// id already filled is a no-op, so replaying the stream each frame costs
// nothing after the first pass.

func checkSlot(id uint32, capacity int, filled bool) (skip bool, err error) {
	if int(id) >= capacity {
		return false, fmt.Errorf("%w: id %d, capacity %d", backend.ErrResourceRange, id, capacity)
	}
	return filled, nil
}

func (b *Backend) CreateBuffer(id uint32, size uint64, usage uint8) error {
	skip, err := checkSlot(id, MaxBuffers, b.buffers[id%MaxBuffers] != nil)
	if err != nil || skip {
		return err
	}
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("buffer_%d", id),
		Size:  size,
		Usage: decodeBufferUsage(usage),
	})
	if err != nil {
		return fmt.Errorf("create buffer %d: %w", id, err)
	}
	b.buffers[id] = buf
	b.bufferSizes[id] = size
	return nil
}

func (b *Backend) CreateTexture(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxTextures, b.textures[id%MaxTextures].tex != nil)
	if err != nil || skip {
		return err
	}
	td, err := parseTextureDesc(desc)
	if err != nil {
		return fmt.Errorf("texture %d: %w", id, err)
	}
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("texture_%d", id),
		Size:          hal.Extent3D{Width: td.width, Height: td.height, DepthOrArrayLayers: td.depth},
		MipLevelCount: td.mips,
		SampleCount:   td.samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        td.format,
		Usage:         td.usage,
	})
	if err != nil {
		return fmt.Errorf("create texture %d: %w", id, err)
	}
	b.textures[id] = texSlot{tex: tex, format: td.format, width: td.width, height: td.height}
	return nil
}

func (b *Backend) CreateSampler(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxSamplers, b.samplers[id%MaxSamplers] != nil)
	if err != nil || skip {
		return err
	}
	sd, err := parseSamplerDesc(desc)
	if err != nil {
		return fmt.Errorf("sampler %d: %w", id, err)
	}
	hd := &hal.SamplerDescriptor{
		Label:        fmt.Sprintf("sampler_%d", id),
		AddressModeU: sd.addressMode,
		AddressModeV: sd.addressMode,
		AddressModeW: sd.addressMode,
		MagFilter:    sd.magFilter,
		MinFilter:    sd.minFilter,
	}
	if sd.hasCompare {
		hd.Compare = sd.compare
	}
	sampler, err := b.device.CreateSampler(hd)
	if err != nil {
		return fmt.Errorf("create sampler %d: %w", id, err)
	}
	b.samplers[id] = sampler
	return nil
}

func (b *Backend) CreateShaderModule(id uint32, label, source string) error {
	skip, err := checkSlot(id, MaxShaderModules, b.shaders[id%MaxShaderModules] != nil)
	if err != nil || skip {
		return err
	}
	src := hal.ShaderSource{WGSL: source}
	if b.compileSPIRV {
		spirvBytes, cerr := naga.Compile(source)
		if cerr != nil {
			return fmt.Errorf("compile shader %d: %w", id, cerr)
		}
		code := make([]uint32, len(spirvBytes)/4)
		for i := range code {
			code[i] = uint32(spirvBytes[i*4]) |
				uint32(spirvBytes[i*4+1])<<8 |
				uint32(spirvBytes[i*4+2])<<16 |
				uint32(spirvBytes[i*4+3])<<24
		}
		src = hal.ShaderSource{SPIRV: code}
	}
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: src,
	})
	if err != nil {
		return fmt.Errorf("create shader %d: %w", id, err)
	}
	b.shaders[id] = module
	return nil
}

func (b *Backend) CreateRenderPipeline(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxRenderPipelines, b.renderPipes[id%MaxRenderPipelines] != nil)
	if err != nil || skip {
		return err
	}
	rp, err := parseRenderPipelineDesc(desc)
	if err != nil {
		return fmt.Errorf("render pipeline %d: %w", id, err)
	}
	shader := b.shaders[rp.shader%MaxShaderModules]
	if int(rp.shader) >= MaxShaderModules || shader == nil {
		return fmt.Errorf("%w: shader %d for render pipeline %d", backend.ErrResourceNotFound, rp.shader, id)
	}

	hd := &hal.RenderPipelineDescriptor{
		Label: fmt.Sprintf("render_pipeline_%d", id),
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: rp.vertexEntry,
			Buffers:    vertexLayouts(rp),
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: rp.fragmentEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    rp.format,
				Blend:     blendState(rp.blend),
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: rp.topology,
			CullMode: rp.cullMode,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: ^uint64(0)},
	}
	if rp.hasLayout {
		layout := b.pipeLayouts[rp.layout%MaxPipelineLayouts]
		if int(rp.layout) >= MaxPipelineLayouts || layout == nil {
			return fmt.Errorf("%w: pipeline layout %d", backend.ErrResourceNotFound, rp.layout)
		}
		hd.Layout = layout
	}
	if rp.hasDepth {
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            rp.depthFormat,
			DepthWriteEnabled: rp.depthWrite,
			DepthCompare:      rp.depthCompare,
		}
	}
	pipeline, err := b.device.CreateRenderPipeline(hd)
	if err != nil {
		return fmt.Errorf("create render pipeline %d: %w", id, err)
	}
	b.renderPipes[id] = pipeline
	return nil
}

// vertexLayouts derives the single-slot vertex buffer layout from the
// descriptor's format list. Attribute offsets are packed in listed
// order; the stride defaults to the packed size.
func vertexLayouts(rp renderPipelineDesc) []gputypes.VertexBufferLayout {
	if len(rp.vertexFormats) == 0 {
		return nil
	}
	attrs := make([]gputypes.VertexAttribute, len(rp.vertexFormats))
	var offset uint64
	for i, f := range rp.vertexFormats {
		attrs[i] = gputypes.VertexAttribute{
			Format:         f,
			Offset:         offset,
			ShaderLocation: uint32(i),
		}
		offset += vertexFormatSizes[f]
	}
	stride := rp.vertexStride
	if stride == 0 {
		stride = offset
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: stride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}
}

func blendState(enabled bool) *gputypes.BlendState {
	if !enabled {
		return nil
	}
	bs := gputypes.BlendStatePremultiplied()
	return &bs
}

func (b *Backend) CreateComputePipeline(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxComputePipelines, b.computePipes[id%MaxComputePipelines] != nil)
	if err != nil || skip {
		return err
	}
	cp, err := parseComputePipelineDesc(desc)
	if err != nil {
		return fmt.Errorf("compute pipeline %d: %w", id, err)
	}
	shader := b.shaders[cp.shader%MaxShaderModules]
	if int(cp.shader) >= MaxShaderModules || shader == nil {
		return fmt.Errorf("%w: shader %d for compute pipeline %d", backend.ErrResourceNotFound, cp.shader, id)
	}
	hd := &hal.ComputePipelineDescriptor{
		Label: fmt.Sprintf("compute_pipeline_%d", id),
		Compute: hal.ComputeState{
			Module:     shader,
			EntryPoint: cp.entry,
		},
	}
	if cp.hasLayout {
		layout := b.pipeLayouts[cp.layout%MaxPipelineLayouts]
		if int(cp.layout) >= MaxPipelineLayouts || layout == nil {
			return fmt.Errorf("%w: pipeline layout %d", backend.ErrResourceNotFound, cp.layout)
		}
		hd.Layout = layout
	}
	pipeline, err := b.device.CreateComputePipeline(hd)
	if err != nil {
		return fmt.Errorf("create compute pipeline %d: %w", id, err)
	}
	b.computePipes[id] = pipeline
	return nil
}

func (b *Backend) CreateBindGroupLayout(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxBindGroupLayouts, b.bgLayouts[id%MaxBindGroupLayouts] != nil)
	if err != nil || skip {
		return err
	}
	entries, err := parseBindGroupLayoutDesc(desc)
	if err != nil {
		return fmt.Errorf("bind group layout %d: %w", id, err)
	}
	halEntries := make([]gputypes.BindGroupLayoutEntry, 0, len(entries))
	for _, e := range entries {
		he := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(e.binding),
			Visibility: e.visibility,
		}
		switch e.kind {
		case bindingKindUniform:
			he.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case bindingKindStorage:
			he.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case bindingKindReadOnlyStore:
			he.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case bindingKindSampler:
			he.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		case bindingKindTexture:
			he.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case bindingKindStorageTexture:
			he.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		default:
			return fmt.Errorf("%w: binding kind %d", backend.ErrMalformedDescriptor, e.kind)
		}
		halEntries = append(halEntries, he)
	}
	layout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   fmt.Sprintf("bind_group_layout_%d", id),
		Entries: halEntries,
	})
	if err != nil {
		return fmt.Errorf("create bind group layout %d: %w", id, err)
	}
	b.bgLayouts[id] = layout
	return nil
}

func (b *Backend) CreatePipelineLayout(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxPipelineLayouts, b.pipeLayouts[id%MaxPipelineLayouts] != nil)
	if err != nil || skip {
		return err
	}
	ids, err := parsePipelineLayoutDesc(desc)
	if err != nil {
		return fmt.Errorf("pipeline layout %d: %w", id, err)
	}
	layouts := make([]hal.BindGroupLayout, 0, len(ids))
	for _, lid := range ids {
		if int(lid) >= MaxBindGroupLayouts || b.bgLayouts[lid] == nil {
			return fmt.Errorf("%w: bind group layout %d", backend.ErrResourceNotFound, lid)
		}
		layouts = append(layouts, b.bgLayouts[lid])
	}
	layout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            fmt.Sprintf("pipeline_layout_%d", id),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout %d: %w", id, err)
	}
	b.pipeLayouts[id] = layout
	return nil
}

func (b *Backend) CreateBindGroup(id, layoutID uint32, entriesBlob []byte) error {
	skip, err := checkSlot(id, MaxBindGroups, b.bindGroups[id%MaxBindGroups] != nil)
	if err != nil || skip {
		return err
	}
	if int(layoutID) >= MaxBindGroupLayouts || b.bgLayouts[layoutID] == nil {
		return fmt.Errorf("%w: bind group layout %d", backend.ErrResourceNotFound, layoutID)
	}
	entries, err := parseBindGroupEntries(entriesBlob)
	if err != nil {
		return fmt.Errorf("bind group %d: %w", id, err)
	}
	halEntries := make([]gputypes.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		he := gputypes.BindGroupEntry{Binding: uint32(e.binding)}
		switch e.kind {
		case bindResBuffer:
			if int(e.id) >= MaxBuffers || b.buffers[e.id] == nil {
				return fmt.Errorf("%w: buffer %d in bind group %d", backend.ErrResourceNotFound, e.id, id)
			}
			size := e.size
			if size == 0 {
				size = b.bufferSizes[e.id] - e.offset
			}
			he.Resource = gputypes.BufferBinding{
				Buffer: b.buffers[e.id].NativeHandle(),
				Offset: e.offset,
				Size:   size,
			}
		case bindResSampler:
			if int(e.id) >= MaxSamplers || b.samplers[e.id] == nil {
				return fmt.Errorf("%w: sampler %d in bind group %d", backend.ErrResourceNotFound, e.id, id)
			}
			he.Resource = gputypes.SamplerBinding{Sampler: b.samplers[e.id].NativeHandle()}
		case bindResTextureView:
			if int(e.id) >= MaxTextureViews || b.views[e.id] == nil {
				return fmt.Errorf("%w: texture view %d in bind group %d", backend.ErrResourceNotFound, e.id, id)
			}
			he.Resource = gputypes.TextureViewBinding{TextureView: b.views[e.id].NativeHandle()}
		default:
			return fmt.Errorf("%w: bind resource kind %d", backend.ErrMalformedDescriptor, e.kind)
		}
		halEntries = append(halEntries, he)
	}
	bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("bind_group_%d", id),
		Layout:  b.bgLayouts[layoutID],
		Entries: halEntries,
	})
	if err != nil {
		return fmt.Errorf("create bind group %d: %w", id, err)
	}
	b.bindGroups[id] = bg
	return nil
}

func (b *Backend) CreateTextureView(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxTextureViews, b.views[id%MaxTextureViews] != nil)
	if err != nil || skip {
		return err
	}
	vd, err := parseViewDesc(desc)
	if err != nil {
		return fmt.Errorf("texture view %d: %w", id, err)
	}
	if int(vd.texture) >= MaxTextures || b.textures[vd.texture].tex == nil {
		return fmt.Errorf("%w: texture %d for view %d", backend.ErrResourceNotFound, vd.texture, id)
	}
	hd := &hal.TextureViewDescriptor{
		Label: fmt.Sprintf("texture_view_%d", id),
	}
	if vd.hasFormat {
		hd.Format = vd.format
	}
	if vd.hasDimension {
		hd.Dimension = vd.dimension
	}
	view, err := b.device.CreateTextureView(b.textures[vd.texture].tex, hd)
	if err != nil {
		return fmt.Errorf("create texture view %d: %w", id, err)
	}
	b.views[id] = view
	return nil
}

func (b *Backend) CreateQuerySet(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxQuerySets, b.querySetSet[id%MaxQuerySets])
	if err != nil || skip {
		return err
	}
	qs, err := parseQuerySetDesc(desc)
	if err != nil {
		return fmt.Errorf("query set %d: %w", id, err)
	}
	// The HAL exposes no query sets yet; the parsed descriptor is kept
	// so timestamps can attach once it does.
	b.querySets[id] = qs
	b.querySetSet[id] = true
	return nil
}

func (b *Backend) CreateRenderBundle(id uint32, desc []byte) error {
	skip, err := checkSlot(id, MaxRenderBundles, b.bundles[id%MaxRenderBundles] != nil)
	if err != nil || skip {
		return err
	}
	// The HAL exposes no render bundles; the descriptor is retained and
	// ExecuteBundles reports the ids it would have replayed.
	b.bundles[id] = append([]byte{}, desc...)
	return nil
}
