package native

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pngine/backend"
)

// Per-descriptor binary field ids. The compiler's descriptor emitter
// uses the same numbering; both sides change together.
const (
	// texture
	texFieldWidth   = 1
	texFieldHeight  = 2
	texFieldDepth   = 3
	texFieldFormat  = 4
	texFieldUsage   = 5
	texFieldMips    = 6
	texFieldSamples = 7

	// sampler
	sampFieldAddressMode = 1
	sampFieldMagFilter   = 2
	sampFieldMinFilter   = 3
	sampFieldCompare     = 4

	// texture view
	viewFieldTexture   = 1
	viewFieldFormat    = 2
	viewFieldDimension = 3

	// render pipeline
	rpFieldShader        = 1
	rpFieldVertexEntry   = 2
	rpFieldFragmentEntry = 3
	rpFieldLayout        = 4
	rpFieldTopology      = 5
	rpFieldCullMode      = 6
	rpFieldFormat        = 7
	rpFieldBlend         = 8
	rpFieldDepthFormat   = 9
	rpFieldDepthCompare  = 10
	rpFieldDepthWrite    = 11
	rpFieldVertexStride  = 12
	rpFieldVertexFormats = 13

	// compute pipeline
	cpFieldShader = 1
	cpFieldEntry  = 2
	cpFieldLayout = 3

	// bind group layout / pipeline layout / bind group
	layoutFieldEntries = 1

	// query set
	qsFieldType  = 1
	qsFieldCount = 2
)

// textureDesc is a decoded texture descriptor.
type textureDesc struct {
	width, height, depth uint32
	mips, samples        uint32
	format               gputypes.TextureFormat
	usage                gputypes.TextureUsage
}

func parseTextureDesc(blob []byte) (textureDesc, error) {
	td := textureDesc{depth: 1, mips: 1, samples: 1}
	if isJSONDescriptor(blob) {
		o, err := parseJSONDescriptor(blob)
		if err != nil {
			return td, err
		}
		td.width = o.num("width", 0)
		td.height = o.num("height", 0)
		td.depth = o.num("depthOrArrayLayers", 1)
		td.mips = o.num("mipLevelCount", 1)
		td.samples = o.num("sampleCount", 1)
		td.format, err = lookupName(textureFormatNames, o.str("format", "rgba8unorm"), "texture format")
		if err != nil {
			return td, err
		}
		var usage uint32
		for _, name := range o.strs("usage") {
			switch name {
			case "copy-src":
				usage |= texUsageCopySrc
			case "copy-dst":
				usage |= texUsageCopyDst
			case "texture-binding":
				usage |= texUsageTextureBinding
			case "storage-binding":
				usage |= texUsageStorageBinding
			case "render-attachment":
				usage |= texUsageRenderAttachment
			default:
				return td, fmt.Errorf("%w: texture usage %q", backend.ErrMalformedDescriptor, name)
			}
		}
		td.usage = decodeTextureUsage(usage)
		return td, nil
	}

	d, err := parseBinaryDescriptor(blob)
	if err != nil {
		return td, err
	}
	td.width = d.u32(texFieldWidth, 0)
	td.height = d.u32(texFieldHeight, 0)
	td.depth = d.u32(texFieldDepth, 1)
	td.mips = d.u32(texFieldMips, 1)
	td.samples = d.u32(texFieldSamples, 1)
	td.format, err = lookupCode(textureFormatCodes, d.u32(texFieldFormat, 0), "texture format")
	if err != nil {
		return td, err
	}
	td.usage = decodeTextureUsage(d.u32(texFieldUsage, texUsageTextureBinding|texUsageCopyDst))
	return td, nil
}

// samplerDesc is a decoded sampler descriptor.
type samplerDesc struct {
	addressMode gputypes.AddressMode
	magFilter   gputypes.FilterMode
	minFilter   gputypes.FilterMode
	compare     gputypes.CompareFunction
	hasCompare  bool
}

func parseSamplerDesc(blob []byte) (samplerDesc, error) {
	sd := samplerDesc{
		addressMode: gputypes.AddressModeClampToEdge,
		magFilter:   gputypes.FilterModeLinear,
		minFilter:   gputypes.FilterModeLinear,
	}
	if len(blob) == 0 {
		return sd, nil
	}
	var err error
	if isJSONDescriptor(blob) {
		o, jerr := parseJSONDescriptor(blob)
		if jerr != nil {
			return sd, jerr
		}
		if sd.addressMode, err = lookupName(addressModeNames, o.str("addressMode", "clamp-to-edge"), "address mode"); err != nil {
			return sd, err
		}
		if sd.magFilter, err = lookupName(filterModeNames, o.str("magFilter", "linear"), "filter"); err != nil {
			return sd, err
		}
		if sd.minFilter, err = lookupName(filterModeNames, o.str("minFilter", "linear"), "filter"); err != nil {
			return sd, err
		}
		if o.has("compare") {
			if sd.compare, err = lookupName(compareFunctionNames, o.str("compare", "always"), "compare function"); err != nil {
				return sd, err
			}
			sd.hasCompare = true
		}
		return sd, nil
	}

	d, derr := parseBinaryDescriptor(blob)
	if derr != nil {
		return sd, derr
	}
	if sd.addressMode, err = lookupCode(addressModeCodes, d.u32(sampFieldAddressMode, 0), "address mode"); err != nil {
		return sd, err
	}
	if sd.magFilter, err = lookupCode(filterModeCodes, d.u32(sampFieldMagFilter, 1), "filter"); err != nil {
		return sd, err
	}
	if sd.minFilter, err = lookupCode(filterModeCodes, d.u32(sampFieldMinFilter, 1), "filter"); err != nil {
		return sd, err
	}
	if d.has(sampFieldCompare) {
		if sd.compare, err = lookupCode(compareFunctionCodes, d.u32(sampFieldCompare, 7), "compare function"); err != nil {
			return sd, err
		}
		sd.hasCompare = true
	}
	return sd, nil
}

// viewDesc is a decoded texture-view descriptor.
type viewDesc struct {
	texture      uint32
	format       gputypes.TextureFormat
	hasFormat    bool
	dimension    gputypes.TextureViewDimension
	hasDimension bool
}

func parseViewDesc(blob []byte) (viewDesc, error) {
	var vd viewDesc
	var err error
	if isJSONDescriptor(blob) {
		o, jerr := parseJSONDescriptor(blob)
		if jerr != nil {
			return vd, jerr
		}
		vd.texture = o.num("texture", 0)
		if o.has("format") {
			if vd.format, err = lookupName(textureFormatNames, o.str("format", ""), "texture format"); err != nil {
				return vd, err
			}
			vd.hasFormat = true
		}
		if o.has("dimension") {
			if vd.dimension, err = lookupName(viewDimensionNames, o.str("dimension", ""), "view dimension"); err != nil {
				return vd, err
			}
			vd.hasDimension = true
		}
		return vd, nil
	}

	d, derr := parseBinaryDescriptor(blob)
	if derr != nil {
		return vd, derr
	}
	vd.texture = d.u32(viewFieldTexture, 0)
	if d.has(viewFieldFormat) {
		if vd.format, err = lookupCode(textureFormatCodes, d.u32(viewFieldFormat, 0), "texture format"); err != nil {
			return vd, err
		}
		vd.hasFormat = true
	}
	if d.has(viewFieldDimension) {
		if vd.dimension, err = lookupCode(viewDimensionCodes, d.u32(viewFieldDimension, 1), "view dimension"); err != nil {
			return vd, err
		}
		vd.hasDimension = true
	}
	return vd, nil
}

// renderPipelineDesc is a decoded render pipeline descriptor.
type renderPipelineDesc struct {
	shader        uint32
	vertexEntry   string
	fragmentEntry string
	layout        uint32
	hasLayout     bool
	topology      gputypes.PrimitiveTopology
	cullMode      gputypes.CullMode
	format        gputypes.TextureFormat
	blend         bool
	depthFormat   gputypes.TextureFormat
	hasDepth      bool
	depthCompare  gputypes.CompareFunction
	depthWrite    bool
	vertexStride  uint64
	vertexFormats []gputypes.VertexFormat
}

func parseRenderPipelineDesc(blob []byte) (renderPipelineDesc, error) {
	rp := renderPipelineDesc{
		vertexEntry:   "vs_main",
		fragmentEntry: "fs_main",
		topology:      gputypes.PrimitiveTopologyTriangleList,
		cullMode:      gputypes.CullModeNone,
		format:        gputypes.TextureFormatBGRA8Unorm,
		blend:         true,
		depthCompare:  gputypes.CompareFunctionLess,
		depthWrite:    true,
	}
	if len(blob) == 0 || (len(blob) == 2 && blob[0] == '{' && blob[1] == '}') {
		return rp, nil
	}
	var err error
	if isJSONDescriptor(blob) {
		o, jerr := parseJSONDescriptor(blob)
		if jerr != nil {
			return rp, jerr
		}
		rp.shader = o.num("shader", 0)
		rp.vertexEntry = o.str("vertexEntry", rp.vertexEntry)
		rp.fragmentEntry = o.str("fragmentEntry", rp.fragmentEntry)
		if o.has("layout") {
			rp.layout, rp.hasLayout = o.num("layout", 0), true
		}
		if rp.topology, err = lookupName(topologyNames, o.str("topology", "triangle-list"), "topology"); err != nil {
			return rp, err
		}
		if rp.cullMode, err = lookupName(cullModeNames, o.str("cullMode", "none"), "cull mode"); err != nil {
			return rp, err
		}
		if rp.format, err = lookupName(textureFormatNames, o.str("format", "bgra8unorm"), "texture format"); err != nil {
			return rp, err
		}
		if b, ok := o["blend"].(bool); ok {
			rp.blend = b
		}
		if o.has("depthFormat") {
			if rp.depthFormat, err = lookupName(textureFormatNames, o.str("depthFormat", ""), "texture format"); err != nil {
				return rp, err
			}
			rp.hasDepth = true
		}
		if rp.depthCompare, err = lookupName(compareFunctionNames, o.str("depthCompare", "less"), "compare function"); err != nil {
			return rp, err
		}
		if b, ok := o["depthWrite"].(bool); ok {
			rp.depthWrite = b
		}
		rp.vertexStride = uint64(o.num("vertexStride", 0))
		for _, name := range o.strs("vertexFormats") {
			f, ferr := lookupName(vertexFormatNames, name, "vertex format")
			if ferr != nil {
				return rp, ferr
			}
			rp.vertexFormats = append(rp.vertexFormats, f)
		}
		return rp, nil
	}

	d, derr := parseBinaryDescriptor(blob)
	if derr != nil {
		return rp, derr
	}
	rp.shader = d.u32(rpFieldShader, 0)
	rp.vertexEntry = d.str(rpFieldVertexEntry, rp.vertexEntry)
	rp.fragmentEntry = d.str(rpFieldFragmentEntry, rp.fragmentEntry)
	if d.has(rpFieldLayout) {
		rp.layout, rp.hasLayout = d.u32(rpFieldLayout, 0), true
	}
	if rp.topology, err = lookupCode(topologyCodes, d.u32(rpFieldTopology, 3), "topology"); err != nil {
		return rp, err
	}
	if rp.cullMode, err = lookupCode(cullModeCodes, d.u32(rpFieldCullMode, 0), "cull mode"); err != nil {
		return rp, err
	}
	if rp.format, err = lookupCode(textureFormatCodes, d.u32(rpFieldFormat, 1), "texture format"); err != nil {
		return rp, err
	}
	rp.blend = d.u32(rpFieldBlend, 1) != 0
	if d.has(rpFieldDepthFormat) {
		if rp.depthFormat, err = lookupCode(textureFormatCodes, d.u32(rpFieldDepthFormat, 6), "texture format"); err != nil {
			return rp, err
		}
		rp.hasDepth = true
	}
	if rp.depthCompare, err = lookupCode(compareFunctionCodes, d.u32(rpFieldDepthCompare, 1), "compare function"); err != nil {
		return rp, err
	}
	rp.depthWrite = d.u32(rpFieldDepthWrite, 1) != 0
	rp.vertexStride = uint64(d.u32(rpFieldVertexStride, 0))
	for _, code := range d.bytes(rpFieldVertexFormats) {
		f, ferr := lookupCode(vertexFormatCodes, uint32(code), "vertex format")
		if ferr != nil {
			return rp, ferr
		}
		rp.vertexFormats = append(rp.vertexFormats, f)
	}
	return rp, nil
}

// computePipelineDesc is a decoded compute pipeline descriptor.
type computePipelineDesc struct {
	shader    uint32
	entry     string
	layout    uint32
	hasLayout bool
}

func parseComputePipelineDesc(blob []byte) (computePipelineDesc, error) {
	cp := computePipelineDesc{entry: "main"}
	if isJSONDescriptor(blob) {
		o, err := parseJSONDescriptor(blob)
		if err != nil {
			return cp, err
		}
		cp.shader = o.num("shader", 0)
		cp.entry = o.str("entry", cp.entry)
		if o.has("layout") {
			cp.layout, cp.hasLayout = o.num("layout", 0), true
		}
		return cp, nil
	}
	d, err := parseBinaryDescriptor(blob)
	if err != nil {
		return cp, err
	}
	cp.shader = d.u32(cpFieldShader, 0)
	cp.entry = d.str(cpFieldEntry, cp.entry)
	if d.has(cpFieldLayout) {
		cp.layout, cp.hasLayout = d.u32(cpFieldLayout, 0), true
	}
	return cp, nil
}

// layoutEntry is one decoded bind-group-layout entry.
type layoutEntry struct {
	binding    uint8
	visibility gputypes.ShaderStages
	kind       uint8
}

// parseBindGroupLayoutDesc decodes the entry list of a bind group
// layout. Binary entries are fixed 3-byte records
// [binding][visibility][kind]; JSON entries are objects.
func parseBindGroupLayoutDesc(blob []byte) ([]layoutEntry, error) {
	if isJSONDescriptor(blob) {
		o, err := parseJSONDescriptor(blob)
		if err != nil {
			return nil, err
		}
		var entries []layoutEntry
		for _, e := range o.objs("entries") {
			var vis uint8
			for _, s := range e.strs("visibility") {
				switch s {
				case "vertex":
					vis |= visVertex
				case "fragment":
					vis |= visFragment
				case "compute":
					vis |= visCompute
				}
			}
			kind, err := bindingKindFromName(e.str("type", "uniform"))
			if err != nil {
				return nil, err
			}
			entries = append(entries, layoutEntry{
				binding:    uint8(e.num("binding", 0)),
				visibility: decodeVisibility(vis),
				kind:       kind,
			})
		}
		return entries, nil
	}

	d, err := parseBinaryDescriptor(blob)
	if err != nil {
		return nil, err
	}
	raw := d.bytes(layoutFieldEntries)
	if len(raw)%3 != 0 {
		return nil, fmt.Errorf("%w: layout entries length %d", backend.ErrMalformedDescriptor, len(raw))
	}
	entries := make([]layoutEntry, 0, len(raw)/3)
	for i := 0; i < len(raw); i += 3 {
		entries = append(entries, layoutEntry{
			binding:    raw[i],
			visibility: decodeVisibility(raw[i+1]),
			kind:       raw[i+2],
		})
	}
	return entries, nil
}

func bindingKindFromName(name string) (uint8, error) {
	switch name {
	case "uniform":
		return bindingKindUniform, nil
	case "storage":
		return bindingKindStorage, nil
	case "read-only-storage":
		return bindingKindReadOnlyStore, nil
	case "sampler":
		return bindingKindSampler, nil
	case "texture":
		return bindingKindTexture, nil
	case "storage-texture":
		return bindingKindStorageTexture, nil
	}
	return 0, fmt.Errorf("%w: binding type %q", backend.ErrMalformedDescriptor, name)
}

// parsePipelineLayoutDesc decodes a pipeline layout: an ordered list of
// bind-group-layout ids. Binary form is one byte per id.
func parsePipelineLayoutDesc(blob []byte) ([]uint32, error) {
	if isJSONDescriptor(blob) {
		o, err := parseJSONDescriptor(blob)
		if err != nil {
			return nil, err
		}
		arr, _ := o["layouts"].([]any)
		ids := make([]uint32, 0, len(arr))
		for _, v := range arr {
			if f, ok := v.(float64); ok {
				ids = append(ids, uint32(f))
			}
		}
		return ids, nil
	}
	d, err := parseBinaryDescriptor(blob)
	if err != nil {
		return nil, err
	}
	raw := d.bytes(layoutFieldEntries)
	ids := make([]uint32, len(raw))
	for i, b := range raw {
		ids[i] = uint32(b)
	}
	return ids, nil
}

// Bind-group entry resource kinds.
const (
	bindResBuffer      = 0
	bindResSampler     = 1
	bindResTextureView = 2
)

// bindGroupEntry is one decoded bind-group entry.
type bindGroupEntry struct {
	binding uint8
	kind    uint8
	id      uint32
	offset  uint64
	size    uint64
}

// bindGroupEntrySize is the fixed binary record width:
// [binding:u8][kind:u8][id:u16][offset:u32][size:u32].
const bindGroupEntrySize = 12

// parseBindGroupEntries decodes a bind group's entry blob.
func parseBindGroupEntries(blob []byte) ([]bindGroupEntry, error) {
	if isJSONDescriptor(blob) {
		o, err := parseJSONDescriptor(blob)
		if err != nil {
			return nil, err
		}
		var entries []bindGroupEntry
		for _, e := range o.objs("entries") {
			entry := bindGroupEntry{
				binding: uint8(e.num("binding", 0)),
				offset:  uint64(e.num("offset", 0)),
				size:    uint64(e.num("size", 0)),
			}
			switch {
			case e.has("buffer"):
				entry.kind, entry.id = bindResBuffer, e.num("buffer", 0)
			case e.has("sampler"):
				entry.kind, entry.id = bindResSampler, e.num("sampler", 0)
			case e.has("texture"):
				entry.kind, entry.id = bindResTextureView, e.num("texture", 0)
			default:
				return nil, fmt.Errorf("%w: bind group entry without resource", backend.ErrMalformedDescriptor)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	}

	d, err := parseBinaryDescriptor(blob)
	if err != nil {
		return nil, err
	}
	raw := d.bytes(layoutFieldEntries)
	if len(raw)%bindGroupEntrySize != 0 {
		return nil, fmt.Errorf("%w: bind group entries length %d", backend.ErrMalformedDescriptor, len(raw))
	}
	entries := make([]bindGroupEntry, 0, len(raw)/bindGroupEntrySize)
	for i := 0; i < len(raw); i += bindGroupEntrySize {
		entries = append(entries, bindGroupEntry{
			binding: raw[i],
			kind:    raw[i+1],
			id:      uint32(raw[i+2]) | uint32(raw[i+3])<<8,
			offset:  uint64(u32le(raw[i+4:])),
			size:    uint64(u32le(raw[i+8:])),
		})
	}
	return entries, nil
}

func u32le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// querySetDesc is a decoded query set descriptor.
type querySetDesc struct {
	queryType uint32 // 0 = occlusion, 1 = timestamp
	count     uint32
}

func parseQuerySetDesc(blob []byte) (querySetDesc, error) {
	qs := querySetDesc{count: 1}
	if isJSONDescriptor(blob) {
		o, err := parseJSONDescriptor(blob)
		if err != nil {
			return qs, err
		}
		switch o.str("type", "occlusion") {
		case "occlusion":
			qs.queryType = 0
		case "timestamp":
			qs.queryType = 1
		default:
			return qs, fmt.Errorf("%w: query type %q", backend.ErrMalformedDescriptor, o.str("type", ""))
		}
		qs.count = o.num("count", 1)
		return qs, nil
	}
	d, err := parseBinaryDescriptor(blob)
	if err != nil {
		return qs, err
	}
	qs.queryType = d.u32(qsFieldType, 0)
	qs.count = d.u32(qsFieldCount, 1)
	return qs, nil
}
