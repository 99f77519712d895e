package native

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gogpu/pngine/backend"
)

// Descriptor blobs arrive in one of two encodings:
//
//   - A small self-describing binary format:
//     [type_tag:u8][field_count:u8]{[field_id:u8][value_type:u8][value...]}
//   - UTF-8 JSON, detected by a leading '{' (after whitespace).
//
// Binary value types.
const (
	valU8    = 0 // 1 byte
	valU16   = 1 // 2 bytes LE
	valU32   = 2 // 4 bytes LE
	valF32   = 3 // 4 bytes LE
	valStr   = 4 // u16 length + bytes
	valBytes = 5 // u16 length + raw bytes
)

// descValue is one decoded binary field.
type descValue struct {
	kind  byte
	num   uint32
	f     float32
	str   string
	bytes []byte
}

// descriptor is a decoded binary descriptor: a type tag plus a flat
// field map.
type descriptor struct {
	typeTag byte
	fields  map[uint8]descValue
}

// isJSONDescriptor reports whether the blob is the JSON encoding.
func isJSONDescriptor(blob []byte) bool {
	for _, b := range blob {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// parseBinaryDescriptor decodes the self-describing binary format.
func parseBinaryDescriptor(blob []byte) (*descriptor, error) {
	if len(blob) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", backend.ErrMalformedDescriptor, len(blob))
	}
	d := &descriptor{
		typeTag: blob[0],
		fields:  make(map[uint8]descValue, blob[1]),
	}
	pos := 2
	for range blob[1] {
		if pos+2 > len(blob) {
			return nil, fmt.Errorf("%w: truncated field header", backend.ErrMalformedDescriptor)
		}
		fieldID, kind := blob[pos], blob[pos+1]
		pos += 2
		v := descValue{kind: kind}
		switch kind {
		case valU8:
			if pos+1 > len(blob) {
				return nil, fmt.Errorf("%w: truncated u8", backend.ErrMalformedDescriptor)
			}
			v.num = uint32(blob[pos])
			pos++
		case valU16:
			if pos+2 > len(blob) {
				return nil, fmt.Errorf("%w: truncated u16", backend.ErrMalformedDescriptor)
			}
			v.num = uint32(binary.LittleEndian.Uint16(blob[pos:]))
			pos += 2
		case valU32:
			if pos+4 > len(blob) {
				return nil, fmt.Errorf("%w: truncated u32", backend.ErrMalformedDescriptor)
			}
			v.num = binary.LittleEndian.Uint32(blob[pos:])
			pos += 4
		case valF32:
			if pos+4 > len(blob) {
				return nil, fmt.Errorf("%w: truncated f32", backend.ErrMalformedDescriptor)
			}
			v.f = math.Float32frombits(binary.LittleEndian.Uint32(blob[pos:]))
			pos += 4
		case valStr, valBytes:
			if pos+2 > len(blob) {
				return nil, fmt.Errorf("%w: truncated length", backend.ErrMalformedDescriptor)
			}
			n := int(binary.LittleEndian.Uint16(blob[pos:]))
			pos += 2
			if pos+n > len(blob) {
				return nil, fmt.Errorf("%w: truncated payload", backend.ErrMalformedDescriptor)
			}
			if kind == valStr {
				v.str = string(blob[pos : pos+n])
			} else {
				v.bytes = blob[pos : pos+n : pos+n]
			}
			pos += n
		default:
			return nil, fmt.Errorf("%w: value type %d", backend.ErrMalformedDescriptor, kind)
		}
		d.fields[fieldID] = v
	}
	return d, nil
}

func (d *descriptor) u32(id uint8, def uint32) uint32 {
	if v, ok := d.fields[id]; ok {
		return v.num
	}
	return def
}

func (d *descriptor) f32(id uint8, def float32) float32 {
	if v, ok := d.fields[id]; ok && v.kind == valF32 {
		return v.f
	}
	return def
}

func (d *descriptor) str(id uint8, def string) string {
	if v, ok := d.fields[id]; ok && v.kind == valStr {
		return v.str
	}
	return def
}

func (d *descriptor) bytes(id uint8) []byte {
	if v, ok := d.fields[id]; ok {
		return v.bytes
	}
	return nil
}

func (d *descriptor) has(id uint8) bool {
	_, ok := d.fields[id]
	return ok
}

// jsonObject is a decoded JSON descriptor.
type jsonObject map[string]any

func parseJSONDescriptor(blob []byte) (jsonObject, error) {
	var obj jsonObject
	if err := json.Unmarshal(blob, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrMalformedDescriptor, err)
	}
	return obj, nil
}

func (o jsonObject) num(key string, def uint32) uint32 {
	if v, ok := o[key].(float64); ok {
		return uint32(v)
	}
	return def
}

func (o jsonObject) float(key string, def float32) float32 {
	if v, ok := o[key].(float64); ok {
		return float32(v)
	}
	return def
}

func (o jsonObject) str(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

func (o jsonObject) strs(key string) []string {
	arr, ok := o[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (o jsonObject) objs(key string) []jsonObject {
	arr, ok := o[key].([]any)
	if !ok {
		return nil
	}
	out := make([]jsonObject, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, jsonObject(m))
		}
	}
	return out
}

func (o jsonObject) has(key string) bool {
	_, ok := o[key]
	return ok
}

// lookupCode resolves an enum either from a numeric code (binary path)
// or a name (JSON path).
func lookupCode[T any](codes map[uint16]T, code uint32, what string) (T, error) {
	if v, ok := codes[uint16(code)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s code %d", backend.ErrMalformedDescriptor, what, code)
}

func lookupName[T any](names map[string]T, name, what string) (T, error) {
	if v, ok := names[name]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s %q", backend.ErrMalformedDescriptor, what, name)
}
