package checkpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/goccy/go-json"
	"github.com/x448/float16"
)

// maxHeaderLen bounds the JSON header so a corrupt length cannot force a huge allocation.
const maxHeaderLen = 100 << 20

// TensorInfo describes one tensor stored in a safetensors file.
type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an opened safetensors checkpoint. Tensor data stays mapped until Close.
type File struct {
	Path    string
	Tensors map[string]TensorInfo

	data    []byte
	payload []byte
	unmap   func() error
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open maps path read-only and parses its header.
func Open(path string) (*File, error) {
	data, unmap, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parse(path, data)
	if err != nil {
		_ = unmap()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.unmap = unmap
	return f, nil
}

func parse(path string, data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, errors.New("file too small for safetensors header")
	}
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > maxHeaderLen || headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("invalid header length %d", headerLen)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	delete(raw, "__metadata__")

	payload := data[8+headerLen:]
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > int64(len(payload)) {
			return nil, fmt.Errorf("tensor %s: offsets [%d,%d) outside payload of %d bytes", name, start, end, len(payload))
		}
		tensors[name] = TensorInfo{DType: th.DType, Shape: th.Shape, Start: start, End: end}
	}
	return &File{Path: path, Tensors: tensors, data: data, payload: payload}, nil
}

// Close releases the file mapping.
func (f *File) Close() error {
	if f == nil || f.unmap == nil {
		return nil
	}
	err := f.unmap()
	f.unmap = nil
	f.data, f.payload = nil, nil
	return err
}

// Float32 decodes the named tensor into a new slice. F32, F16 and BF16 are supported.
func (f *File) Float32(name string) ([]float32, []int, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return nil, nil, fmt.Errorf("tensor not found: %s", name)
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	raw := f.payload[info.Start:info.End]
	out := make([]float32, n)
	switch info.DType {
	case "F32":
		if len(raw) != n*4 {
			return nil, nil, fmt.Errorf("tensor %s: invalid f32 data size", name)
		}
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case "F16":
		if len(raw) != n*2 {
			return nil, nil, fmt.Errorf("tensor %s: invalid f16 data size", name)
		}
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case "BF16":
		if len(raw) != n*2 {
			return nil, nil, fmt.Errorf("tensor %s: invalid bf16 data size", name)
		}
		copy(out, bfloat16.DecodeFloat32(raw))
	default:
		return nil, nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	return out, append([]int(nil), info.Shape...), nil
}

// Tensor is a named float32 array to be saved.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Save writes tensors as an F32 safetensors file. Names are stored sorted.
func Save(path string, tensors map[string]Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	header["__metadata__"] = map[string]string{"format": "pt"}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		n, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		if n != len(t.Data) {
			return fmt.Errorf("tensor %s: shape %v needs %d values, have %d", name, t.Shape, n, len(t.Data))
		}
		size := int64(n) * 4
		header[name] = tensorHeader{DType: "F32", Shape: t.Shape, DataOffsets: []int64{offset, offset + size}}
		offset += size
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	buf := make([]byte, 0, 8+len(hdr)+int(offset))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(hdr)))
	buf = append(buf, hdr...)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return os.WriteFile(path, buf, 0o644)
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, errors.New("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > math.MaxInt/d {
			return 0, errors.New("tensor too large")
		}
		n *= d
	}
	return n, nil
}
