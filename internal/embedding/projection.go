package embedding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

const projectionTensor = "linear.weight"

// projection is a bias-free dense layer applied after pooling, as exported
// by sentence-transformers' Dense module.
type projection struct {
	weights []float32 // row-major [out, in]
	in      int
	out     int
}

// loadProjection reads the F32 "linear.weight" tensor from a safetensors
// file: an 8-byte little-endian header size, a JSON header, then raw data.
func loadProjection(path string) (*projection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projection: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("projection %s: truncated header", path)
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("projection %s: header length %d beyond file end", path, headerLen)
	}
	body := data[8+headerLen:]

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("projection %s: parse header: %w", path, err)
	}
	raw, ok := header[projectionTensor]
	if !ok {
		return nil, fmt.Errorf("projection %s: no %q tensor", path, projectionTensor)
	}

	var meta struct {
		Dtype   string `json:"dtype"`
		Shape   []int  `json:"shape"`
		Offsets [2]int `json:"data_offsets"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("projection %s: parse tensor metadata: %w", path, err)
	}
	if meta.Dtype != "F32" || len(meta.Shape) != 2 {
		return nil, fmt.Errorf("projection %s: want 2-D F32 tensor, got %s %v", path, meta.Dtype, meta.Shape)
	}

	out, in := meta.Shape[0], meta.Shape[1]
	start, end := meta.Offsets[0], meta.Offsets[1]
	if start < 0 || end > len(body) || end-start != out*in*4 {
		return nil, fmt.Errorf("projection %s: data range [%d:%d] does not hold shape %v", path, start, end, meta.Shape)
	}

	weights := make([]float32, out*in)
	for i := range weights {
		off := start + i*4
		weights[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[off : off+4]))
	}
	return &projection{weights: weights, in: in, out: out}, nil
}

func (p *projection) apply(v []float32) []float32 {
	res := make([]float32, p.out)
	for i := range res {
		var sum float32
		for j, w := range p.weights[i*p.in : (i+1)*p.in] {
			sum += w * v[j]
		}
		res[i] = sum
	}
	return res
}
