package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElemType identifies the element type of a tensor payload.
type ElemType string

const (
	ElemFP32   ElemType = "FP32"
	ElemUint32 ElemType = "UINT32"
	ElemUint64 ElemType = "UINT64"
)

// Size returns the byte width of one element, or 0 for unknown types.
func (e ElemType) Size() int {
	switch e {
	case ElemFP32, ElemUint32:
		return 4
	case ElemUint64:
		return 8
	}
	return 0
}

// Tensor is a wire-neutral dense tensor. Shape is nil when the envelope
// carried no shape information (distinct from an empty shape). Bytes holds
// the payload little-endian in row-major order.
type Tensor struct {
	Shape []int64
	Elem  ElemType
	Bytes []byte
}

// TensorInfo describes one declared model input or output.
type TensorInfo struct {
	Name  string
	Shape []int64
	Elem  ElemType
}

// TensorSource is the capability the inference pipeline needs from a request
// envelope: look up a named input tensor. Both predict surfaces implement it.
type TensorSource interface {
	Input(name string) (*Tensor, bool)
	InputNames() []string
}

// Elements returns the element count implied by the shape.
func (t *Tensor) Elements() int64 {
	if t.Shape == nil {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// NewUint64Tensor builds a shape (1) UINT64 tensor holding v.
func NewUint64Tensor(v uint64) *Tensor {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return &Tensor{Shape: []int64{1}, Elem: ElemUint64, Bytes: b}
}

// NewUint32Tensor builds a shape (1) UINT32 tensor holding v.
func NewUint32Tensor(v uint32) *Tensor {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return &Tensor{Shape: []int64{1}, Elem: ElemUint32, Bytes: b}
}

// NewFP32Tensor builds an FP32 tensor with the given shape and values.
func NewFP32Tensor(shape []int64, vals []float32) *Tensor {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return &Tensor{Shape: shape, Elem: ElemFP32, Bytes: b}
}

// Uint64Value reads the single UINT64 element of a shape (1) tensor.
func (t *Tensor) Uint64Value() (uint64, error) {
	if t.Elem != ElemUint64 || len(t.Bytes) != 8 {
		return 0, fmt.Errorf("tensor is not a single UINT64 value")
	}
	return binary.LittleEndian.Uint64(t.Bytes), nil
}

// Uint32Value reads the single UINT32 element of a shape (1) tensor.
func (t *Tensor) Uint32Value() (uint32, error) {
	if t.Elem != ElemUint32 || len(t.Bytes) != 4 {
		return 0, fmt.Errorf("tensor is not a single UINT32 value")
	}
	return binary.LittleEndian.Uint32(t.Bytes), nil
}

// FP32Values decodes the payload as float32 values.
func (t *Tensor) FP32Values() []float32 {
	out := make([]float32, len(t.Bytes)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Bytes[4*i:]))
	}
	return out
}

// Clone returns a deep copy so callers can retain tensors past the
// lifetime of the handle that produced them.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	cp := &Tensor{Elem: t.Elem}
	if t.Shape != nil {
		cp.Shape = append([]int64(nil), t.Shape...)
	}
	cp.Bytes = append([]byte(nil), t.Bytes...)
	return cp
}
