package training

import "fmt"

// Dtype tag carried by serialized tensors. Weight payloads exchanged with
// the coordinator are tagged float32 regardless of the in-memory
// representation.
const DefaultDtype = "float32"

// Tensor is a dense numeric buffer with an explicit shape. Buffers are
// plain slices owned by the garbage collector; there is no manual release
// step, so every exit path is leak-free by construction.
type Tensor struct {
	Data  []float64
	Shape []int
	Dtype string
}

// NewTensor wraps data with the given shape. It panics if the shape does
// not match the data length; construction sites are all internal.
func NewTensor(data []float64, shape ...int) Tensor {
	if len(data) != sizeOf(shape) {
		panic(fmt.Sprintf("tensor shape %v does not match data length %d", shape, len(data)))
	}
	return Tensor{Data: data, Shape: shape, Dtype: DefaultDtype}
}

// Zeros returns a zero-filled tensor of the given shape.
func Zeros(shape ...int) Tensor {
	return Tensor{Data: make([]float64, sizeOf(shape)), Shape: shape, Dtype: DefaultDtype}
}

// Size returns the number of elements.
func (t Tensor) Size() int {
	return sizeOf(t.Shape)
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	data := append([]float64(nil), t.Data...)
	shape := append([]int(nil), t.Shape...)
	return Tensor{Data: data, Shape: shape, Dtype: t.Dtype}
}

// SameShape reports whether two tensors have identical shapes.
func (t Tensor) SameShape(other Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

func sizeOf(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}
