// Package toolbox holds the numeric building blocks used by the MIX layer:
// a dense float32 tensor, elementary activation functions, dense layers and
// small multi-layer perceptrons with hand-written backprop, and an Adam
// optimizer over named parameters.
package toolbox

import (
	"fmt"
	"slices"
)

// AF32 is a dense, row-major float32 tensor.
type AF32 struct {
	V     []float32
	Shape []int
}

func MakeAF32(shape ...int) *AF32 {
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("invalid shape: %v", shape))
		}
	}
	size := 1
	for _, s := range shape {
		size *= s
	}

	return &AF32{
		V:     make([]float32, size),
		Shape: slices.Clone(shape),
	}
}

// MakeAF32From wraps v (not copied) with the given shape.
func MakeAF32From(v []float32, shape ...int) *AF32 {
	a := &AF32{V: v, Shape: slices.Clone(shape)}
	if a.Size() != len(v) {
		panic(fmt.Sprintf("shape %v does not hold %d values", shape, len(v)))
	}
	return a
}

// AF32Like returns a zeroed tensor with the same shape as in.
func AF32Like(in *AF32) *AF32 {
	return &AF32{
		V:     make([]float32, len(in.V)),
		Shape: slices.Clone(in.Shape),
	}
}

// AF32Clone returns a deep copy of in.
func AF32Clone(in *AF32) *AF32 {
	return &AF32{
		V:     slices.Clone(in.V),
		Shape: slices.Clone(in.Shape),
	}
}

// AF32Reshape reshapes the input tensor.  The overall number of elements must
// be the same.  The returned tensor shares storage with the input tensor (no
// data is copied).
func AF32Reshape(a *AF32, shape ...int) *AF32 {
	newSize := 1
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("invalid shape: %v", shape))
		}
		newSize *= s
	}

	if newSize != len(a.V) {
		panic("invalid reshape")
	}

	return &AF32{
		V:     a.V,
		Shape: slices.Clone(shape),
	}
}

// Size is the number of elements the shape describes.
func (a *AF32) Size() int {
	size := 1
	for _, s := range a.Shape {
		size *= s
	}
	return size
}

// Last is the size of the trailing axis.
func (a *AF32) Last() int {
	if len(a.Shape) == 0 {
		panic("Last() invalid for len(shape) == 0")
	}
	return a.Shape[len(a.Shape)-1]
}

// Rows is the number of trailing-axis rows, i.e. the product of every leading
// dimension.
func (a *AF32) Rows() int {
	return len(a.V) / a.Last()
}

// Row returns the k'th trailing-axis row.  The slice aliases a.V.
func (a *AF32) Row(k int) []float32 {
	n := a.Last()
	return a.V[k*n : k*n+n]
}

func (a *AF32) Zero() {
	clear(a.V)
}

func (a *AF32) At1(idx int) float32 {
	return a.V[idx]
}

func (a *AF32) At2(idx0, idx1 int) float32 {
	if len(a.Shape) != 2 {
		panic("At2() invalid for len(shape) != 2")
	}
	return a.V[idx0*a.Shape[1]+idx1]
}

func (a *AF32) At3(idx0, idx1, idx2 int) float32 {
	if len(a.Shape) != 3 {
		panic("At3() invalid for len(shape) != 3")
	}
	return a.V[idx0*a.Shape[1]*a.Shape[2]+idx1*a.Shape[2]+idx2]
}

func (a *AF32) Set1(idx int, v float32) {
	a.V[idx] = v
}

func (a *AF32) Set2(idx0, idx1 int, v float32) {
	if len(a.Shape) != 2 {
		panic("Set2() invalid for len(shape) != 2")
	}
	a.V[idx0*a.Shape[1]+idx1] = v
}

// Param is a learned tensor together with the buffer its gradient is
// accumulated into.
type Param struct {
	Name  string
	Value *AF32
	Grad  *AF32
}

func ZeroGrads(params []Param) {
	for _, p := range params {
		p.Grad.Zero()
	}
}
