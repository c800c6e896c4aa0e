package toolbox

import (
	"fmt"
	"math/rand"
	"slices"
)

type Layer struct {
	Activation ActivationType

	W *AF32 // Shape (OutputSize, InputSize)
	B *AF32 // Shape (OutputSize)

	// Gradient accumulators, same shapes as W and B.
	WGrad *AF32
	BGrad *AF32

	InputSize  int
	OutputSize int
}

func MakeDense(activation ActivationType, inputSize, outputSize int, r *rand.Rand) *Layer {
	l := &Layer{
		Activation: activation,
		InputSize:  inputSize,
		OutputSize: outputSize,
		W:          MakeAF32(outputSize, inputSize),
		B:          MakeAF32(outputSize),
		WGrad:      MakeAF32(outputSize, inputSize),
		BGrad:      MakeAF32(outputSize),
	}

	for i := 0; i < outputSize; i++ {
		for j := 0; j < inputSize; j++ {
			l.W.Set2(i, j, float32(r.NormFloat64())*0.1)
		}
		l.B.Set1(i, 0.1)
	}

	return l
}

// Apply the layer in the forward direction.
//
// x (input) is the layer input.  Shape (batchSize, lay.InputSize)
// z (output, optional) is the pre-activation linear output.  Shape (batchSize, lay.OutputSize)
// a (output) is the layer's forward output.  Shape (batchSize, lay.OutputSize)
// dot is the kernel used for the row-by-row dot products.
func (lay *Layer) Apply(x, z, a *AF32, dot DotFunc) {
	batchSize := x.Shape[0]
	inputSize := lay.InputSize
	outputSize := lay.OutputSize

	if !slices.Equal(x.Shape, []int{batchSize, inputSize}) {
		panic(fmt.Sprintf("x.Shape %v != {batchSize, %d}", x.Shape, inputSize))
	}
	if !slices.Equal(a.Shape, []int{batchSize, outputSize}) {
		panic(fmt.Sprintf("a.Shape %v != {batchSize, %d}", a.Shape, outputSize))
	}
	if z == nil {
		z = a
	} else if !slices.Equal(z.Shape, a.Shape) {
		panic("z and a must have same shape")
	}

	// Write the linear activations into z.  Equivalent to
	//
	// for k := 0; k < batchSize; k++ {
	// 	for i := 0; i < outputSize; i++ {
	// 		var v float32
	// 		for j := 0; j < inputSize; j++ {
	// 			v += lay.W.At2(i, j) * x.At2(k, j)
	// 		}
	// 		v += lay.B.At1(i)
	// 		z.Set2(k, i, v)
	// 	}
	// }
	for k := 0; k < batchSize; k++ {
		xk := x.V[k*inputSize : k*inputSize+inputSize]
		for i := 0; i < outputSize; i++ {
			v := dot(lay.W.V[i*inputSize:i*inputSize+inputSize], xk)
			v += lay.B.At1(i)
			z.Set2(k, i, v)
		}
	}

	lay.Activation.Apply(z, a)
}

// Backprop accumulates the gradients of the loss wrt lay.W and lay.B into
// lay.WGrad and lay.BGrad.
//
// x (input) is the layer input.  Shape (batchSize, lay.InputSize)
// z (input) is the pre-activation output saved by Apply.  Shape (batchSize, lay.OutputSize)
// a (input) is the activated output saved by Apply.  Shape (batchSize, lay.OutputSize)
// djda (input) is the gradient of the loss wrt a.  Shape (batchSize, lay.OutputSize)
// djdx (output, optional) is the gradient of the loss wrt x.  Shape (batchSize, lay.InputSize)
func (lay *Layer) Backprop(x, z, a, djda, djdx *AF32) {
	batchSize := x.Shape[0]
	inputSize := lay.InputSize
	outputSize := lay.OutputSize

	if !slices.Equal(djda.Shape, []int{batchSize, outputSize}) {
		panic(fmt.Sprintf("djda.Shape %v != {batchSize, %d}", djda.Shape, outputSize))
	}

	djdz := AF32Like(djda)
	lay.Activation.Backprop(z, a, djda, djdz)

	for k := 0; k < batchSize; k++ {
		xk := x.V[k*inputSize : k*inputSize+inputSize]
		for i := 0; i < outputSize; i++ {
			g := djdz.At2(k, i)
			if g == 0 {
				continue
			}
			wg := lay.WGrad.V[i*inputSize : i*inputSize+inputSize]
			for j, xv := range xk {
				wg[j] += g * xv
			}
			lay.BGrad.V[i] += g
		}
	}

	if djdx == nil {
		return
	}
	if !slices.Equal(djdx.Shape, []int{batchSize, inputSize}) {
		panic(fmt.Sprintf("djdx.Shape %v != {batchSize, %d}", djdx.Shape, inputSize))
	}

	// This loop is equivalent to:
	//
	// for k := 0; k < batchSize; k++ {
	// 	for j := 0; j < inputSize; j++ {
	// 		var grad float32
	// 		for i := 0; i < outputSize; i++ {
	// 			grad += djdz.At2(k, i) * lay.W.At2(i, j)
	// 		}
	// 		djdx.Set2(k, j, grad)
	// 	}
	// }
	djdx.Zero()
	for k := 0; k < batchSize; k++ {
		out := djdx.V[k*inputSize : k*inputSize+inputSize]
		for i := 0; i < outputSize; i++ {
			g := djdz.At2(k, i)
			if g == 0 {
				continue
			}
			w := lay.W.V[i*inputSize : i*inputSize+inputSize]
			for j := range out {
				out[j] += g * w[j]
			}
		}
	}
}

// LayerSpec describes one dense layer of an MLP.
type LayerSpec struct {
	Activation ActivationType
	OutputSize int
}

// MLP is a stack of dense layers.
type MLP struct {
	Layers []*Layer
}

func MakeMLP(inputSize int, specs []LayerSpec, r *rand.Rand) *MLP {
	if len(specs) == 0 {
		panic("MLP needs at least one layer")
	}
	m := &MLP{}
	for _, spec := range specs {
		m.Layers = append(m.Layers, MakeDense(spec.Activation, inputSize, spec.OutputSize, r))
		inputSize = spec.OutputSize
	}
	return m
}

func (m *MLP) InputSize() int {
	return m.Layers[0].InputSize
}

func (m *MLP) OutputSize() int {
	return m.Layers[len(m.Layers)-1].OutputSize
}

// MLPTrace holds the per-layer intermediates of one forward pass.
type MLPTrace struct {
	x, z, a []*AF32
}

// Output is the MLP's forward output.
func (tr *MLPTrace) Output() *AF32 {
	return tr.a[len(tr.a)-1]
}

// Apply runs the MLP without keeping intermediates.
//
// x is the input.  Shape (batchSize, m.InputSize())
func (m *MLP) Apply(x *AF32, dot DotFunc) *AF32 {
	batchSize := x.Shape[0]
	a0 := x
	for _, lay := range m.Layers {
		a1 := MakeAF32(batchSize, lay.OutputSize)
		lay.Apply(a0, nil, a1, dot)

		// This layer's output becomes the input for the next layer.
		a0 = a1
	}
	return a0
}

// Forward runs the MLP and keeps what Backprop needs.
func (m *MLP) Forward(x *AF32, dot DotFunc) (*AF32, *MLPTrace) {
	batchSize := x.Shape[0]
	tr := &MLPTrace{}
	a0 := x
	for _, lay := range m.Layers {
		z := MakeAF32(batchSize, lay.OutputSize)
		a1 := MakeAF32(batchSize, lay.OutputSize)
		lay.Apply(a0, z, a1, dot)

		tr.x = append(tr.x, a0)
		tr.z = append(tr.z, z)
		tr.a = append(tr.a, a1)
		a0 = a1
	}
	return a0, tr
}

// Backprop accumulates parameter gradients for the pass recorded in tr and
// returns the gradient of the loss wrt the MLP input.
//
// djdy is the gradient of the loss wrt the MLP output.  Shape (batchSize, m.OutputSize())
func (m *MLP) Backprop(tr *MLPTrace, djdy *AF32) *AF32 {
	djda := djdy
	for l := len(m.Layers) - 1; l >= 0; l-- {
		djdx := AF32Like(tr.x[l])
		m.Layers[l].Backprop(tr.x[l], tr.z[l], tr.a[l], djda, djdx)

		// djdx of layer l is the djda of layer l-1.
		djda = djdx
	}
	return djda
}

// Params lists the MLP's tensors, named "<prefix>.<layer>.weights" and
// "<prefix>.<layer>.biases".
func (m *MLP) Params(prefix string) []Param {
	params := make([]Param, 0, 2*len(m.Layers))
	for l, lay := range m.Layers {
		params = append(params,
			Param{Name: fmt.Sprintf("%s.%d.weights", prefix, l), Value: lay.W, Grad: lay.WGrad},
			Param{Name: fmt.Sprintf("%s.%d.biases", prefix, l), Value: lay.B, Grad: lay.BGrad},
		)
	}
	return params
}
