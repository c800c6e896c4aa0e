package mix

import (
	"slices"

	"github.com/ahmedtd/actmix/toolbox"
	"github.com/pkg/errors"
)

// Backprop accumulates parameter gradients for the evaluation recorded in tr
// and returns the gradient of the loss wrt the layer input.  djdy is the
// gradient of the loss wrt the layer output and has the input's shape.
//
// The trace refers to the parameters as they were during Forward, so call
// Backprop before the optimizer updates them.
func (l *Layer) Backprop(tr *Trace, djdy *toolbox.AF32) (*toolbox.AF32, error) {
	if tr == nil {
		return nil, errors.New("while backpropagating MIX layer: nil trace")
	}
	if djdy == nil || !slices.Equal(djdy.Shape, tr.shape) || len(djdy.V) != djdy.Size() {
		return nil, errors.WithStack(&ShapeMismatchError{Got: shapeOf(djdy), Want: tr.shape})
	}

	rows := tr.s.Shape[0]
	g := toolbox.AF32Reshape(djdy, rows, l.neurons)
	djds := toolbox.MakeAF32(rows, l.neurons)

	if l.combinator == None {
		l.functions[0].Backprop(tr.s, tr.out, g, djds)
		return toolbox.AF32Reshape(djds, tr.shape...), nil
	}

	dacts := toolbox.AF32Like(tr.acts)
	switch {
	case l.combinator == Linear:
		l.backpropLinear(tr, g, dacts)
	case l.combinator.Attention():
		l.backpropAttention(tr, g, dacts)
	default:
		l.backpropRegression(tr, g, dacts)
	}

	dfx := toolbox.MakeAF32(rows, l.neurons)
	dfs := toolbox.MakeAF32(rows, l.neurons)
	for j, fn := range l.functions {
		l.unstack(dacts, j, dfx)
		fn.Backprop(tr.s, tr.fx[j], dfx, dfs)
		for idx, v := range dfs.V {
			djds.V[idx] += v
		}
	}

	return toolbox.AF32Reshape(djds, tr.shape...), nil
}

// g (input) Shape (rows, neurons)
// dacts (output) Shape (rows, neurons, k)
func (l *Layer) backpropLinear(tr *Trace, g, dacts *toolbox.AF32) {
	rows := g.Shape[0]
	n := l.neurons
	k := l.numActivations
	w := tr.linear

	dw := toolbox.AF32Like(l.alpha)
	for b := 0; b < rows; b++ {
		for i := 0; i < n; i++ {
			gi := g.V[b*n+i]
			row := (b*n + i) * k
			for c := 0; c < k; c++ {
				dacts.V[row+c] = gi * w.V[i*k+c]
				dw.V[i*k+c] += gi * tr.acts.V[row+c]
			}
		}
	}

	if l.normalizer != toolbox.NoActivation {
		dalpha := toolbox.AF32Like(l.alpha)
		l.normalizer.Backprop(l.alpha, w, dw, dalpha)
		dw = dalpha
	}

	for idx, v := range dw.V {
		l.alphaGrad.V[idx] += v
	}
}

func (l *Layer) backpropAttention(tr *Trace, g, dacts *toolbox.AF32) {
	rows := g.Shape[0]
	n := l.neurons
	k := l.numActivations

	for i, net := range l.nets {
		// Gradient wrt the weights actually used, folded back through the
		// dropout mask onto the softmax output.
		dsoft := toolbox.MakeAF32(rows, k)
		for b := 0; b < rows; b++ {
			gi := g.V[b*n+i]
			row := (b*n + i) * k
			for c := 0; c < k; c++ {
				dacts.V[row+c] = gi * tr.weights.V[row+c]

				dw := gi * tr.acts.V[row+c]
				if tr.att.mask != nil {
					dw *= tr.att.mask.V[row+c]
				}
				dsoft.V[b*k+c] = dw
			}
		}

		// Routing by arg-max is piecewise constant in the scores.
		if tr.att.hard {
			continue
		}

		soft := neuronChannels(tr.att.soft, i)
		dscores := toolbox.AF32Like(dsoft)
		toolbox.Softmax.Backprop(soft, soft, dsoft, dscores)

		dx := net.Backprop(tr.att.nets[i], dscores)
		for b := 0; b < rows; b++ {
			row := (b*n + i) * k
			for c := 0; c < k; c++ {
				dacts.V[row+c] += dx.V[b*k+c]
			}
		}
	}
}

func (l *Layer) backpropRegression(tr *Trace, g, dacts *toolbox.AF32) {
	rows := g.Shape[0]
	n := l.neurons
	k := l.numActivations

	for i, net := range l.nets {
		dy := toolbox.MakeAF32(rows, 1)
		for b := 0; b < rows; b++ {
			dy.V[b] = g.V[b*n+i]
		}

		dx := net.Backprop(tr.nets[i], dy)
		for b := 0; b < rows; b++ {
			row := (b*n + i) * k
			copy(dacts.V[row:row+k], dx.Row(b))
		}
	}
}
