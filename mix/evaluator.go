package mix

import "github.com/ahmedtd/actmix/toolbox"

// evaluate applies every elementary function to s.  Shape (rows, neurons)
func (l *Layer) evaluate(s *toolbox.AF32) []*toolbox.AF32 {
	fx := make([]*toolbox.AF32, len(l.functions))
	for j, fn := range l.functions {
		fx[j] = toolbox.AF32Like(s)
		fn.Apply(s, fx[j])
	}
	return fx
}

// stack lays the function outputs along a new trailing channel axis, giving
// shape (rows, neurons, numActivations).  Negated combinators interleave each
// function with its negation: f0, -f0, f1, -f1, ...
func (l *Layer) stack(fx []*toolbox.AF32) *toolbox.AF32 {
	rows := fx[0].Shape[0]
	k := l.numActivations
	acts := toolbox.MakeAF32(rows, l.neurons, k)

	for j, f := range fx {
		// idx runs over (row, neuron) pairs.
		for idx, v := range f.V {
			base := idx * k
			if l.negated {
				acts.V[base+2*j] = v
				acts.V[base+2*j+1] = -v
			} else {
				acts.V[base+j] = v
			}
		}
	}
	return acts
}

// unstack folds the channel gradients belonging to function j back onto
// (rows, neurons).
func (l *Layer) unstack(dacts *toolbox.AF32, j int, out *toolbox.AF32) {
	k := l.numActivations
	for idx := range out.V {
		base := idx * k
		if l.negated {
			out.V[idx] = dacts.V[base+2*j] - dacts.V[base+2*j+1]
		} else {
			out.V[idx] = dacts.V[base+j]
		}
	}
}

// neuronChannels copies neuron i's channels out of a (rows, neurons, k)
// tensor into a (rows, k) one.
func neuronChannels(acts *toolbox.AF32, i int) *toolbox.AF32 {
	rows, n, k := acts.Shape[0], acts.Shape[1], acts.Shape[2]
	x := toolbox.MakeAF32(rows, k)
	for b := 0; b < rows; b++ {
		row := (b*n + i) * k
		copy(x.Row(b), acts.V[row:row+k])
	}
	return x
}
