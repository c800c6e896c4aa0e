package mix

import (
	"math/rand"

	"github.com/ahmedtd/actmix/toolbox"
)

func initAlpha(mode InitMode, neurons, k int, r *rand.Rand) *toolbox.AF32 {
	alpha := toolbox.MakeAF32(neurons, k)
	for i := range alpha.V {
		switch mode {
		case Gaussian:
			alpha.V[i] = float32(r.NormFloat64())
		case UniformEqual:
			alpha.V[i] = 1 / float32(k)
		case UniformRandom:
			alpha.V[i] = r.Float32() - 0.5
		}
	}
	return alpha
}

// linearWeights returns the Linear mixing weights, shape (neurons, k).
// Without a normalizer this is alpha itself.
func (l *Layer) linearWeights() *toolbox.AF32 {
	if l.normalizer == toolbox.NoActivation {
		return l.alpha
	}
	w := toolbox.AF32Like(l.alpha)
	l.normalizer.Apply(l.alpha, w)
	return w
}

type attentionTrace struct {
	nets []*toolbox.MLPTrace
	// soft holds the softmax weights before dropout.  Shape (rows, neurons, k)
	soft *toolbox.AF32
	// mask holds 0 or 1/(1-p) per weight when dropout ran.
	mask *toolbox.AF32
	hard bool
}

// attentionWeights runs every neuron's network over that neuron's channels
// and normalizes the scores with a softmax.  Dropout, when configured, comes
// after the softmax, so in training mode the weights no longer sum to one.
//
// acts (input) Shape (rows, neurons, k)
// returns Shape (rows, neurons, k)
func (l *Layer) attentionWeights(acts *toolbox.AF32, training bool, tr *attentionTrace) *toolbox.AF32 {
	rows, n, k := acts.Shape[0], acts.Shape[1], acts.Shape[2]
	soft := toolbox.AF32Like(acts)

	for i, net := range l.nets {
		x := neuronChannels(acts, i)

		var scores *toolbox.AF32
		if tr != nil {
			var nt *toolbox.MLPTrace
			scores, nt = net.Forward(x, l.dot)
			tr.nets = append(tr.nets, nt)
		} else {
			scores = net.Apply(x, l.dot)
		}

		w := toolbox.AF32Like(scores)
		toolbox.Softmax.Apply(scores, w)
		for b := 0; b < rows; b++ {
			row := (b*n + i) * k
			copy(soft.V[row:row+k], w.Row(b))
		}
	}
	if tr != nil {
		tr.soft = soft
	}

	switch {
	case training && l.dropout > 0:
		keep := 1 - l.dropout
		mask := toolbox.AF32Like(soft)
		dropped := toolbox.AF32Like(soft)
		for idx := range mask.V {
			if l.r.Float32() >= l.dropout {
				mask.V[idx] = 1 / keep
			}
			dropped.V[idx] = soft.V[idx] * mask.V[idx]
		}
		if tr != nil {
			tr.mask = mask
		}
		return dropped
	case !training && l.hardRouting:
		if tr != nil {
			tr.hard = true
		}
		return hardRoute(soft)
	}
	return soft
}

// hardRoute replaces each weight vector with a one-hot vector at its largest
// entry.  Ties go to the lowest channel.
func hardRoute(soft *toolbox.AF32) *toolbox.AF32 {
	hard := toolbox.AF32Like(soft)
	rows := soft.Rows()
	for r := 0; r < rows; r++ {
		w := soft.Row(r)
		best := 0
		for c := 1; c < len(w); c++ {
			if w[c] > w[best] {
				best = c
			}
		}
		hard.Row(r)[best] = 1
	}
	return hard
}

// regress runs every neuron's network and writes its scalar output straight
// into out.  Shape (rows, neurons)
func (l *Layer) regress(acts, out *toolbox.AF32, tr *Trace) {
	n := acts.Shape[1]
	for i, net := range l.nets {
		x := neuronChannels(acts, i)

		var y *toolbox.AF32
		if tr != nil {
			var nt *toolbox.MLPTrace
			y, nt = net.Forward(x, l.dot)
			tr.nets = append(tr.nets, nt)
		} else {
			y = net.Apply(x, l.dot)
		}

		for b, v := range y.V {
			out.V[b*n+i] = v
		}
	}
}
