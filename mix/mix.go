// Package mix implements MIX, a layer that replaces a fixed activation with a
// learned, per-neuron combination of several elementary activations.
//
// The input to a Layer has shape (..., neurons).  Each elementary function is
// applied to it and the results are stacked on a new channel axis, giving
// (..., neurons, k).  A combinator then reduces the channels back to one
// value per neuron:
//
//   - linear: a learned (neurons, k) weight matrix, optionally normalized
//   - mlp_att*: one small network per neuron computes softmax weights from
//     that neuron's channels
//   - mlp1..mlp5, mlpr: one small network per neuron regresses the output
//     from that neuron's channels
//   - none: the first function is applied directly
package mix

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/ahmedtd/actmix/toolbox"
	"github.com/pkg/errors"
)

// Layer is a MIX activation layer over a fixed number of neurons.
type Layer struct {
	cfg Config

	functions      []toolbox.ActivationType
	combinator     Combinator
	neurons        int
	numActivations int
	negated        bool
	normalizer     toolbox.ActivationType
	dropout        float32
	hardRouting    bool

	dot toolbox.DotFunc
	r   *rand.Rand

	// Linear only.  Shape (neurons, numActivations)
	alpha, alphaGrad *toolbox.AF32

	// One network per neuron for the sub-network combinators.
	nets []*toolbox.MLP
}

// New validates cfg and builds a layer with freshly initialized parameters.
func New(cfg Config) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "while validating MIX configuration")
	}
	cfg.Functions = slices.Clone(cfg.Functions)

	l := &Layer{
		cfg:            cfg,
		functions:      cfg.Functions,
		combinator:     cfg.Combinator,
		neurons:        cfg.Neurons,
		numActivations: cfg.NumActivations(),
		negated:        cfg.Combinator.Negated(),
		normalizer:     cfg.Normalizer,
		dropout:        cfg.WeightDropout,
		hardRouting:    cfg.HardRouting,
		dot:            cfg.Device.Dot(),
		r:              rand.New(rand.NewSource(cfg.Seed)),
	}

	switch {
	case l.combinator == Linear:
		l.alpha = initAlpha(cfg.Init, l.neurons, l.numActivations, l.r)
		l.alphaGrad = toolbox.AF32Like(l.alpha)
	case l.combinator.Attention(), l.combinator.Regression():
		l.nets = makeSubnetworks(l.combinator, l.neurons, l.numActivations, l.r)
	}

	return l, nil
}

// Config returns the configuration the layer was built from.
func (l *Layer) Config() Config {
	cfg := l.cfg
	cfg.Functions = slices.Clone(cfg.Functions)
	return cfg
}

// Neurons is the size of the input's trailing axis.
func (l *Layer) Neurons() int {
	return l.neurons
}

// NumActivations is the number of stacked channels per neuron.
func (l *Layer) NumActivations() int {
	return l.numActivations
}

// Params lists the learned tensors.  Pass-through layers have none.
func (l *Layer) Params() []toolbox.Param {
	var params []toolbox.Param
	if l.alpha != nil {
		params = append(params, toolbox.Param{Name: "mix.alpha", Value: l.alpha, Grad: l.alphaGrad})
	}
	for i, net := range l.nets {
		params = append(params, net.Params(fmt.Sprintf("mix.net.%d", i))...)
	}
	return params
}

// ZeroGrad clears every parameter's gradient buffer.
func (l *Layer) ZeroGrad() {
	toolbox.ZeroGrads(l.Params())
}

// Trace records one forward evaluation for Backprop.
type Trace struct {
	shape []int

	// s is the input viewed as (rows, neurons).
	s *toolbox.AF32
	// fx holds each elementary function's output, (rows, neurons).
	fx []*toolbox.AF32
	// acts is the stacked activations, (rows, neurons, k).
	acts *toolbox.AF32
	// out is a copy of the pass-through output.
	out *toolbox.AF32

	linear  *toolbox.AF32
	weights *toolbox.AF32
	att     attentionTrace
	nets    []*toolbox.MLPTrace
}

// Evaluate computes the layer output for s, which must have shape
// (..., neurons).  The output has the same shape.  Dropout only runs when
// training is set.
func (l *Layer) Evaluate(s *toolbox.AF32, training bool) (*toolbox.AF32, error) {
	out, _, err := l.forward(s, training, false)
	return out, err
}

// Forward is Evaluate that also returns the trace Backprop needs.
func (l *Layer) Forward(s *toolbox.AF32, training bool) (*toolbox.AF32, *Trace, error) {
	return l.forward(s, training, true)
}

func (l *Layer) forward(s *toolbox.AF32, training, keep bool) (*toolbox.AF32, *Trace, error) {
	s2, err := l.flatten(s)
	if err != nil {
		return nil, nil, err
	}
	rows := s2.Shape[0]
	out := toolbox.MakeAF32(rows, l.neurons)

	var tr *Trace
	if keep {
		tr = &Trace{shape: slices.Clone(s.Shape), s: s2}
	}

	if l.combinator == None {
		l.functions[0].Apply(s2, out)
		if tr != nil {
			tr.out = toolbox.AF32Clone(out)
		}
		return toolbox.AF32Reshape(out, s.Shape...), tr, nil
	}

	fx := l.evaluate(s2)
	acts := l.stack(fx)
	if tr != nil {
		tr.fx = fx
		tr.acts = acts
	}

	switch {
	case l.combinator == Linear:
		w := l.linearWeights()
		l.combine(acts, w, out)
		if tr != nil {
			tr.linear = w
		}
	case l.combinator.Attention():
		var at *attentionTrace
		if tr != nil {
			at = &tr.att
		}
		w := l.attentionWeights(acts, training, at)
		l.combine(acts, w, out)
		if tr != nil {
			tr.weights = w
		}
	default:
		l.regress(acts, out, tr)
	}

	return toolbox.AF32Reshape(out, s.Shape...), tr, nil
}

// Activations returns the stacked elementary activations for s, shape
// (..., neurons, k).
func (l *Layer) Activations(s *toolbox.AF32) (*toolbox.AF32, error) {
	s2, err := l.flatten(s)
	if err != nil {
		return nil, err
	}
	acts := l.stack(l.evaluate(s2))
	return toolbox.AF32Reshape(acts, append(slices.Clone(s.Shape), l.numActivations)...), nil
}

// Weights returns the mixing weights applied to s, shape (..., neurons, k).
// Only the linear and attention combinators have weights.
func (l *Layer) Weights(s *toolbox.AF32, training bool) (*toolbox.AF32, error) {
	if l.combinator != Linear && !l.combinator.Attention() {
		return nil, configError("combinator", l.combinator, "combinator exposes no mixing weights")
	}

	s2, err := l.flatten(s)
	if err != nil {
		return nil, err
	}
	rows := s2.Shape[0]
	shape := append(slices.Clone(s.Shape), l.numActivations)

	if l.combinator == Linear {
		w := l.linearWeights()
		all := toolbox.MakeAF32(rows, l.neurons, l.numActivations)
		for b := 0; b < rows; b++ {
			copy(all.V[b*len(w.V):(b+1)*len(w.V)], w.V)
		}
		return toolbox.AF32Reshape(all, shape...), nil
	}

	acts := l.stack(l.evaluate(s2))
	w := l.attentionWeights(acts, training, nil)
	return toolbox.AF32Reshape(w, shape...), nil
}

// flatten views s as (rows, neurons).
func (l *Layer) flatten(s *toolbox.AF32) (*toolbox.AF32, error) {
	if s == nil || len(s.Shape) == 0 || slices.ContainsFunc(s.Shape, func(d int) bool { return d <= 0 }) ||
		s.Size() != len(s.V) || s.Last() != l.neurons {
		return nil, errors.WithStack(&ShapeMismatchError{Got: shapeOf(s), Want: []int{l.neurons}})
	}
	return toolbox.AF32Reshape(s, s.Rows(), l.neurons), nil
}

func shapeOf(t *toolbox.AF32) []int {
	if t == nil {
		return nil
	}
	return slices.Clone(t.Shape)
}
