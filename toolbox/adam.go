package toolbox

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Adam updates a fixed list of parameters from their accumulated gradients.
//
// https://arxiv.org/abs/1412.6980
type Adam struct {
	step int

	// Adam parameters
	alpha, beta1, beta2, epsilon float32

	// Updated every step
	beta1T, beta2T float32

	params []Param

	// The first and second moment vectors, one per parameter.
	m, v []*AF32
}

func MakeAdam(params []Param, alpha float32) *Adam {
	opt := &Adam{
		alpha:   alpha,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-7,

		beta1T: 0.9,
		beta2T: 0.999,

		params: params,
	}

	for _, p := range params {
		if len(p.Value.V) != len(p.Grad.V) {
			panic(fmt.Sprintf("param %s: value and gradient sizes differ", p.Name))
		}
		opt.m = append(opt.m, AF32Like(p.Value))
		opt.v = append(opt.v, AF32Like(p.Value))
	}

	return opt
}

// Steps is the number of updates applied so far.
func (opt *Adam) Steps() int {
	return opt.step
}

// Step applies one update using the gradients currently held in the
// parameters' Grad tensors.  Gradients are not cleared.
func (opt *Adam) Step() {
	beta1 := opt.beta1
	beta2 := opt.beta2
	for n, p := range opt.params {
		m := opt.m[n].V
		v := opt.v[n].V
		for i, g := range p.Grad.V {
			m[i] = beta1*m[i] + (1-beta1)*g
			v[i] = beta2*v[i] + (1-beta2)*g*g
		}
	}

	alphaT := opt.alpha * math32.Sqrt(1-opt.beta2T) / (1 - opt.beta1T)

	for n, p := range opt.params {
		m := opt.m[n].V
		v := opt.v[n].V
		for i := range p.Value.V {
			p.Value.V[i] -= alphaT * m[i] / (math32.Sqrt(v[i]) + opt.epsilon)
		}
	}

	opt.beta1T *= opt.beta1
	opt.beta2T *= opt.beta2

	opt.step++
}
