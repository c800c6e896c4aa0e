package toolbox

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

type ActivationType int

const (
	// NoActivation marks an unset activation slot, e.g. a missing normalizer.
	NoActivation ActivationType = iota
	ReLU
	Identity
	Sigmoid
	Tanh
	// AntiReLU is min(z, 0).
	AntiReLU
	// Softmax normalizes over the trailing axis.
	Softmax
)

var activationNames = []string{
	NoActivation: "none",
	ReLU:         "relu",
	Identity:     "identity",
	Sigmoid:      "sigmoid",
	Tanh:         "tanh",
	AntiReLU:     "antirelu",
	Softmax:      "softmax",
}

func (t ActivationType) String() string {
	if t < 0 || int(t) >= len(activationNames) {
		return fmt.Sprintf("ActivationType(%d)", int(t))
	}
	return activationNames[t]
}

// Valid reports whether t names a real activation function.
func (t ActivationType) Valid() bool {
	return t > NoActivation && int(t) < len(activationNames)
}

// ParseActivation resolves an activation identifier, case-insensitively.  The
// empty string and "none" resolve to NoActivation.
func ParseActivation(name string) (ActivationType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NoActivation, nil
	}
	idx := slices.Index(activationNames, name)
	if idx < 0 {
		return NoActivation, errors.Errorf("unknown activation %q", name)
	}
	return ActivationType(idx), nil
}

func (t ActivationType) MarshalText() ([]byte, error) {
	if t != NoActivation && !t.Valid() {
		return nil, errors.Errorf("cannot marshal activation %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ActivationType) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Apply evaluates the activation on z, writing into a.  z and a must have the
// same shape and may be the same tensor.  Softmax is taken over the trailing
// axis; every other activation is elementwise.
func (t ActivationType) Apply(z, a *AF32) {
	if len(z.V) != len(a.V) {
		panic("len(z) != len(a)")
	}

	switch t {
	case ReLU:
		for i, v := range z.V {
			if v < 0 {
				v = 0
			}
			a.V[i] = v
		}
	case Identity:
		copy(a.V, z.V)
	case Sigmoid:
		for i, v := range z.V {
			a.V[i] = sigmoid(v)
		}
	case Tanh:
		for i, v := range z.V {
			a.V[i] = math32.Tanh(v)
		}
	case AntiReLU:
		for i, v := range z.V {
			if v > 0 {
				v = 0
			}
			a.V[i] = v
		}
	case Softmax:
		rows := z.Rows()
		for k := 0; k < rows; k++ {
			softmaxRow(z.Row(k), a.Row(k))
		}
	default:
		panic("unhandled activation function")
	}
}

// Backprop computes dJdz from dJda.
//
// z (input) is the activation input.
// a (input) is the activation output, as written by Apply.
// djda (input) is the gradient of the loss wrt a.
// djdz (output) is the gradient of the loss wrt z.  May alias djda.
func (t ActivationType) Backprop(z, a, djda, djdz *AF32) {
	if len(z.V) != len(djda.V) || len(a.V) != len(djda.V) || len(djdz.V) != len(djda.V) {
		panic("activation backprop dimension mismatch")
	}

	switch t {
	case ReLU:
		for i, v := range z.V {
			if v <= 0 {
				djdz.V[i] = 0
			} else {
				djdz.V[i] = djda.V[i]
			}
		}
	case Identity:
		copy(djdz.V, djda.V)
	case Sigmoid:
		for i, s := range a.V {
			djdz.V[i] = djda.V[i] * s * (1 - s)
		}
	case Tanh:
		for i, th := range a.V {
			djdz.V[i] = djda.V[i] * (1 - th*th)
		}
	case AntiReLU:
		for i, v := range z.V {
			if v >= 0 {
				djdz.V[i] = 0
			} else {
				djdz.V[i] = djda.V[i]
			}
		}
	case Softmax:
		// ref https://eli.thegreenplace.net/2016/the-softmax-function-and-its-derivative/
		rows := a.Rows()
		for k := 0; k < rows; k++ {
			y := a.Row(k)
			g := djda.Row(k)
			out := djdz.Row(k)

			var dot float32
			for l := range y {
				dot += y[l] * g[l]
			}
			for l := range y {
				out[l] = y[l] * (g[l] - dot)
			}
		}
	default:
		panic("unhandled activation function")
	}
}

func sigmoid(z float32) float32 {
	if z >= 0 {
		return 1 / (1 + math32.Exp(-z))
	}
	e := math32.Exp(z)
	return e / (1 + e)
}

// softmaxRow writes softmax(z) into a.  For stability, use the identity
// softmax(v) = softmax(v - c) with c the largest element.
//
// https://stackoverflow.com/questions/42599498/numerically-stable-softmax
func softmaxRow(z, a []float32) {
	maxz := math32.Inf(-1)
	for _, v := range z {
		if v > maxz {
			maxz = v
		}
	}

	var sum float32
	for l, v := range z {
		e := math32.Exp(v - maxz)
		a[l] = e
		sum += e
	}
	for l := range a {
		a[l] /= sum
	}
}
