package mix

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ahmedtd/actmix/toolbox"
	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// finiteDifference estimates dJ/dv by perturbing *v in place.
func finiteDifference(loss func() float64, v *float32) float32 {
	const eps = 1e-2
	orig := *v
	*v = orig + eps
	plus := loss()
	*v = orig - eps
	minus := loss()
	*v = orig
	return float32((plus - minus) / (2 * eps))
}

func gradientClose(got, want float32) bool {
	return math32.Abs(got-want) <= 2e-3+2e-2*math32.Abs(want)
}

func TestBackpropMatchesFiniteDifference(t *testing.T) {
	smooth := func(fns ...toolbox.ActivationType) []toolbox.ActivationType { return fns }

	testCases := []struct {
		name     string
		cfg      Config
		training bool
	}{
		{
			name: "linear",
			cfg:  Config{Functions: smooth(toolbox.Tanh, toolbox.Softmax, toolbox.Sigmoid), Combinator: Linear, Init: Gaussian},
		},
		{
			name: "linear-softmax-normalizer",
			cfg:  Config{Functions: smooth(toolbox.Sigmoid, toolbox.Tanh, toolbox.Identity), Combinator: Linear, Init: Gaussian, Normalizer: toolbox.Softmax},
		},
		{
			name: "linear-sigmoid-normalizer",
			cfg:  Config{Functions: smooth(toolbox.Tanh, toolbox.Identity), Combinator: Linear, Normalizer: toolbox.Sigmoid},
		},
		{
			name: "mlp1",
			cfg:  Config{Functions: smooth(toolbox.Tanh, toolbox.Identity), Combinator: MLP1},
		},
		{
			name: "mlp1_neg",
			cfg:  Config{Functions: smooth(toolbox.Sigmoid, toolbox.Tanh), Combinator: MLP1Neg},
		},
		{
			name: "mlp5",
			cfg:  Config{Functions: smooth(toolbox.Tanh, toolbox.Sigmoid), Combinator: MLP5},
		},
		{
			name: "mlp_att",
			cfg:  Config{Functions: smooth(toolbox.Sigmoid, toolbox.Tanh, toolbox.Identity), Combinator: MLPAtt},
		},
		{
			name: "mlp_att_neg",
			cfg:  Config{Functions: smooth(toolbox.Tanh, toolbox.Softmax), Combinator: MLPAttNeg},
		},
		{
			name: "mlp_att_b",
			cfg:  Config{Functions: smooth(toolbox.Sigmoid, toolbox.Tanh, toolbox.Softmax), Combinator: MLPAttB},
		},
		{
			name:     "mlp_att-dropout",
			cfg:      Config{Functions: smooth(toolbox.Sigmoid, toolbox.Tanh, toolbox.Identity), Combinator: MLPAtt, WeightDropout: 0.3},
			training: true,
		},
		{
			name: "none-tanh",
			cfg:  Config{Functions: smooth(toolbox.Tanh), Combinator: None},
		},
		{
			name: "none-softmax",
			cfg:  Config{Functions: smooth(toolbox.Softmax, toolbox.Tanh), Combinator: None},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(42))
			tc.cfg.Neurons = 3
			tc.cfg.Seed = 5
			l := mustNew(t, tc.cfg)

			for _, p := range l.Params() {
				for i := range p.Value.V {
					p.Value.V[i] = float32(r.NormFloat64()) * 0.5
				}
			}

			s := randomInput(r, 2, 2, 3)
			c := randomInput(r, 2, 2, 3)

			// Replaying the same dropout stream keeps the mask fixed across
			// evaluations.
			reseed := func() {
				if tc.training {
					l.r = rand.New(rand.NewSource(99))
				}
			}

			loss := func() float64 {
				reseed()
				y, err := l.Evaluate(s, tc.training)
				if err != nil {
					t.Fatalf("Evaluate: %v", err)
				}
				var j float64
				for i, v := range y.V {
					j += float64(c.V[i]) * float64(v)
				}
				return j
			}

			l.ZeroGrad()
			reseed()
			_, tr, err := l.Forward(s, tc.training)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			djds, err := l.Backprop(tr, c)
			if err != nil {
				t.Fatalf("Backprop: %v", err)
			}
			if diff := cmp.Diff(djds.Shape, s.Shape); diff != "" {
				t.Fatalf("Wrong input gradient shape; diff (-got +want)\n%s", diff)
			}

			for i := range s.V {
				want := finiteDifference(loss, &s.V[i])
				if !gradientClose(djds.V[i], want) {
					t.Errorf("dJ/ds[%d] = %v, finite difference %v", i, djds.V[i], want)
				}
			}

			for _, p := range l.Params() {
				for i := range p.Value.V {
					want := finiteDifference(loss, &p.Value.V[i])
					if !gradientClose(p.Grad.V[i], want) {
						t.Errorf("dJ/d%s[%d] = %v, finite difference %v", p.Name, i, p.Grad.V[i], want)
					}
				}
			}
		})
	}
}

func TestBackpropAccumulates(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	l := mustNew(t, Config{Functions: []toolbox.ActivationType{toolbox.Tanh, toolbox.Sigmoid}, Combinator: MLPAttB, Neurons: 2})
	s := randomInput(r, 3, 2)
	c := randomInput(r, 3, 2)

	backprop := func() {
		_, tr, err := l.Forward(s, false)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if _, err := l.Backprop(tr, c); err != nil {
			t.Fatalf("Backprop: %v", err)
		}
	}

	l.ZeroGrad()
	backprop()
	var once []*toolbox.AF32
	for _, p := range l.Params() {
		once = append(once, toolbox.AF32Clone(p.Grad))
	}
	backprop()
	for i, p := range l.Params() {
		for j, v := range p.Grad.V {
			if math32.Abs(v-2*once[i].V[j]) > 1e-5 {
				t.Fatalf("%s[%d] = %v after two passes, want %v", p.Name, j, v, 2*once[i].V[j])
			}
		}
	}

	l.ZeroGrad()
	for _, p := range l.Params() {
		for _, v := range p.Grad.V {
			if v != 0 {
				t.Fatalf("%s not cleared by ZeroGrad", p.Name)
			}
		}
	}
}

func TestBackpropHardRouting(t *testing.T) {
	l := mustNew(t, Config{
		Functions:   []toolbox.ActivationType{toolbox.ReLU, toolbox.Identity},
		Combinator:  MLPAtt,
		Neurons:     2,
		HardRouting: true,
	})
	constantScores(l, 0, 5)

	l.ZeroGrad()
	_, tr, err := l.Forward(toolbox.MakeAF32From([]float32{1, -1}, 1, 2), false)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	djds, err := l.Backprop(tr, toolbox.MakeAF32From([]float32{1, 1}, 1, 2))
	if err != nil {
		t.Fatalf("Backprop: %v", err)
	}

	// Only the identity channel is routed, so the input gradient is one.
	if diff := cmp.Diff(djds.V, []float32{1, 1}); diff != "" {
		t.Errorf("Wrong input gradient; diff (-got +want)\n%s", diff)
	}
	for _, p := range l.Params() {
		for _, v := range p.Grad.V {
			if v != 0 {
				t.Fatalf("%s has gradient %v through hard routing, want 0", p.Name, v)
			}
		}
	}
}

func TestBackpropErrors(t *testing.T) {
	l := mustNew(t, Config{Functions: []toolbox.ActivationType{toolbox.Tanh}, Combinator: Linear, Neurons: 2})

	if _, err := l.Backprop(nil, toolbox.MakeAF32(1, 2)); err == nil {
		t.Errorf("Backprop(nil trace) succeeded")
	}

	_, tr, err := l.Forward(toolbox.MakeAF32(3, 2), true)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for _, djdy := range []*toolbox.AF32{nil, toolbox.MakeAF32(6), toolbox.MakeAF32(3, 3)} {
		_, err := l.Backprop(tr, djdy)
		var shapeErr *ShapeMismatchError
		if !errors.As(err, &shapeErr) {
			t.Errorf("Backprop(%v) error = %v, want ShapeMismatchError", shapeOf(djdy), err)
		}
	}
}

func TestAdamFitsLinearMix(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	functions := []toolbox.ActivationType{toolbox.ReLU, toolbox.Tanh, toolbox.Identity}

	target := mustNew(t, Config{Functions: functions, Combinator: Linear, Neurons: 3, Init: Gaussian, Seed: 7})
	l := mustNew(t, Config{Functions: functions, Combinator: Linear, Neurons: 3, Seed: 1})

	s := randomInput(r, 64, 3)
	y, err := target.Evaluate(s, false)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	lossAt := func() float32 {
		a, err := l.Evaluate(s, false)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		return toolbox.MeanSquaredErrorLoss(y, a, a.Rows())
	}

	initial := lossAt()
	opt := toolbox.MakeAdam(l.Params(), 0.02)
	djda := toolbox.AF32Like(y)
	for step := 0; step < 1500; step++ {
		l.ZeroGrad()
		a, tr, err := l.Forward(s, true)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		toolbox.MeanSquaredErrorLossGradient(y, a, djda)
		if _, err := l.Backprop(tr, djda); err != nil {
			t.Fatalf("Backprop: %v", err)
		}
		opt.Step()
	}

	final := lossAt()
	if final > initial/20 {
		t.Errorf("loss went from %v to %v after %d steps", initial, final, opt.Steps())
	}
}

func BenchmarkForwardBackward(b *testing.B) {
	for _, c := range []Combinator{Linear, MLP3, MLPAtt} {
		b.Run(fmt.Sprint(c), func(b *testing.B) {
			r := rand.New(rand.NewSource(1))
			l, err := New(Config{
				Functions:  []toolbox.ActivationType{toolbox.ReLU, toolbox.Tanh, toolbox.Sigmoid, toolbox.Identity},
				Combinator: c,
				Neurons:    64,
				Device:     toolbox.DetectDevice(),
			})
			if err != nil {
				b.Fatalf("New: %v", err)
			}
			s := randomInput(r, 32, 64)
			djdy := randomInput(r, 32, 64)

			b.ResetTimer()
			for n := 0; n < b.N; n++ {
				_, tr, err := l.Forward(s, true)
				if err != nil {
					b.Fatalf("Forward: %v", err)
				}
				if _, err := l.Backprop(tr, djdy); err != nil {
					b.Fatalf("Backprop: %v", err)
				}
			}
		})
	}
}
