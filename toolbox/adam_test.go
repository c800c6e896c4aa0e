package toolbox

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestAdamMinimizesQuadratic(t *testing.T) {
	target := []float32{1.5, -2, 0.25}
	p := Param{
		Name:  "w",
		Value: MakeAF32(3),
		Grad:  MakeAF32(3),
	}
	opt := MakeAdam([]Param{p}, 0.05)

	for s := 0; s < 2000; s++ {
		ZeroGrads([]Param{p})
		for i := range p.Value.V {
			p.Grad.V[i] = 2 * (p.Value.V[i] - target[i])
		}
		opt.Step()
	}

	if opt.Steps() != 2000 {
		t.Errorf("Steps() = %d, want 2000", opt.Steps())
	}
	for i := range target {
		if math32.Abs(p.Value.V[i]-target[i]) > 1e-2 {
			t.Errorf("w[%d] = %v, want %v", i, p.Value.V[i], target[i])
		}
	}
}

func TestAdamFirstStepMovesAgainstGradient(t *testing.T) {
	p := Param{Name: "w", Value: MakeAF32(2), Grad: MakeAF32From([]float32{3, -0.5}, 2)}
	opt := MakeAdam([]Param{p}, 0.01)
	opt.Step()

	// The bias-corrected first step has magnitude alpha for any nonzero gradient.
	if got := p.Value.V[0]; math32.Abs(got+0.01) > 1e-4 {
		t.Errorf("w[0] = %v, want -0.01", got)
	}
	if got := p.Value.V[1]; math32.Abs(got-0.01) > 1e-4 {
		t.Errorf("w[1] = %v, want 0.01", got)
	}
}
