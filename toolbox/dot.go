package toolbox

//go:generate go run ./asm-generators/weighted-sum -out asm_weighted_sum_amd64.s -stubs asm_weighted_sum_amd64.go -pkg toolbox

// DotFunc computes sum_i x[i]*y[i].  x and y must have the same length.
type DotFunc func(x, y []float32) float32

func denseDot2Naive(x []float32, y []float32) float32 {
	if len(x) != len(y) {
		panic("mismatched length")
	}
	var sum float32
	for i := 0; i < len(x); i++ {
		sum += x[i] * y[i]
	}
	return sum
}

// denseDot2Unrolled keeps four independent accumulators so the adds do not
// serialize on one register.
func denseDot2Unrolled(x []float32, y []float32) float32 {
	if len(x) != len(y) {
		panic("mismatched length")
	}

	var s0, s1, s2, s3 float32
	for len(x) >= 4 && len(y) >= 4 {
		s0 += x[0] * y[0]
		s1 += x[1] * y[1]
		s2 += x[2] * y[2]
		s3 += x[3] * y[3]
		x = x[4:]
		y = y[4:]
	}

	sum := (s0 + s1) + (s2 + s3)

	// Handle the tail.
	if len(x) == len(y) {
		for i := 0; i < len(x); i++ {
			sum += x[i] * y[i]
		}
	}
	return sum
}
