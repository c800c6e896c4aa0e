package mix

import "github.com/ahmedtd/actmix/toolbox"

// combine writes out[b, i] = sum_c weights[.., i, c] * acts[b, i, c].
//
// acts (input) Shape (rows, neurons, k)
// weights (input) Shape (neurons, k), shared by every row, or (rows, neurons, k)
// out (output) Shape (rows, neurons)
func (l *Layer) combine(acts, weights, out *toolbox.AF32) {
	rows, n, k := acts.Shape[0], acts.Shape[1], acts.Shape[2]
	shared := len(weights.Shape) == 2

	for b := 0; b < rows; b++ {
		for i := 0; i < n; i++ {
			row := (b*n + i) * k
			wrow := row
			if shared {
				wrow = i * k
			}
			out.V[b*n+i] = l.dot(weights.V[wrow:wrow+k], acts.V[row:row+k])
		}
	}
}
