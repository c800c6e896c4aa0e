//go:build amd64 && mixasm

package toolbox

// Built with -tags mixasm after running go generate.
var weightedSumAsm DotFunc = func(x, y []float32) float32 {
	if len(x) != len(y) {
		panic("mismatched length")
	}
	return weightedSumKernel(x, y)
}
