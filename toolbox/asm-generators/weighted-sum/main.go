// Command weighted-sum generates the AVX2/FMA kernel behind the MIX combiner.
//
// Run through go generate in ./toolbox; the output is only compiled with the
// mixasm build tag.
package main

import (
	"github.com/ahmedtd/actmix/toolbox/asm-generators/genlib"
	. "github.com/mmcloughlin/avo/build"
)

func main() {
	ConstraintExpr("amd64 && mixasm")

	TEXT("weightedSumKernel", NOSPLIT, "func(w []float32, a []float32) float32")
	Doc("weightedSumKernel computes sum_j w[j]*a[j].  len(a) must be at least len(w).")

	n := Load(Param("w").Len(), GP64())
	wPtr := Load(Param("w").Base(), GP64())
	aPtr := Load(Param("a").Base(), GP64())

	Comment("Weighted sum over the channels")
	result := genlib.GenWeightedSum(n, wPtr, aPtr, 4)
	Store(result, ReturnIndex(0))

	RET()

	Generate()
}
