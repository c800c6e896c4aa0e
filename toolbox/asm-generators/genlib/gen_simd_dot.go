// Package genlib holds avo fragments shared by the kernel generators.
package genlib

import (
	. "github.com/mmcloughlin/avo/build"
	. "github.com/mmcloughlin/avo/operand"
	. "github.com/mmcloughlin/avo/reg"
)

// GenWeightedSum emits sum_j w[j]*a[j] over n float32 elements.  The result
// is left in lane 0 of the returned register.
//
// MIX mixes a handful of channels per neuron, so the unrolled block loop is
// only taken for wide inputs.  The remainder is peeled into straight-line
// 8-lane, 4-lane and scalar steps.  wPtr, aPtr and n are clobbered.
func GenWeightedSum(n Register, wPtr, aPtr Register, unroll int) Register {
	acc := make([]VecVirtual, unroll)
	for i := range acc {
		acc[i] = YMM()
		VXORPS(acc[i], acc[i], acc[i])
	}
	quad := XMM()
	VXORPS(quad, quad, quad)
	tail := XMM()
	VXORPS(tail, tail, tail)

	blockitems := 8 * unroll
	blocksize := 4 * blockitems

	Label("weightedsumblockloop")
	CMPQ(n, U32(blockitems))
	JL(LabelRef("weightedsumoct"))

	ws := make([]VecVirtual, unroll)
	for i := range ws {
		ws[i] = YMM()
		VMOVUPS(Mem{Base: wPtr}.Offset(32*i), ws[i])
	}
	for i := range ws {
		VFMADD231PS(Mem{Base: aPtr}.Offset(32*i), ws[i], acc[i])
	}

	ADDQ(U32(blocksize), wPtr)
	ADDQ(U32(blocksize), aPtr)
	SUBQ(U32(blockitems), n)
	JMP(LabelRef("weightedsumblockloop"))

	// At most unroll-1 full octets remain.
	Label("weightedsumoct")
	for i := 0; i < unroll-1; i++ {
		CMPQ(n, U32(8))
		JL(LabelRef("weightedsumquad"))

		w := YMM()
		VMOVUPS(Mem{Base: wPtr}, w)
		VFMADD231PS(Mem{Base: aPtr}, w, acc[i])

		ADDQ(U32(32), wPtr)
		ADDQ(U32(32), aPtr)
		SUBQ(U32(8), n)
	}

	Label("weightedsumquad")
	CMPQ(n, U32(4))
	JL(LabelRef("weightedsumscalar"))

	wq := XMM()
	VMOVUPS(Mem{Base: wPtr}, wq)
	VFMADD231PS(Mem{Base: aPtr}, wq, quad)

	ADDQ(U32(16), wPtr)
	ADDQ(U32(16), aPtr)
	SUBQ(U32(4), n)

	// n is now 0..3.
	Label("weightedsumscalar")
	for i := 0; i < 3; i++ {
		CMPQ(n, U32(i))
		JE(LabelRef("weightedsumreduce"))

		w := XMM()
		VMOVSS(Mem{Base: wPtr}.Offset(4*i), w)
		VFMADD231SS(Mem{Base: aPtr}.Offset(4*i), w, tail)
	}

	Label("weightedsumreduce")
	return reduceLanes(acc, quad, tail)
}

// reduceLanes folds the octet accumulators, the quad accumulator and the
// scalar tail into lane 0.
func reduceLanes(acc []VecVirtual, quad, tail VecVirtual) Register {
	for i := 1; i < len(acc); i++ {
		VADDPS(acc[0], acc[i], acc[0])
	}

	result := acc[0].AsX()
	top := XMM()
	VEXTRACTF128(U8(1), acc[0], top)
	VADDPS(result, top, result)
	VADDPS(result, quad, result)
	VHADDPS(result, result, result)
	VHADDPS(result, result, result)
	VADDSS(result, tail, result)
	return result
}
