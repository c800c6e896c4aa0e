package toolbox

import "slices"

// y is the ground truth output.  Shape (..., outputSize)
// a is the forward output.  Shape (..., outputSize)
// denom is the total number of samples we will calculate the loss over.  Useful for computing the loss over a set of batches.
func MeanSquaredErrorLoss(y, a *AF32, denom int) float32 {
	if !slices.Equal(y.Shape, a.Shape) {
		panic("y and a must have same shape")
	}

	batchSize := a.Rows()
	outputSize := a.Last()

	loss := float32(0)

	for k := 0; k < batchSize; k++ {
		yk := y.Row(k)
		ak := a.Row(k)
		for i := 0; i < outputSize; i++ {
			diff := ak[i] - yk[i]
			loss += diff * diff / 2 / float32(denom) / float32(outputSize)
		}
	}

	return loss
}

// y is the ground truth output.  Shape (..., outputSize)
// a is the forward output.  Shape (..., outputSize)
// dJda (output) is storage for the gradient of the loss wrt a.  Same shape as a.
func MeanSquaredErrorLossGradient(y, a, dJda *AF32) {
	if !slices.Equal(y.Shape, a.Shape) {
		panic("y and a must have same shape")
	}
	if !slices.Equal(y.Shape, dJda.Shape) {
		panic("y and dJda must have same shape")
	}

	batchSize := a.Rows()
	outputSize := a.Last()

	for idx := range a.V {
		dJda.V[idx] = (a.V[idx] - y.V[idx]) / float32(batchSize) / float32(outputSize)
	}
}
