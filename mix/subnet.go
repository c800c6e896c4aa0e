package mix

import (
	"math/rand"

	"github.com/ahmedtd/actmix/toolbox"
)

// architecture returns the dense layers of the sub-network owned by neuron
// i, for k stacked channels.
func architecture(c Combinator, neuron, k int) []toolbox.LayerSpec {
	switch c {
	case MLP1, MLP1Neg:
		return []toolbox.LayerSpec{
			{Activation: toolbox.Identity, OutputSize: 1},
		}
	case MLP2:
		return []toolbox.LayerSpec{
			{Activation: toolbox.ReLU, OutputSize: k},
			{Activation: toolbox.Identity, OutputSize: 1},
		}
	case MLP3:
		return []toolbox.LayerSpec{
			{Activation: toolbox.ReLU, OutputSize: 2 * k},
			{Activation: toolbox.Identity, OutputSize: 1},
		}
	case MLP4:
		return []toolbox.LayerSpec{
			{Activation: toolbox.ReLU, OutputSize: k},
			{Activation: toolbox.ReLU, OutputSize: k},
			{Activation: toolbox.Identity, OutputSize: 1},
		}
	case MLP5:
		return []toolbox.LayerSpec{
			{Activation: toolbox.Tanh, OutputSize: 2 * k},
			{Activation: toolbox.Tanh, OutputSize: 2 * k},
			{Activation: toolbox.Identity, OutputSize: 1},
		}
	case MLPR:
		// An odd neuron count leaves the last neuron on an even index.
		if neuron%2 == 0 {
			return architecture(MLP1, neuron, k)
		}
		return architecture(MLP2, neuron, k)
	case MLPAtt, MLPAttNeg:
		return []toolbox.LayerSpec{
			{Activation: toolbox.Identity, OutputSize: k},
		}
	case MLPAttB:
		return []toolbox.LayerSpec{
			{Activation: toolbox.Tanh, OutputSize: k},
			{Activation: toolbox.Identity, OutputSize: k},
		}
	}
	panic("combinator has no sub-network: " + c.String())
}

// makeSubnetworks builds one independently initialized network per neuron.
func makeSubnetworks(c Combinator, neurons, k int, r *rand.Rand) []*toolbox.MLP {
	nets := make([]*toolbox.MLP, neurons)
	for i := range nets {
		nets[i] = toolbox.MakeMLP(k, architecture(c, i, k), r)
	}
	return nets
}
