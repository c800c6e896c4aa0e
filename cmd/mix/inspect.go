package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/ahmedtd/actmix/mix"
	"github.com/ahmedtd/actmix/toolbox"
	"github.com/google/subcommands"
	"github.com/pkg/errors"
)

type InspectCommand struct {
	layer layerFlags

	inputFile string
	key       string
	rows      int
}

var _ subcommands.Command = (*InspectCommand)(nil)

func (*InspectCommand) Name() string {
	return "inspect"
}

func (*InspectCommand) Synopsis() string {
	return "Log the per-neuron mixing weights a layer applies to an input"
}

func (*InspectCommand) Usage() string {
	return `inspect [layer flags] --input=x.npy
`
}

func (c *InspectCommand) SetFlags(f *flag.FlagSet) {
	c.layer.SetFlags(f)
	f.StringVar(&c.inputFile, "input", "", "Path to the input array (.npy or .npz)")
	f.StringVar(&c.key, "key", "", "Array name inside an .npz input (defaults to the only array)")
	f.IntVar(&c.rows, "rows", 1, "Number of input rows to report")
}

func (c *InspectCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx, f); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *InspectCommand) executeErr(ctx context.Context, f *flag.FlagSet) error {
	if c.inputFile == "" {
		return errors.New("--input is required")
	}

	layer, s, err := c.layer.buildLayer(f, c.inputFile, c.key)
	if err != nil {
		return err
	}

	lines, err := describeWeights(layer, s, c.rows)
	if err != nil {
		return err
	}
	for _, line := range lines {
		log.Print(line)
	}
	return nil
}

// describeWeights renders one line per (row, neuron) with the weight given
// to each channel.
func describeWeights(layer *mix.Layer, s *toolbox.AF32, rows int) ([]string, error) {
	w, err := layer.Weights(s, false)
	if err != nil {
		return nil, errors.Wrap(err, "while computing mixing weights")
	}

	var channels []string
	cfg := layer.Config()
	for _, fn := range cfg.Functions {
		channels = append(channels, fn.String())
		if cfg.Combinator.Negated() {
			channels = append(channels, "-"+fn.String())
		}
	}

	n := layer.Neurons()
	k := layer.NumActivations()
	w3 := toolbox.AF32Reshape(w, w.Rows()/n, n, k)
	if rows > w3.Shape[0] {
		rows = w3.Shape[0]
	}

	var lines []string
	for b := 0; b < rows; b++ {
		for i := 0; i < n; i++ {
			parts := make([]string, k)
			for c := 0; c < k; c++ {
				parts[c] = fmt.Sprintf("%s=%.4f", channels[c], w3.At3(b, i, c))
			}
			lines = append(lines, fmt.Sprintf("row %d neuron %d: %s", b, i, strings.Join(parts, " ")))
		}
	}
	return lines, nil
}
