package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
)

type EvalCommand struct {
	layer layerFlags

	inputFile  string
	key        string
	outputFile string
	training   bool
}

var _ subcommands.Command = (*EvalCommand)(nil)

func (*EvalCommand) Name() string {
	return "eval"
}

func (*EvalCommand) Synopsis() string {
	return "Evaluate a freshly initialized layer on an input array"
}

func (*EvalCommand) Usage() string {
	return `eval [layer flags] --input=x.npy --output=y.npy
`
}

func (c *EvalCommand) SetFlags(f *flag.FlagSet) {
	c.layer.SetFlags(f)
	f.StringVar(&c.inputFile, "input", "", "Path to the input array (.npy or .npz)")
	f.StringVar(&c.key, "key", "", "Array name inside an .npz input (defaults to the only array)")
	f.StringVar(&c.outputFile, "output", "mix-out.npy", "Path to write the output array (.npy)")
	f.BoolVar(&c.training, "training", false, "Evaluate in training mode (dropout on)")
}

func (c *EvalCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx, f); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *EvalCommand) executeErr(ctx context.Context, f *flag.FlagSet) error {
	if c.inputFile == "" {
		return errors.New("--input is required")
	}

	layer, s, err := c.layer.buildLayer(f, c.inputFile, c.key)
	if err != nil {
		return err
	}

	y, err := layer.Evaluate(s, c.training)
	if err != nil {
		return errors.Wrap(err, "while evaluating layer")
	}

	if err := writeArray(c.outputFile, y); err != nil {
		return errors.Wrapf(err, "while writing output %s", c.outputFile)
	}

	log.Printf("Wrote %v output of %s layer (%d neurons, %d channels) to %s",
		y.Shape, layer.Config().Combinator, layer.Neurons(), layer.NumActivations(), c.outputFile)
	return nil
}
