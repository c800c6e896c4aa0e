// Command mix evaluates a MIX activation layer on arrays stored in numpy
// files.
//
// To evaluate: `go run ./cmd/mix eval --functions=relu,tanh --combinator=linear --neurons=4 --input=x.npy --output=y.npy`
//
// To look at the mixing weights: `go run ./cmd/mix inspect --config=layer.json --input=x.npz --key=x`
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/ahmedtd/actmix/mix"
	"github.com/ahmedtd/actmix/toolbox"
	"github.com/google/subcommands"
	"github.com/pkg/errors"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&EvalCommand{}, "")
	subcommands.Register(&InspectCommand{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

// layerFlags describes the layer, either through a JSON config file or
// through individual flags.  Flags given explicitly override the file.
type layerFlags struct {
	configFile string

	functions  string
	combinator string
	neurons    int
	init       string
	normalizer string
	dropout    float64
	hard       bool
	seed       int64
}

func (lf *layerFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&lf.configFile, "config", "", "Path to a JSON layer config")
	f.StringVar(&lf.functions, "functions", "relu,tanh,sigmoid,identity", "Comma-separated elementary functions")
	f.StringVar(&lf.combinator, "combinator", "linear", "How the functions are mixed")
	f.IntVar(&lf.neurons, "neurons", 0, "Number of neurons, i.e. the size of the input's trailing axis (0 means take it from the input)")
	f.StringVar(&lf.init, "init", "uniform-random", "Linear weight initialization")
	f.StringVar(&lf.normalizer, "normalizer", "", "Activation applied to each neuron's Linear weights")
	f.Float64Var(&lf.dropout, "dropout", 0, "Dropout rate on attention weights in training mode")
	f.BoolVar(&lf.hard, "hard-routing", false, "Route each neuron to its highest-weighted function outside training")
	f.Int64Var(&lf.seed, "seed", 1, "Seed for initialization and dropout")
}

// config resolves the layer configuration.  neurons is used when neither the
// file nor the flags fix the neuron count.
func (lf *layerFlags) config(f *flag.FlagSet, neurons int) (mix.Config, error) {
	set := map[string]bool{}
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	var cfg mix.Config
	if lf.configFile != "" {
		raw, err := os.ReadFile(lf.configFile)
		if err != nil {
			return mix.Config{}, errors.Wrap(err, "while reading layer config")
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return mix.Config{}, errors.Wrapf(err, "while parsing layer config %s", lf.configFile)
		}
	}

	fromFlags := lf.configFile == ""
	if fromFlags || set["functions"] {
		cfg.Functions = nil
		for _, name := range strings.Split(lf.functions, ",") {
			fn, err := toolbox.ParseActivation(name)
			if err != nil {
				return mix.Config{}, errors.Wrap(err, "while parsing --functions")
			}
			cfg.Functions = append(cfg.Functions, fn)
		}
	}
	if fromFlags || set["combinator"] {
		c, err := mix.ParseCombinator(lf.combinator)
		if err != nil {
			return mix.Config{}, err
		}
		cfg.Combinator = c
	}
	if fromFlags || set["init"] {
		m, err := mix.ParseInitMode(lf.init)
		if err != nil {
			return mix.Config{}, err
		}
		cfg.Init = m
	}
	if fromFlags || set["normalizer"] {
		n, err := toolbox.ParseActivation(lf.normalizer)
		if err != nil {
			return mix.Config{}, errors.Wrap(err, "while parsing --normalizer")
		}
		cfg.Normalizer = n
	}
	if fromFlags || set["dropout"] {
		cfg.WeightDropout = float32(lf.dropout)
	}
	if fromFlags || set["hard-routing"] {
		cfg.HardRouting = lf.hard
	}
	if fromFlags || set["seed"] {
		cfg.Seed = lf.seed
	}
	if set["neurons"] || (fromFlags && lf.neurons != 0) {
		cfg.Neurons = lf.neurons
	}
	if cfg.Neurons == 0 {
		cfg.Neurons = neurons
	}

	cfg.Device = toolbox.DetectDevice()
	return cfg, nil
}

// buildLayer loads the input and constructs a layer that fits it.
func (lf *layerFlags) buildLayer(f *flag.FlagSet, inputFile, key string) (*mix.Layer, *toolbox.AF32, error) {
	s, err := loadArray(inputFile, key)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "while loading input %s", inputFile)
	}

	cfg, err := lf.config(f, s.Last())
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Running on %v", cfg.Device)

	layer, err := mix.New(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "while building layer")
	}
	return layer, s, nil
}
