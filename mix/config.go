package mix

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ahmedtd/actmix/toolbox"
	"github.com/chewxy/math32"
)

// Combinator selects how the elementary activations are mixed.
type Combinator int

const (
	// None is pass-through: the first function is applied as-is.
	None Combinator = iota
	// Linear mixes with a learned [neurons, functions] weight matrix.
	Linear
	// MLP1 to MLP5 regress the output from the stacked activations with one
	// small network per neuron.
	MLP1
	MLP1Neg
	MLP2
	MLP3
	MLP4
	MLP5
	// MLPR alternates MLP1 (even neurons) and MLP2 (odd neurons).
	MLPR
	// MLPAtt and its variants compute softmax mixing weights with one small
	// network per neuron.
	MLPAtt
	MLPAttNeg
	MLPAttB
)

var combinatorNames = []string{
	None:      "none",
	Linear:    "linear",
	MLP1:      "mlp1",
	MLP1Neg:   "mlp1_neg",
	MLP2:      "mlp2",
	MLP3:      "mlp3",
	MLP4:      "mlp4",
	MLP5:      "mlp5",
	MLPR:      "mlpr",
	MLPAtt:    "mlp_att",
	MLPAttNeg: "mlp_att_neg",
	MLPAttB:   "mlp_att_b",
}

func (c Combinator) String() string {
	if !c.valid() {
		return fmt.Sprintf("Combinator(%d)", int(c))
	}
	return combinatorNames[c]
}

func (c Combinator) valid() bool {
	return c >= None && int(c) < len(combinatorNames)
}

// ParseCombinator resolves a combinator identifier, case-insensitively.
func ParseCombinator(name string) (Combinator, error) {
	idx := slices.Index(combinatorNames, strings.ToLower(strings.TrimSpace(name)))
	if idx < 0 {
		return None, configError("combinator", fmt.Sprintf("%q", name), "unknown combinator")
	}
	return Combinator(idx), nil
}

func (c Combinator) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, configError("combinator", int(c), "unknown combinator")
	}
	return []byte(c.String()), nil
}

func (c *Combinator) UnmarshalText(text []byte) error {
	parsed, err := ParseCombinator(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Negated reports whether each function also contributes its negation.
func (c Combinator) Negated() bool {
	return c == MLP1Neg || c == MLPAttNeg
}

// Attention reports whether the combinator computes softmax mixing weights.
func (c Combinator) Attention() bool {
	return c == MLPAtt || c == MLPAttNeg || c == MLPAttB
}

// Regression reports whether per-neuron networks produce the output directly.
func (c Combinator) Regression() bool {
	switch c {
	case MLP1, MLP1Neg, MLP2, MLP3, MLP4, MLP5, MLPR:
		return true
	}
	return false
}

// InitMode selects how the Linear weight matrix starts out.
type InitMode int

const (
	// UniformRandom samples U(-0.5, 0.5).
	UniformRandom InitMode = iota
	// Gaussian samples N(0, 1).
	Gaussian
	// UniformEqual sets every weight to 1/functions, i.e. an average.
	UniformEqual
)

var initModeNames = []string{
	UniformRandom: "uniform-random",
	Gaussian:      "gaussian",
	UniformEqual:  "uniform-equal",
}

var initModeAliases = map[string]InitMode{
	"random":  UniformRandom,
	"normal":  Gaussian,
	"uniform": UniformEqual,
}

func (m InitMode) String() string {
	if !m.valid() {
		return fmt.Sprintf("InitMode(%d)", int(m))
	}
	return initModeNames[m]
}

func (m InitMode) valid() bool {
	return m >= UniformRandom && int(m) < len(initModeNames)
}

// ParseInitMode accepts gaussian, uniform-equal and uniform-random, and the
// shorter normal, uniform and random spellings.
func ParseInitMode(name string) (InitMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if idx := slices.Index(initModeNames, name); idx >= 0 {
		return InitMode(idx), nil
	}
	if m, ok := initModeAliases[name]; ok {
		return m, nil
	}
	return UniformRandom, configError("init", fmt.Sprintf("%q", name), "init must be one of %s", strings.Join(initModeNames, ", "))
}

func (m InitMode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, configError("init", int(m), "unknown init mode")
	}
	return []byte(m.String()), nil
}

func (m *InitMode) UnmarshalText(text []byte) error {
	parsed, err := ParseInitMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config fixes the structure of a Layer.
type Config struct {
	// Functions are the elementary activations to mix.  Their order fixes
	// the channel order of the stacked activations.
	Functions  []toolbox.ActivationType `json:"functions"`
	Combinator Combinator               `json:"combinator"`
	Neurons    int                      `json:"neurons"`

	// Normalizer is applied to each neuron's Linear weights.  Linear only.
	Normalizer toolbox.ActivationType `json:"normalizer,omitempty"`
	// Init is only read by Linear.
	Init InitMode `json:"init"`

	// WeightDropout is the dropout rate on attention weights in training
	// mode.  Zero disables it.
	WeightDropout float32 `json:"weight_dropout,omitempty"`
	// HardRouting makes attention layers output the single highest-weighted
	// channel when not training.
	HardRouting bool `json:"hard_routing,omitempty"`

	// Seed seeds weight initialization and dropout.
	Seed int64 `json:"seed,omitempty"`

	// Device picks the combiner kernel.  The zero value means toolbox.CPU.
	Device toolbox.Device `json:"-"`
}

// NumActivations is the number of stacked channels per neuron.
func (cfg Config) NumActivations() int {
	if cfg.Combinator.Negated() {
		return 2 * len(cfg.Functions)
	}
	return len(cfg.Functions)
}

// Validate reports the first problem that would stop New.
func (cfg Config) Validate() error {
	if !cfg.Combinator.valid() {
		return configError("combinator", int(cfg.Combinator), "unknown combinator")
	}
	if cfg.Neurons <= 0 {
		return configError("neurons", cfg.Neurons, "must be positive")
	}
	if len(cfg.Functions) == 0 {
		return configError("functions", cfg.Functions, "at least one elementary function is required")
	}
	for i, fn := range cfg.Functions {
		if !fn.Valid() {
			return configError(fmt.Sprintf("functions[%d]", i), fn, "unknown activation")
		}
	}

	if cfg.Normalizer != toolbox.NoActivation {
		if !cfg.Normalizer.Valid() {
			return configError("normalizer", cfg.Normalizer, "unknown activation")
		}
		if cfg.Combinator != Linear {
			return configError("normalizer", cfg.Normalizer, "only the %s combinator normalizes weights", Linear)
		}
	}

	if cfg.Combinator == Linear && !cfg.Init.valid() {
		return configError("init", int(cfg.Init), "init must be one of %s", strings.Join(initModeNames, ", "))
	}

	if cfg.WeightDropout < 0 || cfg.WeightDropout >= 1 || math32.IsNaN(cfg.WeightDropout) {
		return configError("weight_dropout", cfg.WeightDropout, "must be in [0, 1)")
	}
	if cfg.WeightDropout > 0 && !cfg.Combinator.Attention() {
		return configError("weight_dropout", cfg.WeightDropout, "only attention combinators have weights to drop")
	}
	if cfg.HardRouting && !cfg.Combinator.Attention() {
		return configError("hard_routing", cfg.HardRouting, "only attention combinators can route")
	}

	return nil
}
