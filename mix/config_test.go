package mix

import (
	"encoding/json"
	"testing"

	"github.com/ahmedtd/actmix/toolbox"
	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestParseCombinator(t *testing.T) {
	testCases := []struct {
		name string
		want Combinator
	}{
		{"none", None},
		{"None", None},
		{"Linear", Linear},
		{"MLP1", MLP1},
		{"MLP1_neg", MLP1Neg},
		{"mlp2", MLP2},
		{"MLP3", MLP3},
		{"MLP4", MLP4},
		{"MLP5", MLP5},
		{"MLPr", MLPR},
		{"MLP_ATT", MLPAtt},
		{"MLP_ATT_neg", MLPAttNeg},
		{" mlp_att_b ", MLPAttB},
	}
	for _, tc := range testCases {
		got, err := ParseCombinator(tc.name)
		if err != nil {
			t.Errorf("ParseCombinator(%q): %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCombinator(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}

	for _, name := range []string{"", "MLP9", "attention", "mlp-att"} {
		_, err := ParseCombinator(name)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("ParseCombinator(%q) error = %v, want ConfigurationError", name, err)
		}
	}
}

func TestCombinatorClasses(t *testing.T) {
	for _, c := range append([]Combinator{None}, mixingCombinators...) {
		classes := 0
		if c == None {
			classes++
		}
		if c == Linear {
			classes++
		}
		if c.Attention() {
			classes++
		}
		if c.Regression() {
			classes++
		}
		if classes != 1 {
			t.Errorf("%s belongs to %d strategy classes, want 1", c, classes)
		}
	}
}

func TestParseInitMode(t *testing.T) {
	testCases := []struct {
		name string
		want InitMode
	}{
		{"gaussian", Gaussian},
		{"normal", Gaussian},
		{"uniform-equal", UniformEqual},
		{"uniform", UniformEqual},
		{"uniform-random", UniformRandom},
		{"Random", UniformRandom},
	}
	for _, tc := range testCases {
		got, err := ParseInitMode(tc.name)
		if err != nil {
			t.Errorf("ParseInitMode(%q): %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseInitMode(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}

	_, err := ParseInitMode("xavier")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("ParseInitMode(xavier) error = %v, want ConfigurationError", err)
	}
}

func TestConfigurationErrors(t *testing.T) {
	ok := Config{Functions: []toolbox.ActivationType{toolbox.ReLU, toolbox.Tanh}, Combinator: MLPAtt, Neurons: 4}

	testCases := []struct {
		name  string
		edit  func(cfg *Config)
		field string
	}{
		{"zero neurons", func(cfg *Config) { cfg.Neurons = 0 }, "neurons"},
		{"negative neurons", func(cfg *Config) { cfg.Neurons = -3 }, "neurons"},
		{"no functions", func(cfg *Config) { cfg.Functions = nil }, "functions"},
		{"unset function", func(cfg *Config) { cfg.Functions[1] = toolbox.NoActivation }, "functions[1]"},
		{"unknown function", func(cfg *Config) { cfg.Functions[0] = toolbox.ActivationType(42) }, "functions[0]"},
		{"unknown combinator", func(cfg *Config) { cfg.Combinator = Combinator(99) }, "combinator"},
		{"normalizer on attention", func(cfg *Config) { cfg.Normalizer = toolbox.Softmax }, "normalizer"},
		{"unknown normalizer", func(cfg *Config) {
			cfg.Combinator = Linear
			cfg.Normalizer = toolbox.ActivationType(42)
		}, "normalizer"},
		{"unknown init", func(cfg *Config) {
			cfg.Combinator = Linear
			cfg.Init = InitMode(7)
		}, "init"},
		{"dropout of one", func(cfg *Config) { cfg.WeightDropout = 1 }, "weight_dropout"},
		{"negative dropout", func(cfg *Config) { cfg.WeightDropout = -0.1 }, "weight_dropout"},
		{"NaN dropout", func(cfg *Config) { cfg.WeightDropout = math32.NaN() }, "weight_dropout"},
		{"dropout on linear", func(cfg *Config) {
			cfg.Combinator = Linear
			cfg.WeightDropout = 0.1
		}, "weight_dropout"},
		{"hard routing on regression", func(cfg *Config) {
			cfg.Combinator = MLP2
			cfg.HardRouting = true
		}, "hard_routing"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := ok
			cfg.Functions = append([]toolbox.ActivationType(nil), ok.Functions...)
			tc.edit(&cfg)

			l, err := New(cfg)
			if l != nil {
				t.Errorf("New returned a layer alongside error %v", err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("New error = %v, want ConfigurationError", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("error names field %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestConfigAccepted(t *testing.T) {
	fns := []toolbox.ActivationType{toolbox.ReLU, toolbox.Softmax}
	for _, cfg := range []Config{
		// Init is ignored outside Linear.
		{Functions: fns, Combinator: MLP1, Neurons: 1, Init: InitMode(7)},
		// Pass-through ignores everything but the first function.
		{Functions: fns, Combinator: None, Neurons: 2},
		{Functions: fns, Combinator: Linear, Neurons: 2, Normalizer: toolbox.Sigmoid},
		{Functions: fns, Combinator: MLPAttNeg, Neurons: 2, WeightDropout: 0.5, HardRouting: true},
	} {
		if _, err := New(cfg); err != nil {
			t.Errorf("New(%+v): %v", cfg, err)
		}
	}
}

func TestConfigJSON(t *testing.T) {
	var cfg Config
	in := `{"functions": ["ReLU", "tanh", "softmax"], "combinator": "MLP_ATT_neg", "neurons": 8, "weight_dropout": 0.25, "init": "normal"}`
	if err := json.Unmarshal([]byte(in), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := Config{
		Functions:     []toolbox.ActivationType{toolbox.ReLU, toolbox.Tanh, toolbox.Softmax},
		Combinator:    MLPAttNeg,
		Neurons:       8,
		Init:          Gaussian,
		WeightDropout: 0.25,
	}
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Fatalf("Wrong config; diff (-got +want)\n%s", diff)
	}

	out, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	wantJSON := `{"functions":["relu","tanh","softmax"],"combinator":"mlp_att_neg","neurons":8,"init":"gaussian","weight_dropout":0.25}`
	if diff := cmp.Diff(string(out), wantJSON); diff != "" {
		t.Errorf("Wrong JSON; diff (-got +want)\n%s", diff)
	}

	for _, bad := range []string{
		`{"functions": ["swish"]}`,
		`{"combinator": "mlp9"}`,
		`{"init": "xavier"}`,
	} {
		var cfg Config
		if err := json.Unmarshal([]byte(bad), &cfg); err == nil {
			t.Errorf("Unmarshal(%s) succeeded", bad)
		}
	}
}

func TestLayerConfigIsACopy(t *testing.T) {
	fns := []toolbox.ActivationType{toolbox.ReLU, toolbox.Tanh}
	l := mustNew(t, Config{Functions: fns, Combinator: Linear, Neurons: 2})
	fns[0] = toolbox.Sigmoid

	got := l.Config()
	if got.Functions[0] != toolbox.ReLU {
		t.Errorf("layer config changed with the caller's slice")
	}
	got.Functions[1] = toolbox.Sigmoid
	if l.Config().Functions[1] != toolbox.Tanh {
		t.Errorf("layer config changed through Config()")
	}
}
